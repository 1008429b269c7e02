package raffle

import (
	"bytes"
	"sort"
)

// TicketEntry 一次购票记录
type TicketEntry struct {
	Buyer       Identity
	PurchasedAt int64
}

// Registry 金库内的参与记录，每个买家最多一条
type Registry []TicketEntry

// Index 返回买家所在位置，不存在时返回 -1
func (r Registry) Index(buyer Identity) int {
	for i, entry := range r {
		if entry.Buyer == buyer {
			return i
		}
	}
	return -1
}

// Contains 判断买家是否已参与
func (r Registry) Contains(buyer Identity) bool {
	return r.Index(buyer) >= 0
}

// SwapRemove 用最后一条记录覆盖第 i 条后截断，不保留顺序
func (r Registry) SwapRemove(i int) Registry {
	last := len(r) - 1
	r[i] = r[last]
	return r[:last]
}

// Clone 拷贝一份记录
func (r Registry) Clone() Registry {
	if r == nil {
		return nil
	}
	cp := make(Registry, len(r))
	copy(cp, r)
	return cp
}

// Ordered 返回按 (购票时间, 买家地址) 升序排列的快照，与存储顺序无关
func (r Registry) Ordered() Registry {
	ordered := r.Clone()
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].PurchasedAt != ordered[j].PurchasedAt {
			return ordered[i].PurchasedAt < ordered[j].PurchasedAt
		}
		return bytes.Compare(ordered[i].Buyer[:], ordered[j].Buyer[:]) < 0
	})
	return ordered
}

func (r Registry) unique() bool {
	seen := make(map[Identity]struct{}, len(r))
	for _, entry := range r {
		if _, ok := seen[entry.Buyer]; ok {
			return false
		}
		seen[entry.Buyer] = struct{}{}
	}
	return true
}
