package raffle

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxTickets 单个金库可容纳的参与记录上限
	MaxTickets = 128
	// DefaultDuration 未指定时长时的默认售票时长（秒）
	DefaultDuration int64 = 60 * 60
	// MaxAmount 单个金额（票价、奖池、余额）的上限，与存储层的有符号 bigint 一致
	MaxAmount uint64 = math.MaxInt64
)

var vaultSeed = []byte("vault")

// Identity 参与方身份，零地址表示空身份
type Identity = common.Address

// VaultStatus 金库状态
type VaultStatus string

const (
	VaultStatusOpen     VaultStatus = "open"     // 售票中
	VaultStatusClosed   VaultStatus = "closed"   // 已到截止时间
	VaultStatusFinished VaultStatus = "finished" // 已选出中奖者
)

// Vault 单次抽奖的金库记录
type Vault struct {
	Address     Identity
	Authority   Identity
	Pot         uint64
	TicketPrice uint64
	MaxTickets  uint32
	TicketCount uint32
	EndTime     int64
	Status      VaultStatus

	// Winner 最近一次选出的中奖者，派奖后仍保留
	Winner        Identity
	PendingWinner *Identity
	PendingPrize  uint64
	PaidOut       bool

	Tickets Registry
}

// Authorized 判断调用方是否为所需身份
func Authorized(caller, required Identity) bool {
	return caller == required
}

// DeriveVaultAddress 根据创建者身份推导金库地址，每个创建者同一时刻只有一个金库
func DeriveVaultAddress(authority Identity) Identity {
	hash := crypto.Keccak256(vaultSeed, authority.Bytes())
	return common.BytesToAddress(hash[12:])
}

// Clone 深拷贝金库
func (v *Vault) Clone() *Vault {
	cp := *v
	if v.PendingWinner != nil {
		w := *v.PendingWinner
		cp.PendingWinner = &w
	}
	cp.Tickets = v.Tickets.Clone()
	return &cp
}

// Validate 校验金库不变量
func (v *Vault) Validate() error {
	if int(v.TicketCount) != len(v.Tickets) {
		return fmt.Errorf("ticket_count %d does not match registry length %d", v.TicketCount, len(v.Tickets))
	}
	if v.MaxTickets < 1 || v.MaxTickets > MaxTickets {
		return fmt.Errorf("max_tickets %d outside [1, %d]", v.MaxTickets, MaxTickets)
	}
	if len(v.Tickets) > int(v.MaxTickets) {
		return fmt.Errorf("registry holds %d entries, cap is %d", len(v.Tickets), v.MaxTickets)
	}
	if !v.Tickets.unique() {
		return fmt.Errorf("registry contains a duplicate buyer")
	}
	if v.PendingWinner != nil && v.Status != VaultStatusFinished {
		return fmt.Errorf("pending winner set while status is %s", v.Status)
	}
	if v.PaidOut {
		if v.PendingWinner != nil || v.PendingPrize != 0 || v.Pot != 0 || len(v.Tickets) != 0 || v.TicketCount != 0 {
			return fmt.Errorf("paid out vault still carries sale state")
		}
	}
	expected, ok := checkedMul(v.TicketPrice, uint64(v.TicketCount))
	if !ok || expected != v.Pot {
		return fmt.Errorf("pot %d does not match %d entries at %d", v.Pot, v.TicketCount, v.TicketPrice)
	}
	if v.PendingWinner != nil && v.PendingPrize != v.Pot {
		return fmt.Errorf("pending prize %d differs from pot %d", v.PendingPrize, v.Pot)
	}
	return nil
}

// IsOpenAt 判断在给定时间点是否仍可买票或退票
func (v *Vault) IsOpenAt(now int64) bool {
	return now < v.EndTime
}

func checkedAdd(a, b uint64) (uint64, bool) {
	sum := a + b
	return sum, sum >= a && sum <= MaxAmount
}

func checkedSub(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}

func checkedMul(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	return p, p/b == a && p <= MaxAmount
}
