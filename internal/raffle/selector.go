package raffle

// Selector 从参与记录中选出中奖者
//
// 默认实现以当前时间为种子，结果可被调用时机预测和影响。
// 生产环境应替换为不可预测的随机源（例如 VRF），其余流程不受影响。
type Selector func(entries Registry, now int64) (Identity, error)

// SelectWinner 规范排序后取 now mod len 位置的买家
func SelectWinner(entries Registry, now int64) (Identity, error) {
	if len(entries) == 0 {
		return Identity{}, ErrNoTicketsSold
	}
	ordered := entries.Ordered()
	seed := uint64(now)
	idx := seed % uint64(len(ordered))
	return ordered[idx].Buyer, nil
}
