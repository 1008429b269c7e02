package raffle

// Custody 外部资金托管
// Transfer 要么完整生效，要么返回错误且不产生任何变动
type Custody interface {
	Transfer(from, to Identity, amount uint64) error
	Balance(id Identity) (uint64, error)
}

// InitializeArgs 创建金库参数
type InitializeArgs struct {
	TicketPrice uint64
	MaxTickets  uint32
	// Duration 为空时使用 DefaultDuration
	Duration *int64
}

// Initialize 创建金库
func Initialize(authority Identity, args InitializeArgs, now int64) (*Vault, error) {
	if args.TicketPrice == 0 || args.TicketPrice > MaxAmount {
		return nil, ErrInvalidTicketPrice
	}

	duration := DefaultDuration
	if args.Duration != nil {
		duration = *args.Duration
	}
	if duration <= 0 {
		return nil, ErrInvalidDuration
	}
	endTime := now + duration
	if endTime < now {
		return nil, ErrMathOverflow
	}

	maxTickets := args.MaxTickets
	if maxTickets < 1 {
		maxTickets = 1
	}
	if maxTickets > MaxTickets {
		maxTickets = MaxTickets
	}

	return &Vault{
		Address:     DeriveVaultAddress(authority),
		Authority:   authority,
		TicketPrice: args.TicketPrice,
		MaxTickets:  maxTickets,
		EndTime:     endTime,
		Status:      VaultStatusOpen,
		Tickets:     Registry{},
	}, nil
}

// BuyTicket 买票：从买家转入票价，登记一条参与记录
func (v *Vault) BuyTicket(custody Custody, caller Identity, now int64) error {
	if !v.IsOpenAt(now) {
		return ErrVaultClosed
	}
	if v.TicketCount >= v.MaxTickets || len(v.Tickets) >= MaxTickets {
		return ErrMaxTicketsReached
	}
	if v.Tickets.Contains(caller) {
		return ErrAlreadyEntered
	}

	pot, ok := checkedAdd(v.Pot, v.TicketPrice)
	if !ok {
		return ErrMathOverflow
	}

	if err := custody.Transfer(caller, v.Address, v.TicketPrice); err != nil {
		return err
	}

	v.Pot = pot
	v.TicketCount++
	v.Tickets = append(v.Tickets, TicketEntry{Buyer: caller, PurchasedAt: now})
	return nil
}

// RefundTicket 退票：退还票价，移除调用方的参与记录
func (v *Vault) RefundTicket(custody Custody, caller Identity, now int64) error {
	if !v.IsOpenAt(now) {
		return ErrVaultClosed
	}
	idx := v.Tickets.Index(caller)
	if idx < 0 {
		return ErrTicketNotFound
	}

	pot, ok := checkedSub(v.Pot, v.TicketPrice)
	if !ok || v.TicketCount == 0 {
		return ErrMathOverflow
	}

	if err := custody.Transfer(v.Address, caller, v.TicketPrice); err != nil {
		return err
	}

	v.Tickets = v.Tickets.SwapRemove(idx)
	v.TicketCount--
	v.Pot = pot
	return nil
}

// FinalizePayout 截止后由创建者选出中奖者，只登记待领奖金，不转账
// selector 为空时使用 SelectWinner
func (v *Vault) FinalizePayout(caller Identity, now int64, selector Selector) (Identity, error) {
	if !Authorized(caller, v.Authority) {
		return Identity{}, ErrUnauthorizedFinalize
	}
	if v.IsOpenAt(now) {
		return Identity{}, ErrVaultStillRunning
	}
	if v.TicketCount == 0 {
		return Identity{}, ErrNoTicketsSold
	}
	if v.PaidOut {
		return Identity{}, ErrPrizeAlreadyClaimed
	}
	if v.PendingWinner != nil {
		return Identity{}, ErrWinnerAlreadyChosen
	}

	if selector == nil {
		selector = SelectWinner
	}
	winner, err := selector(v.Tickets, now)
	if err != nil {
		return Identity{}, err
	}
	if !v.Tickets.Contains(winner) {
		return Identity{}, ErrTicketNotFound
	}

	v.PendingWinner = &winner
	v.PendingPrize = v.Pot
	v.Status = VaultStatusFinished
	v.Winner = winner
	return winner, nil
}

// ClaimPrize 中奖者领取奖金，随后清空售票状态
func (v *Vault) ClaimPrize(custody Custody, caller Identity) (uint64, error) {
	if v.PendingWinner == nil {
		return 0, ErrNoPendingWinner
	}
	if !Authorized(caller, *v.PendingWinner) {
		return 0, ErrUnauthorizedClaim
	}
	prize := v.PendingPrize
	if prize == 0 {
		return 0, ErrNothingToPayout
	}

	balance, err := custody.Balance(v.Address)
	if err != nil {
		return 0, err
	}
	if balance < prize {
		return 0, ErrNothingToPayout
	}

	if err := custody.Transfer(v.Address, caller, prize); err != nil {
		return 0, err
	}

	v.Pot = 0
	v.PendingPrize = 0
	v.PendingWinner = nil
	v.PaidOut = true
	v.TicketCount = 0
	v.Tickets = Registry{}
	return prize, nil
}

// Cancel 创建者注销空金库，托管余额全部退回创建者
// 调用方负责在成功后删除金库记录
func (v *Vault) Cancel(custody Custody, caller Identity) (uint64, error) {
	if !Authorized(caller, v.Authority) {
		return 0, ErrUnauthorized
	}
	if v.TicketCount != 0 || v.Pot != 0 {
		return 0, ErrTicketsOutstanding
	}

	residual, err := custody.Balance(v.Address)
	if err != nil {
		return 0, err
	}
	if residual > 0 {
		if err := custody.Transfer(v.Address, v.Authority, residual); err != nil {
			return 0, err
		}
	}
	return residual, nil
}

// MarkClosed 截止后将状态标记为已关闭，仅作展示用途
func (v *Vault) MarkClosed(now int64) bool {
	if v.Status != VaultStatusOpen || v.IsOpenAt(now) {
		return false
	}
	v.Status = VaultStatusClosed
	return true
}
