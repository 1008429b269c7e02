package raffle

// ErrorKind 错误分类，用于映射到调用方的响应码
type ErrorKind int

const (
	KindInvalidArgument ErrorKind = iota
	KindUnauthorized
	KindNotFound
	KindConflict
	KindInternal
)

// Error 抽奖金库错误
// Code 是稳定的错误名称，对外暴露给 API 调用方
type Error struct {
	Code    string
	Kind    ErrorKind
	message string
}

func (e *Error) Error() string {
	return e.message
}

func newError(code string, kind ErrorKind, message string) *Error {
	return &Error{Code: code, Kind: kind, message: message}
}

// 创建参数错误
var (
	ErrInvalidTicketPrice = newError("InvalidTicketPrice", KindInvalidArgument, "ticket price must be greater than zero")
	ErrInvalidDuration    = newError("InvalidDuration", KindInvalidArgument, "vault duration must be positive")
)

// 时间窗口与容量错误
var (
	ErrVaultClosed        = newError("VaultClosed", KindConflict, "vault has already closed")
	ErrVaultStillRunning  = newError("VaultStillRunning", KindConflict, "vault is still running")
	ErrMaxTicketsReached  = newError("MaxTicketsReached", KindConflict, "maximum number of tickets reached")
	ErrAlreadyEntered     = newError("AlreadyEntered", KindConflict, "duplicate entry detected")
	ErrTicketNotFound     = newError("TicketNotFound", KindNotFound, "ticket not found for this payer")
	ErrNoTicketsSold      = newError("NoTicketsSold", KindConflict, "no tickets were sold")
	ErrTicketsOutstanding = newError("TicketsOutstanding", KindConflict, "tickets still outstanding")
)

// 算术错误
var ErrMathOverflow = newError("MathOverflow", KindInternal, "math overflow")

// 授权错误
var (
	ErrUnauthorized         = newError("Unauthorized", KindUnauthorized, "unauthorized")
	ErrUnauthorizedFinalize = newError("UnauthorizedFinalize", KindUnauthorized, "only the vault authority can finalize the payout")
	ErrUnauthorizedClaim    = newError("UnauthorizedClaim", KindUnauthorized, "caller is not the recorded winner")
)

// 派奖流程错误
var (
	ErrPrizeAlreadyClaimed = newError("PrizeAlreadyClaimed", KindConflict, "prize already claimed")
	ErrWinnerAlreadyChosen = newError("WinnerAlreadyChosen", KindConflict, "winner already chosen")
	ErrNoPendingWinner     = newError("NoPendingWinner", KindConflict, "missing pending winner")
	ErrNothingToPayout     = newError("NothingToPayout", KindConflict, "nothing to pay out")
)

// 金库记录错误
var (
	ErrVaultAlreadyExists = newError("VaultAlreadyExists", KindConflict, "vault already exists for this authority")
	ErrVaultNotFound      = newError("VaultNotFound", KindNotFound, "vault not found")
)
