package auth

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/blues/rvs/internal/config"
	"github.com/blues/rvs/internal/raffle"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const (
	HeaderAddress   = "X-Raffle-Address"
	HeaderTimestamp = "X-Raffle-Timestamp"
	HeaderSignature = "X-Raffle-Signature"

	callerKey = "raffle.caller"
)

var (
	ErrMissingIdentity  = errors.New("missing caller identity")
	ErrBadSignature     = errors.New("signature does not match caller")
	ErrStaleTimestamp   = errors.New("signature timestamp outside allowed window")
	ErrMalformedRequest = errors.New("malformed identity headers")
	ErrReplayed         = errors.New("signed request already used")
)

// SigningMessage 调用方需要签名的消息，包含请求体的 keccak256 摘要
func SigningMessage(method, path string, timestamp int64, body []byte) string {
	return fmt.Sprintf("raffle-vault:%s:%s:%d:%s", method, path, timestamp, crypto.Keccak256Hash(body).Hex())
}

// Recover 从 personal_sign 签名中恢复签名者地址
func Recover(message string, signature []byte) (raffle.Identity, error) {
	if len(signature) != crypto.SignatureLength {
		return raffle.Identity{}, ErrMalformedRequest
	}
	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return raffle.Identity{}, errors.Wrap(ErrBadSignature, err.Error())
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verifier 校验调用方对身份的控制权
// 每条签名消息在时间窗口内只能使用一次
type Verifier struct {
	enabled bool
	maxSkew time.Duration
	now     func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time // 签名消息 -> 过期时间
}

// NewVerifier 创建身份校验器
func NewVerifier(cfg config.AuthConfig) *Verifier {
	return &Verifier{
		enabled: cfg.Enabled,
		maxSkew: cfg.MaxSkew,
		now:     time.Now,
		seen:    make(map[string]time.Time),
	}
}

// Verify 校验请求头与请求体，返回已证明的调用方身份
func (v *Verifier) Verify(method, path string, header http.Header, body []byte) (raffle.Identity, error) {
	claimed := header.Get(HeaderAddress)
	if claimed == "" {
		return raffle.Identity{}, ErrMissingIdentity
	}
	if !common.IsHexAddress(claimed) {
		return raffle.Identity{}, ErrMalformedRequest
	}
	caller := common.HexToAddress(claimed)
	if !v.enabled {
		return caller, nil
	}

	ts, err := strconv.ParseInt(header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return raffle.Identity{}, ErrMalformedRequest
	}
	now := v.now()
	skew := now.Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > v.maxSkew {
		return raffle.Identity{}, ErrStaleTimestamp
	}

	signature, err := hexutil.Decode(header.Get(HeaderSignature))
	if err != nil {
		return raffle.Identity{}, ErrMalformedRequest
	}
	message := SigningMessage(method, path, ts, body)
	signer, err := Recover(message, signature)
	if err != nil {
		return raffle.Identity{}, err
	}
	if !raffle.Authorized(signer, caller) {
		return raffle.Identity{}, ErrBadSignature
	}
	if !v.markSeen(caller.Hex()+"|"+message, time.Unix(ts, 0).Add(v.maxSkew), now) {
		return raffle.Identity{}, ErrReplayed
	}
	return caller, nil
}

// markSeen 登记已使用的签名消息，重复时返回 false
// 以消息而非签名字节为键，变形后的同一签名同样会被拒绝
func (v *Verifier) markSeen(key string, expiry, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	for k, exp := range v.seen {
		if now.After(exp) {
			delete(v.seen, k)
		}
	}
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = expiry
	return true
}

// Middleware 校验身份并写入上下文
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var body []byte
		if c.Request.Body != nil {
			raw, err := io.ReadAll(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"success": false,
					"code":    "InvalidRequest",
					"message": err.Error(),
				})
				return
			}
			body = raw
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
		}

		caller, err := v.Verify(c.Request.Method, c.Request.URL.Path, c.Request.Header, body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    "Unauthenticated",
				"message": err.Error(),
			})
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

// Caller 获取中间件写入的调用方身份
func Caller(c *gin.Context) (raffle.Identity, bool) {
	value, ok := c.Get(callerKey)
	if !ok {
		return raffle.Identity{}, false
	}
	caller, ok := value.(raffle.Identity)
	return caller, ok
}
