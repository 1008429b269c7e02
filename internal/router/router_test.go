package router

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/blues/rvs/internal/auth"
	"github.com/blues/rvs/internal/config"
	"github.com/blues/rvs/internal/database"
	"github.com/blues/rvs/internal/logic"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	authority = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob       = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol     = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t      *testing.T
	engine *gin.Engine
	now    time.Time
}

func newTestServer(t *testing.T, authCfg config.AuthConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Init(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})

	s := &testServer{t: t, now: time.Unix(1000, 0)}
	cfg := &config.Config{
		Auth:    authCfg,
		Custody: config.CustodyConfig{AllowDeposit: true},
	}
	vaultLogic := logic.NewVaultLogic(db, logic.WithClock(func() time.Time { return s.now }))
	s.engine = Setup(cfg, vaultLogic, logic.NewAccountLogic(db, cfg.Custody.AllowDeposit), logic.NewEventLogic(db))
	return s
}

func (s *testServer) do(method, path string, caller *common.Address, body interface{}) (int, envelope) {
	s.t.Helper()
	header := http.Header{}
	if caller != nil {
		header.Set(auth.HeaderAddress, caller.Hex())
	}
	return s.send(method, path, header, encode(s.t, body))
}

func encode(t *testing.T, body interface{}) []byte {
	t.Helper()
	if body == nil {
		return nil
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return raw
}

// signed 用私钥对请求签名，返回可重复发送的请求头
func signed(t *testing.T, key *ecdsa.PrivateKey, method, path string, body []byte) http.Header {
	t.Helper()
	ts := time.Now().Unix()
	sig, err := crypto.Sign(accounts.TextHash([]byte(auth.SigningMessage(method, path, ts, body))), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27

	header := http.Header{}
	header.Set(auth.HeaderAddress, crypto.PubkeyToAddress(key.PublicKey).Hex())
	header.Set(auth.HeaderTimestamp, strconv.FormatInt(ts, 10))
	header.Set(auth.HeaderSignature, hexutil.Encode(sig))
	return header
}

func (s *testServer) send(method, path string, header http.Header, body []byte) (int, envelope) {
	s.t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, values := range header {
		req.Header[k] = values
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func decode(t *testing.T, env envelope, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestRaffleOverHTTP(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	for _, id := range []common.Address{alice, bob} {
		id := id
		code, _ := s.do(http.MethodPost, "/api/v1/accounts/"+id.Hex()+"/deposit", &id, gin.H{"amount": 500})
		require.Equal(t, http.StatusOK, code)
	}

	code, env := s.do(http.MethodPost, "/api/v1/vaults", &authority, gin.H{
		"ticket_price":     100,
		"max_tickets":      2,
		"duration_seconds": 60,
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var vault struct {
		Address string `json:"address"`
		EndTime int64  `json:"endTime"`
		Winner  string `json:"winner"`
		Pot     uint64 `json:"pot"`
		PaidOut bool   `json:"paidOut"`
	}
	decode(t, env, &vault)
	assert.Equal(t, int64(1060), vault.EndTime)
	base := "/api/v1/vaults/" + vault.Address

	code, env = s.do(http.MethodGet, "/api/v1/authorities/"+authority.Hex()+"/vault", nil, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(http.MethodPost, base+"/tickets", &alice, nil)
	require.Equal(t, http.StatusOK, code)
	code, env = s.do(http.MethodPost, base+"/tickets", &bob, nil)
	require.Equal(t, http.StatusOK, code)
	decode(t, env, &vault)
	assert.Equal(t, uint64(200), vault.Pot)

	code, env = s.do(http.MethodPost, base+"/tickets", &carol, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "MaxTicketsReached", env.Code)

	code, env = s.do(http.MethodPost, base+"/finalize", &authority, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "VaultStillRunning", env.Code)

	s.now = time.Unix(1061, 0)
	code, env = s.do(http.MethodPost, base+"/finalize", &alice, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "UnauthorizedFinalize", env.Code)

	code, env = s.do(http.MethodPost, base+"/finalize", &authority, nil)
	require.Equal(t, http.StatusOK, code)
	decode(t, env, &vault)
	// 同一时刻购票按地址排序，1061 mod 2 = 1 -> bob
	assert.Equal(t, bob.Hex(), vault.Winner)

	code, env = s.do(http.MethodPost, base+"/claim", &bob, nil)
	require.Equal(t, http.StatusOK, code)
	var claim struct {
		Prize uint64 `json:"prize"`
	}
	decode(t, env, &claim)
	assert.Equal(t, uint64(200), claim.Prize)

	code, env = s.do(http.MethodGet, "/api/v1/accounts/"+bob.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, code)
	var account struct {
		Balance uint64 `json:"balance"`
	}
	decode(t, env, &account)
	assert.Equal(t, uint64(600), account.Balance)

	code, env = s.do(http.MethodGet, base+"/events?page=1&page_size=2", nil, nil)
	require.Equal(t, http.StatusOK, code)
	var events struct {
		Events     []struct{ EventType string } `json:"events"`
		Pagination struct {
			Total     int64 `json:"total"`
			TotalPage int64 `json:"totalPage"`
		} `json:"pagination"`
	}
	decode(t, env, &events)
	assert.Equal(t, int64(5), events.Pagination.Total)
	assert.Equal(t, int64(3), events.Pagination.TotalPage)
	assert.Equal(t, "PrizeClaimed", events.Events[0].EventType)

	code, _ = s.do(http.MethodDelete, base, &authority, nil)
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(http.MethodGet, base, nil, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "VaultNotFound", env.Code)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	code, env := s.do(http.MethodPost, "/api/v1/vaults", &authority, gin.H{"ticket_price": 0, "max_tickets": 2})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidTicketPrice", env.Code)

	code, env = s.do(http.MethodPost, "/api/v1/vaults", &authority, gin.H{"ticket_price": 10, "max_tickets": 2})
	require.Equal(t, http.StatusCreated, code)
	var vault struct {
		Address string `json:"address"`
	}
	decode(t, env, &vault)

	code, env = s.do(http.MethodPost, "/api/v1/vaults/"+vault.Address+"/tickets", &carol, nil)
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Equal(t, "InsufficientFunds", env.Code)

	code, _ = s.do(http.MethodPost, "/api/v1/vaults/"+vault.Address+"/tickets", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = s.do(http.MethodGet, "/api/v1/vaults/not-an-address", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "InvalidAddress", env.Code)

	code, env = s.do(http.MethodDelete, "/api/v1/vaults/"+vault.Address+"/tickets", &alice, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "TicketNotFound", env.Code)

	code, env = s.do(http.MethodGet, "/api/v1/vaults?status=open", nil, nil)
	require.Equal(t, http.StatusOK, code)
	var list struct {
		Vaults []struct{} `json:"vaults"`
	}
	decode(t, env, &list)
	assert.Len(t, list.Vaults, 1)
}

func TestSignedRequestsCannotBeReusedOrAltered(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{Enabled: true, MaxSkew: 5 * time.Minute})

	authorityKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	aliceKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	aliceAddr := crypto.PubkeyToAddress(aliceKey.PublicKey)

	// 签名绑定请求体，替换请求体后被拒绝
	createBody := encode(t, gin.H{"ticket_price": 100, "max_tickets": 3})
	createHeader := signed(t, authorityKey, http.MethodPost, "/api/v1/vaults", createBody)
	code, _ := s.send(http.MethodPost, "/api/v1/vaults", createHeader, encode(t, gin.H{"ticket_price": 999999, "max_tickets": 1}))
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := s.send(http.MethodPost, "/api/v1/vaults", createHeader, createBody)
	require.Equal(t, http.StatusCreated, code, env.Message)
	var vault struct {
		Address     string `json:"address"`
		TicketPrice uint64 `json:"ticketPrice"`
		TicketCount uint32 `json:"ticketCount"`
	}
	decode(t, env, &vault)
	assert.Equal(t, uint64(100), vault.TicketPrice)

	depositPath := "/api/v1/accounts/" + aliceAddr.Hex() + "/deposit"
	depositBody := encode(t, gin.H{"amount": 500})
	code, env = s.send(http.MethodPost, depositPath, signed(t, aliceKey, http.MethodPost, depositPath, depositBody), depositBody)
	require.Equal(t, http.StatusOK, code, env.Message)

	// 买票、退票后重放原买票请求被拒绝，余额不再被扣
	ticketsPath := "/api/v1/vaults/" + vault.Address + "/tickets"
	buyHeader := signed(t, aliceKey, http.MethodPost, ticketsPath, nil)
	code, _ = s.send(http.MethodPost, ticketsPath, buyHeader, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = s.send(http.MethodDelete, ticketsPath, signed(t, aliceKey, http.MethodDelete, ticketsPath, nil), nil)
	require.Equal(t, http.StatusOK, code)

	code, env = s.send(http.MethodPost, ticketsPath, buyHeader, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Unauthenticated", env.Code)

	code, env = s.do(http.MethodGet, "/api/v1/vaults/"+vault.Address, nil, nil)
	require.Equal(t, http.StatusOK, code)
	decode(t, env, &vault)
	assert.Zero(t, vault.TicketCount)

	code, env = s.do(http.MethodGet, "/api/v1/accounts/"+aliceAddr.Hex(), nil, nil)
	require.Equal(t, http.StatusOK, code)
	var account struct {
		Balance uint64 `json:"balance"`
	}
	decode(t, env, &account)
	assert.Equal(t, uint64(500), account.Balance)
}

func TestDepositOnlyToOwnAccount(t *testing.T) {
	s := newTestServer(t, config.AuthConfig{})

	code, env := s.do(http.MethodPost, "/api/v1/accounts/"+alice.Hex()+"/deposit", &bob, gin.H{"amount": 10})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Unauthorized", env.Code)

	code, _ = s.do(http.MethodPost, "/api/v1/accounts/"+alice.Hex()+"/deposit", nil, gin.H{"amount": 10})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = s.do(http.MethodPost, "/api/v1/accounts/"+alice.Hex()+"/deposit", &alice, gin.H{"amount": 10})
	require.Equal(t, http.StatusOK, code)
	var account struct {
		Balance uint64 `json:"balance"`
	}
	decode(t, env, &account)
	assert.Equal(t, uint64(10), account.Balance)
}
