package auth

import (
	"bytes"
	"crypto/ecdsa"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/blues/rvs/internal/config"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimestamp = int64(1_700_000_000)

func sign(t *testing.T, message string) (string, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), signWith(t, key, message)
}

func signWith(t *testing.T, key *ecdsa.PrivateKey, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func signedHeader(address, signature string, ts int64) http.Header {
	header := http.Header{}
	header.Set(HeaderAddress, address)
	header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	header.Set(HeaderSignature, signature)
	return header
}

func newVerifier(enabled bool, now int64) *Verifier {
	v := NewVerifier(config.AuthConfig{Enabled: enabled, MaxSkew: time.Minute})
	v.now = func() time.Time { return time.Unix(now, 0) }
	return v
}

func TestVerify(t *testing.T) {
	body := []byte(`{"ticket_price":100,"max_tickets":3}`)
	message := SigningMessage(http.MethodPost, "/api/v1/vaults", testTimestamp, body)
	address, signature := sign(t, message)
	otherAddress, _ := sign(t, message)
	ts := strconv.FormatInt(testTimestamp, 10)

	tests := []struct {
		name    string
		header  map[string]string
		body    []byte
		now     int64
		wantErr error
	}{
		{
			name:   "valid signature",
			header: map[string]string{HeaderAddress: address, HeaderTimestamp: ts, HeaderSignature: signature},
			body:   body,
			now:    testTimestamp + 30,
		},
		{
			name:    "missing address",
			header:  map[string]string{},
			now:     testTimestamp,
			wantErr: ErrMissingIdentity,
		},
		{
			name:    "not an address",
			header:  map[string]string{HeaderAddress: "alice"},
			now:     testTimestamp,
			wantErr: ErrMalformedRequest,
		},
		{
			name:    "stale timestamp",
			header:  map[string]string{HeaderAddress: address, HeaderTimestamp: ts, HeaderSignature: signature},
			body:    body,
			now:     testTimestamp + 120,
			wantErr: ErrStaleTimestamp,
		},
		{
			name:    "signed by someone else",
			header:  map[string]string{HeaderAddress: otherAddress, HeaderTimestamp: ts, HeaderSignature: signature},
			body:    body,
			now:     testTimestamp,
			wantErr: ErrBadSignature,
		},
		{
			name:    "body swapped after signing",
			header:  map[string]string{HeaderAddress: address, HeaderTimestamp: ts, HeaderSignature: signature},
			body:    []byte(`{"ticket_price":999999,"max_tickets":1}`),
			now:     testTimestamp,
			wantErr: ErrBadSignature,
		},
		{
			name:    "bad signature encoding",
			header:  map[string]string{HeaderAddress: address, HeaderTimestamp: ts, HeaderSignature: "0x1234"},
			body:    body,
			now:     testTimestamp,
			wantErr: ErrMalformedRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			for k, v := range tt.header {
				header.Set(k, v)
			}
			caller, err := newVerifier(true, tt.now).Verify(http.MethodPost, "/api/v1/vaults", header, tt.body)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, address, caller.Hex())
		})
	}
}

func TestVerifySignatureBoundToRoute(t *testing.T) {
	address, signature := sign(t, SigningMessage(http.MethodPost, "/api/v1/vaults", testTimestamp, nil))
	header := signedHeader(address, signature, testTimestamp)

	_, err := newVerifier(true, testTimestamp).Verify(http.MethodDelete, "/api/v1/vaults", header, nil)
	assert.ErrorIs(t, err, ErrBadSignature)
	_, err = newVerifier(true, testTimestamp).Verify(http.MethodPost, "/api/v1/vaults/0xa1/tickets", header, nil)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyRejectsReplay(t *testing.T) {
	path := "/api/v1/vaults/0x00000000000000000000000000000000000000a1/tickets"
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	header := signedHeader(address, signWith(t, key, SigningMessage(http.MethodPost, path, testTimestamp, nil)), testTimestamp)
	v := newVerifier(true, testTimestamp)

	_, err = v.Verify(http.MethodPost, path, header, nil)
	require.NoError(t, err)

	v.now = func() time.Time { return time.Unix(testTimestamp+45, 0) }
	_, err = v.Verify(http.MethodPost, path, header, nil)
	assert.ErrorIs(t, err, ErrReplayed)

	v.now = func() time.Time { return time.Unix(testTimestamp+61, 0) }
	_, err = v.Verify(http.MethodPost, path, header, nil)
	assert.ErrorIs(t, err, ErrStaleTimestamp)

	// 新时间戳的请求通过，过期登记被清理
	fresh := testTimestamp + 61
	freshHeader := signedHeader(address, signWith(t, key, SigningMessage(http.MethodPost, path, fresh, nil)), fresh)
	_, err = v.Verify(http.MethodPost, path, freshHeader, nil)
	require.NoError(t, err)
	assert.Len(t, v.seen, 1)
}

func TestVerifyDisabledTrustsAddress(t *testing.T) {
	header := http.Header{}
	header.Set(HeaderAddress, "0x00000000000000000000000000000000000000a1")
	v := newVerifier(false, 0)

	for i := 0; i < 2; i++ {
		caller, err := v.Verify(http.MethodPost, "/", header, nil)
		require.NoError(t, err)
		assert.Equal(t, common.HexToAddress("0xa1"), caller)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/whoami", newVerifier(false, 0).Middleware(), func(c *gin.Context) {
		caller, ok := Caller(c)
		require.True(t, ok)
		c.String(http.StatusOK, caller.Hex())
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/whoami", nil)
	req.Header.Set(HeaderAddress, "0x00000000000000000000000000000000000000a1")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, common.HexToAddress("0xa1").Hex(), w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareSignedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := newVerifier(true, testTimestamp)
	r := gin.New()
	r.POST("/echo", v.Middleware(), func(c *gin.Context) {
		raw, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		c.String(http.StatusOK, string(raw))
	})

	body := []byte(`{"amount":5}`)
	address, signature := sign(t, SigningMessage(http.MethodPost, "/echo", testTimestamp, body))
	send := func(payload []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewReader(payload))
		for k, values := range signedHeader(address, signature, testTimestamp) {
			req.Header[k] = values
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := send([]byte(`{"amount":500}`))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = send(body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(body), w.Body.String())

	w = send(body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), ErrReplayed.Error())
}
