package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRouter(store Store, calls *int, status int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("wallet_address", c.GetHeader("X-Wallet-Address"))
		c.Next()
	})
	router.Use(Middleware(store, "wallet_address", zap.NewNop()))
	router.POST("/deposit", func(c *gin.Context) {
		*calls++
		c.JSON(status, gin.H{"call": *calls})
	})
	return router
}

func post(router *gin.Engine, key, wallet, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/deposit", strings.NewReader(body))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	req.Header.Set("X-Wallet-Address", wallet)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestReplay(t *testing.T) {
	calls := 0
	router := newRouter(NewMemoryStore(), &calls, http.StatusOK)

	first := post(router, "k-1", "alice", `{"amount":"1"}`)
	second := post(router, "k-1", "alice", `{"amount":"1"}`)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
}

func TestKeysAreScopedByWallet(t *testing.T) {
	calls := 0
	router := newRouter(NewMemoryStore(), &calls, http.StatusOK)

	post(router, "k-1", "alice", `{}`)
	post(router, "k-1", "bob", `{}`)

	assert.Equal(t, 2, calls)
}

func TestConflictOnDifferentBody(t *testing.T) {
	calls := 0
	router := newRouter(NewMemoryStore(), &calls, http.StatusOK)

	post(router, "k-1", "alice", `{"amount":"1"}`)
	w := post(router, "k-1", "alice", `{"amount":"2"}`)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 1, calls)
}

func TestServerErrorsAreNotStored(t *testing.T) {
	calls := 0
	router := newRouter(NewMemoryStore(), &calls, http.StatusInternalServerError)

	post(router, "k-1", "alice", `{}`)
	post(router, "k-1", "alice", `{}`)

	assert.Equal(t, 2, calls)
}

func TestInFlightKeyIsRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var calls atomic.Int32
	entered := make(chan struct{})
	proceed := make(chan struct{})

	router := gin.New()
	router.Use(Middleware(NewMemoryStore(), "wallet_address", zap.NewNop()))
	router.POST("/deposit", func(c *gin.Context) {
		if calls.Add(1) == 1 {
			close(entered)
			<-proceed
		}
		c.JSON(http.StatusOK, gin.H{"credited": true})
	})

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- post(router, "k-1", "alice", `{"amount":"1"}`) }()
	<-entered

	second := post(router, "k-1", "alice", `{"amount":"1"}`)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Contains(t, second.Body.String(), "IDEMPOTENCY_IN_PROGRESS")

	close(proceed)
	first := <-done
	assert.Equal(t, http.StatusOK, first.Code)

	third := post(router, "k-1", "alice", `{"amount":"1"}`)
	assert.Equal(t, first.Body.String(), third.Body.String())
	assert.Equal(t, int32(1), calls.Load())
}

func TestMemoryStoreReservation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	placeholder := &Record{RequestHash: "h"}

	ok, err := store.Reserve(ctx, "k", placeholder, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Reserve(ctx, "k", placeholder, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, got.InFlight())

	require.NoError(t, store.Save(ctx, "k", &Record{RequestHash: "h", ResponseStatus: http.StatusCreated}, time.Minute))
	got, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, got.InFlight())

	require.NoError(t, store.Release(ctx, "k"))
	ok, err = store.Reserve(ctx, "k", placeholder, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "released key can be reserved again")

	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	ok, err = store.Reserve(ctx, "k", placeholder, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired reservation is free")
}

func TestWithoutKeyRunsEveryTime(t *testing.T) {
	calls := 0
	router := newRouter(NewMemoryStore(), &calls, http.StatusOK)

	post(router, "", "alice", `{}`)
	post(router, "", "alice", `{}`)

	assert.Equal(t, 2, calls)
}

func TestValidateKey(t *testing.T) {
	assert.NoError(t, ValidateKey("deposit-2024-01-01"))
	assert.Error(t, ValidateKey("has space"))
	assert.Error(t, ValidateKey(strings.Repeat("a", MaxKeyLength+1)))
}
