package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/livo-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/livo-backend/pkg/errors"
	"github.com/angelmondragon/livo-backend/pkg/redis"
)

func newResponseStore(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	return redis.Wrap(raw), mr
}

func cancelRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings/b1/cancel", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestIdempotencyRequiresKey(t *testing.T) {
	store, _ := newResponseStore(t)
	called := false
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, cancelRequest("", `{}`))
	require.Equal(t, http.StatusBadRequest, resp.Code)

	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, cancelRequest(strings.Repeat("k", maxIdempotencyKeyLen+1), `{}`))
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.False(t, called)
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store, mr := newResponseStore(t)
	calls := 0
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"refund_percentage":75}`))
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, cancelRequest("abc", `{"reason":"plans changed"}`))
	require.Equal(t, http.StatusAccepted, first.Code)
	require.Empty(t, first.Header().Get(ReplayedHeader))

	again := httptest.NewRecorder()
	h.ServeHTTP(again, cancelRequest("abc", `{"reason":"plans changed"}`))
	require.Equal(t, http.StatusAccepted, again.Code)
	require.Equal(t, "application/json", again.Header().Get("Content-Type"))
	require.Equal(t, "true", again.Header().Get(ReplayedHeader))
	require.JSONEq(t, `{"refund_percentage":75}`, again.Body.String())
	require.Equal(t, 1, calls)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	require.Equal(t, time.Hour, mr.TTL(keys[0]))
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	store, _ := newResponseStore(t)
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	h.ServeHTTP(httptest.NewRecorder(), cancelRequest("xyz", `{"reason":"a"}`))

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, cancelRequest("xyz", `{"reason":"b"}`))
	require.Equal(t, http.StatusConflict, resp.Code)
	require.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, resp))
}

func TestIdempotencyInFlightRepeatIsBusy(t *testing.T) {
	store, _ := newResponseStore(t)
	var h http.Handler
	var nested *httptest.ResponseRecorder
	h = Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nested = httptest.NewRecorder()
		h.ServeHTTP(nested, cancelRequest("same", `{}`))
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, cancelRequest("same", `{}`))
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, http.StatusServiceUnavailable, nested.Code)
	require.Equal(t, string(pkgerrors.CodeResourceBusy), errorCode(t, nested))
	require.Equal(t, "1", nested.Header().Get("Retry-After"))
}

func TestIdempotencyReleasesKeyOnServerError(t *testing.T) {
	store, mr := newResponseStore(t)
	calls := 0
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, cancelRequest("retry-me", `{}`))
	require.Equal(t, http.StatusServiceUnavailable, first.Code)
	require.Empty(t, mr.Keys())

	second := httptest.NewRecorder()
	h.ServeHTTP(second, cancelRequest("retry-me", `{}`))
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, 2, calls)
}

func TestIdempotencyReleasesKeyOnPanic(t *testing.T) {
	store, mr := newResponseStore(t)
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	require.Panics(t, func() { h.ServeHTTP(httptest.NewRecorder(), cancelRequest("p", `{}`)) })
	require.Empty(t, mr.Keys())
}

func TestIdempotencyScopesByUser(t *testing.T) {
	store, _ := newResponseStore(t)
	calls := 0
	h := Idempotency(store, time.Hour, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for _, user := range []uuid.UUID{uuid.New(), uuid.New()} {
		req := cancelRequest("same", `{}`)
		req = req.WithContext(WithPrincipal(req.Context(), Principal{UserID: user, Role: enums.UserRoleGuest}))
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	require.Equal(t, 2, calls)
}

func TestIdempotencyStoreOutage(t *testing.T) {
	h := Idempotency(failingStore{}, time.Hour, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run without a claim")
	}))
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, cancelRequest("k", `{}`))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.Equal(t, string(pkgerrors.CodeDependency), errorCode(t, resp))
}

func TestIdempotencyWithoutStorePassesThrough(t *testing.T) {
	called := false
	h := Idempotency(nil, time.Hour, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), cancelRequest("", `{}`))
	require.True(t, called)
}

type failingStore struct{}

var errStoreDown = errors.New("redis down")

func (failingStore) Get(context.Context, string) (string, error) { return "", errStoreDown }
func (failingStore) SetNX(context.Context, string, any, time.Duration) (bool, error) {
	return false, errStoreDown
}
func (failingStore) Set(context.Context, string, any, time.Duration) error { return errStoreDown }
func (failingStore) Del(context.Context, ...string) error                  { return errStoreDown }
func (failingStore) IdempotencyKey(scope, id string) string                { return scope + ":" + id }
