package security

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tests"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Redis(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRateLimiter(db, 2)
	ctx := context.Background()

	for _, n := range []int64{1, 2, 3} {
		mock.ExpectEval(windowCounterScript, []string{"ratelimit:10.0.0.1"}, time.Minute.Milliseconds()).SetVal(n)
	}

	for _, want := range []bool{true, true, false} {
		allowed, err := r.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.Equal(t, want, allowed)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimiter_RedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRateLimiter(db, 2)

	mock.ExpectEval(windowCounterScript, []string{"ratelimit:10.0.0.1"}, time.Minute.Milliseconds()).SetErr(errors.New("connection refused"))

	_, err := r.Allow(context.Background(), "10.0.0.1")
	assert.Error(t, err)
}

func TestWindowCounterScript_SetsExpiryInSameCall(t *testing.T) {
	assert.Contains(t, windowCounterScript, `redis.call("INCR", KEYS[1])`)
	assert.Contains(t, windowCounterScript, `redis.call("PTTL", KEYS[1]) < 0`)
	assert.Contains(t, windowCounterScript, `redis.call("PEXPIRE", KEYS[1], ARGV[1])`)
}

func TestRateLimiter_Local(t *testing.T) {
	r := NewRateLimiter(nil, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := r.Allow(ctx, "a")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, _ := r.Allow(ctx, "a")
	assert.False(t, allowed)

	allowed, _ = r.Allow(ctx, "b")
	assert.True(t, allowed)
}

func TestRateLimiter_Disabled(t *testing.T) {
	r := NewRateLimiter(nil, 0)
	for i := 0; i < 100; i++ {
		allowed, err := r.Allow(context.Background(), "a")
		require.NoError(t, err)
		require.True(t, allowed)
	}
}

func TestMiddleware_RejectsOverLimit(t *testing.T) {
	app, err := tests.NewTestApp()
	require.NoError(t, err)
	defer app.Cleanup()

	r := NewRateLimiter(nil, 1)
	mw := r.Middleware()

	newEvent := func() (*core.RequestEvent, *httptest.ResponseRecorder) {
		rec := httptest.NewRecorder()
		e := &core.RequestEvent{}
		e.App = app
		e.Request = httptest.NewRequest(http.MethodGet, "/events", nil)
		e.Request.RemoteAddr = "10.0.0.9:5555"
		e.Response = rec
		return e, rec
	}

	e, _ := newEvent()
	assert.NoError(t, mw.Func(e))

	e, _ = newEvent()
	err = mw.Func(e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Rate limit exceeded")
}

func TestAntiBot(t *testing.T) {
	mw := NewRateLimiter(nil, 0).AntiBot()

	rec := httptest.NewRecorder()
	e := &core.RequestEvent{}
	e.Request = httptest.NewRequest(http.MethodGet, "/events", nil)
	e.Request.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1)")
	e.Response = rec

	require.NoError(t, mw.Func(e))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestIsSuspiciousUserAgent(t *testing.T) {
	cases := map[string]bool{
		"Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0": false,
		"SomeSpider/1.0":     true,
		"python web SCRAPER": true,
		"Prometheus/2.53.0":  false,
		"":                   false,
	}
	for ua, want := range cases {
		assert.Equal(t, want, IsSuspiciousUserAgent(ua), ua)
	}
}
