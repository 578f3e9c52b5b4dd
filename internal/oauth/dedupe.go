// dedupe.go -- Transport decorator that collapses duplicate exchanges.
//
// Authorization codes are single-use. Two requests carrying the same return
// leg (double clicks, prefetchers, a reload before cookies landed) would make
// the second exchange fail at the provider. Concurrent duplicates share one
// in-flight call; later duplicates are answered from the ResultCache.
//
// Both are scoped to the login flow nonce of the browser that was sent to the
// provider. A request without one is forwarded but never cached, so a leaked
// return-leg URL cannot be replayed from another browser.
package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MGallo-Code/wxauth/internal/store"
	"golang.org/x/sync/singleflight"
)

// ResultCache holds recent successful exchange responses.
// GetResult returns store.ErrCacheMiss when key is unknown.
type ResultCache interface {
	GetResult(ctx context.Context, key string) ([]byte, error)
	SetResult(ctx context.Context, key string, result []byte, ttl time.Duration) error
}

// Dedupe sources reported to the hit hook.
const (
	DedupeInflight = "inflight"
	DedupeCache    = "cache"
)

// DedupeOption configures Dedupe.
type DedupeOption func(*dedupeTransport)

// WithHitHook registers fn to be called with DedupeInflight or DedupeCache
// whenever a duplicate exchange is absorbed.
func WithHitHook(fn func(source string)) DedupeOption {
	return func(t *dedupeTransport) { t.onHit = fn }
}

type dedupeTransport struct {
	next  Transport
	cache ResultCache
	ttl   time.Duration
	group singleflight.Group
	onHit func(source string)
}

// Dedupe wraps next. cache may be nil, in which case only concurrent
// duplicates are collapsed.
func Dedupe(next Transport, cache ResultCache, ttl time.Duration, opts ...DedupeOption) Transport {
	t := &dedupeTransport{next: next, cache: cache, ttl: ttl}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *dedupeTransport) Post(ctx context.Context, url string, body any) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding exchange request: %w", err)
	}
	flow := flowFrom(ctx)
	key := resultKey(url, flow, payload)
	cacheable := t.cache != nil && flow != ""

	if cacheable {
		raw, err := t.cache.GetResult(ctx, key)
		if err == nil {
			t.hit(DedupeCache)
			return raw, nil
		}
		if !errors.Is(err, store.ErrCacheMiss) {
			slog.WarnContext(ctx, "exchange result lookup failed", "error", err)
		}
	}

	// The shared call outlives any single caller; the inner transport's own
	// timeout bounds it.
	shared := context.WithoutCancel(ctx)
	led := false
	ch := t.group.DoChan(key, func() (any, error) {
		led = true
		raw, err := t.next.Post(shared, url, json.RawMessage(payload))
		if err != nil {
			return nil, err
		}
		if cacheable && t.ttl > 0 {
			if err := t.cache.SetResult(shared, key, raw, t.ttl); err != nil {
				slog.WarnContext(shared, "failed to cache exchange result", "error", err)
			}
		}
		return raw, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		// Shared is also set for the caller that ran the call.
		if !led {
			t.hit(DedupeInflight)
		}
		return res.Val.([]byte), nil
	}
}

func (t *dedupeTransport) hit(source string) {
	if t.onHit != nil {
		t.onHit(source)
	}
}

// resultKey hashes the request so codes never appear in cache keys.
func resultKey(url, flow string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write([]byte(flow))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

type flowKey struct{}

// withFlow attaches the browser's login flow nonce to ctx.
func withFlow(ctx context.Context, flow string) context.Context {
	if flow == "" {
		return ctx
	}
	return context.WithValue(ctx, flowKey{}, flow)
}

func flowFrom(ctx context.Context) string {
	flow, _ := ctx.Value(flowKey{}).(string)
	return flow
}
