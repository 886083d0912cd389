// Package cache is the read-through cache layer: one entry per canonical
// read signature, stamped with the time of its last successful write.
//
// There is no eviction. The working set is one entry per distinct resource
// collection, so unbounded growth is accepted.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/offsync/internal/clock"
	"github.com/roach88/offsync/internal/kv"
)

// KeyPrefix namespaces cache entries inside the durable store.
const KeyPrefix = "cache/"

// Entry is the last successful response for a read signature.
type Entry struct {
	Key       string
	Value     json.RawMessage
	WrittenAt time.Time
}

// Cache is a view over the cache/ namespace of a kv.Store.
type Cache struct {
	store kv.Store
	clock clock.Clock
}

// New creates a cache over store. A nil clock uses wall time.
func New(store kv.Store, clk clock.Clock) *Cache {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Cache{store: store, clock: clk}
}

// Signature returns the canonical cache key for a read endpoint.
//
// The signature is method independent: it identifies the resource, not the
// call. Paths are NFC normalised, trailing slashes dropped and query
// parameters sorted so "/products/?b=2&a=1" and "/products?a=1&b=2" share
// an entry.
func Signature(endpoint string) string {
	endpoint = norm.NFC.String(strings.TrimSpace(endpoint))

	path, rawQuery, _ := strings.Cut(endpoint, "?")
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	if rawQuery == "" {
		return path
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// Unparseable query: keep it verbatim so distinct queries stay distinct.
		return path + "?" + rawQuery
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return path + "?" + b.String()
}

// Read returns the entry for key. Storage errors read as a miss.
func (c *Cache) Read(ctx context.Context, key string) (Entry, bool) {
	rec, ok, err := c.store.Get(ctx, KeyPrefix+key)
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}
	return Entry{Key: key, Value: rec.Value, WrittenAt: rec.WrittenAt}, true
}

// Write stores value under key and stamps it with the current time.
// Persistence is best effort: a failed write is logged and the previous
// entry (if any) remains readable.
func (c *Cache) Write(ctx context.Context, key string, value json.RawMessage) {
	if err := c.store.Set(ctx, KeyPrefix+key, value); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}

// AgeMinutes returns whole minutes elapsed since key was last written.
// The boolean is false when the key was never written.
func (c *Cache) AgeMinutes(ctx context.Context, key string) (int, bool) {
	e, ok := c.Read(ctx, key)
	if !ok {
		return 0, false
	}
	age := c.clock.Now().Sub(e.WrittenAt)
	if age < 0 {
		age = 0
	}
	return int(age / time.Minute), true
}

// IsStale reports whether key needs a fetch: it was never written or it is
// older than maxAgeMinutes. "Never fetched" and "very stale" are the same
// answer.
func (c *Cache) IsStale(ctx context.Context, key string, maxAgeMinutes int) bool {
	age, ok := c.AgeMinutes(ctx, key)
	if !ok {
		return true
	}
	return age > maxAgeMinutes
}

// Keys lists the signatures currently cached.
func (c *Cache) Keys(ctx context.Context) []string {
	keys, err := c.store.Keys(ctx, KeyPrefix)
	if err != nil {
		slog.Warn("cache key scan failed", "error", err)
		return []string{}
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, KeyPrefix)
	}
	return keys
}
