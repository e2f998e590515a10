package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	cache_pkg "github.com/patrickmn/go-cache"
)

const (
	DefaultTTL             = 5 * time.Minute
	DefaultCleanupInterval = 10 * time.Minute
)

// Entry is a memoized redaction of one text in one language
type Entry struct {
	Text     string
	Entities []string
	Count    int
}

type Options struct {
	TTL             time.Duration
	CleanupInterval time.Duration
}

// Handler memoizes redactions in memory
type Handler struct {
	client *cache_pkg.Cache
}

// New creates a new cache handler; zero durations take the defaults
func New(opts Options) (*Handler, error) {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	cleanup := opts.CleanupInterval
	if cleanup <= 0 {
		cleanup = DefaultCleanupInterval
	}
	client := cache_pkg.New(ttl, cleanup)
	return &Handler{
		client: client,
	}, nil
}

// Ping reports whether the cache can serve lookups
func (h *Handler) Ping() (bool, error) {
	return true, nil
}

// Key hashes language and text so raw PII is never held as a map key
func Key(language, text string) string {
	sum := sha256.Sum256([]byte(language + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (h *Handler) Get(language, text string) (Entry, bool) {
	v, ok := h.client.Get(Key(language, text))
	if !ok {
		return Entry{}, false
	}
	entry, ok := v.(Entry)
	return entry, ok
}

func (h *Handler) Set(language, text string, entry Entry) {
	h.client.SetDefault(Key(language, text), entry)
}

// Len returns the number of entries, including expired ones not yet cleaned up
func (h *Handler) Len() int {
	return h.client.ItemCount()
}
