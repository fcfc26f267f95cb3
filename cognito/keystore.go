package cognito

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	refreshKey = "jwks"

	maxUnknownKeys = 1024
)

// Recorder receives verification and fetch outcomes. observability.Metrics
// implements it.
type Recorder interface {
	JWKSFetched(result string, duration time.Duration, keys int)
	TokenVerified(result string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) JWKSFetched(string, time.Duration, int) {}
func (nopRecorder) TokenVerified(string, time.Duration)    {}

// KeyStoreConfig holds the optional settings of a KeyStore
type KeyStoreConfig struct {
	// MaxAge makes Get refresh a key set older than this. Zero disables
	// age-based refresh; misses still refresh.
	MaxAge time.Duration
	// UnknownKeyTTL, when positive, answers a kid that a fresh key set did
	// not contain from memory for this long instead of fetching again.
	// Zero or negative disables it, so every miss refreshes.
	UnknownKeyTTL time.Duration
	Logger        *zap.Logger
	Recorder      Recorder
}

// KeyStore caches the provider key set in memory and resolves key ids,
// fetching from its KeySource lazily and on misses. All refreshes, explicit or
// triggered by a miss, share one in-flight fetch.
type KeyStore struct {
	source        KeySource
	maxAge        time.Duration
	unknownKeyTTL time.Duration
	logger        *zap.Logger
	recorder      Recorder
	now           func() time.Time

	mu         sync.RWMutex
	set        *KeySet
	generation uint64
	unknown    map[string]time.Time

	group singleflight.Group
}

// NewKeyStore creates an empty store backed by source.
func NewKeyStore(source KeySource, cfg KeyStoreConfig) *KeyStore {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	return &KeyStore{
		source:        source,
		maxAge:        cfg.MaxAge,
		unknownKeyTTL: cfg.UnknownKeyTTL,
		logger:        cfg.Logger,
		recorder:      cfg.Recorder,
		now:           time.Now,
		unknown:       make(map[string]time.Time),
	}
}

// Snapshot returns the cached key set, or nil before the first successful fetch.
func (s *KeyStore) Snapshot() *KeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set
}

// Get returns the key for kid. A miss triggers at most one refresh followed by
// a single retry of the lookup.
func (s *KeyStore) Get(ctx context.Context, kid string) (*SigningKey, error) {
	set, generation := s.current()

	if key, ok := set.Lookup(kid); ok {
		if !s.expired(set) {
			return key, nil
		}
		fresh, err := s.refresh(ctx, generation, kid)
		if err != nil {
			s.logger.Warn("jwks refresh failed, serving cached key set",
				zap.String("kid", kid),
				zap.Time("fetched_at", set.FetchedAt),
				zap.Error(err))
			return key, nil
		}
		return s.lookupAfterRefresh(fresh, kid)
	}

	if set != nil && s.recentlyUnknown(kid) {
		return nil, fmt.Errorf("%w: kid %s", ErrUnknownKey, kid)
	}

	fresh, err := s.refresh(ctx, generation, kid)
	if err != nil {
		return nil, err
	}
	return s.lookupAfterRefresh(fresh, kid)
}

// Refresh fetches the key set and replaces the cached one. On failure the
// cached set is kept.
func (s *KeyStore) Refresh(ctx context.Context) (*KeySet, error) {
	_, generation := s.current()
	return s.refresh(ctx, generation, "")
}

func (s *KeyStore) lookupAfterRefresh(set *KeySet, kid string) (*SigningKey, error) {
	if key, ok := set.Lookup(kid); ok {
		return key, nil
	}
	s.markUnknown(kid)
	s.logger.Warn("kid not found in refreshed jwks",
		zap.String("kid", kid),
		zap.Strings("kids", set.KeyIDs()))
	return nil, fmt.Errorf("%w: kid %s", ErrUnknownKey, kid)
}

func (s *KeyStore) current() (*KeySet, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set, s.generation
}

func (s *KeyStore) expired(set *KeySet) bool {
	return s.maxAge > 0 && s.now().Sub(set.FetchedAt) >= s.maxAge
}

// refresh joins or starts the single in-flight fetch. seen is the generation
// the caller looked at; if a newer set has landed since, it is returned
// without another fetch. Each caller stops waiting when its own ctx is done,
// while the shared fetch runs detached from any one caller's cancellation and
// is bounded by the source's timeout.
func (s *KeyStore) refresh(ctx context.Context, seen uint64, kid string) (*KeySet, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(refreshKey, func() (any, error) {
		if set, generation := s.current(); set != nil && generation != seen {
			return set, nil
		}
		return s.fetch(fetchCtx, kid)
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrKeySetFetch, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*KeySet), nil
	}
}

// fetch loads a new set and publishes it. A wanted kid the new set lacks is
// recorded as unknown in the same critical section, so callers that see the
// new set also see the miss.
func (s *KeyStore) fetch(ctx context.Context, wanted string) (set *KeySet, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			set, err = nil, fmt.Errorf("%w: %v", ErrKeySetFetch, r)
		}
		s.recorder.JWKSFetched(ErrorKind(err), time.Since(start), set.Len())
		if err != nil {
			s.logger.Error("jwks fetch failed", zap.Error(err))
		}
	}()

	set, err = s.source.FetchKeySet(ctx)
	if err != nil {
		if !IsProviderError(err) {
			err = fmt.Errorf("%w: %v", ErrKeySetFetch, err)
		}
		return nil, err
	}
	if set.Len() == 0 {
		return nil, fmt.Errorf("%w: the JWKS endpoint does not contain any keys", ErrKeySetFetch)
	}

	s.mu.Lock()
	s.set = set
	s.generation++
	s.pruneUnknownLocked()
	if _, ok := set.Lookup(wanted); wanted != "" && !ok {
		s.markUnknownLocked(wanted)
	}
	s.mu.Unlock()

	s.logger.Info("jwks refreshed",
		zap.String("jwks_url", set.Source),
		zap.Int("keys", set.Len()))
	return set, nil
}

func (s *KeyStore) recentlyUnknown(kid string) bool {
	if s.unknownKeyTTL <= 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	at, ok := s.unknown[kid]
	return ok && s.now().Sub(at) < s.unknownKeyTTL
}

func (s *KeyStore) markUnknown(kid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markUnknownLocked(kid)
}

func (s *KeyStore) markUnknownLocked(kid string) {
	if s.unknownKeyTTL <= 0 {
		return
	}
	if len(s.unknown) >= maxUnknownKeys {
		s.unknown = make(map[string]time.Time)
	}
	s.unknown[kid] = s.now()
}

func (s *KeyStore) pruneUnknownLocked() {
	if len(s.unknown) == 0 {
		return
	}
	now := s.now()
	for kid, at := range s.unknown {
		if now.Sub(at) >= s.unknownKeyTTL {
			delete(s.unknown, kid)
		}
	}
}
