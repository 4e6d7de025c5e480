package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/coocood/freecache"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=cached_repo_mocks_test.go -package=sessions_test

// Repo is implemented by every session store.
type Repo interface {
	Create(ctx context.Context, newSession NewSession) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	List(ctx context.Context) ([]Session, error)
	ListByDay(ctx context.Context, day time.Time) ([]Session, error)
}

const (
	cacheKeyAll       = "sessions::all"
	cacheKeyDayPrefix = "sessions::day::"
)

// CachedRepo caches session listings in front of another Repo.
// Listings are dropped from the cache whenever a session is created through it.
type CachedRepo struct {
	repo   Repo
	cache  *freecache.Cache
	ttlSec int
}

// NewCachedRepo caches listings for ttl, rounded up to whole seconds.
func NewCachedRepo(repo Repo, cacheSizeBytes int, ttl time.Duration) *CachedRepo {
	return &CachedRepo{
		repo:   repo,
		cache:  freecache.NewCache(cacheSizeBytes),
		ttlSec: cacheTTLSeconds(ttl),
	}
}

// cacheTTLSeconds never returns 0, freecache keeps such entries forever.
func cacheTTLSeconds(ttl time.Duration) int {
	sec := int(math.Ceil(ttl.Seconds()))
	if sec < 1 {
		return 1
	}
	return sec
}

func (r *CachedRepo) Create(ctx context.Context, newSession NewSession) (*Session, error) {
	session, err := r.repo.Create(ctx, newSession)
	if err != nil {
		return nil, err
	}

	r.cache.Del([]byte(cacheKeyAll))
	r.cache.Del(dayCacheKey(session.Timestamp))

	return session, nil
}

func (r *CachedRepo) Get(ctx context.Context, id string) (*Session, error) {
	return r.repo.Get(ctx, id)
}

func (r *CachedRepo) List(ctx context.Context) ([]Session, error) {
	return r.cached(ctx, []byte(cacheKeyAll), r.repo.List)
}

func (r *CachedRepo) ListByDay(ctx context.Context, day time.Time) ([]Session, error) {
	return r.cached(ctx, dayCacheKey(day), func(ctx context.Context) ([]Session, error) {
		return r.repo.ListByDay(ctx, day)
	})
}

func (r *CachedRepo) cached(
	ctx context.Context,
	key []byte,
	load func(ctx context.Context) ([]Session, error),
) ([]Session, error) {
	if raw, err := r.cache.Get(key); err == nil {
		var sessions []Session
		unmarshalErr := json.Unmarshal(raw, &sessions)
		if unmarshalErr == nil {
			log.Tracef("sessions cache hit: %s", key)
			return sessions, nil
		}
		log.Warnf("sessions cache, unmarshal [%s]: %s", key, unmarshalErr)
	} else if !errors.Is(err, freecache.ErrNotFound) {
		log.Warnf("sessions cache, get [%s]: %s", key, err)
	}

	sessions, err := load(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(sessions)
	if err != nil {
		return nil, fmt.Errorf("marshal sessions for cache: %w", err)
	}
	if err := r.cache.Set(key, raw, r.ttlSec); err != nil {
		// e.g. entry larger than the cache allows, serve uncached
		log.Debugf("sessions cache, set [%s]: %s", key, err)
	}

	return sessions, nil
}

func dayCacheKey(day time.Time) []byte {
	start, _ := DayBounds(day)
	return []byte(cacheKeyDayPrefix + start.Format(time.DateOnly) + "::" + start.Location().String())
}
