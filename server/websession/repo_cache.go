package websession

import (
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"

	apperrors "github.com/planningcenter/pco-oauth-bridge/internal/errors"
)

var _ Repo = (*CacheRepo)(nil)

// CacheRepo is a TTL-bound in-memory session store. Entries fall out on
// their own; an expired or missing session reads as ErrNotFound.
type CacheRepo struct {
	cache *gocache.Cache
}

func NewCacheRepo(ttl time.Duration) *CacheRepo {
	return &CacheRepo{
		cache: gocache.New(ttl, ttl/2),
	}
}

func (r *CacheRepo) Upsert(sessionID string, session Session) error {
	if sessionID == "" {
		return errors.New("sessionID is required")
	}
	r.cache.SetDefault(sessionID, session)
	return nil
}

func (r *CacheRepo) Get(sessionID string) (Session, error) {
	if sessionID == "" {
		return Session{}, errors.New("sessionID is required")
	}
	v, ok := r.cache.Get(sessionID)
	if !ok {
		return Session{}, apperrors.ErrNotFound
	}
	return v.(Session), nil
}

func (r *CacheRepo) Delete(sessionID string) error {
	if sessionID == "" {
		return errors.New("sessionID is required")
	}
	r.cache.Delete(sessionID)
	return nil
}
