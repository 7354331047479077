// Package cached wraps a repository.UserRepository with an in-process
// read-through cache for GetUserByID.
//
// WHY ONLY GetUserByID?
// Every bearer-authenticated request loads the caller by id in
// auth.RequireAuth, so that lookup dominates store traffic. The other lookups
// (by email, Google id, reset hash) happen once per login or reset and are
// passed straight through.
//
// CONSISTENCY:
// Every write that goes through this decorator bumps the id's generation and
// evicts the id before returning. A read that overlapped a write (it may have
// loaded the old row) sees the generation move and drops what it cached, so a
// write made through this process is visible to the next read. Entries also
// expire after the configured TTL, which bounds staleness for writes made by
// another process sharing the store.
package cached

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/danigit7/E-commerce/internal/model"
	"github.com/danigit7/E-commerce/internal/repository"
)

// UserRepository is the caching decorator. Methods it does not override are
// promoted from the wrapped repository.
type UserRepository struct {
	repository.UserRepository
	cache *ristretto.Cache[string, model.User]
	ttl   time.Duration

	// gens are write counters striped by id hash. Two ids sharing a stripe
	// only cost an occasional skipped cache fill.
	gens [generationStripes]atomic.Uint64
}

const generationStripes = 256

var _ repository.UserRepository = (*UserRepository)(nil)

// New wraps next. maxUsers bounds the number of cached entries.
func New(next repository.UserRepository, ttl time.Duration, maxUsers int64) (*UserRepository, error) {
	if maxUsers <= 0 {
		maxUsers = 10_000
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, model.User]{
		NumCounters: maxUsers * 10, // ristretto recommends 10x the max item count
		MaxCost:     maxUsers,      // each entry costs 1
		BufferItems: 64,
		// Cost counts entries, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("cached: creating cache: %w", err)
	}

	return &UserRepository{UserRepository: next, cache: c, ttl: ttl}, nil
}

// Close stops the cache's background goroutines.
func (r *UserRepository) Close() {
	r.cache.Close()
}

// GetUserByID serves from the cache when it can. Callers get their own copy:
// mutating the returned user never changes the cached one.
func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if u, ok := r.cache.Get(id); ok {
		return clone(&u), nil
	}

	gen := r.generation(id)
	before := gen.Load()

	u, err := r.UserRepository.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}

	// The entry has to be in the cache before the generation is rechecked,
	// otherwise a write's eviction could land ahead of this fill.
	r.cache.SetWithTTL(id, *clone(u), 1, r.ttl)
	r.cache.Wait()
	if gen.Load() != before {
		r.cache.Del(id)
		r.cache.Wait()
	}
	return u, nil
}

func (r *UserRepository) Save(ctx context.Context, user *model.User) error {
	defer r.evict(user.ID)
	return r.UserRepository.Save(ctx, user)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	defer r.evict(id)
	return r.UserRepository.Delete(ctx, id)
}

func (r *UserRepository) AddToWishlist(ctx context.Context, userID, productID string) error {
	defer r.evict(userID)
	return r.UserRepository.AddToWishlist(ctx, userID, productID)
}

func (r *UserRepository) RemoveFromWishlist(ctx context.Context, userID, productID string) error {
	defer r.evict(userID)
	return r.UserRepository.RemoveFromWishlist(ctx, userID, productID)
}

// evict bumps id's generation, then removes it and waits for ristretto's
// write buffer to drain, so the next read after a write is guaranteed to miss.
// It runs after the store write has returned.
func (r *UserRepository) evict(id string) {
	r.generation(id).Add(1)
	r.cache.Del(id)
	r.cache.Wait()
}

func (r *UserRepository) generation(id string) *atomic.Uint64 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.gens[h.Sum32()%generationStripes]
}

func clone(u *model.User) *model.User {
	c := *u
	c.Wishlist = append([]string{}, u.Wishlist...)
	if u.ResetTokenExpiry != nil {
		t := *u.ResetTokenExpiry
		c.ResetTokenExpiry = &t
	}
	return &c
}
