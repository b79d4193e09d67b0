/**
 * @description
 * Abuse-protection guard combining the failed-login lockout policy and the
 * per-IP request rate limit. Both policies share one attempt store so the
 * lockout deadline and the limiter block land on the same per-identifier
 * record.
 *
 * The guard fails open: if the attempt store is unreachable the request is
 * allowed and a degraded-mode warning is logged. Availability of money
 * movement wins over abuse protection.
 */

package app

import (
	"context"
	"log"
	"time"

	"github.com/pouchpay/wallet-service/internal/domain"
)

// AttemptStore is the persistence contract for the abuse layer.
type AttemptStore interface {
	RegisterFailure(ctx context.Context, identifier string, threshold int, lockout time.Duration) (*domain.AttemptState, error)
	Reset(ctx context.Context, identifier string) error
	Status(ctx context.Context, identifier string) (*domain.AttemptState, error)
	ConsumeRequest(ctx context.Context, identifier string, limit int, window, block time.Duration) (int, time.Duration, error)
}

// GuardConfig carries the abuse-protection tunables.
type GuardConfig struct {
	LoginThreshold  int
	LockoutDuration time.Duration
	RequestLimit    int
	RequestWindow   time.Duration
	BlockDuration   time.Duration
}

// Guard enforces the lockout and rate-limit policies.
type Guard struct {
	store AttemptStore
	cfg   GuardConfig
}

func NewGuard(store AttemptStore, cfg GuardConfig) *Guard {
	if cfg.LoginThreshold <= 0 {
		cfg.LoginThreshold = 5
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = time.Minute
	}
	if cfg.RequestLimit <= 0 {
		cfg.RequestLimit = 100
	}
	if cfg.RequestWindow <= 0 {
		cfg.RequestWindow = time.Minute
	}
	if cfg.BlockDuration <= 0 {
		cfg.BlockDuration = time.Minute
	}
	return &Guard{store: store, cfg: cfg}
}

// CheckLocked reports whether the identifier is currently locked out and how
// long remains. Store errors fail open.
func (g *Guard) CheckLocked(ctx context.Context, identifier string) (time.Duration, bool) {
	if g == nil || g.store == nil {
		return 0, false
	}
	state, err := g.store.Status(ctx, identifier)
	if err != nil {
		log.Printf("level=warn component=guard mode=degraded msg=\"attempt store unavailable\" identifier=%s err=%v", identifier, err)
		return 0, false
	}
	if state == nil {
		return 0, false
	}
	return state.Locked(time.Now().UTC())
}

// RegisterLoginFailure counts one failed login for the identifier and returns
// the resulting state. The store trips the lockout atomically at the
// threshold. Store errors fail open with a nil state.
func (g *Guard) RegisterLoginFailure(ctx context.Context, identifier string) *domain.AttemptState {
	if g == nil || g.store == nil {
		return nil
	}
	state, err := g.store.RegisterFailure(ctx, identifier, g.cfg.LoginThreshold, g.cfg.LockoutDuration)
	if err != nil {
		log.Printf("level=warn component=guard mode=degraded msg=\"attempt store unavailable\" identifier=%s err=%v", identifier, err)
		return nil
	}
	return state
}

// ClearAttempts wipes the identifier's failure record after a successful
// login.
func (g *Guard) ClearAttempts(ctx context.Context, identifier string) {
	if g == nil || g.store == nil {
		return
	}
	if err := g.store.Reset(ctx, identifier); err != nil {
		log.Printf("level=warn component=guard mode=degraded msg=\"attempt reset failed\" identifier=%s err=%v", identifier, err)
	}
}

// AllowRequest counts one request for the identifier against the fixed
// window. An identifier already under a block is refused without consuming
// window capacity. Store errors fail open.
func (g *Guard) AllowRequest(ctx context.Context, identifier string) (time.Duration, bool) {
	if g == nil || g.store == nil {
		return 0, true
	}

	state, err := g.store.Status(ctx, identifier)
	if err != nil {
		log.Printf("level=warn component=guard mode=degraded msg=\"attempt store unavailable\" identifier=%s err=%v", identifier, err)
		return 0, true
	}
	if state != nil {
		if remaining, locked := state.Locked(time.Now().UTC()); locked {
			return remaining, false
		}
	}

	count, retryAfter, err := g.store.ConsumeRequest(ctx, identifier, g.cfg.RequestLimit, g.cfg.RequestWindow, g.cfg.BlockDuration)
	if err != nil {
		log.Printf("level=warn component=guard mode=degraded msg=\"attempt store unavailable\" identifier=%s err=%v", identifier, err)
		return 0, true
	}
	if count > g.cfg.RequestLimit {
		log.Printf("level=info component=guard msg=\"rate limit exceeded\" identifier=%s count=%d", identifier, count)
		return retryAfter, false
	}
	return 0, true
}

// Status exposes the raw attempt state for the limit-status endpoint.
func (g *Guard) Status(ctx context.Context, identifier string) (*domain.AttemptState, error) {
	if g == nil || g.store == nil {
		return nil, nil
	}
	return g.store.Status(ctx, identifier)
}
