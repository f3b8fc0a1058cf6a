// Package pool implements the credential pool and rotation engine:
// strategy-driven selection, OAuth refresh, quota accounting, and atomic
// failover across a list of credentials owned by the credential Store.
package pool

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/antigravity-gateway/gateway/internal/config"
	"github.com/antigravity-gateway/gateway/internal/credential"
	"github.com/antigravity-gateway/gateway/internal/gwerrors"
)

// Refresher performs the OAuth2 refresh-token grant for a credential.
// Implemented by internal/oauthclient; abstracted here so the rotator can
// be tested without network access.
type Refresher interface {
	Refresh(ctx context.Context, c *credential.Credential) error
}

// ProjectResolver discovers or synthesizes a credential's upstream project ID.
type ProjectResolver interface {
	ResolveProjectID(ctx context.Context, c *credential.Credential) (projectID string, eligible bool, err error)
}

// Store is the subset of *credential.Store the rotator depends on.
type Store interface {
	List() []*credential.Credential
	Patch(refreshToken string, fn func(*credential.Credential)) error
}

// Rotator is the credential pool & rotation engine.
type Rotator struct {
	store     Store
	refresher Refresher
	resolver  ProjectResolver
	log       *slog.Logger

	skipProjectDiscovery bool

	mu           sync.Mutex
	strategy     config.RotationStrategy
	requestCountPerToken int
	currentIndex int
	requestCount map[string]int
}

// New constructs a Rotator. cfg supplies the initial strategy and
// requestCountPerToken; both may be hot-swapped later via UpdateRotationConfig.
func New(store Store, refresher Refresher, resolver ProjectResolver, log *slog.Logger, cfg *config.Config) *Rotator {
	return &Rotator{
		store:                store,
		refresher:            refresher,
		resolver:             resolver,
		log:                  log,
		skipProjectDiscovery: cfg.SkipProjectDiscovery,
		strategy:             cfg.RotationStrategy,
		requestCountPerToken: cfg.RequestCountPerToken,
		requestCount:         make(map[string]int),
	}
}

// UpdateRotationConfig hot-swaps the strategy. Counters reset whenever the
// strategy configuration changes.
func (r *Rotator) UpdateRotationConfig(strategy config.RotationStrategy, requestCountPerToken int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategy = strategy
	r.requestCountPerToken = requestCountPerToken
	r.currentIndex = 0
	r.requestCount = make(map[string]int)
}

// GetToken runs the selection algorithm: starting at currentIndex, scan
// circularly up to N credentials, refreshing/resolving project IDs as
// needed, and commit the first usable candidate. Returns nil if every
// credential was skipped.
func (r *Rotator) GetToken(ctx context.Context) (*credential.Credential, error) {
	r.mu.Lock()
	list := r.store.List()
	n := len(list)
	if n == 0 {
		r.mu.Unlock()
		return nil, gwerrors.NoAvailableToken
	}
	strategy := r.strategy
	start := r.currentIndex % n
	r.mu.Unlock()

	for i := 0; i < n; i++ {
		idx := (start + i) % n
		cand := list[idx]

		if !cand.Enable {
			continue
		}
		if strategy == config.StrategyQuotaExhausted && !cand.HasQuota {
			continue
		}

		if cand.IsExpired(time.Now()) {
			if err := r.refresh(ctx, cand); err != nil {
				if gerr, ok := err.(*gwerrors.Error); ok && gerr.IsCredentialFatal() {
					r.disableLocked(cand.RefreshToken)
				}
				// Any other refresh error: skip this attempt, try the next candidate.
				continue
			}
		}

		if cand.ProjectID == "" {
			projectID, eligible, err := r.resolveProject(ctx, cand)
			if err != nil {
				// Project-ID fetch errors: skip without disabling.
				continue
			}
			if !eligible {
				r.disableLocked(cand.RefreshToken)
				continue
			}
			cand.ProjectID = projectID
			_ = r.store.Patch(cand.RefreshToken, func(c *credential.Credential) {
				c.ProjectID = projectID
			})
		}

		r.commit(idx, cand.RefreshToken, strategy)
		return cand, nil
	}

	if strategy == config.StrategyQuotaExhausted {
		return r.resetAndReturnFirst(list)
	}
	return nil, gwerrors.NoAvailableToken
}

func (r *Rotator) refresh(ctx context.Context, c *credential.Credential) error {
	if r.refresher == nil {
		return gwerrors.New(0, "no_refresher", "no refresher configured")
	}
	if err := r.refresher.Refresh(ctx, c); err != nil {
		if r.log != nil {
			r.log.Warn("credential refresh failed", "credential", c.RefreshToken, "error", err)
		}
		return err
	}
	_ = r.store.Patch(c.RefreshToken, func(stored *credential.Credential) {
		stored.AccessToken = c.AccessToken
		stored.ExpiresIn = c.ExpiresIn
		stored.Timestamp = c.Timestamp
	})
	return nil
}

func (r *Rotator) resolveProject(ctx context.Context, c *credential.Credential) (string, bool, error) {
	if r.resolver == nil || r.skipProjectDiscovery {
		return randomProjectID(), true, nil
	}
	return r.resolver.ResolveProjectID(ctx, c)
}

// commit advances currentIndex and applies strategy-specific post-advance
// bookkeeping for the winning candidate.
func (r *Rotator) commit(thisIndex int, refreshToken string, strategy config.RotationStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.store.List())
	if n == 0 {
		return
	}
	r.currentIndex = thisIndex

	switch strategy {
	case config.StrategyRoundRobin, config.StrategyQuotaExhausted:
		// Under quota_exhausted, the cursor still advances past whichever
		// credential was just handed out: the next getToken call resumes
		// the scan after it rather than re-checking it immediately.
		r.currentIndex = (r.currentIndex + 1) % n
	case config.StrategyRequestCount:
		r.requestCount[refreshToken]++
		if r.requestCount[refreshToken] >= r.requestCountPerToken {
			r.requestCount[refreshToken] = 0
			r.currentIndex = (r.currentIndex + 1) % n
		}
	}
}

// disableLocked disables a credential via the store (refresh 4xx, or a
// discovery-reported ineligibility signal).
func (r *Rotator) disableLocked(refreshToken string) {
	_ = r.store.Patch(refreshToken, func(c *credential.Credential) {
		c.Enable = false
	})
}

// DisableToken is the public form of disableLocked for admin-triggered disables.
func (r *Rotator) DisableToken(c *credential.Credential) {
	r.disableLocked(c.RefreshToken)
}

// MarkQuotaExhausted marks hasQuota=false so the next scan under the
// quota_exhausted strategy skips this credential. The rotation cursor
// itself is advanced by commit, on every getToken call, not here.
func (r *Rotator) MarkQuotaExhausted(c *credential.Credential) {
	_ = r.store.Patch(c.RefreshToken, func(stored *credential.Credential) {
		stored.HasQuota = false
	})
}

// RestoreQuota marks hasQuota=true again (e.g. after an admin action or a
// detected new billing window).
func (r *Rotator) RestoreQuota(c *credential.Credential) {
	_ = r.store.Patch(c.RefreshToken, func(stored *credential.Credential) {
		stored.HasQuota = true
	})
}

// resetAndReturnFirst implements the optimistic reset: if every candidate
// was skipped under quota_exhausted, reset every hasQuota to true and
// return index 0 as a best-effort guess that a new billing window opened.
func (r *Rotator) resetAndReturnFirst(list []*credential.Credential) (*credential.Credential, error) {
	for _, c := range list {
		_ = r.store.Patch(c.RefreshToken, func(stored *credential.Credential) {
			stored.HasQuota = true
		})
	}
	if len(list) == 0 {
		return nil, gwerrors.NoAvailableToken
	}

	r.mu.Lock()
	r.currentIndex = 0
	r.mu.Unlock()

	first := list[0].Clone()
	first.HasQuota = true
	return first, nil
}

func randomProjectID() string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 12)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return "gw-" + string(b)
}

// CurrentIndex exposes the rotation cursor for tests; reads are
// mutex-guarded with respect to concurrent GetToken calls.
func (r *Rotator) CurrentIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentIndex
}
