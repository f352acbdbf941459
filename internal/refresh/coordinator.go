// Package refresh owns the credential staleness decision, refresh
// serialization, and retry policy. All retry/backoff behavior for the
// whole system lives here so it stays centrally testable.
package refresh

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/smallbiznis/social-connect/internal/adapter/platform"
	"github.com/smallbiznis/social-connect/internal/domain"
	"github.com/smallbiznis/social-connect/internal/repository"
)

// Config tunes the coordinator's staleness and retry policy.
type Config struct {
	// SafetyMargin treats a credential as stale this long before its
	// actual expiry.
	SafetyMargin time.Duration
	// MaxAttempts bounds retries of retryable failures per refresh.
	MaxAttempts int
	// BackoffBase is the first retry delay; each retry doubles it.
	BackoffBase time.Duration
	// AttemptTimeout bounds each outbound token endpoint call.
	AttemptTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.SafetyMargin <= 0 {
		c.SafetyMargin = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 10 * time.Second
	}
	return c
}

// StrategySet resolves the refresh strategy bound to a platform.
// *platform.Registry is the production implementation.
type StrategySet interface {
	Strategy(p domain.Platform) (platform.Strategy, error)
}

// Coordinator serializes refresh attempts per credential key and writes
// outcomes back through the store. At most one outbound refresh call is
// in flight per key at any instant.
type Coordinator struct {
	store      repository.CredentialStore
	strategies StrategySet
	cfg        Config
	logger     *zap.Logger

	group singleflight.Group
	now   func() time.Time
}

// NewCoordinator wires the coordinator with its store and strategy set.
func NewCoordinator(store repository.CredentialStore, strategies StrategySet, cfg Config, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.L()
	}
	return &Coordinator{
		store:      store,
		strategies: strategies,
		cfg:        cfg.withDefaults(),
		logger:     logger,
		now:        time.Now,
	}
}

// GetValidCredentials returns a credential whose access token is valid
// beyond the safety margin, refreshing it first when needed. Concurrent
// callers for the same key coalesce onto one refresh attempt and all
// observe its outcome.
func (c *Coordinator) GetValidCredentials(ctx context.Context, workspaceID int64, p domain.Platform) (*domain.Credential, error) {
	ctx, span := c.startSpan(ctx, "Coordinator.GetValidCredentials")
	defer span.End()

	cred, err := c.load(ctx, workspaceID, p)
	if err != nil {
		return nil, err
	}
	if cred.FreshWithin(c.cfg.SafetyMargin, c.now()) {
		return cred, nil
	}

	key := cred.Key().String()
	// The refresh runs on a detached context: a cancelled caller must
	// not abort work other waiters depend on.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.refresh(flightCtx, workspaceID, p)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Credential), nil
	case <-ctx.Done():
		return nil, domain.WrapRefreshError(domain.KindTransient, p, "caller cancelled while awaiting refresh", ctx.Err())
	}
}

func (c *Coordinator) load(ctx context.Context, workspaceID int64, p domain.Platform) (*domain.Credential, error) {
	cred, err := c.store.Load(ctx, workspaceID, p)
	if err != nil {
		return nil, domain.WrapRefreshError(domain.KindTransient, p, "credential store unavailable", err)
	}
	if cred == nil {
		return nil, domain.NewRefreshError(domain.KindNotConnected, p, "no credential on record")
	}
	if !cred.IsConnected {
		return nil, domain.NewRefreshError(domain.KindNotConnected, p, "credential disconnected, re-authorization required")
	}
	return cred, nil
}

// refresh is the single-flight body. It re-loads the credential so a
// waiter queued behind a completed attempt observes the fresh row
// instead of starting another outbound call.
func (c *Coordinator) refresh(ctx context.Context, workspaceID int64, p domain.Platform) (*domain.Credential, error) {
	ctx, span := c.startSpan(ctx, "Coordinator.refresh")
	defer span.End()

	cred, err := c.load(ctx, workspaceID, p)
	if err != nil {
		return nil, err
	}
	if cred.FreshWithin(c.cfg.SafetyMargin, c.now()) {
		return cred, nil
	}

	strategy, err := c.strategies.Strategy(p)
	if err != nil {
		return nil, domain.WrapRefreshError(domain.KindInvalidInput, p, "no strategy bound", err)
	}

	var lastErr *domain.RefreshError
	delay := c.cfg.BackoffBase
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		grant, err := c.attempt(ctx, strategy, *cred)
		if err == nil {
			return c.persist(ctx, cred, grant)
		}

		rerr := domain.AsRefreshError(err, p)
		if rerr.Terminal() {
			c.disconnect(ctx, workspaceID, p, rerr)
			return nil, rerr
		}
		if !rerr.Retryable() {
			return nil, rerr
		}

		lastErr = rerr
		c.logger.Warn("refresh attempt failed",
			zap.String("credential", cred.Key().String()),
			zap.Int("attempt", attempt),
			zap.String("kind", string(rerr.Kind)),
			zap.Error(rerr),
		)
		if attempt == c.cfg.MaxAttempts {
			break
		}

		wait := delay
		if rerr.RetryAfter > wait {
			wait = rerr.RetryAfter
		}
		if err := sleep(ctx, wait); err != nil {
			return nil, domain.WrapRefreshError(domain.KindTransient, p, "refresh interrupted", err)
		}
		delay *= 2
	}

	return nil, domain.WrapRefreshError(domain.KindUnavailable, p, "refresh retry budget exhausted", lastErr)
}

func (c *Coordinator) attempt(ctx context.Context, strategy platform.Strategy, cred domain.Credential) (*platform.TokenGrant, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()
	return strategy.Refresh(attemptCtx, cred)
}

// persist applies the grant to the credential and writes it back. A
// rotated refresh token is always stored; an absent one keeps the
// previous token (platforms that do not rotate omit it).
func (c *Coordinator) persist(ctx context.Context, cred *domain.Credential, grant *platform.TokenGrant) (*domain.Credential, error) {
	cred.AccessToken = grant.AccessToken
	if grant.RefreshToken != "" {
		cred.RefreshToken = grant.RefreshToken
	}
	if grant.ExpiresIn > 0 {
		expiresAt := c.now().Add(time.Duration(grant.ExpiresIn) * time.Second)
		cred.ExpiresAt = &expiresAt
	} else {
		cred.ExpiresAt = nil
	}
	cred.IsConnected = true

	err := c.store.Save(ctx, cred)
	if errors.Is(err, domain.ErrVersionConflict) {
		// Coalescing keeps writers serialized; a conflict means an
		// out-of-band write. Reload the row version and reapply once.
		current, loadErr := c.store.Load(ctx, cred.WorkspaceID, cred.Platform)
		if loadErr == nil && current != nil {
			cred.ID = current.ID
			cred.Version = current.Version
			err = c.store.Save(ctx, cred)
		}
	}
	if err != nil {
		return nil, domain.WrapRefreshError(domain.KindTransient, cred.Platform, "persist refreshed credential", err)
	}
	return cred, nil
}

func (c *Coordinator) disconnect(ctx context.Context, workspaceID int64, p domain.Platform, cause *domain.RefreshError) {
	c.logger.Warn("marking credential disconnected",
		zap.Int64("workspace_id", workspaceID),
		zap.String("platform", string(p)),
		zap.String("kind", string(cause.Kind)),
		zap.Error(cause),
	)
	if err := c.store.MarkDisconnected(ctx, workspaceID, p); err != nil {
		c.logger.Error("failed to mark credential disconnected",
			zap.Int64("workspace_id", workspaceID),
			zap.String("platform", string(p)),
			zap.Error(err),
		)
	}
}

func (c *Coordinator) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer("github.com/smallbiznis/social-connect/internal/refresh").Start(ctx, name)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
