package refresh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/smallbiznis/social-connect/internal/adapter/platform"
	"github.com/smallbiznis/social-connect/internal/domain"
)

func TestCoordinator_FreshCredentialSkipsRefresh(t *testing.T) {
	h := newCoordinatorHarness(t)
	expires := time.Now().Add(time.Hour)
	h.seed(domain.Credential{
		WorkspaceID: 1, Platform: domain.PlatformFacebook, AccountID: "acct",
		AccessToken: "cached", ExpiresAt: &expires, IsConnected: true,
	})

	cred, err := h.coordinator.GetValidCredentials(context.Background(), 1, domain.PlatformFacebook)
	require.NoError(t, err)
	require.Equal(t, "cached", cred.AccessToken)
	require.Equal(t, int32(0), h.strategy.calls.Load())
}

func TestCoordinator_UnknownExpiryTreatedAsFresh(t *testing.T) {
	h := newCoordinatorHarness(t)
	h.seed(domain.Credential{
		WorkspaceID: 1, Platform: domain.PlatformLinkedIn, AccountID: "acct",
		AccessToken: "opaque", ExpiresAt: nil, IsConnected: true,
	})

	cred, err := h.coordinator.GetValidCredentials(context.Background(), 1, domain.PlatformLinkedIn)
	require.NoError(t, err)
	require.Equal(t, "opaque", cred.AccessToken)
	require.Equal(t, int32(0), h.strategy.calls.Load())
}

func TestCoordinator_NoCredentialReturnsNotConnected(t *testing.T) {
	h := newCoordinatorHarness(t)

	_, err := h.coordinator.GetValidCredentials(context.Background(), 9, domain.PlatformTwitter)
	require.Equal(t, domain.KindNotConnected, domain.KindOf(err))
}

func TestCoordinator_RefreshSuccessUpdatesCredential(t *testing.T) {
	h := newCoordinatorHarness(t)
	expired := time.Now().Add(-time.Hour)
	h.seed(domain.Credential{
		WorkspaceID: 1, Platform: domain.PlatformFacebook, AccountID: "acct",
		AccessToken: "stale", RefreshToken: "old-refresh", ExpiresAt: &expired, IsConnected: true,
	})
	h.strategy.grant = &platform.TokenGrant{AccessToken: "renewed", ExpiresIn: 3600}

	before := time.Now()
	cred, err := h.coordinator.GetValidCredentials(context.Background(), 1, domain.PlatformFacebook)
	require.NoError(t, err)
	require.Equal(t, "renewed", cred.AccessToken)
	require.True(t, cred.IsConnected)
	// Grant omitted a refresh token, so the stored one survives rotation.
	require.Equal(t, "old-refresh", cred.RefreshToken)
	require.NotNil(t, cred.ExpiresAt)
	require.WithinDuration(t, before.Add(time.Hour), *cred.ExpiresAt, 5*time.Second)

	saved := h.store.get(1, domain.PlatformFacebook)
	require.Equal(t, "renewed", saved.AccessToken)
	require.Equal(t, int32(1), h.strategy.calls.Load())
}

func TestCoordinator_PersistsRotatedRefreshToken(t *testing.T) {
	h := newCoordinatorHarness(t)
	expired := time.Now().Add(-time.Minute)
	h.seed(domain.Credential{
		WorkspaceID: 1, Platform: domain.PlatformTwitter, AccountID: "acct",
		AccessToken: "stale", RefreshToken: "consumed", ExpiresAt: &expired, IsConnected: true,
	})
	h.strategy.grant = &platform.TokenGrant{AccessToken: "new", RefreshToken: "rotated", ExpiresIn: 7200}

	_, err := h.coordinator.GetValidCredentials(context.Background(), 1, domain.PlatformTwitter)
	require.NoError(t, err)
	require.Equal(t, "rotated", h.store.get(1, domain.PlatformTwitter).RefreshToken)
}

func TestCoordinator_SingleFlight(t *testing.T) {
	h := newCoordinatorHarness(t)
	expired := time.Now().Add(-time.Hour)
	h.seed(domain.Credential{
		WorkspaceID: 7, Platform: domain.PlatformTwitter, AccountID: "acct",
		AccessToken: "stale", RefreshToken: "refresh", ExpiresAt: &expired, IsConnected: true,
	})
	release := make(chan struct{})
	h.strategy.grant = &platform.TokenGrant{AccessToken: "coalesced", RefreshToken: "rotated", ExpiresIn: 3600}
	h.strategy.block = release

	const waiters = 8
	var wg sync.WaitGroup
	results := make([]string, waiters)
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cred, err := h.coordinator.GetValidCredentials(context.Background(), 7, domain.PlatformTwitter)
			errs[i] = err
			if cred != nil {
				results[i] = cred.AccessToken
			}
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), h.strategy.calls.Load(), "exactly one outbound refresh call")
	for i := 0; i < waiters; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "coalesced", results[i])
	}
}

func TestCoordinator_TerminalFailureDisconnects(t *testing.T) {
	h := newCoordinatorHarness(t)
	expired := time.Now().Add(-time.Hour)
	h.seed(domain.Credential{
		WorkspaceID: 1, Platform: domain.PlatformYouTube, AccountID: "acct",
		AccessToken: "stale", RefreshToken: "dead", ExpiresAt: &expired, IsConnected: true,
	})
	h.strategy.err = domain.NewRefreshError(domain.KindExpiredRefreshToken, domain.PlatformYouTube, "grant expired")

	_, err := h.coordinator.GetValidCredentials(context.Background(), 1, domain.PlatformYouTube)
	require.Equal(t, domain.KindExpiredRefreshToken, domain.KindOf(err))
	require.False(t, h.store.get(1, domain.PlatformYouTube).IsConnected)

	// The terminal state is persisted: the next call short-circuits to
	// NotConnected without another outbound attempt.
	_, err = h.coordinator.GetValidCredentials(context.Background(), 1, domain.PlatformYouTube)
	require.Equal(t, domain.KindNotConnected, domain.KindOf(err))
	require.Equal(t, int32(1), h.strategy.calls.Load())
}

func TestCoordinator_ExponentialBackoffThenUnavailable(t *testing.T) {
	h := newCoordinatorHarnessWithConfig(t, Config{
		BackoffBase:    20 * time.Millisecond,
		MaxAttempts:    3,
		AttemptTimeout: time.Second,
	})
	expired := time.Now().Add(-time.Hour)
	h.seed(domain.Credential{
		WorkspaceID: 1, Platform: domain.PlatformTikTok, AccountID: "acct",
		AccessToken: "stale", RefreshToken: "refresh", ExpiresAt: &expired, IsConnected: true,
	})
	h.strategy.err = domain.NewRefreshError(domain.KindTransient, domain.PlatformTikTok, "endpoint flapping")

	_, err := h.coordinator.GetValidCredentials(context.Background(), 1, domain.PlatformTikTok)
	require.Equal(t, domain.KindUnavailable, domain.KindOf(err))
	require.Equal(t, int32(3), h.strategy.calls.Load())

	stamps := h.strategy.stamps()
	require.Len(t, stamps, 3)
	firstGap := stamps[1].Sub(stamps[0])
	secondGap := stamps[2].Sub(stamps[1])
	require.GreaterOrEqual(t, firstGap, 20*time.Millisecond)
	require.GreaterOrEqual(t, secondGap, 40*time.Millisecond)
	require.GreaterOrEqual(t, secondGap, firstGap)

	// Transient exhaustion must not flip the connected flag.
	require.True(t, h.store.get(1, domain.PlatformTikTok).IsConnected)
}

func TestCoordinator_RateLimitHonorsRetryAfter(t *testing.T) {
	h := newCoordinatorHarnessWithConfig(t, Config{
		BackoffBase:    5 * time.Millisecond,
		MaxAttempts:    2,
		AttemptTimeout: time.Second,
	})
	expired := time.Now().Add(-time.Hour)
	h.seed(domain.Credential{
		WorkspaceID: 1, Platform: domain.PlatformLinkedIn, AccountID: "acct",
		AccessToken: "stale", RefreshToken: "refresh", ExpiresAt: &expired, IsConnected: true,
	})
	limited := domain.NewRefreshError(domain.KindRateLimited, domain.PlatformLinkedIn, "slow down")
	limited.RetryAfter = 60 * time.Millisecond
	h.strategy.err = limited

	_, err := h.coordinator.GetValidCredentials(context.Background(), 1, domain.PlatformLinkedIn)
	require.Equal(t, domain.KindUnavailable, domain.KindOf(err))

	stamps := h.strategy.stamps()
	require.Len(t, stamps, 2)
	require.GreaterOrEqual(t, stamps[1].Sub(stamps[0]), 60*time.Millisecond)
}

func TestCoordinator_MalformedFailureDoesNotRetry(t *testing.T) {
	h := newCoordinatorHarness(t)
	expired := time.Now().Add(-time.Hour)
	h.seed(domain.Credential{
		WorkspaceID: 1, Platform: domain.PlatformTwitter, AccountID: "acct",
		AccessToken: "stale", RefreshToken: "refresh", ExpiresAt: &expired, IsConnected: true,
	})
	h.strategy.err = domain.NewRefreshError(domain.KindMalformed, domain.PlatformTwitter, "bad request")

	_, err := h.coordinator.GetValidCredentials(context.Background(), 1, domain.PlatformTwitter)
	require.Equal(t, domain.KindMalformed, domain.KindOf(err))
	require.Equal(t, int32(1), h.strategy.calls.Load())
	require.True(t, h.store.get(1, domain.PlatformTwitter).IsConnected)
}

func TestCoordinator_CallerCancellationDoesNotAbortFlight(t *testing.T) {
	h := newCoordinatorHarness(t)
	expired := time.Now().Add(-time.Hour)
	h.seed(domain.Credential{
		WorkspaceID: 1, Platform: domain.PlatformTwitter, AccountID: "acct",
		AccessToken: "stale", RefreshToken: "refresh", ExpiresAt: &expired, IsConnected: true,
	})
	release := make(chan struct{})
	h.strategy.grant = &platform.TokenGrant{AccessToken: "landed", ExpiresIn: 3600}
	h.strategy.block = release

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.coordinator.GetValidCredentials(ctx, 1, domain.PlatformTwitter)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	err := <-done
	require.Equal(t, domain.KindTransient, domain.KindOf(err))

	// The in-flight refresh keeps running and its result is persisted.
	close(release)
	require.Eventually(t, func() bool {
		return h.store.get(1, domain.PlatformTwitter).AccessToken == "landed"
	}, time.Second, 10*time.Millisecond)
}

// ---- Test harness and fakes ----

type coordinatorHarness struct {
	coordinator *Coordinator
	store       *memoryCredentialStore
	strategy    *scriptedStrategy
}

func newCoordinatorHarness(t *testing.T) *coordinatorHarness {
	t.Helper()
	return newCoordinatorHarnessWithConfig(t, Config{
		BackoffBase:    5 * time.Millisecond,
		AttemptTimeout: time.Second,
	})
}

func newCoordinatorHarnessWithConfig(t *testing.T, cfg Config) *coordinatorHarness {
	t.Helper()
	store := newMemoryCredentialStore()
	strategy := &scriptedStrategy{platform: domain.PlatformTwitter}
	coordinator := NewCoordinator(store, singleStrategySet{strategy}, cfg, zap.NewNop())
	return &coordinatorHarness{coordinator: coordinator, store: store, strategy: strategy}
}

func (h *coordinatorHarness) seed(cred domain.Credential) {
	h.store.put(&cred)
}

type singleStrategySet struct {
	strategy platform.Strategy
}

func (s singleStrategySet) Strategy(domain.Platform) (platform.Strategy, error) {
	return s.strategy, nil
}

type scriptedStrategy struct {
	platform domain.Platform
	grant    *platform.TokenGrant
	err      error
	block    chan struct{}

	calls atomic.Int32
	mu    sync.Mutex
	times []time.Time
}

func (s *scriptedStrategy) Platform() domain.Platform {
	return s.platform
}

func (s *scriptedStrategy) Refresh(ctx context.Context, _ domain.Credential) (*platform.TokenGrant, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.times = append(s.times, time.Now())
	s.mu.Unlock()
	if s.block != nil {
		<-s.block
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.grant, nil
}

func (s *scriptedStrategy) stamps() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time{}, s.times...)
}

func (s *scriptedStrategy) AuthorizeURL(platform.AuthorizeRequest) (string, error) {
	return "", fmt.Errorf("not scripted")
}

func (s *scriptedStrategy) ExchangeCode(context.Context, platform.ExchangeRequest) (*platform.TokenGrant, error) {
	return nil, fmt.Errorf("not scripted")
}

func (s *scriptedStrategy) Identity(context.Context, string) (*platform.AccountIdentity, error) {
	return nil, fmt.Errorf("not scripted")
}

type memoryCredentialStore struct {
	mu    sync.Mutex
	rows  map[string]*domain.Credential
	saves int
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{rows: map[string]*domain.Credential{}}
}

func storeKey(workspaceID int64, p domain.Platform) string {
	return fmt.Sprintf("%d/%s", workspaceID, p)
}

func (m *memoryCredentialStore) put(cred *domain.Credential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *cred
	m.rows[storeKey(cred.WorkspaceID, cred.Platform)] = &clone
}

func (m *memoryCredentialStore) get(workspaceID int64, p domain.Platform) *domain.Credential {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[storeKey(workspaceID, p)]; ok {
		clone := *row
		return &clone
	}
	return nil
}

func (m *memoryCredentialStore) Load(_ context.Context, workspaceID int64, p domain.Platform) (*domain.Credential, error) {
	return m.get(workspaceID, p), nil
}

func (m *memoryCredentialStore) ListByWorkspace(_ context.Context, workspaceID int64) ([]domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var creds []domain.Credential
	for _, row := range m.rows {
		if row.WorkspaceID == workspaceID {
			creds = append(creds, *row)
		}
	}
	return creds, nil
}

func (m *memoryCredentialStore) Save(_ context.Context, cred *domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := storeKey(cred.WorkspaceID, cred.Platform)
	if existing, ok := m.rows[key]; ok && existing.Version != cred.Version {
		return domain.ErrVersionConflict
	}
	cred.Version++
	cred.UpdatedAt = time.Now()
	clone := *cred
	m.rows[key] = &clone
	m.saves++
	return nil
}

func (m *memoryCredentialStore) MarkDisconnected(_ context.Context, workspaceID int64, p domain.Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.rows[storeKey(workspaceID, p)]; ok {
		row.IsConnected = false
		row.Version++
	}
	return nil
}

func (m *memoryCredentialStore) Delete(_ context.Context, workspaceID int64, p domain.Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, storeKey(workspaceID, p))
	return nil
}
