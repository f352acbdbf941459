package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/smallbiznis/social-connect/internal/adapter/platform"
	"github.com/smallbiznis/social-connect/internal/domain"
	"github.com/smallbiznis/social-connect/internal/pkce"
	"github.com/smallbiznis/social-connect/internal/repository"
)

const (
	// authorizeStateTTL bounds how long a started flow may stay pending.
	authorizeStateTTL = 10 * time.Minute

	stateKeyPrefix = "connect:state:"
)

// StrategySet resolves the strategy bound to a platform.
type StrategySet interface {
	Strategy(p domain.Platform) (platform.Strategy, error)
}

// AuthorizationStart is the response to a connect start request.
type AuthorizationStart struct {
	AuthorizeURL string `json:"authorize_url"`
	State        string `json:"state"`
}

// CallbackInput carries the authorization callback parameters. A present
// CodeVerifier is verified against the stored challenge instead of the
// stored verifier.
type CallbackInput struct {
	WorkspaceID  int64
	Platform     string
	State        string
	Code         string
	CodeVerifier string
}

// ConnectService runs the authorization round trip: building the
// authorize URL with a fresh state/PKCE tuple, then exchanging the
// callback code for a credential.
type ConnectService struct {
	strategies StrategySet
	states     repository.AuthorizeStateStore
	store      repository.CredentialStore
	snowflake  *snowflake.Node
	logger     *zap.Logger
	tracer     trace.Tracer
}

// NewConnectService wires dependencies.
func NewConnectService(strategies StrategySet, states repository.AuthorizeStateStore, store repository.CredentialStore, node *snowflake.Node, logger *zap.Logger) *ConnectService {
	if logger == nil {
		logger = zap.L()
	}
	return &ConnectService{
		strategies: strategies,
		states:     states,
		store:      store,
		snowflake:  node,
		logger:     logger,
		tracer:     otel.Tracer("github.com/smallbiznis/social-connect/internal/service"),
	}
}

// StartAuthorization builds the platform authorize URL and persists the
// state/PKCE tuple for the callback leg.
func (s *ConnectService) StartAuthorization(ctx context.Context, workspaceID int64, platformRaw, redirectURI string, scopes []string) (*AuthorizationStart, error) {
	ctx, span := s.tracer.Start(ctx, "ConnectService.StartAuthorization")
	defer span.End()

	if workspaceID <= 0 {
		return nil, domain.NewRefreshError(domain.KindInvalidInput, "", "workspace id is required")
	}
	p, err := domain.ParsePlatform(platformRaw)
	if err != nil {
		return nil, domain.WrapRefreshError(domain.KindInvalidInput, "", "unsupported platform", err)
	}
	if redirectURI == "" {
		return nil, domain.NewRefreshError(domain.KindInvalidInput, p, "redirect_uri is required")
	}

	strategy, err := s.strategies.Strategy(p)
	if err != nil {
		return nil, domain.WrapRefreshError(domain.KindInvalidInput, p, "no strategy bound", err)
	}

	pair, err := pkce.GeneratePair()
	if err != nil {
		return nil, domain.WrapRefreshError(domain.KindTransient, p, "generate pkce pair", err)
	}
	state, err := randomState()
	if err != nil {
		return nil, domain.WrapRefreshError(domain.KindTransient, p, "generate state", err)
	}

	authorizeURL, err := strategy.AuthorizeURL(platform.AuthorizeRequest{
		RedirectURI:   redirectURI,
		State:         state,
		CodeChallenge: pair.Challenge,
		Scopes:        scopes,
	})
	if err != nil {
		span.RecordError(err)
		return nil, domain.WrapRefreshError(domain.KindInvalidInput, p, "build authorize url", err)
	}

	record := domain.AuthorizeState{
		State:         state,
		CodeVerifier:  pair.Verifier,
		CodeChallenge: pair.Challenge,
		Platform:      p,
		WorkspaceID:   workspaceID,
		RedirectURI:   redirectURI,
		CreatedAt:     time.Now(),
	}
	if err := s.states.SaveState(ctx, stateKey(state), record, authorizeStateTTL); err != nil {
		span.RecordError(err)
		return nil, domain.WrapRefreshError(domain.KindTransient, p, "persist authorize state", err)
	}

	s.logger.Info("authorization started",
		zap.Int64("workspace_id", workspaceID),
		zap.String("platform", string(p)),
	)
	return &AuthorizationStart{AuthorizeURL: authorizeURL, State: state}, nil
}

// HandleCallback consumes the authorize state, verifies PKCE, exchanges
// the code, and persists the resulting credential. The state is single
// use: it is deleted whether or not the exchange succeeds.
func (s *ConnectService) HandleCallback(ctx context.Context, in CallbackInput) (*domain.Credential, error) {
	ctx, span := s.tracer.Start(ctx, "ConnectService.HandleCallback")
	defer span.End()

	if in.State == "" || in.Code == "" {
		return nil, domain.NewRefreshError(domain.KindInvalidInput, "", "state and code are required")
	}

	record, err := s.states.GetState(ctx, stateKey(in.State))
	if err != nil {
		span.RecordError(err)
		return nil, domain.WrapRefreshError(domain.KindTransient, "", "load authorize state", err)
	}
	if record == nil {
		return nil, domain.WrapRefreshError(domain.KindInvalidInput, "", "unknown or expired state", domain.ErrInvalidState)
	}
	defer func() {
		if err := s.states.DeleteState(ctx, stateKey(in.State)); err != nil {
			s.logger.Warn("failed to delete authorize state", zap.Error(err))
		}
	}()

	if in.WorkspaceID != 0 && in.WorkspaceID != record.WorkspaceID {
		return nil, domain.WrapRefreshError(domain.KindInvalidInput, record.Platform, "state belongs to another workspace", domain.ErrInvalidState)
	}
	if in.Platform != "" {
		p, err := domain.ParsePlatform(in.Platform)
		if err != nil || p != record.Platform {
			return nil, domain.WrapRefreshError(domain.KindInvalidInput, record.Platform, "state belongs to another platform", domain.ErrInvalidState)
		}
	}

	verifier := record.CodeVerifier
	if in.CodeVerifier != "" {
		verifier = in.CodeVerifier
	}
	if !pkce.Verify(verifier, record.CodeChallenge) {
		s.logger.Warn("pkce verification failed",
			zap.Int64("workspace_id", record.WorkspaceID),
			zap.String("platform", string(record.Platform)),
		)
		return nil, domain.NewRefreshError(domain.KindPkceMismatch, record.Platform, "code verifier does not match challenge")
	}

	strategy, err := s.strategies.Strategy(record.Platform)
	if err != nil {
		return nil, domain.WrapRefreshError(domain.KindInvalidInput, record.Platform, "no strategy bound", err)
	}

	grant, err := strategy.ExchangeCode(ctx, platform.ExchangeRequest{
		Code:         in.Code,
		CodeVerifier: verifier,
		RedirectURI:  record.RedirectURI,
	})
	if err != nil {
		span.RecordError(err)
		return nil, domain.AsRefreshError(err, record.Platform)
	}

	identity, err := strategy.Identity(ctx, grant.AccessToken)
	if err != nil {
		span.RecordError(err)
		return nil, domain.AsRefreshError(err, record.Platform)
	}

	cred, err := s.persist(ctx, record, grant, identity)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("platform connected",
		zap.Int64("workspace_id", cred.WorkspaceID),
		zap.String("platform", string(cred.Platform)),
		zap.String("account_id", cred.AccountID),
	)
	return cred, nil
}

func (s *ConnectService) persist(ctx context.Context, record *domain.AuthorizeState, grant *platform.TokenGrant, identity *platform.AccountIdentity) (*domain.Credential, error) {
	now := time.Now()
	cred := &domain.Credential{
		ID:           s.snowflake.Generate().Int64(),
		WorkspaceID:  record.WorkspaceID,
		Platform:     record.Platform,
		AccountID:    identity.ID,
		AccountName:  identity.Name,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		IsConnected:  true,
		Scopes:       splitScopes(grant.Scope),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if grant.ExpiresIn > 0 {
		expiresAt := now.Add(time.Duration(grant.ExpiresIn) * time.Second)
		cred.ExpiresAt = &expiresAt
	}

	// Reconnecting an already stored account updates the existing row.
	existing, err := s.store.Load(ctx, record.WorkspaceID, record.Platform)
	if err != nil {
		return nil, domain.WrapRefreshError(domain.KindTransient, record.Platform, "load existing credential", err)
	}
	if existing != nil && existing.AccountID == cred.AccountID {
		cred.ID = existing.ID
		cred.Version = existing.Version
		cred.CreatedAt = existing.CreatedAt
	}

	if err := s.store.Save(ctx, cred); err != nil {
		return nil, domain.WrapRefreshError(domain.KindTransient, record.Platform, "persist credential", err)
	}
	return cred, nil
}

func stateKey(state string) string {
	return fmt.Sprintf("%s%s", stateKeyPrefix, state)
}

func randomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// splitScopes tolerates both space and comma delimited scope strings.
func splitScopes(scope string) []string {
	fields := strings.FieldsFunc(scope, func(r rune) bool {
		return r == ' ' || r == ','
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}
