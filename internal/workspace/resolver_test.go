package workspace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/social-connect/internal/domain"
)

type fakeWorkspaceStore struct {
	byID   map[int64]domain.Workspace
	bySlug map[string]domain.Workspace
}

func (f *fakeWorkspaceStore) GetWorkspace(_ context.Context, id int64) (domain.Workspace, error) {
	if ws, ok := f.byID[id]; ok {
		return ws, nil
	}
	return domain.Workspace{}, domain.ErrWorkspaceNotFound
}

func (f *fakeWorkspaceStore) GetWorkspaceBySlug(_ context.Context, slug string) (domain.Workspace, error) {
	if ws, ok := f.bySlug[slug]; ok {
		return ws, nil
	}
	return domain.Workspace{}, domain.ErrWorkspaceNotFound
}

func (f *fakeWorkspaceStore) CreateWorkspace(_ context.Context, ws domain.Workspace) (domain.Workspace, error) {
	return ws, nil
}

func newFakeWorkspaceStore() *fakeWorkspaceStore {
	ws := domain.Workspace{ID: 42, Slug: "acme", Name: "Acme", Status: "ACTIVE"}
	return &fakeWorkspaceStore{
		byID:   map[int64]domain.Workspace{42: ws},
		bySlug: map[string]domain.Workspace{"acme": ws},
	}
}

func TestResolveByID(t *testing.T) {
	r := NewResolver(newFakeWorkspaceStore())

	wsCtx, err := r.Resolve(context.Background(), "42")
	require.NoError(t, err)
	require.Equal(t, int64(42), wsCtx.Workspace.ID)
}

func TestResolveBySlug(t *testing.T) {
	r := NewResolver(newFakeWorkspaceStore())

	wsCtx, err := r.Resolve(context.Background(), " Acme ")
	require.NoError(t, err)
	require.Equal(t, "acme", wsCtx.Workspace.Slug)
}

func TestResolveUnknown(t *testing.T) {
	r := NewResolver(newFakeWorkspaceStore())

	_, err := r.Resolve(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrWorkspaceNotFound)
}

func TestResolveEmpty(t *testing.T) {
	r := NewResolver(newFakeWorkspaceStore())

	_, err := r.Resolve(context.Background(), "   ")
	require.Error(t, err)
}
