package access

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehra/filevault-backend/audit"
	"github.com/mehra/filevault-backend/auth"
	"github.com/mehra/filevault-backend/models"
	"github.com/mehra/filevault-backend/storage"
)

type fixture struct {
	store   *storage.MemoryStore
	engine  *Engine
	tokens  *auth.Manager
	owner   *models.User
	other   *models.User
	public  *models.File
	private *models.File
	expired *models.File
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	owner := &models.User{ID: uuid.New(), Email: "owner@example.com", PasswordHash: "x"}
	other := &models.User{ID: uuid.New(), Email: "other@example.com", PasswordHash: "x"}
	require.NoError(t, store.CreateUser(ctx, owner))
	require.NoError(t, store.CreateUser(ctx, other))

	public := &models.File{ID: uuid.New(), OwnerID: owner.ID, OriginalName: "pub.txt", AccessToken: "pub-token", IsPublic: true}
	private := &models.File{ID: uuid.New(), OwnerID: owner.ID, OriginalName: "priv.txt", AccessToken: "priv-token"}
	past := time.Now().Add(-time.Hour)
	expired := &models.File{ID: uuid.New(), OwnerID: owner.ID, OriginalName: "old.txt", AccessToken: "old-token", ExpiresAt: &past}
	require.NoError(t, store.CreateFile(ctx, public))
	require.NoError(t, store.CreateFile(ctx, private))
	require.NoError(t, store.CreateFile(ctx, expired))

	tokens := auth.NewManager([]byte("session-secret"))
	sink := audit.NewSink(store, log.New(io.Discard))
	engine := NewEngine(store, auth.NewResolver(tokens, store), sink)

	return &fixture{store: store, engine: engine, tokens: tokens,
		owner: owner, other: other, public: public, private: private, expired: expired}
}

func (f *fixture) sessionFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, _, err := f.tokens.GenerateTokens(user.ID.String())
	require.NoError(t, err)
	return token
}

// logCount returns how many audit entries exist for files owned by the
// fixture owner.
func (f *fixture) logCount(t *testing.T) int {
	t.Helper()
	entries, err := f.store.GetAccessLogs(context.Background(), f.owner.ID, nil, 300, 0)
	require.NoError(t, err)
	return len(entries)
}

func TestCheckAccessFileNotFound(t *testing.T) {
	f := newFixture(t)
	decision, err := f.engine.CheckAccess(context.Background(), uuid.New(), Request{})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonFileNotFound, decision.Reason)
}

func TestCheckAccessFileExpired(t *testing.T) {
	f := newFixture(t)
	decision, err := f.engine.CheckAccess(context.Background(), f.expired.ID, Request{
		SessionToken: f.sessionFor(t, f.owner),
	})
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, ReasonFileExpired, decision.Reason)
}

func TestCheckAccessPublicFile(t *testing.T) {
	f := newFixture(t)

	// Public means public: no session, an invalid session, and a non-owner
	// session must all be allowed.
	for _, token := range []string{"", "garbage-token", f.sessionFor(t, f.other)} {
		decision, err := f.engine.CheckAccess(context.Background(), f.public.ID, Request{SessionToken: token})
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
		assert.False(t, decision.IsOwner)
		assert.Equal(t, ReasonAllowed, decision.Reason)
	}
}

func TestCheckAccessPrivateFileLadder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	decision, err := f.engine.CheckAccess(ctx, f.private.ID, Request{})
	require.NoError(t, err)
	assert.Equal(t, ReasonAuthRequired, decision.Reason)
	assert.True(t, decision.RequiresAuth)

	decision, err = f.engine.CheckAccess(ctx, f.private.ID, Request{SessionToken: "garbage-token"})
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidSession, decision.Reason)
	assert.True(t, decision.RequiresAuth)

	decision, err = f.engine.CheckAccess(ctx, f.private.ID, Request{SessionToken: f.sessionFor(t, f.other)})
	require.NoError(t, err)
	assert.Equal(t, ReasonNotOwner, decision.Reason)
	assert.False(t, decision.RequiresAuth)

	decision, err = f.engine.CheckAccess(ctx, f.private.ID, Request{SessionToken: f.sessionFor(t, f.owner)})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.IsOwner)
}

func TestEveryBranchWritesOneLogEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	requests := []Request{
		{},
		{SessionToken: "garbage-token"},
		{SessionToken: f.sessionFor(t, f.other)},
		{SessionToken: f.sessionFor(t, f.owner)},
	}
	for i, req := range requests {
		before := f.logCount(t)
		_, err := f.engine.CheckAccess(ctx, f.private.ID, req)
		require.NoError(t, err)
		assert.Equal(t, before+1, f.logCount(t), "request %d", i)
	}
}

func TestCheckAccessDoesNotMutateFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CheckAccess(ctx, f.private.ID, Request{SessionToken: f.sessionFor(t, f.owner)})
	require.NoError(t, err)

	reloaded, err := f.store.GetFileByID(ctx, f.private.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), reloaded.DownloadCount)
	assert.Equal(t, "priv-token", reloaded.AccessToken)
}

func TestCheckCapability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Anonymous capability on a private file: authentication is required.
	decision, err := f.engine.CheckCapability(ctx, f.private.ID, nil, Request{})
	require.NoError(t, err)
	assert.Equal(t, ReasonAuthRequired, decision.Reason)

	decision, err = f.engine.CheckCapability(ctx, f.private.ID, &f.other.ID, Request{})
	require.NoError(t, err)
	assert.Equal(t, ReasonNotOwner, decision.Reason)

	decision, err = f.engine.CheckCapability(ctx, f.private.ID, &f.owner.ID, Request{})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.True(t, decision.IsOwner)

	// Anonymous capability on a public file is fine.
	decision, err = f.engine.CheckCapability(ctx, f.public.ID, nil, Request{})
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestRevokeByNonOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Revoke(ctx, f.private.ID, f.other.ID, "203.0.113.9", "curl/8.0")
	assert.ErrorIs(t, err, ErrNotOwner)

	reloaded, err := f.store.GetFileByID(ctx, f.private.ID)
	require.NoError(t, err)
	assert.Equal(t, "priv-token", reloaded.AccessToken)
}

func TestRevokeByOwnerRotatesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	newToken, err := f.engine.Revoke(ctx, f.private.ID, f.owner.ID, "203.0.113.9", "curl/8.0")
	require.NoError(t, err)
	assert.NotEmpty(t, newToken)
	assert.NotEqual(t, "priv-token", newToken)

	reloaded, err := f.store.GetFileByID(ctx, f.private.ID)
	require.NoError(t, err)
	assert.Equal(t, newToken, reloaded.AccessToken)

	// The old link is dead.
	_, err = f.store.GetFileByAccessToken(ctx, "priv-token")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
