package issuer

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehra/filevault-backend/access"
	"github.com/mehra/filevault-backend/apierror"
	"github.com/mehra/filevault-backend/audit"
	"github.com/mehra/filevault-backend/auth"
	"github.com/mehra/filevault-backend/capability"
	"github.com/mehra/filevault-backend/models"
	"github.com/mehra/filevault-backend/storage"
)

const baseURL = "https://vault.example.com"

type fixture struct {
	store   *storage.MemoryStore
	codec   *capability.Codec
	service *Service
	tokens  *auth.Manager
	owner   *models.User
	other   *models.User
	public  *models.File
	private *models.File
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()

	owner := &models.User{ID: uuid.New(), Email: "owner@example.com", PasswordHash: "x"}
	other := &models.User{ID: uuid.New(), Email: "other@example.com", PasswordHash: "x"}
	require.NoError(t, store.CreateUser(ctx, owner))
	require.NoError(t, store.CreateUser(ctx, other))

	public := &models.File{ID: uuid.New(), OwnerID: owner.ID, AccessToken: "pub", IsPublic: true}
	private := &models.File{ID: uuid.New(), OwnerID: owner.ID, AccessToken: "priv"}
	require.NoError(t, store.CreateFile(ctx, public))
	require.NoError(t, store.CreateFile(ctx, private))

	tokens := auth.NewManager([]byte("session-secret"))
	sink := audit.NewSink(store, log.New(io.Discard))
	engine := access.NewEngine(store, auth.NewResolver(tokens, store), sink)
	codec := capability.NewCodec([]byte("capability-secret"), 15*time.Minute, 24*time.Hour)

	return &fixture{
		store:   store,
		codec:   codec,
		service: NewService(engine, codec, baseURL, 10),
		tokens:  tokens,
		owner:   owner,
		other:   other,
		public:  public,
		private: private,
	}
}

func (f *fixture) sessionFor(t *testing.T, user *models.User) string {
	t.Helper()
	token, _, err := f.tokens.GenerateTokens(user.ID.String())
	require.NoError(t, err)
	return token
}

// tokenFrom pulls the capability token back out of an issued URL.
func tokenFrom(t *testing.T, issued *IssuedURL) string {
	t.Helper()
	parsed, err := url.Parse(issued.URL)
	require.NoError(t, err)
	return parsed.Query().Get("token")
}

func TestIssueURLForOwnedPrivateFile(t *testing.T) {
	f := newFixture(t)

	issued, err := f.service.IssueURL(context.Background(), f.private.ID,
		f.sessionFor(t, f.owner), "203.0.113.9", "curl/8.0", Options{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(issued.URL, baseURL+"/api/files/secure/"+f.private.ID.String()+"?"))
	assert.Contains(t, issued.URL, "action=download")
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), issued.ExpiresAt, 2*time.Second)

	// The minted token verifies for the exact (file, action) pair and
	// carries the owner as subject.
	claims, err := f.codec.Verify(tokenFrom(t, issued), f.private.ID, capability.ActionDownload, "", "")
	require.NoError(t, err)
	require.NotNil(t, claims.SubjectID())
	assert.Equal(t, f.owner.ID, *claims.SubjectID())
}

func TestIssueURLAnonymousPublicFile(t *testing.T) {
	f := newFixture(t)

	issued, err := f.service.IssueURL(context.Background(), f.public.ID,
		"", "203.0.113.9", "curl/8.0", Options{Action: capability.ActionView})
	require.NoError(t, err)

	claims, err := f.codec.Verify(tokenFrom(t, issued), f.public.ID, capability.ActionView, "", "")
	require.NoError(t, err)
	assert.Nil(t, claims.SubjectID())
}

func TestIssueURLDenied(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.IssueURL(context.Background(), f.private.ID,
		f.sessionFor(t, f.other), "203.0.113.9", "curl/8.0", Options{})
	require.Error(t, err)
	assert.Equal(t, apierror.CodeForbidden, apierror.From(err).Code)

	_, err = f.service.IssueURL(context.Background(), f.private.ID,
		"", "203.0.113.9", "curl/8.0", Options{})
	require.Error(t, err)
	assert.Equal(t, apierror.CodeAuthRequired, apierror.From(err).Code)
}

func TestIssueURLWithBindings(t *testing.T) {
	f := newFixture(t)

	issued, err := f.service.IssueURL(context.Background(), f.private.ID,
		f.sessionFor(t, f.owner), "203.0.113.9", "curl/8.0",
		Options{BindIP: true, BindUserAgent: true})
	require.NoError(t, err)
	token := tokenFrom(t, issued)

	_, err = f.codec.Verify(token, f.private.ID, capability.ActionDownload, "203.0.113.9", "curl/8.0")
	assert.NoError(t, err)

	_, err = f.codec.Verify(token, f.private.ID, capability.ActionDownload, "198.51.100.1", "curl/8.0")
	assert.ErrorIs(t, err, capability.ErrIPMismatch)

	_, err = f.codec.Verify(token, f.private.ID, capability.ActionDownload, "203.0.113.9", "wget/1.21")
	assert.ErrorIs(t, err, capability.ErrUserAgentMismatch)
}

func TestIssueURLBatchIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// One file the caller owns, one owned by someone else, one missing:
	// three independent results, none short-circuiting another.
	otherFile := &models.File{ID: uuid.New(), OwnerID: f.other.ID, AccessToken: "x"}
	require.NoError(t, f.store.CreateFile(ctx, otherFile))
	missing := uuid.New()

	results, err := f.service.IssueURLBatch(ctx,
		[]uuid.UUID{f.private.ID, otherFile.ID, missing},
		f.sessionFor(t, f.owner), "203.0.113.9", "curl/8.0", Options{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NotNil(t, results[0].URL)
	assert.Empty(t, results[0].Code)

	assert.Nil(t, results[1].URL)
	assert.Equal(t, apierror.CodeForbidden, results[1].Code)

	assert.Nil(t, results[2].URL)
	assert.Equal(t, apierror.CodeNotFound, results[2].Code)
}

func TestIssueURLBatchCap(t *testing.T) {
	f := newFixture(t)

	ids := make([]uuid.UUID, 11)
	for i := range ids {
		ids[i] = uuid.New()
	}
	_, err := f.service.IssueURLBatch(context.Background(), ids,
		f.sessionFor(t, f.owner), "203.0.113.9", "curl/8.0", Options{})
	require.Error(t, err)
	assert.Equal(t, apierror.CodeBadRequest, apierror.From(err).Code)

	_, err = f.service.IssueURLBatch(context.Background(), nil,
		f.sessionFor(t, f.owner), "203.0.113.9", "curl/8.0", Options{})
	require.Error(t, err)
	assert.Equal(t, apierror.CodeBadRequest, apierror.From(err).Code)
}
