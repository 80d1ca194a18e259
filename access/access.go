// Package access holds the decision engine: given a file record and an
// optional caller identity, decide allow or deny and say why.
package access

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/mehra/filevault-backend/audit"
	"github.com/mehra/filevault-backend/metrics"
	"github.com/mehra/filevault-backend/models"
	"github.com/mehra/filevault-backend/storage"
)

type Reason string

const (
	ReasonAllowed        Reason = "allowed"
	ReasonFileNotFound   Reason = "file_not_found"
	ReasonFileExpired    Reason = "file_expired"
	ReasonAuthRequired   Reason = "auth_required"
	ReasonInvalidSession Reason = "invalid_session"
	ReasonNotOwner       Reason = "not_owner"
)

// message is the human-readable form stored in the audit trail.
func (r Reason) message() string {
	switch r {
	case ReasonFileNotFound:
		return "File not found"
	case ReasonFileExpired:
		return "File has expired"
	case ReasonAuthRequired:
		return "Authentication required"
	case ReasonInvalidSession:
		return "Invalid or expired session"
	case ReasonNotOwner:
		return "Access denied"
	default:
		return ""
	}
}

// ErrNotOwner is returned by Revoke when the requester does not own the file.
var ErrNotOwner = errors.New("access: requester is not the file owner")

type Decision struct {
	Allowed      bool
	IsOwner      bool
	RequiresAuth bool
	Reason       Reason
	File         *models.File
	Subject      *models.User
}

// Request carries the caller-side context of one access attempt. LogAction
// tags the resulting audit entry.
type Request struct {
	SessionToken string
	IPAddress    string
	UserAgent    string
	LogAction    string
}

type Engine struct {
	files    storage.FileStore
	sessions storage.SessionResolver
	sink     *audit.Sink
	now      func() time.Time
}

func NewEngine(files storage.FileStore, sessions storage.SessionResolver, sink *audit.Sink) *Engine {
	return &Engine{files: files, sessions: sessions, sink: sink, now: time.Now}
}

// WithClock overrides the engine clock. Tests only.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CheckAccess loads the file and walks the visibility/ownership ladder:
// missing, expired, public, anonymous, bad session, non-owner, owner.
// Exactly one audit entry is written per call; the file record is never
// mutated.
func (e *Engine) CheckAccess(ctx context.Context, fileID uuid.UUID, req Request) (Decision, error) {
	file, err := e.files.GetFileByID(ctx, fileID)
	if errors.Is(err, storage.ErrNotFound) {
		return e.deny(ctx, fileID, nil, req, ReasonFileNotFound, false), nil
	}
	if err != nil {
		return Decision{}, err
	}
	return e.CheckFile(ctx, file, req)
}

// CheckFile runs the same ladder against an already-loaded record. Used by
// the legacy access-token path, which looks files up by token first.
func (e *Engine) CheckFile(ctx context.Context, file *models.File, req Request) (Decision, error) {
	if file.Expired(e.now()) {
		return e.denyFile(ctx, file, nil, req, ReasonFileExpired, false), nil
	}
	if file.IsPublic {
		// Public means public: no further checks.
		return e.allow(ctx, file, nil, req, false), nil
	}
	if req.SessionToken == "" {
		return e.denyFile(ctx, file, nil, req, ReasonAuthRequired, true), nil
	}
	user, err := e.sessions.ResolveSession(ctx, req.SessionToken)
	if err != nil {
		return Decision{}, err
	}
	if user == nil {
		return e.denyFile(ctx, file, nil, req, ReasonInvalidSession, true), nil
	}
	if user.ID != file.OwnerID {
		return e.denyFile(ctx, file, user, req, ReasonNotOwner, false), nil
	}
	return e.allow(ctx, file, user, req, true), nil
}

// CheckCapability re-validates the underlying file for a bearer of a signed
// capability. The subject comes from the verified claim, not a session.
func (e *Engine) CheckCapability(ctx context.Context, fileID uuid.UUID, subjectID *uuid.UUID, req Request) (Decision, error) {
	file, err := e.files.GetFileByID(ctx, fileID)
	if errors.Is(err, storage.ErrNotFound) {
		return e.deny(ctx, fileID, subjectID, req, ReasonFileNotFound, false), nil
	}
	if err != nil {
		return Decision{}, err
	}
	if file.Expired(e.now()) {
		return e.denyFile(ctx, file, nil, req, ReasonFileExpired, false), nil
	}
	if file.IsPublic {
		return e.allow(ctx, file, nil, req, false), nil
	}
	if subjectID == nil {
		return e.denyFile(ctx, file, nil, req, ReasonAuthRequired, true), nil
	}
	if *subjectID != file.OwnerID {
		e.record(ctx, file.ID, subjectID, req, ReasonNotOwner, false)
		return Decision{Reason: ReasonNotOwner, File: file}, nil
	}
	e.record(ctx, file.ID, subjectID, req, ReasonAllowed, true)
	return Decision{Allowed: true, IsOwner: true, Reason: ReasonAllowed, File: file}, nil
}

// Revoke rotates the file's long-lived access token after re-verifying
// ownership. Every legacy link minted before this call dies with the old
// token; already-issued signed capabilities stay valid until their own
// expiry (no denylist).
func (e *Engine) Revoke(ctx context.Context, fileID, requestingUserID uuid.UUID, ip, userAgent string) (string, error) {
	file, err := e.files.GetFileByID(ctx, fileID)
	if err != nil {
		return "", err
	}
	req := Request{IPAddress: ip, UserAgent: userAgent, LogAction: "revoke_access"}
	if file.OwnerID != requestingUserID {
		e.record(ctx, file.ID, &requestingUserID, req, ReasonNotOwner, false)
		return "", ErrNotOwner
	}
	newToken := shortuuid.New()
	if err := e.files.UpdateFileAccessToken(ctx, fileID, newToken); err != nil {
		return "", err
	}
	e.record(ctx, file.ID, &requestingUserID, req, ReasonAllowed, true)
	return newToken, nil
}

func (e *Engine) allow(ctx context.Context, file *models.File, user *models.User, req Request, isOwner bool) Decision {
	var subjectID *uuid.UUID
	if user != nil {
		subjectID = &user.ID
	}
	e.record(ctx, file.ID, subjectID, req, ReasonAllowed, true)
	return Decision{Allowed: true, IsOwner: isOwner, Reason: ReasonAllowed, File: file, Subject: user}
}

func (e *Engine) denyFile(ctx context.Context, file *models.File, user *models.User, req Request, reason Reason, requiresAuth bool) Decision {
	var subjectID *uuid.UUID
	if user != nil {
		subjectID = &user.ID
	}
	e.record(ctx, file.ID, subjectID, req, reason, false)
	return Decision{RequiresAuth: requiresAuth, Reason: reason, File: file, Subject: user}
}

func (e *Engine) deny(ctx context.Context, fileID uuid.UUID, subjectID *uuid.UUID, req Request, reason Reason, requiresAuth bool) Decision {
	e.record(ctx, fileID, subjectID, req, reason, false)
	return Decision{RequiresAuth: requiresAuth, Reason: reason}
}

func (e *Engine) record(ctx context.Context, fileID uuid.UUID, subjectID *uuid.UUID, req Request, reason Reason, success bool) {
	metrics.AccessDecisions.WithLabelValues(string(reason)).Inc()
	action := req.LogAction
	if action == "" {
		action = "secure_access"
	}
	e.sink.Record(ctx, audit.Entry{
		FileID:       fileID,
		SubjectID:    subjectID,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		Action:       action,
		Success:      success,
		ErrorMessage: reason.message(),
	})
}
