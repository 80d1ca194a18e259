// Package issuer turns an access decision into a shareable signed URL.
package issuer

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/mehra/filevault-backend/access"
	"github.com/mehra/filevault-backend/apierror"
	"github.com/mehra/filevault-backend/capability"
	"github.com/mehra/filevault-backend/metrics"
)

type Options struct {
	// Lifetime <= 0 selects the codec default.
	Lifetime time.Duration
	Action   capability.Action
	// BindIP / BindUserAgent pin the minted token to the requester's
	// current address / client. Opt-in per issuance.
	BindIP        bool
	BindUserAgent bool
}

type IssuedURL struct {
	FileID    uuid.UUID         `json:"fileId"`
	URL       string            `json:"url"`
	Action    capability.Action `json:"action"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// BatchResult is one independent outcome inside a batch issuance. A denial
// for one file never short-circuits the others.
type BatchResult struct {
	FileID uuid.UUID     `json:"fileId"`
	URL    *IssuedURL    `json:"result,omitempty"`
	Code   apierror.Code `json:"code,omitempty"`
	Error  string        `json:"error,omitempty"`
}

type Service struct {
	engine   *access.Engine
	codec    *capability.Codec
	baseURL  string
	maxBatch int
}

func NewService(engine *access.Engine, codec *capability.Codec, baseURL string, maxBatch int) *Service {
	return &Service{engine: engine, codec: codec, baseURL: baseURL, maxBatch: maxBatch}
}

// IssueURL runs the decision engine and, when allowed, mints a capability
// bound to the exact (file, action) pair. The decision itself produces the
// audit entry, tagged generate_<action>_url.
func (s *Service) IssueURL(ctx context.Context, fileID uuid.UUID, sessionToken, ip, userAgent string, opts Options) (*IssuedURL, error) {
	action := opts.Action
	if action == "" {
		action = capability.ActionDownload
	}

	decision, err := s.engine.CheckAccess(ctx, fileID, access.Request{
		SessionToken: sessionToken,
		IPAddress:    ip,
		UserAgent:    userAgent,
		LogAction:    fmt.Sprintf("generate_%s_url", action),
	})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, denialError(decision.Reason)
	}

	// For public files the claim may be anonymous; the subject is only set
	// when the session resolved to a user.
	var subjectID *uuid.UUID
	if decision.Subject != nil {
		subjectID = &decision.Subject.ID
	}

	mint := capability.MintRequest{
		FileID:    fileID,
		SubjectID: subjectID,
		Action:    action,
		Lifetime:  opts.Lifetime,
	}
	if opts.BindIP {
		mint.BindIP = ip
	}
	if opts.BindUserAgent {
		mint.BindUserAgent = userAgent
	}

	token, expiresAt, err := s.codec.Mint(mint)
	if err != nil {
		return nil, err
	}
	metrics.TokensIssued.WithLabelValues(string(action)).Inc()

	return &IssuedURL{
		FileID: fileID,
		URL: fmt.Sprintf("%s/api/files/secure/%s?token=%s&action=%s",
			s.baseURL, fileID, url.QueryEscape(token), action),
		Action:    action,
		ExpiresAt: expiresAt,
	}, nil
}

// IssueURLBatch issues per-file, isolating failures: each entry reports its
// own success or denial reason.
func (s *Service) IssueURLBatch(ctx context.Context, fileIDs []uuid.UUID, sessionToken, ip, userAgent string, opts Options) ([]BatchResult, error) {
	if len(fileIDs) == 0 {
		return nil, apierror.New(apierror.CodeBadRequest, "no file ids supplied")
	}
	if len(fileIDs) > s.maxBatch {
		return nil, apierror.New(apierror.CodeBadRequest,
			fmt.Sprintf("batch size exceeds maximum of %d", s.maxBatch))
	}

	results := make([]BatchResult, 0, len(fileIDs))
	for _, fileID := range fileIDs {
		issued, err := s.IssueURL(ctx, fileID, sessionToken, ip, userAgent, opts)
		if err != nil {
			apiErr := apierror.From(err)
			results = append(results, BatchResult{
				FileID: fileID,
				Code:   apiErr.Code,
				Error:  apiErr.Message,
			})
			continue
		}
		results = append(results, BatchResult{FileID: fileID, URL: issued})
	}
	return results, nil
}

func denialError(reason access.Reason) *apierror.Error {
	switch reason {
	case access.ReasonFileNotFound:
		return apierror.New(apierror.CodeNotFound, "file not found")
	case access.ReasonFileExpired:
		return apierror.New(apierror.CodeExpired, "file has expired")
	case access.ReasonAuthRequired:
		return apierror.New(apierror.CodeAuthRequired, "authentication required")
	case access.ReasonInvalidSession:
		return apierror.New(apierror.CodeInvalidSession, "invalid or expired session")
	case access.ReasonNotOwner:
		return apierror.New(apierror.CodeForbidden, "access denied")
	default:
		return apierror.New(apierror.CodeInternal, "internal server error")
	}
}
