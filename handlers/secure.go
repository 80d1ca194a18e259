package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/mehra/filevault-backend/access"
	"github.com/mehra/filevault-backend/audit"
	"github.com/mehra/filevault-backend/auth/middleware"
	"github.com/mehra/filevault-backend/capability"
	"github.com/mehra/filevault-backend/issuer"
	"github.com/mehra/filevault-backend/metrics"
	"github.com/mehra/filevault-backend/models"
	"github.com/mehra/filevault-backend/storage"
)

// SecureAccess serves GET /api/files/secure/:id?token=...&action=... — the
// verification side of the capability protocol. The token is checked first,
// then the underlying file is re-validated: a capability can outlive the
// file's visibility or expiry.
func (h *Handler) SecureAccess(c *gin.Context) {
	fileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file id"})
		return
	}
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing access token"})
		return
	}
	action, err := capability.ParseAction(c.Query("action"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}

	ip := c.ClientIP()
	userAgent := c.Request.UserAgent()

	claims, err := h.codec.Verify(tokenStr, fileID, action, ip, userAgent)
	if err != nil {
		h.recordTokenFailure(c, fileID, ip, userAgent, err)
		switch {
		case errors.Is(err, capability.ErrTokenExpired):
			c.JSON(http.StatusGone, gin.H{"error": "Access link has expired"})
		case errors.Is(err, capability.ErrInvalidToken):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid access token"})
		default:
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied"})
		}
		return
	}
	metrics.TokenVerifications.WithLabelValues("ok").Inc()

	decision, err := h.engine.CheckCapability(c.Request.Context(), fileID, claims.SubjectID(), access.Request{
		IPAddress: ip,
		UserAgent: userAgent,
		LogAction: "secure_access",
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !decision.Allowed {
		h.writeAccessDenial(c, decision)
		return
	}

	h.serveFile(c, decision.File, action)
}

// LegacyDownload serves GET /api/files/download/:token — the long-lived
// opaque-token path. Revocation rotates this token, killing old links.
func (h *Handler) LegacyDownload(c *gin.Context) {
	file, err := h.store.GetFileByAccessToken(c.Request.Context(), c.Param("token"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	decision, err := h.engine.CheckFile(c.Request.Context(), file, access.Request{
		SessionToken: middleware.SessionToken(c),
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
		LogAction:    "download_access",
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !decision.Allowed {
		h.writeAccessDenial(c, decision)
		return
	}

	h.serveFile(c, decision.File, capability.ActionDownload)
}

type issueRequest struct {
	LifetimeSeconds int    `json:"lifetimeSeconds"`
	Action          string `json:"action"`
	BindIP          bool   `json:"bindIp"`
	BindUserAgent   bool   `json:"bindUserAgent"`
}

func (r issueRequest) options() (issuer.Options, error) {
	action, err := capability.ParseAction(r.Action)
	if err != nil {
		return issuer.Options{}, err
	}
	return issuer.Options{
		Lifetime:      time.Duration(r.LifetimeSeconds) * time.Second,
		Action:        action,
		BindIP:        r.BindIP,
		BindUserAgent: r.BindUserAgent,
	}, nil
}

// IssueShareURL serves POST /api/files/:id/share-url.
func (h *Handler) IssueShareURL(c *gin.Context) {
	fileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file id"})
		return
	}

	var body issueRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
			return
		}
	}
	opts, err := body.options()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}

	issued, err := h.issuer.IssueURL(c.Request.Context(), fileID,
		middleware.SessionToken(c), c.ClientIP(), c.Request.UserAgent(), opts)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, issued)
}

// IssueShareURLBatch serves POST /api/files/share-urls.
func (h *Handler) IssueShareURLBatch(c *gin.Context) {
	var body struct {
		FileIDs []string `json:"fileIds" binding:"required"`
		issueRequest
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}
	opts, err := body.options()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid action"})
		return
	}

	fileIDs := make([]uuid.UUID, 0, len(body.FileIDs))
	for _, raw := range body.FileIDs {
		fileID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file id: " + raw})
			return
		}
		fileIDs = append(fileIDs, fileID)
	}

	results, err := h.issuer.IssueURLBatch(c.Request.Context(), fileIDs,
		middleware.SessionToken(c), c.ClientIP(), c.Request.UserAgent(), opts)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// ShareQR serves GET /api/files/:id/share-qr — a QR code wrapping a freshly
// issued signed download URL.
func (h *Handler) ShareQR(c *gin.Context) {
	fileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file id"})
		return
	}

	issued, err := h.issuer.IssueURL(c.Request.Context(), fileID,
		middleware.SessionToken(c), c.ClientIP(), c.Request.UserAgent(),
		issuer.Options{Action: capability.ActionDownload})
	if err != nil {
		h.writeError(c, err)
		return
	}

	png, err := qrcode.Encode(issued.URL, qrcode.Medium, 256)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// RevokeAccess serves POST /api/files/:id/revoke. Rotating the legacy token
// kills every previously shared non-signed link; signed capabilities already
// in the wild stay valid until they expire on their own.
func (h *Handler) RevokeAccess(c *gin.Context) {
	userID := middleware.UserID(c)
	fileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file id"})
		return
	}

	newToken, err := h.engine.Revoke(c.Request.Context(), fileID, userID, c.ClientIP(), c.Request.UserAgent())
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, access.ErrNotOwner) {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken": newToken,
		"url":         h.cfg.BaseURL + "/api/files/download/" + newToken,
	})
}

// AccessLogs serves GET /api/files/logs, returning masked entries scoped to
// the caller's own files.
func (h *Handler) AccessLogs(c *gin.Context) {
	userID := middleware.UserID(c)

	var fileID *uuid.UUID
	if raw := c.Query("fileId"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file id"})
			return
		}
		fileID = &parsed
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	logs, err := h.sink.Query(c.Request.Context(), userID, fileID, limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

// AnomalyReport serves GET /api/files/:id/anomaly for the file's owner.
func (h *Handler) AnomalyReport(c *gin.Context) {
	userID := middleware.UserID(c)
	fileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file id"})
		return
	}
	if _, ok := h.ownedFile(c, fileID, userID); !ok {
		return
	}

	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))
	report, err := h.detector.Detect(c.Request.Context(), fileID, hours)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// writeAccessDenial collapses private-file denials to 404 so callers cannot
// tell "missing" from "not yours"; only file expiry keeps its own status.
func (h *Handler) writeAccessDenial(c *gin.Context, decision access.Decision) {
	if decision.Reason == access.ReasonFileExpired {
		c.JSON(http.StatusGone, gin.H{"error": "This file has expired"})
		return
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
}

func (h *Handler) serveFile(c *gin.Context, file *models.File, action capability.Action) {
	switch action {
	case capability.ActionInfo:
		c.JSON(http.StatusOK, gin.H{"file": file})
	case capability.ActionView:
		if file.ContentType != "" {
			c.Header("Content-Type", file.ContentType)
		}
		c.File(file.StoragePath)
	default:
		if err := h.store.IncrementDownloadCount(c.Request.Context(), file.ID); err != nil {
			h.logger.Warn("download count increment failed", "file_id", file.ID, "err", err)
		}
		c.FileAttachment(file.StoragePath, file.OriginalName)
	}
}

func (h *Handler) recordTokenFailure(c *gin.Context, fileID uuid.UUID, ip, userAgent string, verifyErr error) {
	result := "mismatch"
	switch {
	case errors.Is(verifyErr, capability.ErrInvalidToken):
		result = "invalid"
	case errors.Is(verifyErr, capability.ErrTokenExpired):
		result = "expired"
	}
	metrics.TokenVerifications.WithLabelValues(result).Inc()

	h.sink.Record(c.Request.Context(), audit.Entry{
		FileID:       fileID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Action:       "secure_access",
		Success:      false,
		ErrorMessage: verifyErr.Error(),
	})
}
