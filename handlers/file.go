package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/mehra/filevault-backend/auth/middleware"
	"github.com/mehra/filevault-backend/models"
	"github.com/mehra/filevault-backend/storage"
)

func (h *Handler) UploadFile(c *gin.Context) {
	userID := middleware.UserID(c)

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}

	uploadPath := filepath.Join(h.cfg.UploadDir, uuid.New().String()+"_"+filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, uploadPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file"})
		return
	}

	expiresAt := time.Now().Add(h.cfg.FileExpiry)
	newFile := models.File{
		ID:           uuid.New(),
		OwnerID:      userID,
		OriginalName: file.Filename,
		StoragePath:  uploadPath,
		FileSize:     file.Size,
		ContentType:  file.Header.Get("Content-Type"),
		AccessToken:  shortuuid.New(),
		IsPublic:     c.PostForm("isPublic") == "true",
		ExpiresAt:    &expiresAt,
		CreatedAt:    time.Now(),
	}

	if err := h.store.CreateFile(c.Request.Context(), &newFile); err != nil {
		os.Remove(uploadPath)
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"file": newFile})
}

func (h *Handler) ListFiles(c *gin.Context) {
	userID := middleware.UserID(c)

	files, err := h.store.ListFilesByOwner(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (h *Handler) RenameFile(c *gin.Context) {
	userID := middleware.UserID(c)
	fileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file id"})
		return
	}

	var body struct {
		NewName string `json:"newName"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.NewName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input"})
		return
	}

	file, ok := h.ownedFile(c, fileID, userID)
	if !ok {
		return
	}
	if err := h.store.RenameFile(c.Request.Context(), file.ID, body.NewName); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) DeleteFile(c *gin.Context) {
	userID := middleware.UserID(c)
	fileID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file id"})
		return
	}

	file, ok := h.ownedFile(c, fileID, userID)
	if !ok {
		return
	}
	os.Remove(file.StoragePath)
	if err := h.store.DeleteFile(c.Request.Context(), file.ID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeleteFilesBatch deletes up to the batch cap, isolating per-file failures.
func (h *Handler) DeleteFilesBatch(c *gin.Context) {
	userID := middleware.UserID(c)

	var body struct {
		FileIDs []string `json:"fileIds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || len(body.FileIDs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file ids supplied"})
		return
	}
	if len(body.FileIDs) > h.cfg.MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Too many files in one batch"})
		return
	}

	type result struct {
		FileID  string `json:"fileId"`
		Success bool   `json:"success"`
		Error   string `json:"error,omitempty"`
	}
	results := make([]result, 0, len(body.FileIDs))
	for _, raw := range body.FileIDs {
		fileID, err := uuid.Parse(raw)
		if err != nil {
			results = append(results, result{FileID: raw, Error: "Invalid file id"})
			continue
		}
		file, err := h.store.GetFileByID(c.Request.Context(), fileID)
		if errors.Is(err, storage.ErrNotFound) || (err == nil && file.OwnerID != userID) {
			results = append(results, result{FileID: raw, Error: "File not found"})
			continue
		}
		if err != nil {
			results = append(results, result{FileID: raw, Error: "Delete failed"})
			continue
		}
		os.Remove(file.StoragePath)
		if err := h.store.DeleteFile(c.Request.Context(), file.ID); err != nil {
			results = append(results, result{FileID: raw, Error: "Delete failed"})
			continue
		}
		results = append(results, result{FileID: raw, Success: true})
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// ownedFile loads a file and verifies ownership. Non-owners get the same
// 404 as a missing file so existence never leaks.
func (h *Handler) ownedFile(c *gin.Context, fileID, userID uuid.UUID) (*models.File, bool) {
	file, err := h.store.GetFileByID(c.Request.Context(), fileID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return nil, false
	}
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	if file.OwnerID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return nil, false
	}
	return file, true
}
