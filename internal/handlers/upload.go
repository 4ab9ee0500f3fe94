package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"circles-service/internal/storage"
)

// StorageHandler serves object uploads, signed URLs and downloads.
type StorageHandler struct {
	store  *storage.Store
	signer *storage.Signer
}

// NewStorageHandler constructs a StorageHandler.
func NewStorageHandler(store *storage.Store, signer *storage.Signer) *StorageHandler {
	return &StorageHandler{store: store, signer: signer}
}

// Upload handles POST /storage/:bucket/upload. Chat uploads are namespaced by
// the group_id form field with a randomized file name.
func (h *StorageHandler) Upload(c *gin.Context) {
	bucket := c.Param("bucket")

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	defer file.Close()

	prefix := c.PostForm("group_id")
	if bucket == storage.BucketChatUploads && prefix == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing group_id"})
		return
	}
	path := storage.RandomPath(prefix, header.Filename)

	size, err := h.store.Save(bucket, path, file)
	if err != nil {
		if errors.Is(err, storage.ErrUnknownBucket) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown bucket"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"bucket":       bucket,
		"path":         path,
		"name":         header.Filename,
		"size":         size,
		"content_type": header.Header.Get("Content-Type"),
	})
}

// Sign handles POST /storage/:bucket/sign, returning a time-limited URL.
func (h *StorageHandler) Sign(c *gin.Context) {
	bucket := c.Param("bucket")

	var req struct {
		Path      string `json:"path" binding:"required"`
		ExpiresIn int64  `json:"expires_in"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ttl := storage.DefaultSignedURLTTL
	if req.ExpiresIn > 0 {
		ttl = time.Duration(req.ExpiresIn) * time.Second
	}

	c.JSON(http.StatusOK, gin.H{"url": h.signer.SignedURL(bucket, req.Path, ttl)})
}

// Download handles GET /storage/:bucket/*path. Avatars are public; chat
// uploads require a valid signature.
func (h *StorageHandler) Download(c *gin.Context) {
	bucket := c.Param("bucket")
	path := strings.TrimPrefix(c.Param("path"), "/")

	if bucket != storage.BucketAvatars {
		if err := h.signer.Verify(bucket, path, c.Query("expires"), c.Query("sig")); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired signature"})
			return
		}
	}

	obj, err := h.store.Open(bucket, path)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrUnknownBucket) || errors.Is(err, storage.ErrInvalidPath) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": "object not found"})
		return
	}
	defer obj.Close()

	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, obj)
}
