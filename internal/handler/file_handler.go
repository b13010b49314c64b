package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	appErrors "github.com/studydeck/content-api/pkg/errors"
	"github.com/studydeck/content-api/pkg/response"
	"github.com/studydeck/content-api/pkg/storage"
)

// FileHandler issues and honors signed download URLs for slide files kept on
// the local filesystem backend. The object-store backend serves files
// directly, so there this handler only echoes the public URL.
type FileHandler struct {
	library libraryService
	signer  *storage.SignedURLSigner
	local   *storage.LocalStore
	prefix  string
}

// NewFileHandler constructs the handler. local may be nil when the object
// store backend is active.
func NewFileHandler(library libraryService, signer *storage.SignedURLSigner, local *storage.LocalStore, prefix string) *FileHandler {
	return &FileHandler{library: library, signer: signer, local: local, prefix: strings.TrimRight(prefix, "/")}
}

// DownloadURL godoc
// @Summary Get a download URL for a slide file
// @Tags Slides
// @Produce json
// @Param id path string true "Slide ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /slides/{id}/download-url [get]
func (h *FileHandler) DownloadURL(c *gin.Context) {
	slide, err := h.library.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	if h.local == nil || h.signer == nil {
		response.JSON(c, http.StatusOK, gin.H{"url": slide.FileURL}, nil)
		return
	}

	token, expiresAt, err := h.signer.Generate(slide.ID, slide.FilePath)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url"))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"url":       fmt.Sprintf("%s/files/download?token=%s", h.prefix, token),
		"expiresAt": expiresAt.UTC().Format(time.RFC3339),
	}, nil)
}

// Download godoc
// @Summary Download a slide file with a signed token
// @Tags Slides
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /files/download [get]
func (h *FileHandler) Download(c *gin.Context) {
	if h.local == nil || h.signer == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "direct downloads are not served by this backend"))
		return
	}

	_, relPath, _, err := h.signer.Parse(c.Query("token"), false)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token"))
		return
	}

	file, err := h.local.Open(relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
		return
	}
	defer file.Close()

	c.Header("Content-Disposition", `attachment; filename="`+sanitizeFilename(relPath)+`"`)
	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}

func sanitizeFilename(relPath string) string {
	if idx := strings.LastIndexByte(relPath, '/'); idx >= 0 {
		return relPath[idx+1:]
	}
	return relPath
}
