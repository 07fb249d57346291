package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/api/respond"
	"github.com/aliskhannn/thumbnailer/internal/model"
	"github.com/aliskhannn/thumbnailer/internal/service/upload"
	"github.com/aliskhannn/thumbnailer/internal/storage"
)

// service defines the interface for image-related operations.
type service interface {
	Upload(ctx context.Context, filename string, src io.Reader) (model.Job, error)
	Status(ctx context.Context, key string) (model.ProcessingStatus, error)
	Thumbnail(ctx context.Context, key string) ([]byte, model.ProcessingStatus, error)
	Delete(ctx context.Context, key string) error
}

// Handler provides HTTP handlers for image-related endpoints.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// Upload handles the HTTP request for uploading an original. The file is
// read from the "image" form field.
func (h *Handler) Upload(c *ginext.Context) {
	file, header, err := c.Request.FormFile("image")
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to read the uploaded file")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("image field is required"))
		return
	}
	defer file.Close()

	zlog.Logger.Info().
		Str("filename", header.Filename).
		Int64("size", header.Size).
		Msg("file received")

	job, err := h.service.Upload(c.Request.Context(), header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrEmptyFile):
			respond.Fail(c, http.StatusBadRequest, err)
			return
		case errors.Is(err, upload.ErrTooLarge):
			respond.Fail(c, http.StatusRequestEntityTooLarge, err)
			return
		}

		zlog.Logger.Err(err).Msg("failed to upload the image")
		respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("failed to upload the image"))
		return
	}

	respond.Created(c, map[string]string{
		"key":    job.Key,
		"bucket": job.Bucket,
	})
}

// Status returns the processing status of an original.
func (h *Handler) Status(c *ginext.Context) {
	key, ok := objectKey(c)
	if !ok {
		return
	}

	st, err := h.service.Status(c.Request.Context(), key)
	if err != nil {
		h.fail(c, key, err)
		return
	}

	respond.OK(c, st)
}

// Thumbnail serves the thumbnail bytes once the original has been processed,
// or 202 with the current status until then.
func (h *Handler) Thumbnail(c *ginext.Context) {
	key, ok := objectKey(c)
	if !ok {
		return
	}

	data, st, err := h.service.Thumbnail(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, upload.ErrNotReady) {
			respond.Accepted(c, st)
			return
		}

		h.fail(c, key, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	respond.Image(c, http.StatusOK, storage.ContentType(st.ThumbKey), data)
}

// Delete removes an original and its thumbnail.
func (h *Handler) Delete(c *ginext.Context) {
	key, ok := objectKey(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), key); err != nil {
		h.fail(c, key, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) fail(c *ginext.Context, key string, err error) {
	if errors.Is(err, upload.ErrNotFound) {
		zlog.Logger.Warn().Str("key", key).Msg("object not found")
		respond.Fail(c, http.StatusNotFound, fmt.Errorf("object not found"))
		return
	}

	zlog.Logger.Err(err).Str("key", key).Msg("request failed")
	respond.Fail(c, http.StatusInternalServerError, fmt.Errorf("internal error"))
}

// objectKey extracts the wildcard key parameter and writes 400 when it is empty.
func objectKey(c *ginext.Context) (string, bool) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		zlog.Logger.Warn().Msg("missing key")
		respond.Fail(c, http.StatusBadRequest, fmt.Errorf("missing key"))
		return "", false
	}

	return key, true
}
