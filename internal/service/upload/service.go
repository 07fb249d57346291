// Package upload accepts originals from clients and queues them for thumbnailing.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/model"
	"github.com/aliskhannn/thumbnailer/internal/repository/status"
	"github.com/aliskhannn/thumbnailer/internal/storage"
)

var (
	// ErrNotFound is returned when nothing is known about a key.
	ErrNotFound = errors.New("not found")
	// ErrNotReady is returned when the thumbnail has not been produced yet.
	ErrNotReady = errors.New("thumbnail not ready")
	// ErrEmptyFile is returned for zero-length uploads.
	ErrEmptyFile = errors.New("empty file")
	// ErrTooLarge is returned for uploads over the configured size limit.
	ErrTooLarge = errors.New("file too large")
)

// blobStore stores originals and serves thumbnails.
type blobStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
	Delete(ctx context.Context, bucket, key string) error
}

// statusStore reads processing statuses written by the worker.
type statusStore interface {
	Get(ctx context.Context, key string) (model.ProcessingStatus, error)
}

// auditLog appends audit entries.
type auditLog interface {
	Append(ctx context.Context, e model.AuditEntry) error
}

// publisher enqueues jobs.
type publisher interface {
	Publish(ctx context.Context, job model.Job) error
}

// Options configures where originals are stored.
type Options struct {
	Bucket       string
	UploadPrefix string
	MaxSize      int64
}

// Service implements the upload, status, thumbnail and delete operations.
type Service struct {
	blobs     blobStore
	statuses  statusStore
	audit     auditLog
	publisher publisher
	opts      Options
}

// NewService creates a new Service.
func NewService(blobs blobStore, statuses statusStore, audit auditLog, p publisher, opts Options) *Service {
	if opts.UploadPrefix == "" {
		opts.UploadPrefix = "uploads/"
	}

	return &Service{blobs: blobs, statuses: statuses, audit: audit, publisher: p, opts: opts}
}

// Upload stores the original under a fresh key, records the creation and
// publishes the thumbnail job.
func (s *Service) Upload(ctx context.Context, filename string, src io.Reader) (model.Job, error) {
	if s.opts.MaxSize > 0 {
		src = io.LimitReader(src, s.opts.MaxSize+1)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return model.Job{}, fmt.Errorf("upload: failed to read file: %w", err)
	}
	if len(data) == 0 {
		return model.Job{}, ErrEmptyFile
	}
	if s.opts.MaxSize > 0 && int64(len(data)) > s.opts.MaxSize {
		return model.Job{}, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, s.opts.MaxSize)
	}

	job := model.Job{Bucket: s.opts.Bucket, Key: s.key(filename)}

	if err := s.blobs.Put(ctx, job.Bucket, job.Key, data, storage.ContentType(job.Key)); err != nil {
		return model.Job{}, fmt.Errorf("upload: failed to save file: %w", err)
	}

	s.record(ctx, model.AuditCreate, map[string]string{"key": job.Key, "bucket": job.Bucket})

	if err := s.publisher.Publish(ctx, job); err != nil {
		return model.Job{}, fmt.Errorf("upload: failed to enqueue job: %w", err)
	}

	zlog.Logger.Info().Str("key", job.Key).Msg("original uploaded")

	return job, nil
}

// Status returns the processing status of an original.
func (s *Service) Status(ctx context.Context, key string) (model.ProcessingStatus, error) {
	st, err := s.statuses.Get(ctx, key)
	if err != nil {
		if errors.Is(err, status.ErrNotFound) {
			return model.ProcessingStatus{}, ErrNotFound
		}
		return model.ProcessingStatus{}, fmt.Errorf("failed to get status: %w", err)
	}

	return st, nil
}

// Thumbnail returns the thumbnail bytes of an original. The status is
// returned with ErrNotReady while the job is pending or failed.
func (s *Service) Thumbnail(ctx context.Context, key string) ([]byte, model.ProcessingStatus, error) {
	st, err := s.Status(ctx, key)
	if err != nil {
		return nil, model.ProcessingStatus{}, err
	}
	if st.Status != model.StatusDone || st.ThumbKey == "" {
		return nil, st, ErrNotReady
	}

	data, err := s.blobs.Get(ctx, s.opts.Bucket, st.ThumbKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, st, ErrNotFound
		}
		return nil, st, fmt.Errorf("failed to get thumbnail: %w", err)
	}

	return data, st, nil
}

// Delete removes the original and, when one was produced, its thumbnail.
// An original that does not exist yields ErrNotFound and leaves no audit entry.
func (s *Service) Delete(ctx context.Context, key string) error {
	if _, err := s.blobs.Get(ctx, s.opts.Bucket, key); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get original: %w", err)
	}

	var thumbKey string
	if st, err := s.Status(ctx, key); err == nil {
		thumbKey = st.ThumbKey
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	if err := s.blobs.Delete(ctx, s.opts.Bucket, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete original: %w", err)
	}

	if thumbKey != "" {
		if err := s.blobs.Delete(ctx, s.opts.Bucket, thumbKey); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("failed to delete thumbnail: %w", err)
		}
	}

	data := map[string]string{"key": key}
	if thumbKey != "" {
		data["thumb_key"] = thumbKey
	}
	s.record(ctx, model.AuditDelete, data)

	return nil
}

// key builds uploads/<uuid hex>_<name>, with spaces in the name replaced.
func (s *Service) key(filename string) string {
	name := strings.ReplaceAll(path.Base(strings.ReplaceAll(filename, "\\", "/")), " ", "_")
	if name == "." || name == "/" {
		name = "image"
	}

	return s.opts.UploadPrefix + strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + name
}

func (s *Service) record(ctx context.Context, action model.AuditAction, data map[string]string) {
	entry, err := model.NewAuditEntry(action, uuid.NewString(), data, time.Now())
	if err == nil {
		err = s.audit.Append(ctx, entry)
	}
	if err != nil {
		zlog.Logger.Error().Err(err).Str("key", data["key"]).Str("action", string(action)).Msg("failed to append audit entry")
	}
}
