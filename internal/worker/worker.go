// Package worker turns queued jobs into stored thumbnails and status records.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/thumbnailer/internal/model"
	"github.com/aliskhannn/thumbnailer/internal/processor"
	"github.com/aliskhannn/thumbnailer/internal/repository/status"
	"github.com/aliskhannn/thumbnailer/internal/storage"
)

// blobStore reads originals and writes thumbnails.
type blobStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// statusStore records the per-key processing status.
type statusStore interface {
	Set(ctx context.Context, st model.ProcessingStatus) error
	Get(ctx context.Context, key string) (model.ProcessingStatus, error)
}

// auditLog appends audit entries.
type auditLog interface {
	Append(ctx context.Context, e model.AuditEntry) error
}

// transformer produces thumbnails and their keys.
type transformer interface {
	Thumbnail(src []byte) (processor.Thumbnail, error)
	ThumbKey(originalKey, ext string) string
}

// Options bounds the external calls made while handling a job.
type Options struct {
	FetchTimeout time.Duration
	StoreTimeout time.Duration
	// Retry applies to status and audit writes.
	Retry retry.Strategy
}

// Worker handles one job at a time per call; it holds no per-job state and
// may be shared by any number of goroutines.
type Worker struct {
	blobs    blobStore
	statuses statusStore
	audit    auditLog
	thumbs   transformer
	opts     Options

	now   func() time.Time
	newID func() string
}

// New creates a new Worker with the given collaborators.
func New(blobs blobStore, statuses statusStore, audit auditLog, thumbs transformer, opts Options) *Worker {
	if opts.Retry.Attempts < 1 {
		opts.Retry.Attempts = 1
	}

	return &Worker{
		blobs:    blobs,
		statuses: statuses,
		audit:    audit,
		thumbs:   thumbs,
		opts:     opts,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// Handle processes one job.
//
// A nil result means the job is finished, either with a DONE or an ERROR
// status, and must be acknowledged. A non-nil result is retriable: the job
// must not be acknowledged so that the queue delivers it again.
func (w *Worker) Handle(ctx context.Context, job model.Job) error {
	if err := job.Validate(); err != nil {
		return w.fail(ctx, job, "", &InvalidJobError{Err: err}, nil)
	}

	// A redelivered job that already finished keeps its terminal status
	// until the new attempt produces one.
	current, err := w.currentStatus(ctx, job.Key)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("key", job.Key).Msg("failed to read current status")
		return err
	}

	if !current.Terminal() {
		if err := w.setStatus(ctx, model.ProcessingStatus{Key: job.Key, Status: model.StatusPending}); err != nil {
			zlog.Logger.Error().Err(err).Str("key", job.Key).Msg("failed to mark job pending")
			return err
		}
	}

	thumbKey, err := w.process(ctx, job)
	if err != nil {
		if IsRetriable(err) {
			zlog.Logger.Error().Err(err).Str("key", job.Key).Msg("retriable failure, leaving job for redelivery")
			return err
		}

		return w.fail(ctx, job, current, err, nil)
	}

	return w.succeed(ctx, job, thumbKey)
}

// Reject records a message that could not be decoded into a job. The job
// may carry the key when only the bucket was missing.
func (w *Worker) Reject(ctx context.Context, job model.Job, body []byte, cause error) error {
	return w.fail(ctx, job, "", &InvalidJobError{Err: cause}, body)
}

// process runs fetch, transform and store for the job and returns the thumbnail key.
func (w *Worker) process(ctx context.Context, job model.Job) (string, error) {
	src, err := w.fetch(ctx, job)
	if err != nil {
		return "", err
	}

	thumb, err := w.thumbs.Thumbnail(src)
	if err != nil {
		return "", &TransformError{Key: job.Key, Err: err}
	}

	thumbKey := w.thumbs.ThumbKey(job.Key, thumb.Ext)

	if err := w.store(ctx, job.Bucket, thumbKey, thumb); err != nil {
		return "", err
	}

	return thumbKey, nil
}

func (w *Worker) fetch(ctx context.Context, job model.Job) ([]byte, error) {
	fctx, cancel := withTimeout(ctx, w.opts.FetchTimeout)
	defer cancel()

	src, err := w.blobs.Get(fctx, job.Bucket, job.Key)
	if err != nil {
		return nil, &FetchError{
			Key:     job.Key,
			Missing: errors.Is(err, storage.ErrObjectNotFound),
			Err:     err,
		}
	}

	return src, nil
}

func (w *Worker) store(ctx context.Context, bucket, thumbKey string, thumb processor.Thumbnail) error {
	sctx, cancel := withTimeout(ctx, w.opts.StoreTimeout)
	defer cancel()

	if err := w.blobs.Put(sctx, bucket, thumbKey, thumb.Data, thumb.ContentType); err != nil {
		return &StoreWriteError{Key: thumbKey, Err: err}
	}

	return nil
}

func (w *Worker) succeed(ctx context.Context, job model.Job, thumbKey string) error {
	st := model.ProcessingStatus{Key: job.Key, Status: model.StatusDone, ThumbKey: thumbKey}
	if err := w.setStatus(ctx, st); err != nil {
		zlog.Logger.Error().Err(err).Str("key", job.Key).Msg("thumbnail stored but status not recorded")
		return err
	}

	w.appendAudit(ctx, job.Key, map[string]string{
		"key":       job.Key,
		"status":    string(model.StatusDone),
		"thumb_key": thumbKey,
	})

	zlog.Logger.Info().
		Str("key", job.Key).
		Str("thumb_key", thumbKey).
		Msg("thumbnail generated")

	return nil
}

// fail records a terminal failure. body is the raw message for undecodable jobs.
// A DONE record is left in place: its thumbnail was produced by an earlier delivery.
func (w *Worker) fail(ctx context.Context, job model.Job, current model.Status, cause error, body []byte) error {
	zlog.Logger.Warn().Err(cause).Str("key", job.Key).Msg("job failed")

	if job.Key != "" && current != model.StatusDone {
		st := model.ProcessingStatus{Key: job.Key, Status: model.StatusError, Message: cause.Error()}
		if err := w.setStatus(ctx, st); err != nil {
			zlog.Logger.Error().Err(err).Str("key", job.Key).Msg("failed to record error status")
			return err
		}
	}

	data := map[string]string{
		"key":    job.Key,
		"status": string(model.StatusError),
		"cause":  cause.Error(),
	}
	if body != nil {
		data["raw"] = string(body)
	}
	w.appendAudit(ctx, job.Key, data)

	return nil
}

// currentStatus returns the recorded status of key, or "" when none exists.
func (w *Worker) currentStatus(ctx context.Context, key string) (model.Status, error) {
	var st model.ProcessingStatus
	err := retry.Do(func() error {
		var getErr error
		st, getErr = w.statuses.Get(ctx, key)
		if errors.Is(getErr, status.ErrNotFound) {
			st, getErr = model.ProcessingStatus{}, nil
		}
		return getErr
	}, w.opts.Retry)
	if err != nil {
		return "", &StatusStoreError{Key: key, Err: err}
	}

	return st.Status, nil
}

func (w *Worker) setStatus(ctx context.Context, st model.ProcessingStatus) error {
	st.UpdatedAt = w.now().UTC()

	err := retry.Do(func() error {
		return w.statuses.Set(ctx, st)
	}, w.opts.Retry)
	if err != nil {
		return &StatusStoreError{Key: st.Key, Status: st.Status, Err: err}
	}

	return nil
}

// appendAudit is best effort: a failure is logged and does not change the job outcome.
func (w *Worker) appendAudit(ctx context.Context, key string, data map[string]string) {
	entry, err := model.NewAuditEntry(model.AuditUpdate, w.newID(), data, w.now())
	if err == nil {
		err = retry.Do(func() error {
			return w.audit.Append(ctx, entry)
		}, w.opts.Retry)
	}
	if err != nil {
		zlog.Logger.Error().Err(&AuditLogError{Key: key, Err: err}).Msg("audit entry lost")
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d)
}
