package image_test

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/thumbnailer/internal/api/handlers/image"
	"github.com/aliskhannn/thumbnailer/internal/api/router"
	"github.com/aliskhannn/thumbnailer/internal/model"
	queuemem "github.com/aliskhannn/thumbnailer/internal/queue/memory"
	repomem "github.com/aliskhannn/thumbnailer/internal/repository/memory"
	"github.com/aliskhannn/thumbnailer/internal/service/upload"
	blobmem "github.com/aliskhannn/thumbnailer/internal/storage/memory"
)

const (
	bucket  = "biblioteca-kcl"
	maxSize = 1 << 10
)

type fixture struct {
	blobs    *blobmem.Storage
	statuses *repomem.StatusStore
	queue    *queuemem.Queue
	handler  http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		blobs:    blobmem.New(),
		statuses: repomem.NewStatusStore(),
		queue:    queuemem.New(0),
	}
	svc := upload.NewService(f.blobs, f.statuses, repomem.NewAuditLog(), f.queue, upload.Options{Bucket: bucket, MaxSize: maxSize})
	f.handler = router.Setup(image.NewHandler(svc))

	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	return body, mw.FormDataContentType()
}

type result[T any] struct {
	Result  T      `json:"result"`
	Message string `json:"message"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) result[T] {
	t.Helper()
	var r result[T]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	return r
}

func TestUpload(t *testing.T) {
	f := newFixture()

	body, ct := multipartBody(t, "image", "dom.jpg", []byte("jpeg"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)

	w := f.do(req)
	require.Equal(t, http.StatusCreated, w.Code)

	r := decode[map[string]string](t, w)
	assert.Equal(t, bucket, r.Result["bucket"])
	assert.Regexp(t, `^uploads/[0-9a-f]{32}_dom\.jpg$`, r.Result["key"])
	assert.Equal(t, 1, f.queue.Len())
}

func TestUpload_MissingFile(t *testing.T) {
	f := newFixture()

	body, ct := multipartBody(t, "file", "dom.jpg", []byte("jpeg"))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)

	w := f.do(req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "image field is required", decode[any](t, w).Message)
}

func TestUpload_TooLarge(t *testing.T) {
	f := newFixture()

	body, ct := multipartBody(t, "image", "dom.jpg", bytes.Repeat([]byte("x"), maxSize+1))
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)

	w := f.do(req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, decode[any](t, w).Message, "file too large")
	assert.Zero(t, f.queue.Len())
}

func TestStatus(t *testing.T) {
	f := newFixture()

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/status/uploads/a.jpg", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, f.statuses.Set(context.Background(), model.ProcessingStatus{
		Key: "uploads/a.jpg", Status: model.StatusError, Message: "original uploads/a.jpg not found",
	}))

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/status/uploads/a.jpg", nil))
	require.Equal(t, http.StatusOK, w.Code)
	r := decode[model.ProcessingStatus](t, w)
	assert.Equal(t, model.StatusError, r.Result.Status)
	assert.Equal(t, "uploads/a.jpg", r.Result.Key)
}

func TestThumbnail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.statuses.Set(ctx, model.ProcessingStatus{Key: "uploads/a.jpg", Status: model.StatusPending}))
	w := f.do(httptest.NewRequest(http.MethodGet, "/api/thumb/uploads/a.jpg", nil))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, model.StatusPending, decode[model.ProcessingStatus](t, w).Result.Status)

	buf := &bytes.Buffer{}
	require.NoError(t, imaging.Encode(buf, imaging.New(4, 4, color.White), imaging.PNG))
	require.NoError(t, f.blobs.Put(ctx, bucket, "thumb/a.png", buf.Bytes(), "image/png"))
	require.NoError(t, f.statuses.Set(ctx, model.ProcessingStatus{Key: "uploads/a.jpg", Status: model.StatusDone, ThumbKey: "thumb/a.png"}))

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/thumb/uploads/a.jpg", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, buf.Bytes(), w.Body.Bytes())
}

func TestDelete(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.blobs.Put(context.Background(), bucket, "uploads/a.jpg", []byte("x"), "image/jpeg"))

	w := f.do(httptest.NewRequest(http.MethodDelete, "/api/object/uploads/a.jpg", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, err := f.blobs.Get(context.Background(), bucket, "uploads/a.jpg")
	assert.Error(t, err)
}

func TestDelete_UnknownKey(t *testing.T) {
	f := newFixture()

	w := f.do(httptest.NewRequest(http.MethodDelete, "/api/object/uploads/missing.jpg", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMissingKey(t *testing.T) {
	f := newFixture()

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/status/", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture()

	w := f.do(httptest.NewRequest(http.MethodOptions, "/api/upload", nil))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
