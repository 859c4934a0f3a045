package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/openmined/syftblob/internal/server/catalog"
	"github.com/openmined/syftblob/internal/server/handlers/api"
	"github.com/openmined/syftblob/internal/server/upload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockUploadService struct {
	mock.Mock
}

func (m *MockUploadService) Initiate(ctx context.Context, params *upload.InitiateParams) (*upload.InitiateResult, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*upload.InitiateResult), args.Error(1)
}

func (m *MockUploadService) AcceptChunk(ctx context.Context, sessionID string, index int, data []byte) (*upload.ChunkResult, error) {
	args := m.Called(ctx, sessionID, index, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*upload.ChunkResult), args.Error(1)
}

func (m *MockUploadService) Status(ctx context.Context, sessionID string) (*upload.StatusResult, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*upload.StatusResult), args.Error(1)
}

func (m *MockUploadService) Finalize(ctx context.Context, sessionID string) (*catalog.Object, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Object), args.Error(1)
}

func (m *MockUploadService) Cancel(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

func setupRouter(service UploadService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(service, 8)
	r := gin.New()
	r.POST("/buckets/:bucket/uploads", h.Initiate)
	r.PATCH("/uploads/:id/chunks/:index", h.UploadChunk)
	r.GET("/uploads/:id", h.Status)
	r.POST("/uploads/:id/finalize", h.Finalize)
	r.DELETE("/uploads/:id", h.Cancel)
	return r
}

func serve(r *gin.Engine, method, url string, body io.Reader) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, url, body)
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) api.SyftAPIError {
	t.Helper()
	var body api.SyftAPIError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestUploadHandler_Initiate(t *testing.T) {
	svc := &MockUploadService{}
	r := setupRouter(svc)

	svc.On("Initiate", mock.Anything, &upload.InitiateParams{
		BucketID: "photos",
		Name:     "cat.jpg",
		Size:     12,
		Digest:   "abcd",
	}).Return(&upload.InitiateResult{
		SessionID:  "sess-1",
		ChunkSize:  8,
		ChunkCount: 2,
		Pending:    []int{0, 1},
	}, nil)

	w := serve(r, http.MethodPost, "/buckets/photos/uploads", strings.NewReader(`{"name":"cat.jpg","size":12,"digest":"abcd"}`))

	assert.Equal(t, http.StatusCreated, w.Code)
	var res InitiateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "sess-1", res.UploadID)
	assert.Nil(t, res.Object)
	assert.Equal(t, int64(8), res.ChunkSize)
	assert.Equal(t, 2, res.ChunkCount)
	assert.Equal(t, []int{0, 1}, res.PendingChunks)
	svc.AssertExpectations(t)
}

func TestUploadHandler_InitiateDedup(t *testing.T) {
	svc := &MockUploadService{}
	r := setupRouter(svc)

	existing := &catalog.Object{ID: "obj-1", BucketID: "photos", Name: "old.jpg", Size: 12, Digest: "abcd", Key: "objects/photos/abc/obj-1", Confirmed: true}
	svc.On("Initiate", mock.Anything, mock.Anything).Return(&upload.InitiateResult{
		Object:     existing,
		ChunkSize:  8,
		ChunkCount: 2,
	}, nil)

	w := serve(r, http.MethodPost, "/buckets/photos/uploads", strings.NewReader(`{"name":"cat.jpg","size":12,"digest":"abcd"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "uploadId")
	assert.NotContains(t, w.Body.String(), "objects/photos")
	var res InitiateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotNil(t, res.Object)
	assert.Equal(t, "obj-1", res.Object.ID)
	assert.Empty(t, res.PendingChunks)
	assert.NotNil(t, res.PendingChunks)
}

func TestUploadHandler_InitiateBadRequest(t *testing.T) {
	svc := &MockUploadService{}
	r := setupRouter(svc)

	w := serve(r, http.MethodPost, "/buckets/photos/uploads", strings.NewReader(`{"size":12}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, api.CodeInvalidRequest, decodeError(t, w).Code)
	svc.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
}

func TestUploadHandler_InitiateServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid size", fmt.Errorf("%w: size must be > 0", upload.ErrInvalidRequest), http.StatusBadRequest, api.CodeInvalidRequest},
		{"backend", fmt.Errorf("%w: catalog: boom", upload.ErrBackendUnavailable), http.StatusServiceUnavailable, api.CodeBackendUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockUploadService{}
			r := setupRouter(svc)
			svc.On("Initiate", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := serve(r, http.MethodPost, "/buckets/photos/uploads", strings.NewReader(`{"name":"a","size":0,"digest":"abcd"}`))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, decodeError(t, w).Code)
		})
	}
}

func TestUploadHandler_UploadChunk(t *testing.T) {
	svc := &MockUploadService{}
	r := setupRouter(svc)

	svc.On("AcceptChunk", mock.Anything, "sess-1", 1, []byte("tail")).Return(&upload.ChunkResult{Pending: []int{0}}, nil)

	w := serve(r, http.MethodPatch, "/uploads/sess-1/chunks/1", strings.NewReader("tail"))

	assert.Equal(t, http.StatusOK, w.Code)
	var res ChunkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, []int{0}, res.PendingChunks)
	assert.Nil(t, res.Object)
	svc.AssertExpectations(t)
}

func TestUploadHandler_UploadLastChunk(t *testing.T) {
	svc := &MockUploadService{}
	r := setupRouter(svc)

	obj := &catalog.Object{ID: "obj-9", BucketID: "photos", Name: "cat.jpg", Size: 12, Digest: "abcd", Confirmed: true}
	svc.On("AcceptChunk", mock.Anything, "sess-1", 0, []byte("12345678")).Return(&upload.ChunkResult{Pending: nil, Object: obj}, nil)

	w := serve(r, http.MethodPatch, "/uploads/sess-1/chunks/0", strings.NewReader("12345678"))

	assert.Equal(t, http.StatusOK, w.Code)
	var res ChunkResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, []int{}, res.PendingChunks)
	require.NotNil(t, res.Object)
	assert.Equal(t, "obj-9", res.Object.ID)
}

func TestUploadHandler_UploadChunkErrors(t *testing.T) {
	t.Run("non numeric index", func(t *testing.T) {
		svc := &MockUploadService{}
		r := setupRouter(svc)

		w := serve(r, http.MethodPatch, "/uploads/sess-1/chunks/abc", strings.NewReader("x"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, api.CodeInvalidRequest, decodeError(t, w).Code)
	})

	t.Run("oversized body", func(t *testing.T) {
		svc := &MockUploadService{}
		r := setupRouter(svc)

		w := serve(r, http.MethodPatch, "/uploads/sess-1/chunks/0", strings.NewReader("123456789"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, api.CodeChunkSizeMismatch, decodeError(t, w).Code)
		svc.AssertNotCalled(t, "AcceptChunk", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("out of range", func(t *testing.T) {
		svc := &MockUploadService{}
		r := setupRouter(svc)
		svc.On("AcceptChunk", mock.Anything, "sess-1", 7, mock.Anything).Return(nil, upload.ErrChunkOutOfRange)

		w := serve(r, http.MethodPatch, "/uploads/sess-1/chunks/7", strings.NewReader("x"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, api.CodeChunkOutOfRange, decodeError(t, w).Code)
	})

	t.Run("unknown session", func(t *testing.T) {
		svc := &MockUploadService{}
		r := setupRouter(svc)
		svc.On("AcceptChunk", mock.Anything, "gone", 0, mock.Anything).Return(nil, upload.ErrSessionNotFound)

		w := serve(r, http.MethodPatch, "/uploads/gone/chunks/0", strings.NewReader("x"))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, api.CodeUploadNotFound, decodeError(t, w).Code)
	})

	t.Run("digest mismatch on last chunk", func(t *testing.T) {
		svc := &MockUploadService{}
		r := setupRouter(svc)
		svc.On("AcceptChunk", mock.Anything, "sess-1", 0, mock.Anything).Return(nil, upload.ErrDigestMismatch)

		w := serve(r, http.MethodPatch, "/uploads/sess-1/chunks/0", strings.NewReader("x"))

		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, api.CodeDigestMismatch, decodeError(t, w).Code)
	})
}

func TestUploadHandler_Status(t *testing.T) {
	svc := &MockUploadService{}
	r := setupRouter(svc)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc.On("Status", mock.Anything, "sess-1").Return(&upload.StatusResult{
		SessionID:  "sess-1",
		BucketID:   "photos",
		Name:       "cat.jpg",
		Size:       80,
		Digest:     "abcd",
		Pending:    []int{3, 4, 6, 7, 8},
		ChunkSize:  8,
		ChunkCount: 10,
		State:      upload.StateUploading,
		CreatedAt:  created,
		ExpiresAt:  created.Add(24 * time.Hour),
	}, nil)

	w := serve(r, http.MethodGet, "/uploads/sess-1", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var res StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, []int{3, 4, 6, 7, 8}, res.PendingChunks)
	assert.Equal(t, "uploading", res.State)
	assert.Equal(t, 10, res.ChunkCount)
	assert.True(t, res.ExpiresAt.Equal(created.Add(24*time.Hour)))
}

func TestUploadHandler_Finalize(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &MockUploadService{}
		r := setupRouter(svc)
		svc.On("Finalize", mock.Anything, "sess-1").Return(&catalog.Object{ID: "obj-1"}, nil)

		w := serve(r, http.MethodPost, "/uploads/sess-1/finalize", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		var res FinalizeResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, "obj-1", res.Object.ID)
	})

	t.Run("in progress", func(t *testing.T) {
		svc := &MockUploadService{}
		r := setupRouter(svc)
		svc.On("Finalize", mock.Anything, "sess-1").Return(nil, upload.ErrFinalizeInProgress)

		w := serve(r, http.MethodPost, "/uploads/sess-1/finalize", nil)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, api.CodeFinalizeInProgress, decodeError(t, w).Code)
	})

	t.Run("chunks pending", func(t *testing.T) {
		svc := &MockUploadService{}
		r := setupRouter(svc)
		svc.On("Finalize", mock.Anything, "sess-1").Return(nil, upload.ErrChunksPending)

		w := serve(r, http.MethodPost, "/uploads/sess-1/finalize", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, api.CodeChunksPending, decodeError(t, w).Code)
	})
}

func TestUploadHandler_Cancel(t *testing.T) {
	svc := &MockUploadService{}
	r := setupRouter(svc)
	svc.On("Cancel", mock.Anything, "sess-1").Return(nil)
	svc.On("Cancel", mock.Anything, "gone").Return(upload.ErrSessionNotFound)

	w := serve(r, http.MethodDelete, "/uploads/sess-1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(r, http.MethodDelete, "/uploads/gone", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	svc.AssertExpectations(t)
}
