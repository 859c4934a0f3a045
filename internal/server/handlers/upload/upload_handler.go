package upload

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/syftblob/internal/server/catalog"
	"github.com/openmined/syftblob/internal/server/handlers/api"
	"github.com/openmined/syftblob/internal/server/upload"
)

// UploadService is the part of the upload engine the multipart routes drive
type UploadService interface {
	Initiate(ctx context.Context, params *upload.InitiateParams) (*upload.InitiateResult, error)
	AcceptChunk(ctx context.Context, sessionID string, index int, data []byte) (*upload.ChunkResult, error)
	Status(ctx context.Context, sessionID string) (*upload.StatusResult, error)
	Finalize(ctx context.Context, sessionID string) (*catalog.Object, error)
	Cancel(ctx context.Context, sessionID string) error
}

var _ UploadService = (*upload.Uploader)(nil)

type UploadHandler struct {
	service UploadService
	// chunk bodies are read up to this many bytes (+1 to detect oversize)
	maxChunkSize int64
}

func New(service UploadService, maxChunkSize int64) *UploadHandler {
	return &UploadHandler{service: service, maxChunkSize: maxChunkSize}
}

func (h *UploadHandler) Initiate(ctx *gin.Context) {
	var uri BucketURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	var req InitiateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	res, err := h.service.Initiate(ctx.Request.Context(), &upload.InitiateParams{
		BucketID: uri.Bucket,
		Name:     req.Name,
		Size:     req.Size,
		Digest:   req.Digest,
	})
	if err != nil {
		api.AbortWithServiceError(ctx, err)
		return
	}

	status := http.StatusCreated
	if res.Object != nil {
		status = http.StatusOK
	}

	ctx.PureJSON(status, &InitiateResponse{
		UploadID:      res.SessionID,
		Object:        res.Object,
		ChunkSize:     res.ChunkSize,
		ChunkCount:    res.ChunkCount,
		PendingChunks: nonNil(res.Pending),
	})
}

func (h *UploadHandler) UploadChunk(ctx *gin.Context) {
	var uri ChunkURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	if ctx.Request.ContentLength > h.maxChunkSize {
		api.AbortWithServiceError(ctx, fmt.Errorf("%w: chunk %d is %d bytes", upload.ErrChunkSizeMismatch, uri.Index, ctx.Request.ContentLength))
		return
	}

	data, err := io.ReadAll(io.LimitReader(ctx.Request.Body, h.maxChunkSize+1))
	if err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, fmt.Errorf("read chunk: %w", err))
		return
	}

	res, err := h.service.AcceptChunk(ctx.Request.Context(), uri.ID, uri.Index, data)
	if err != nil {
		api.AbortWithServiceError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &ChunkResponse{
		PendingChunks: nonNil(res.Pending),
		Object:        res.Object,
	})
}

func (h *UploadHandler) Status(ctx *gin.Context) {
	var uri UploadURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	res, err := h.service.Status(ctx.Request.Context(), uri.ID)
	if err != nil {
		api.AbortWithServiceError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &StatusResponse{
		UploadID:      res.SessionID,
		Bucket:        res.BucketID,
		Name:          res.Name,
		Size:          res.Size,
		Digest:        res.Digest,
		PendingChunks: nonNil(res.Pending),
		ChunkSize:     res.ChunkSize,
		ChunkCount:    res.ChunkCount,
		State:         string(res.State),
		CreatedAt:     res.CreatedAt,
		ExpiresAt:     res.ExpiresAt,
	})
}

func (h *UploadHandler) Finalize(ctx *gin.Context) {
	var uri UploadURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	obj, err := h.service.Finalize(ctx.Request.Context(), uri.ID)
	if err != nil {
		api.AbortWithServiceError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &FinalizeResponse{Object: obj})
}

func (h *UploadHandler) Cancel(ctx *gin.Context) {
	var uri UploadURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	if err := h.service.Cancel(ctx.Request.Context(), uri.ID); err != nil {
		api.AbortWithServiceError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func nonNil(s []int) []int {
	if s == nil {
		return []int{}
	}
	return s
}
