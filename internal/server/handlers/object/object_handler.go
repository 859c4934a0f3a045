package object

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/openmined/syftblob/internal/server/catalog"
	"github.com/openmined/syftblob/internal/server/handlers/api"
	"github.com/openmined/syftblob/internal/server/upload"
)

type ObjectService interface {
	Put(ctx context.Context, params *upload.PutParams) (*upload.PutResult, error)
	Rapid(ctx context.Context, params *upload.RapidParams) (*catalog.Object, error)
	Confirm(ctx context.Context, bucketID string, ids []string) (int, error)
	Object(ctx context.Context, bucketID, id string) (*catalog.Object, error)
	Objects(ctx context.Context, bucketID string) ([]*catalog.Object, error)
	Open(ctx context.Context, bucketID, id string) (*catalog.Object, io.ReadCloser, error)
	DeleteObject(ctx context.Context, bucketID, id string) (*catalog.Object, error)
}

var _ ObjectService = (*upload.Uploader)(nil)

type ObjectHandler struct {
	service ObjectService
}

func New(service ObjectService) *ObjectHandler {
	return &ObjectHandler{service: service}
}

// Put stores the raw request body as one object
func (h *ObjectHandler) Put(ctx *gin.Context) {
	var uri BucketURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	var req PutRequest
	if err := ctx.ShouldBindQuery(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	res, err := h.service.Put(ctx.Request.Context(), &upload.PutParams{
		BucketID:    uri.Bucket,
		Name:        req.Name,
		Size:        ctx.Request.ContentLength,
		Digest:      req.Digest,
		Body:        ctx.Request.Body,
		Unconfirmed: unconfirmed(req.Confirmed),
	})
	if err != nil {
		api.AbortWithServiceError(ctx, err)
		return
	}

	status := http.StatusCreated
	if res.Deduplicated {
		status = http.StatusOK
	}
	ctx.PureJSON(status, &PutResponse{Object: res.Object, Deduplicated: res.Deduplicated})
}

// Rapid records a new name for content the bucket already holds
func (h *ObjectHandler) Rapid(ctx *gin.Context) {
	var uri BucketURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	var req RapidRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	obj, err := h.service.Rapid(ctx.Request.Context(), &upload.RapidParams{
		BucketID:    uri.Bucket,
		Name:        req.Name,
		Digest:      req.Digest,
		Unconfirmed: unconfirmed(req.Confirmed),
	})
	if err != nil {
		api.AbortWithServiceError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusCreated, obj)
}

// Confirm keeps draft objects stored with confirmed=false
func (h *ObjectHandler) Confirm(ctx *gin.Context) {
	var uri BucketURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	var req ConfirmRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	n, err := h.service.Confirm(ctx.Request.Context(), uri.Bucket, req.IDs)
	if err != nil {
		api.AbortWithServiceError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, &ConfirmResponse{Confirmed: n})
}

func (h *ObjectHandler) List(ctx *gin.Context) {
	var uri BucketURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	objects, err := h.service.Objects(ctx.Request.Context(), uri.Bucket)
	if err != nil {
		api.AbortWithServiceError(ctx, err)
		return
	}
	if objects == nil {
		objects = []*catalog.Object{}
	}

	ctx.PureJSON(http.StatusOK, &ListResponse{Objects: objects})
}

func (h *ObjectHandler) Get(ctx *gin.Context) {
	var uri ObjectURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	obj, err := h.service.Object(ctx.Request.Context(), uri.Bucket, uri.ID)
	if err != nil {
		api.AbortWithServiceError(ctx, err)
		return
	}

	ctx.PureJSON(http.StatusOK, obj)
}

// Content streams the object's bytes
func (h *ObjectHandler) Content(ctx *gin.Context) {
	var uri ObjectURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	obj, body, err := h.service.Open(ctx.Request.Context(), uri.Bucket, uri.ID)
	if err != nil {
		api.AbortWithServiceError(ctx, err)
		return
	}
	defer body.Close()

	ctx.DataFromReader(http.StatusOK, obj.Size, "application/octet-stream", body, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": obj.Name}),
		"ETag":                fmt.Sprintf("%q", obj.Digest),
		"X-Content-Digest":    obj.Digest,
	})
}

func (h *ObjectHandler) Delete(ctx *gin.Context) {
	var uri ObjectURI
	if err := ctx.ShouldBindUri(&uri); err != nil {
		api.AbortWithError(ctx, http.StatusBadRequest, api.CodeInvalidRequest, err)
		return
	}

	if _, err := h.service.DeleteObject(ctx.Request.Context(), uri.Bucket, uri.ID); err != nil {
		api.AbortWithServiceError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}
