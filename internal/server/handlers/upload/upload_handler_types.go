package upload

import (
	"time"

	"github.com/openmined/syftblob/internal/server/catalog"
)

type BucketURI struct {
	Bucket string `uri:"bucket" binding:"required"`
}

type UploadURI struct {
	ID string `uri:"id" binding:"required"`
}

type ChunkURI struct {
	ID    string `uri:"id" binding:"required"`
	Index int    `uri:"index"`
}

type InitiateRequest struct {
	Name   string `json:"name" binding:"required"`
	Size   int64  `json:"size"`
	Digest string `json:"digest" binding:"required"`
}

// InitiateResponse carries either a new upload or, on a dedup hit, the existing object
type InitiateResponse struct {
	UploadID      string          `json:"uploadId,omitempty"`
	Object        *catalog.Object `json:"object,omitempty"`
	ChunkSize     int64           `json:"chunkSize"`
	ChunkCount    int             `json:"chunkCount"`
	PendingChunks []int           `json:"pendingChunks"`
}

type ChunkResponse struct {
	PendingChunks []int           `json:"pendingChunks"`
	Object        *catalog.Object `json:"object,omitempty"`
}

type StatusResponse struct {
	UploadID      string    `json:"uploadId"`
	Bucket        string    `json:"bucket"`
	Name          string    `json:"name"`
	Size          int64     `json:"size"`
	Digest        string    `json:"digest"`
	PendingChunks []int     `json:"pendingChunks"`
	ChunkSize     int64     `json:"chunkSize"`
	ChunkCount    int       `json:"chunkCount"`
	State         string    `json:"state"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

type FinalizeResponse struct {
	Object *catalog.Object `json:"object"`
}
