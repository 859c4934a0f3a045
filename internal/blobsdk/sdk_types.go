package blobsdk

import "time"

type Object struct {
	ID        string    `json:"id" yaml:"id"`
	BucketID  string    `json:"bucketId" yaml:"bucket"`
	Name      string    `json:"name" yaml:"name"`
	Size      int64     `json:"size" yaml:"size"`
	Digest    string    `json:"digest" yaml:"digest"`
	Confirmed bool      `json:"confirmed" yaml:"confirmed"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
}

type Bucket struct {
	ID            string `json:"id" yaml:"id"`
	MaxObjectSize int64  `json:"maxObjectSize" yaml:"maxObjectSize"`
}

type BucketsResponse struct {
	Buckets         []Bucket `json:"buckets" yaml:"buckets"`
	DigestAlgorithm string   `json:"digestAlgorithm" yaml:"digestAlgorithm"`
}

type InitiateRequest struct {
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Digest string `json:"digest"`
}

// InitiateResponse has UploadID set for a new upload, or Object set when the
// bucket already holds the content
type InitiateResponse struct {
	UploadID      string  `json:"uploadId,omitempty"`
	Object        *Object `json:"object,omitempty"`
	ChunkSize     int64   `json:"chunkSize"`
	ChunkCount    int     `json:"chunkCount"`
	PendingChunks []int   `json:"pendingChunks"`
}

type ChunkResponse struct {
	PendingChunks []int   `json:"pendingChunks"`
	Object        *Object `json:"object,omitempty"`
}

type UploadStatus struct {
	UploadID      string    `json:"uploadId" yaml:"uploadId"`
	Bucket        string    `json:"bucket" yaml:"bucket"`
	Name          string    `json:"name" yaml:"name"`
	Size          int64     `json:"size" yaml:"size"`
	Digest        string    `json:"digest" yaml:"digest"`
	PendingChunks []int     `json:"pendingChunks" yaml:"pendingChunks"`
	ChunkSize     int64     `json:"chunkSize" yaml:"chunkSize"`
	ChunkCount    int       `json:"chunkCount" yaml:"chunkCount"`
	State         string    `json:"state" yaml:"state"`
	CreatedAt     time.Time `json:"createdAt" yaml:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt" yaml:"expiresAt"`
}

type finalizeResponse struct {
	Object *Object `json:"object"`
}

type PutResponse struct {
	Object       *Object `json:"object" yaml:"object"`
	Deduplicated bool    `json:"deduplicated" yaml:"deduplicated"`
}

type rapidRequest struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	Confirmed *bool  `json:"confirmed,omitempty"`
}

type confirmRequest struct {
	IDs []string `json:"ids"`
}

type confirmResponse struct {
	Confirmed int `json:"confirmed"`
}

type listResponse struct {
	Objects []*Object `json:"objects"`
}

// ProgressFunc receives the bytes confirmed by the server so far
type ProgressFunc func(uploaded, total int64)
