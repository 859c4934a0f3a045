package blobsdk

import (
	"context"
	"strconv"
)

const (
	v1Initiate = "/api/v1/buckets/{bucket}/uploads"
	v1Upload   = "/api/v1/uploads/{id}"
	v1Chunk    = "/api/v1/uploads/{id}/chunks/{index}"
	v1Finalize = "/api/v1/uploads/{id}/finalize"
)

// Initiate starts a multipart upload, or returns the existing object on a dedup hit
func (c *Client) Initiate(ctx context.Context, bucket string, params *InitiateRequest) (*InitiateResponse, error) {
	var result InitiateResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("bucket", bucket).
		SetBody(params).
		SetSuccessResult(&result).
		Post(v1Initiate)
	if err := handleAPIError(resp, err, "initiate upload"); err != nil {
		return nil, err
	}
	return &result, nil
}

// UploadChunk sends one chunk. Resending an accepted chunk is harmless.
func (c *Client) UploadChunk(ctx context.Context, uploadID string, index int, data []byte) (*ChunkResponse, error) {
	var result ChunkResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", uploadID).
		SetPathParam("index", strconv.Itoa(index)).
		SetHeader("Content-Type", "application/octet-stream").
		SetBodyBytes(data).
		SetSuccessResult(&result).
		Patch(v1Chunk)
	if err := handleAPIError(resp, err, "upload chunk"); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Status(ctx context.Context, uploadID string) (*UploadStatus, error) {
	var result UploadStatus
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", uploadID).
		SetSuccessResult(&result).
		Get(v1Upload)
	if err := handleAPIError(resp, err, "upload status"); err != nil {
		return nil, err
	}
	return &result, nil
}

// Finalize retries assembly of an upload whose chunks have all arrived
func (c *Client) Finalize(ctx context.Context, uploadID string) (*Object, error) {
	var result finalizeResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", uploadID).
		SetSuccessResult(&result).
		Post(v1Finalize)
	if err := handleAPIError(resp, err, "finalize upload"); err != nil {
		return nil, err
	}
	return result.Object, nil
}

func (c *Client) Cancel(ctx context.Context, uploadID string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", uploadID).
		Delete(v1Upload)
	return handleAPIError(resp, err, "cancel upload")
}
