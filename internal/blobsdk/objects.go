package blobsdk

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

const (
	v1Objects = "/api/v1/buckets/{bucket}/objects"
	v1Object  = "/api/v1/buckets/{bucket}/objects/{id}"
	v1Content = "/api/v1/buckets/{bucket}/objects/{id}/content"
	v1Rapid   = "/api/v1/buckets/{bucket}/objects/rapid"
	v1Confirm = "/api/v1/buckets/{bucket}/objects/confirm"
)

type objectOptions struct {
	unconfirmed bool
}

type ObjectOption func(*objectOptions)

// Unconfirmed stores the object as a draft. The server removes drafts that
// are not confirmed in time, and never deduplicates against them.
func Unconfirmed() ObjectOption {
	return func(o *objectOptions) {
		o.unconfirmed = true
	}
}

func applyObjectOptions(opts []ObjectOption) *objectOptions {
	o := &objectOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Put uploads body as one object in a single request.
// An empty digest lets the server compute it.
func (c *Client) Put(ctx context.Context, bucket, name, digest string, body io.Reader, opts ...ObjectOption) (*PutResponse, error) {
	o := applyObjectOptions(opts)
	var result PutResponse
	r := c.client.R().
		SetContext(ctx).
		SetPathParam("bucket", bucket).
		SetQueryParam("name", name).
		SetHeader("Content-Type", "application/octet-stream").
		SetRetryCount(0).
		SetBody(body).
		SetSuccessResult(&result)
	if digest != "" {
		r.SetQueryParam("digest", digest)
	}
	if o.unconfirmed {
		r.SetQueryParam("confirmed", "false")
	}

	resp, err := r.Put(v1Objects)
	if err := handleAPIError(resp, err, "put object"); err != nil {
		return nil, err
	}
	return &result, nil
}

// Rapid names existing content without sending it
func (c *Client) Rapid(ctx context.Context, bucket, name, digest string, opts ...ObjectOption) (*Object, error) {
	req := &rapidRequest{Name: name, Digest: digest}
	if applyObjectOptions(opts).unconfirmed {
		confirmed := false
		req.Confirmed = &confirmed
	}

	var result Object
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("bucket", bucket).
		SetBody(req).
		SetSuccessResult(&result).
		Post(v1Rapid)
	if err := handleAPIError(resp, err, "rapid upload"); err != nil {
		return nil, err
	}
	return &result, nil
}

// Confirm keeps the given draft objects and returns how many changed
func (c *Client) Confirm(ctx context.Context, bucket string, ids []string) (int, error) {
	var result confirmResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("bucket", bucket).
		SetBody(&confirmRequest{IDs: ids}).
		SetSuccessResult(&result).
		Post(v1Confirm)
	if err := handleAPIError(resp, err, "confirm objects"); err != nil {
		return 0, err
	}
	return result.Confirmed, nil
}

func (c *Client) List(ctx context.Context, bucket string) ([]*Object, error) {
	var result listResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("bucket", bucket).
		SetSuccessResult(&result).
		Get(v1Objects)
	if err := handleAPIError(resp, err, "list objects"); err != nil {
		return nil, err
	}
	return result.Objects, nil
}

func (c *Client) Get(ctx context.Context, bucket, id string) (*Object, error) {
	var result Object
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"bucket": bucket, "id": id}).
		SetSuccessResult(&result).
		Get(v1Object)
	if err := handleAPIError(resp, err, "get object"); err != nil {
		return nil, err
	}
	return &result, nil
}

// Download streams the object's bytes into w and returns the count written
func (c *Client) Download(ctx context.Context, bucket, id string, w io.Writer) (int64, error) {
	resp, err := c.stream.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"bucket": bucket, "id": id}).
		Get(v1Content)
	if err != nil {
		return 0, fmt.Errorf("http request error: download object %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// the common error result has usually consumed the body already
		if apiErr, ok := resp.ErrorResult().(*APIError); ok && apiErr.Code != "" {
			apiErr.StatusCode = resp.StatusCode
			return 0, fmt.Errorf("download object %w", apiErr)
		}
		apiErr := &APIError{StatusCode: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := jsonUnmarshal(body, apiErr); err != nil || apiErr.Code == "" {
			return 0, fmt.Errorf("api error: download object status %d", resp.StatusCode)
		}
		return 0, fmt.Errorf("download object %w", apiErr)
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download object: %w", err)
	}
	return n, nil
}

func (c *Client) Delete(ctx context.Context, bucket, id string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"bucket": bucket, "id": id}).
		Delete(v1Object)
	return handleAPIError(resp, err, "delete object")
}
