// Package blobsdk is the Go client for the SyftBlob upload API
package blobsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/syftblob/internal/utils"
	"github.com/openmined/syftblob/internal/version"
)

const (
	HeaderUserAgent   = "User-Agent"
	HeaderBlobVersion = "X-SyftBlob-Version"

	v1Buckets = "/api/v1/buckets"
)

var UserAgent = fmt.Sprintf("SyftBlob/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// Client talks to one SyftBlob server
type Client struct {
	client *req.Client
	// stream leaves response bodies unread, for downloads
	stream  *req.Client
	baseURL string
}

// New returns a client. Requests are retried on transport errors, 429 and 503,
// the statuses the server uses for conditions that clear on their own.
func New(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, ErrNoServerURL
	}
	if !utils.IsValidURL(baseURL) {
		return nil, fmt.Errorf("sdk: invalid server url %q", baseURL)
	}

	client := req.C().
		SetBaseURL(baseURL).
		SetUserAgent(UserAgent).
		SetCommonHeader(HeaderBlobVersion, version.Version).
		SetCommonErrorResult(&APIError{}).
		SetCommonRetryCount(3).
		SetCommonRetryBackoffInterval(250*time.Millisecond, 3*time.Second).
		SetCommonRetryCondition(retryable).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	return &Client{
		client:  client,
		stream:  client.Clone().DisableAutoReadResponse(),
		baseURL: baseURL,
	}, nil
}

func retryable(resp *req.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return resp.StatusCode == http.StatusServiceUnavailable || resp.StatusCode == http.StatusTooManyRequests
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Buckets lists the server's buckets and the digest algorithm it addresses content with
func (c *Client) Buckets(ctx context.Context) (*BucketsResponse, error) {
	var result BucketsResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&result).
		Get(v1Buckets)
	if err := handleAPIError(resp, err, "list buckets"); err != nil {
		return nil, err
	}
	return &result, nil
}
