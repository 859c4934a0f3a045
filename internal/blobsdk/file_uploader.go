package blobsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/openmined/syftblob/internal/utils"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 4

	finalizePollInterval = 500 * time.Millisecond
	finalizePollAttempts = 20
)

type UploadFileParams struct {
	Bucket   string
	FilePath string
	// Name defaults to the file's base name
	Name string
	// ResumeDir keeps upload state between runs. Defaults to <tmp>/syftblob-uploads.
	ResumeDir   string
	Concurrency int
	Callback    ProgressFunc
}

type UploadFileResult struct {
	Object       *Object `json:"object" yaml:"object"`
	Deduplicated bool    `json:"deduplicated" yaml:"deduplicated"`
	// Resumed is set when an earlier run's upload was continued
	Resumed    bool `json:"resumed" yaml:"resumed"`
	ChunksSent int  `json:"chunksSent" yaml:"chunksSent"`
}

// UploadFile uploads a file through a multipart upload, continuing an earlier
// interrupted upload of the same file when the server still holds it
func (c *Client) UploadFile(ctx context.Context, params *UploadFileParams) (*UploadFileResult, error) {
	if !utils.FileExists(params.FilePath) {
		return nil, ErrFileNotFound
	}
	u, err := newFileUploader(c, params)
	if err != nil {
		return nil, err
	}

	if err := u.lock(); err != nil {
		return nil, err
	}
	defer u.unlock()

	return u.upload(ctx)
}

type fileUploader struct {
	client *Client
	params *UploadFileParams
	path   string
	info   os.FileInfo
	state  *resumeState
	flock  *flock.Flock

	chunkSize int64
	pending   []int
	resumed   bool
}

func newFileUploader(c *Client, params *UploadFileParams) (*fileUploader, error) {
	path, err := utils.ResolvePath(params.FilePath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("sdk: %s is a directory", path)
	}

	p := *params
	if p.Name == "" {
		p.Name = filepath.Base(path)
	}
	if p.ResumeDir == "" {
		p.ResumeDir = filepath.Join(os.TempDir(), "syftblob-uploads")
	}
	if p.Concurrency <= 0 {
		p.Concurrency = DefaultConcurrency
	}

	u := &fileUploader{
		client: c,
		params: &p,
		path:   path,
		info:   info,
	}
	u.flock = flock.New(u.statePath() + ".lock")
	return u, nil
}

func (u *fileUploader) lock() error {
	if err := utils.EnsureDir(u.params.ResumeDir); err != nil {
		return fmt.Errorf("ensure resume dir: %w", err)
	}
	locked, err := u.flock.TryLock()
	if err != nil {
		return fmt.Errorf("lock upload: %w", err)
	}
	if !locked {
		return ErrUploadLocked
	}
	return nil
}

func (u *fileUploader) unlock() {
	if !u.flock.Locked() {
		return
	}
	if err := u.flock.Unlock(); err != nil {
		slog.Warn("unlock upload", "path", u.flock.Path(), "error", err)
		return
	}
	os.Remove(u.flock.Path())
}

func (u *fileUploader) upload(ctx context.Context) (*UploadFileResult, error) {
	if err := u.resume(ctx); err != nil {
		return nil, err
	}

	if u.state == nil {
		res, err := u.start(ctx)
		if err != nil || res != nil {
			return res, err
		}
	}

	sent, obj, err := u.sendChunks(ctx)
	if err != nil {
		if IsCode(err, CodeUploadNotFound) || IsCode(err, CodeDigestMismatch) {
			u.clearState()
		}
		return nil, err
	}

	if obj == nil {
		if obj, err = u.finalize(ctx); err != nil {
			return nil, err
		}
	}

	u.clearState()
	return &UploadFileResult{
		Object:     obj,
		Resumed:    u.resumed,
		ChunksSent: sent,
	}, nil
}

// resume picks up the saved upload if the file is unchanged and the server still has it
func (u *fileUploader) resume(ctx context.Context) error {
	state, err := loadResumeState(u.statePath())
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}
	if !state.matches(u.params, u.path, u.info) {
		slog.Debug("discard stale upload state", "file", u.path, "upload", state.UploadID)
		u.clearState()
		return nil
	}

	status, err := u.client.Status(ctx, state.UploadID)
	if IsCode(err, CodeUploadNotFound) {
		slog.Debug("saved upload no longer on server", "upload", state.UploadID)
		u.clearState()
		return nil
	} else if err != nil {
		return err
	}

	u.state = state
	u.chunkSize = status.ChunkSize
	u.pending = status.PendingChunks
	u.resumed = true
	slog.Debug("resume upload", "upload", state.UploadID, "pending", len(u.pending), "chunks", status.ChunkCount)
	return nil
}

// start hashes the file and initiates a new upload. A non-nil result means there is
// nothing left to send.
func (u *fileUploader) start(ctx context.Context) (*UploadFileResult, error) {
	info, err := u.client.Buckets(ctx)
	if err != nil {
		return nil, err
	}

	digest, err := DigestFile(info.DigestAlgorithm, u.path)
	if err != nil {
		return nil, fmt.Errorf("digest file: %w", err)
	}

	// multipart uploads need at least one byte
	if u.info.Size() == 0 {
		f, err := os.Open(u.path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		res, err := u.client.Put(ctx, u.params.Bucket, u.params.Name, digest, f)
		if err != nil {
			return nil, err
		}
		return &UploadFileResult{Object: res.Object, Deduplicated: res.Deduplicated}, nil
	}

	res, err := u.client.Initiate(ctx, u.params.Bucket, &InitiateRequest{
		Name:   u.params.Name,
		Size:   u.info.Size(),
		Digest: digest,
	})
	if err != nil {
		return nil, err
	}
	if res.Object != nil {
		u.progress(u.info.Size())
		return &UploadFileResult{Object: res.Object, Deduplicated: true}, nil
	}

	u.state = newResumeState(u.params, u.path, u.info, res.UploadID, digest, info.DigestAlgorithm)
	if err := u.state.save(u.statePath()); err != nil {
		return nil, err
	}
	u.chunkSize = res.ChunkSize
	u.pending = res.PendingChunks
	return nil, nil
}

func (u *fileUploader) sendChunks(ctx context.Context) (int, *Object, error) {
	file, err := os.Open(u.path)
	if err != nil {
		return 0, nil, fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	size := u.info.Size()
	uploaded := size
	for _, i := range u.pending {
		uploaded -= u.chunkLen(i)
	}
	u.progress(uploaded)

	var (
		sent   atomic.Int64
		mu     sync.Mutex
		object *Object
	)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(u.params.Concurrency)

	for _, index := range u.pending {
		group.Go(func() error {
			buf := make([]byte, u.chunkLen(index))
			if _, err := file.ReadAt(buf, int64(index)*u.chunkSize); err != nil {
				return fmt.Errorf("read chunk %d: %w", index, err)
			}

			res, err := u.client.UploadChunk(gctx, u.state.UploadID, index, buf)
			if err != nil {
				return err
			}

			mu.Lock()
			uploaded += int64(len(buf))
			u.progress(uploaded)
			if res.Object != nil {
				object = res.Object
			}
			mu.Unlock()

			sent.Add(1)
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return int(sent.Load()), nil, err
	}

	// a confirmed object already passed the server's digest check
	if object == nil {
		if info, err := os.Stat(u.path); err != nil || fingerprint(info) != fingerprint(u.info) {
			return int(sent.Load()), nil, ErrUploadChanged
		}
	}

	return int(sent.Load()), object, nil
}

// finalize covers the case where the response that carried the object was lost,
// or another request is still assembling it
func (u *fileUploader) finalize(ctx context.Context) (*Object, error) {
	for attempt := 0; attempt < finalizePollAttempts; attempt++ {
		obj, err := u.client.Finalize(ctx, u.state.UploadID)
		switch {
		case err == nil:
			return obj, nil
		case IsCode(err, CodeUploadNotFound):
			// confirmed by someone else; the catalog now has the digest
			res, err := u.client.Initiate(ctx, u.params.Bucket, &InitiateRequest{
				Name:   u.params.Name,
				Size:   u.info.Size(),
				Digest: u.state.Digest,
			})
			if err != nil {
				return nil, err
			}
			if res.Object == nil {
				return nil, fmt.Errorf("sdk: upload %s vanished before it was confirmed", u.state.UploadID)
			}
			return res.Object, nil
		case IsCode(err, CodeFinalizeInProgress):
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(finalizePollInterval):
			}
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("sdk: upload %s is still finalizing", u.state.UploadID)
}

func (u *fileUploader) chunkLen(index int) int64 {
	offset := int64(index) * u.chunkSize
	return min(u.chunkSize, u.info.Size()-offset)
}

func (u *fileUploader) progress(uploaded int64) {
	if u.params.Callback != nil {
		u.params.Callback(uploaded, u.info.Size())
	}
}

func (u *fileUploader) statePath() string {
	return resumeStatePath(u.params.ResumeDir, u.params.Bucket, u.params.Name, u.path)
}

func (u *fileUploader) clearState() {
	if err := os.Remove(u.statePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("remove upload state", "path", u.statePath(), "error", err)
	}
	u.state = nil
}
