package blob

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/openmined/syftblob/internal/utils"
)

// FSBackend stores objects as files under a root directory.
// Puts go to a temp file next to the target and are renamed into place.
type FSBackend struct {
	rootDir string
}

func NewFSBackend(rootDir string) (*FSBackend, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("create root dir: %w", err)
	}
	return &FSBackend{rootDir: root}, nil
}

func (f *FSBackend) Name() string {
	return BackendFS
}

func (f *FSBackend) path(key string) string {
	return filepath.Join(f.rootDir, filepath.FromSlash(key))
}

func (f *FSBackend) GetObject(ctx context.Context, key string) (*GetObjectResponse, error) {
	if !ValidateKey(key) {
		return nil, ErrInvalidKey
	}

	file, err := os.Open(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	} else if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &GetObjectResponse{
		Body:         file,
		Size:         info.Size(),
		LastModified: info.ModTime().UTC(),
	}, nil
}

func (f *FSBackend) PutObject(ctx context.Context, params *PutObjectParams) (*PutObjectResponse, error) {
	if !ValidateKey(params.Key) {
		return nil, ErrInvalidKey
	}

	target := f.path(params.Key)
	tmp, err := utils.CreateTempSibling(target)
	if err != nil {
		return nil, err
	}
	tmpName := tmp.Name()
	abort := func(err error) (*PutObjectResponse, error) {
		tmp.Close()
		os.Remove(tmpName)
		return nil, err
	}

	hasher := md5.New()
	n, err := io.CopyN(io.MultiWriter(tmp, hasher), params.Body, params.Size)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return abort(fmt.Errorf("%w: got %d of %d bytes", ErrShortBody, n, params.Size))
		}
		return abort(err)
	}
	if err := ctx.Err(); err != nil {
		return abort(err)
	}
	if err := tmp.Sync(); err != nil {
		return abort(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return nil, err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return nil, err
	}

	return &PutObjectResponse{
		Key:          params.Key,
		Size:         n,
		ETag:         hex.EncodeToString(hasher.Sum(nil)),
		LastModified: time.Now().UTC(),
	}, nil
}

func (f *FSBackend) DeleteObject(ctx context.Context, key string) (bool, error) {
	if !ValidateKey(key) {
		return false, ErrInvalidKey
	}

	err := os.Remove(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

var _ Backend = (*FSBackend)(nil)
