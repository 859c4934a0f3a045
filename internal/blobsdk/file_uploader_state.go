package blobsdk

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openmined/syftblob/internal/utils"
)

// resumeState is what survives between runs of the same upload
type resumeState struct {
	UploadID        string `json:"uploadId"`
	Bucket          string `json:"bucket"`
	Name            string `json:"name"`
	FilePath        string `json:"filePath"`
	Fingerprint     string `json:"fingerprint"`
	Size            int64  `json:"size"`
	Digest          string `json:"digest"`
	DigestAlgorithm string `json:"digestAlgorithm"`
}

func fingerprint(info os.FileInfo) string {
	return fmt.Sprintf("%d:%d", info.Size(), info.ModTime().UnixNano())
}

func newResumeState(params *UploadFileParams, path string, info os.FileInfo, uploadID, digest, algorithm string) *resumeState {
	return &resumeState{
		UploadID:        uploadID,
		Bucket:          params.Bucket,
		Name:            params.Name,
		FilePath:        path,
		Fingerprint:     fingerprint(info),
		Size:            info.Size(),
		Digest:          digest,
		DigestAlgorithm: algorithm,
	}
}

func (s *resumeState) matches(params *UploadFileParams, path string, info os.FileInfo) bool {
	return s.UploadID != "" &&
		s.Bucket == params.Bucket &&
		s.Name == params.Name &&
		s.FilePath == path &&
		s.Size == info.Size() &&
		s.Fingerprint == fingerprint(info)
}

func (s *resumeState) save(path string) error {
	data, err := jsonMarshal(s)
	if err != nil {
		return fmt.Errorf("encode resume file: %w", err)
	}
	return utils.WriteFileAtomic(path, data, 0o644)
}

// loadResumeState returns nil, nil when there is no usable state
func loadResumeState(path string) (*resumeState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read resume file: %w", err)
	}

	var s resumeState
	if err := jsonUnmarshal(data, &s); err != nil {
		os.Remove(path)
		return nil, nil
	}
	return &s, nil
}

func resumeStatePath(dir, bucket, name, filePath string) string {
	hash := sha1.Sum([]byte(bucket + "|" + name + "|" + filePath))
	return filepath.Join(dir, hex.EncodeToString(hash[:])+".json")
}
