package object

import "github.com/openmined/syftblob/internal/server/catalog"

type BucketURI struct {
	Bucket string `uri:"bucket" binding:"required"`
}

type ObjectURI struct {
	Bucket string `uri:"bucket" binding:"required"`
	ID     string `uri:"id" binding:"required"`
}

type PutRequest struct {
	Name   string `form:"name" binding:"required"`
	Digest string `form:"digest"`
	// Confirmed defaults to true; false stores a draft
	Confirmed *bool `form:"confirmed"`
}

type PutResponse struct {
	Object       *catalog.Object `json:"object"`
	Deduplicated bool            `json:"deduplicated"`
}

type RapidRequest struct {
	Name      string `json:"name" binding:"required"`
	Digest    string `json:"digest" binding:"required"`
	Confirmed *bool  `json:"confirmed,omitempty"`
}

type ConfirmRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

type ConfirmResponse struct {
	Confirmed int `json:"confirmed"`
}

func unconfirmed(confirmed *bool) bool {
	return confirmed != nil && !*confirmed
}

type ListResponse struct {
	Objects []*catalog.Object `json:"objects"`
}
