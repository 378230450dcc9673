package cas

import (
	"context"
	"fmt"

	"github.com/swarmmesh/substrate/pkg/config"
)

// Backend selects a CAS implementation; feature flag per spec.md §4.1,
// read from Config.CASBackend.
type Backend string

const (
	BackendFile Backend = "file"
	BackendS3   Backend = "s3"
	BackendGCS  Backend = "gcs"
)

// NewFromConfig builds the Store selected by cfg.CASBackend, identical in
// semantics (put/get/exists, content-addressed, idempotent put) regardless
// of backend.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Store, error) {
	switch Backend(cfg.CASBackend) {
	case "", BackendFile:
		return NewFileStore(cfg.CASDir)
	case BackendS3:
		if cfg.CASBucket == "" {
			return nil, fmt.Errorf("cas: s3 backend requires CAS_BUCKET")
		}
		return NewS3Store(ctx, S3StoreConfig{Bucket: cfg.CASBucket})
	case BackendGCS:
		return newGCSStore(ctx, cfg.CASBucket, "")
	default:
		return nil, fmt.Errorf("cas: unsupported backend %q", cfg.CASBackend)
	}
}
