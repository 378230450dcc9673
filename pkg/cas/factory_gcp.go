//go:build gcp

package cas

import (
	"context"
	"fmt"
)

func newGCSStore(ctx context.Context, bucket, prefix string) (Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("cas: gcs backend requires a bucket")
	}
	return NewGCSStore(ctx, GCSStoreConfig{Bucket: bucket, Prefix: prefix})
}
