//go:build !gcp

package cas

import (
	"context"
	"fmt"
)

func newGCSStore(ctx context.Context, bucket, prefix string) (Store, error) {
	return nil, fmt.Errorf("cas: gcs backend not enabled in this build (use -tags gcp)")
}
