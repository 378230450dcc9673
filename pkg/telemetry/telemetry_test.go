package telemetry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmmesh/substrate/pkg/config"
	"github.com/swarmmesh/substrate/pkg/telemetry"
)

func TestNew_DisabledByDefault(t *testing.T) {
	cfg := config.Load()
	cfg.OTLPEndpoint = ""

	p, err := telemetry.New(context.Background(), telemetry.FromNodeConfig(cfg))
	require.NoError(t, err)
	require.NotNil(t, p)

	// A disabled provider's TrackOperation must be safe to call and must
	// not block on the (absent) OTLP connection.
	ctx, done := p.TrackOperation(context.Background(), "test.op")
	assert.NotNil(t, ctx)
	done(nil)
	done2Err := errors.New("boom")
	_, done2 := p.TrackOperation(context.Background(), "test.op2")
	done2(done2Err)

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestFromNodeConfig_EnabledOnlyWithEndpoint(t *testing.T) {
	cfg := config.Load()
	cfg.OTLPEndpoint = ""
	assert.False(t, telemetry.FromNodeConfig(cfg).Enabled)

	cfg.OTLPEndpoint = "localhost:4317"
	assert.True(t, telemetry.FromNodeConfig(cfg).Enabled)
}
