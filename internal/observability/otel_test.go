package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Settings{ServiceName: "order-service"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestNewLoggerBadLevelStillLogsInfo(t *testing.T) {
	logger := NewLogger("order-service", "not-a-level")
	assert.True(t, logger.Core().Enabled(0))
}
