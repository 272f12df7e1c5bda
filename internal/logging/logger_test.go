package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuildsNamedLogger(t *testing.T) {
	for _, development := range []bool{true, false} {
		logger, err := New(development)
		require.NoError(t, err)
		require.NotNil(t, logger)
		assert.Equal(t, "harvester", logger.Name())
		logger.Info("logger ready")
		logger.Sync() //nolint:errcheck
	}
}
