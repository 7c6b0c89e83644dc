package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	logger, err := Setup("warn", "json", &buf)
	require.NoError(t, err)

	logger.Info().Msg("dropped")
	logger.Warn().Str("symbol", "TCS").Msg("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), `"symbol":"TCS"`)

	_, err = Setup("loud", "json", &buf)
	assert.Error(t, err)
	_, err = Setup("info", "xml", &buf)
	assert.Error(t, err)
}
