package app

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", AppEnv: "production"}, &buf)
	logger.Info("payment recorded", "payment_id", 7)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "payment recorded", line["msg"])
	assert.Equal(t, "production", line["env"])
	assert.EqualValues(t, 7, line["payment_id"])
	assert.Contains(t, line, "source")
}

func TestNewLoggerText(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{LogFormat: "pretty"}, &buf).Warn("slow")
	assert.Contains(t, buf.String(), "msg=slow")
}
