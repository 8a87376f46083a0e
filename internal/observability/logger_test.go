// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/storefront-e2e/internal/config"
)

func TestInitialize_ConsoleColors(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "storefront-test",
		Colors:      config.ColorConfig{Info: "green"},
	}, zapcore.AddSync(&buf))

	GetLogger().Info("Home page opened.")

	out := buf.String()
	assert.Contains(t, out, "Home page opened.")
	assert.Contains(t, out, colorMap["green"]+"INFO"+colorReset)
	assert.Contains(t, out, "storefront-test.")
}

func TestInitialize_JSONAndFile(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logFile := filepath.Join(t.TempDir(), "run.log")
	var buf bytes.Buffer
	Initialize(config.LoggerConfig{
		Level:       "info",
		Format:      "json",
		ServiceName: "storefront-test",
		LogFile:     logFile,
		MaxSize:     1,
	}, zapcore.AddSync(&buf))

	logger := GetLogger()
	logger.Debug("filtered out")
	logger.Warn("Retrying add to cart.", zap.Int("attempt", 1))
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "debug entries are below the configured level")
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, float64(1), entry["attempt"])

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Retrying add to cart.")
}

func TestInitialize_OnlyOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var first, second bytes.Buffer
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(&first))
	Initialize(config.LoggerConfig{Level: "info", Format: "json"}, zapcore.AddSync(&second))

	GetLogger().Info("hello")
	assert.NotEmpty(t, first.String())
	assert.Empty(t, second.String())
}

func TestGetLogger_Fallback(t *testing.T) {
	ResetForTest()
	assert.NotNil(t, GetLogger())
}

func TestScenarioLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ScenarioLogger(zap.New(core), "Buy a laptop", "chrome").Info("step passed")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "Buy a laptop", fields["scenario"])
	assert.Equal(t, "chrome", fields["engine"])
	assert.Equal(t, "scenario", logs.All()[0].LoggerName)
}
