package stealth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAcceptLanguage(t *testing.T) {
	p := DefaultPersona("ua")
	assert.Equal(t, "en-US,en;q=0.9", p.AcceptLanguage())

	p.Languages = []string{"de-DE", "de", "en"}
	assert.Equal(t, "de-DE,de;q=0.9,en;q=0.8", p.AcceptLanguage())

	p.Languages = nil
	assert.Equal(t, "en-US,en;q=0.9", p.AcceptLanguage())
}

func TestApply(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	tasks := Apply(DefaultPersona("test-agent"), zap.New(core))

	assert.Len(t, tasks, 5)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "test-agent", logs.All()[0].ContextMap()["userAgent"])
}

func TestScriptIsEmbedded(t *testing.T) {
	assert.Contains(t, Script(), "webdriver")
}
