package logger

import (
	"bytes"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func TestNewWithConfigPrefixAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithConfig(&buf, "Repository", log.InfoLevel, false, false, log.LogfmtFormatter)

	l.Debug("hidden")
	l.Info("loaded", "records", 4)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "prefix=Repository")
	assert.Contains(t, out, "records=4")
}

func TestConfigureSetsGlobalLevel(t *testing.T) {
	prev := log.GetLevel()
	t.Cleanup(func() { log.SetLevel(prev) })

	Configure(true)
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.Equal(t, log.DebugLevel, New("Server").GetLevel())

	Configure(false)
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}
