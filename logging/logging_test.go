package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterAndFor(t *testing.T) {
	var buf bytes.Buffer
	Register("test-module", Config{Level: LevelDebug, Output: &buf})

	l := For("test-module")
	l.Infof("hello %s", "world")

	require.Contains(t, buf.String(), "[test-module]")
	require.Contains(t, buf.String(), "hello world")
}

func TestForUnregisteredModuleIsSilent(t *testing.T) {
	l := For("never-registered")
	// Should not panic and should produce no observable output; there is
	// nothing to assert against io.Discard beyond "it doesn't crash".
	l.Errorf("this goes nowhere")
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Register("filtered", Config{Level: LevelWarn, Output: &buf})
	l := For("filtered")

	l.Debugf("debug line")
	l.Infof("info line")
	require.Empty(t, buf.String(), "below-threshold levels must be suppressed")

	l.Warnf("warn line")
	require.True(t, strings.Contains(buf.String(), "warn line"))
}

func TestSetLevelAdjustsThreshold(t *testing.T) {
	var buf bytes.Buffer
	l := Register("adjustable", Config{Level: LevelError, Output: &buf})

	l.Warnf("should be suppressed")
	require.Empty(t, buf.String())

	l.SetLevel(LevelWarn)
	l.Warnf("should appear")
	require.Contains(t, buf.String(), "should appear")
}
