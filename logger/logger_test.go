package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDebugIsGatedByVerbose(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetVerbose(false)

	SetVerbose(false)
	Debug("hidden %d", 1)
	require.Empty(t, buf.String())

	SetVerbose(true)
	Debug("shown %d", 2)
	require.Contains(t, buf.String(), "[DEBUG] shown 2")
}

func TestLevelsAlwaysEmit(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Info("info %s", "a")
	Warn("warn %s", "b")
	Error("error %s", "c")

	out := buf.String()
	require.Contains(t, out, "[INFO] info a")
	require.Contains(t, out, "[WARN] warn b")
	require.Contains(t, out, "[ERROR] error c")
}
