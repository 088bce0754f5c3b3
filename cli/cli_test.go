package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}

	assert.ElementsMatch(t, []string{"serve", "sweep", "migrate"}, names)
}

func TestRootCommand_RejectsLogFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-format", "xml", "sweep"})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log format")
}

func TestSweepCommand_RejectsBadAsOf(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", t.TempDir() + "/none.env", "sweep", "--as-of", "tomorrow"})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--as-of must be RFC3339")
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	opts := &RootOptions{LogFormat: "json"}

	opts.logger(&buf).Info("hello")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
}
