package cmd

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/josephlewis42/jobsh/core/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (int, string) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	return Execute(), out.String()
}

func TestBuiltinsCmd(t *testing.T) {
	status, out := execute(t, "builtins")
	assert.Equal(t, 0, status)
	assert.Contains(t, out, "jobs      Display status of jobs.\n")
	assert.Contains(t, out, "quit      Exit the shell.\n")
}

func TestRunCmd(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not installed")
	}

	status, _ := execute(t, "run", `sh -c "exit 3"`)
	assert.Equal(t, 3, status)

	status, out := execute(t, "run", "--result", "jobsh-no-such-command-exists")
	assert.Equal(t, 127, status)
	assert.Contains(t, out, "exec_ok: false")
}

func TestInvocationErrors(t *testing.T) {
	dir := t.TempDir()

	status, _ := execute(t, "--config", dir, "init")
	require.Equal(t, 0, status)

	status, _ = execute(t, "--config", dir, filepath.Join(dir, "missing.sh"))
	assert.Equal(t, 1, status, "missing script")

	status, _ = execute(t, "--config", filepath.Join(dir, "missing"), "builtins", "extra")
	assert.Equal(t, 1, status, "bad arguments")
}

func TestShellAndEventReport(t *testing.T) {
	if _, err := exec.LookPath("true"); err != nil {
		t.Skip("true not installed")
	}

	dir := t.TempDir()
	status, _ := execute(t, "--config", dir, "init")
	require.Equal(t, 0, status)

	configPath := filepath.Join(dir, config.ConfigurationName)
	require.Nil(t, os.WriteFile(configPath, []byte("event_log: true\njob_control: off\n"), 0600))

	script := filepath.Join(dir, "script.sh")
	require.Nil(t, os.WriteFile(script, []byte("true\njobsh-no-such-command-exists\nexit 4\n"), 0600))

	status, _ = execute(t, "--config", dir, script)
	assert.Equal(t, 4, status)

	status, out := execute(t, "--config", dir, "events", "report")
	assert.Equal(t, 0, status)
	assert.Contains(t, out, "sessions: 1")
	assert.Contains(t, out, "exec_failures: 1")

	status, out = execute(t, "--config", dir, "events", "bugs")
	assert.Equal(t, 0, status)
	assert.Contains(t, out, "jobsh-no-such-command-exists")

	status, _ = execute(t, "--config", dir, "-c", "exit 6")
	assert.Equal(t, 6, status)
}
