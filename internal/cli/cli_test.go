package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shahincodev/Sofware-AI-English/internal/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNewRootCmd_hasSubcommands(t *testing.T) {
	root := NewRootCmd("test")
	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "serve", "status", "stop", "memory", "config", "doctor"} {
		assert.True(t, names[want], "expected subcommand %q", want)
	}
}

func TestNewRootCmd_versionAndFlags(t *testing.T) {
	root := NewRootCmd("1.2.3")
	assert.Equal(t, "1.2.3", root.Version)
	assert.Equal(t, "dev", NewRootCmd("").Version)
	for _, name := range []string{"home", "env-file", "debug", "log-level"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(name), name)
	}
}

func TestRun_ordersOutcomes(t *testing.T) {
	t.Setenv(config.HomeEnv, "")
	home := t.TempDir()

	out, err := execute(t, "", "--home", home, "run", "--stub", "--concurrency", "2", "first", "second", "third")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Contains(t, l, "\tsuccess\tstub: ok")
	}

	// Successful outcomes were promoted and are visible without a server.
	id := strings.SplitN(lines[1], "\t", 2)[0]
	out, err = execute(t, "", "--home", home, "memory", "recall", id)
	require.NoError(t, err)
	assert.Contains(t, out, `"tier": "ltm"`)
	assert.Contains(t, out, `"text": "second"`)

	out, err = execute(t, "", "--home", home, "memory", "list", "--mode", "browser")
	require.NoError(t, err)
	for _, l := range lines {
		assert.Contains(t, out, strings.SplitN(l, "\t", 2)[0])
	}

	out, err = execute(t, "", "--home", home, "memory", "list", "--mode", "code")
	require.NoError(t, err)
	assert.NotContains(t, out, id)
}

func TestRun_stdinAndJSON(t *testing.T) {
	t.Setenv(config.HomeEnv, "")
	out, err := execute(t, "one\n\ntwo\n", "--home", t.TempDir(), "run", "--stub", "--json")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"text":"one"`)
	assert.Contains(t, lines[1], `"text":"two"`)
}

func TestRun_codeModeWithoutAgent(t *testing.T) {
	t.Setenv(config.HomeEnv, "")
	out, err := execute(t, "", "--home", t.TempDir(), "run", "--mode", "code", "refactor it")
	require.NoError(t, err)
	assert.Contains(t, out, "\tfailure\tunsupported_mode")
}

func TestRun_errors(t *testing.T) {
	t.Setenv(config.HomeEnv, "")
	_, err := execute(t, "", "--home", t.TempDir(), "run", "--stub")
	assert.ErrorContains(t, err, "no tasks")

	_, err = execute(t, "", "--home", t.TempDir(), "run", "--mode", "voice", "x")
	assert.Error(t, err)
}

func TestMemory_needsServer(t *testing.T) {
	t.Setenv(config.HomeEnv, "")
	_, err := execute(t, "", "--home", t.TempDir(), "memory", "promote", "abc")
	assert.ErrorIs(t, err, errNeedsServer)
	_, err = execute(t, "", "--home", t.TempDir(), "memory", "sweep")
	assert.ErrorIs(t, err, errNeedsServer)
	_, err = execute(t, "", "--home", t.TempDir(), "memory", "list", "--since", "yesterday")
	assert.ErrorContains(t, err, "--since")
}

func TestConfigShow_redactsSecrets(t *testing.T) {
	t.Setenv(config.HomeEnv, "")
	t.Setenv("SOFTWARE_AI_HTTP_API_KEY", "hunter2")
	out, err := execute(t, "", "--home", t.TempDir(), "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "<redacted>")
	assert.NotContains(t, out, "hunter2")
	assert.Contains(t, out, "stm_ttl: 1h0m0s")
}

func TestDoctor_stub(t *testing.T) {
	t.Setenv(config.HomeEnv, "")
	t.Setenv("SOFTWARE_AI_AGENTS_STUB", "true")
	out, err := execute(t, "", "--home", t.TempDir(), "doctor")
	require.NoError(t, err)
	assert.Contains(t, out, "ltm: ok (sqlite)")
	assert.Contains(t, out, "agent browser: stub")
	assert.True(t, strings.HasSuffix(out, "ok\n"))
}

func TestStatus_notRunning(t *testing.T) {
	t.Setenv(config.HomeEnv, "")
	out, err := execute(t, "", "--home", t.TempDir(), "status")
	require.NoError(t, err)
	assert.Equal(t, "software-ai not running\n", out)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nSOFTWARE_AI_TEST_A=1\nexport SOFTWARE_AI_TEST_B=\"two\"\nbroken\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("SOFTWARE_AI_TEST_A", "")
	t.Setenv("SOFTWARE_AI_TEST_B", "")

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "1", os.Getenv("SOFTWARE_AI_TEST_A"))
	assert.Equal(t, "two", os.Getenv("SOFTWARE_AI_TEST_B"))
	assert.Error(t, loadEnvFile(filepath.Join(t.TempDir(), "missing")))
}

func TestForwardedFlags(t *testing.T) {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.Bool("detach", false, "")
	fs.String("home", "", "")
	fs.String("addr", "", "")
	fs.Int("concurrency", 1, "")
	require.NoError(t, fs.Parse([]string{"--detach", "--home", "/tmp/x", "--addr", "127.0.0.1:9000"}))

	assert.Equal(t, []string{"--addr=127.0.0.1:9000"}, forwardedFlags(fs))
}
