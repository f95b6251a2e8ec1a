package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/knowbase/internal/mcp"
	"github.com/Aman-CERP/knowbase/pkg/version"
)

const supportDoc = `# Support

Our support team is available Monday to Friday, 9am to 5pm.
Contact support by email for help with your account.`

// testEnv isolates a CLI run: home, user config and data directory live
// under t.TempDir and the enhancer is off so nothing touches the network.
type testEnv struct {
	dataDir string
	docsDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	t.Chdir(root)
	t.Setenv("KNOWBASE_HOME", filepath.Join(root, "home"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "xdg"))
	t.Setenv("KNOWBASE_ENHANCER_ENABLED", "false")
	t.Setenv("NO_COLOR", "1")

	env := &testEnv{
		dataDir: filepath.Join(root, "data"),
		docsDir: filepath.Join(root, "docs"),
	}
	require.NoError(t, os.MkdirAll(env.docsDir, 0o755))
	return env
}

func (env *testEnv) writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(env.docsDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// run executes the root command against the test data directory.
func (env *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--data-dir", env.dataDir}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func (env *testEnv) searchJSON(t *testing.T, args ...string) mcp.SearchOutput {
	t.Helper()
	out, err := env.run(t, append([]string{"search", "--format", "json"}, args...)...)
	require.NoError(t, err)
	var result mcp.SearchOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	return result
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command
	newTestEnv(t)
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	// When: executing with --help
	err := cmd.Execute()

	// Then: usage lists the subcommands
	require.NoError(t, err)
	out := buf.String()
	for _, sub := range []string{"ingest", "search", "context", "stats", "feedback", "enable", "disable", "serve", "config", "version"} {
		assert.Contains(t, out, sub)
	}
	assert.Contains(t, out, "--data-dir")
	assert.Contains(t, out, "--debug")
}

func TestRootCmd_DotEnvIsApplied(t *testing.T) {
	// Given: a .env file that moves the data directory
	newTestEnv(t)
	dir := filepath.Join(t.TempDir(), "from-env")
	require.NoError(t, os.WriteFile(".env", []byte("KNOWBASE_DATA_DIR="+dir+"\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("KNOWBASE_DATA_DIR") })

	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"config", "show"})

	// When: showing the configuration
	require.NoError(t, cmd.Execute())

	// Then: the value from .env is in effect
	assert.Contains(t, buf.String(), "data_dir: "+dir)
}

func TestRootCmd_InvalidProjectConfig(t *testing.T) {
	// Given: a project config with weights that do not sum to one
	env := newTestEnv(t)
	require.NoError(t, os.WriteFile(".knowbase.yaml", []byte("search:\n  vector_weight: 0.9\n  lexical_weight: 0.9\n"), 0o644))

	// When: a command needs the engine
	_, err := env.run(t, "search", "anything")

	// Then: the configuration error is reported
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")

	// And: commands that do not need the engine still work
	out, err := env.run(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Short()+"\n", out)
}

func TestVersionCmd(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "knowbase")

	out, err = env.run(t, "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestProfilingFlags_WriteProfiles(t *testing.T) {
	// Given: CPU and heap profile paths
	env := newTestEnv(t)
	dir := t.TempDir()
	cpu := filepath.Join(dir, "cpu.prof")
	heap := filepath.Join(dir, "heap.prof")

	// When: running a command with profiling enabled
	_, err := env.run(t, "--profile-cpu", cpu, "--profile-mem", heap, "version")

	// Then: both profiles are written
	require.NoError(t, err)
	assert.FileExists(t, cpu)
	assert.FileExists(t, heap)
}
