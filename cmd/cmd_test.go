package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDescriptor = `moduleId: reading-t
moduleName: Reading T
sectionKind: reading
totalQuestions: 3
components:
  - type: daily1
    setId: 1
    questionsPerSet: 2
  - type: writing
    setId: 1
    questionsPerSet: 1
`

// workspace writes a descriptor and its question sets into a temp dir and
// points the database there.
func workspace(t *testing.T) (dir, descPath string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("EXAMRUN_DB", filepath.Join(dir, "examrun.db"))
	t.Setenv("EXAMRUN_CONFIG", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "error")

	write := func(rel, content string) {
		p := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	write("data/daily1/1.json", `{"title":"Notices","items":[
		{"prompt":"Opens at?","options":["8am","9am"],"answer":"9am"},
		{"prompt":"Exit?","options":["left","right"],"answer":"left"}]}`)
	write("data/writing/1.yaml", "items:\n  - prompt: Describe your town.\n")
	write("reading.yaml", testDescriptor)
	return dir, filepath.Join(dir, "reading.yaml")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir, desc := workspace(t)
	data := filepath.Join(dir, "data")

	out, err := execute(t, "validate", "--data", data, desc)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+desc)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`moduleId: bad
moduleName: Bad
sectionKind: reading
totalQuestions: 4
components:
  - type: daily1
    setId: 1
    questionsPerSet: 3
  - type: poetry
    setId: 1
    questionsPerSet: 1
`), 0o644))

	out, err = execute(t, "validate", "--data", data, desc, bad)
	require.Error(t, err)
	assert.Contains(t, out, "✗ "+bad)
	assert.Contains(t, out, `unknown type "poetry"`)
	assert.Contains(t, out, "has 2 items, needs 3")
}

func TestSimulateThenHistory(t *testing.T) {
	dir, desc := workspace(t)
	data := filepath.Join(dir, "data")

	out, err := execute(t, "simulate", "--data", data, "--interval", "5ms", "--accuracy", "1", "--save", desc)
	require.NoError(t, err)
	assert.Contains(t, out, "Reading T (reading-t): completed")
	assert.Contains(t, out, "answered  3/3")
	assert.Contains(t, out, "correct   2")

	out, err = execute(t, "history", "--module", "reading-t")
	require.NoError(t, err)
	assert.Contains(t, out, "reading-t")
	assert.Contains(t, out, "3/3")

	out, err = execute(t, "history", "--module", "nope")
	require.NoError(t, err)
	assert.Contains(t, out, "No attempts found.")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "examrun")
}
