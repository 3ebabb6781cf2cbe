package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dotsetgreg/dotrecall/pkg/config"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runRootCommandForTest(args ...string) (string, error) {
	return runRootCommandWithInput(nil, args...)
}

func runRootCommandWithInput(in io.Reader, args ...string) (string, error) {
	root := buildRootCommand(false)
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	if in != nil {
		root.SetIn(in)
	}
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// writeTestConfig saves a config whose workspace lives in a temp dir.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Workspace.Path = filepath.Join(dir, "workspace")
	cfg.Log.Level = "error"
	path := filepath.Join(dir, "config.json")
	if err := config.SaveConfig(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return path
}

func TestCLIHelp(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "root",
			args: []string{"--help"},
			want: []string{"onboard", "chat", "ask", "contacts", "serve", "status", "version", "--config"},
		},
		{
			name: "contacts",
			args: []string{"contacts", "--help"},
			want: []string{"search", "show", "note", "--json"},
		},
		{
			name: "chat",
			args: []string{"chat", "--help"},
			want: []string{"/ask <question>", "--message", "--speaker"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			output, err := runRootCommandForTest(tc.args...)
			if err != nil {
				t.Fatalf("execute command %v: %v\nOutput:\n%s", tc.args, err, output)
			}
			for _, w := range tc.want {
				if !strings.Contains(output, w) {
					t.Fatalf("help for %v missing %q\nOutput:\n%s", tc.args, w, output)
				}
			}
			if tc.name == "root" && strings.Contains(output, "  docs ") {
				t.Fatalf("hidden docs command leaked into help:\n%s", output)
			}
		})
	}
}

func TestCLIRequiresSubcommand(t *testing.T) {
	_, err := runRootCommandForTest()
	assert.ErrorContains(t, err, "a subcommand is required")

	out, err := runRootCommandForTest("-v")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "dotrecall dev"))

	out, err = runRootCommandForTest("version")
	require.NoError(t, err)
	assert.Contains(t, out, "Go: ")
}

func TestDocsGenerateAndCheck(t *testing.T) {
	out := t.TempDir()
	factory := func() *cobra.Command { return buildRootCommand(false) }
	require.NoError(t, generateDocumentation(factory, out, false))

	for _, rel := range []string{"cli/dotrecall.md", "cli/dotrecall_contacts_note.md", "man/dotrecall-serve.1", "config.md", "api.md"} {
		_, err := os.Stat(filepath.Join(out, "reference", rel))
		assert.NoError(t, err, rel)
	}

	configRef, err := os.ReadFile(filepath.Join(out, "reference", "config.md"))
	require.NoError(t, err)
	assert.Contains(t, string(configRef), "| `memory.window_size` | `int` | `DOTRECALL_MEMORY_WINDOW_SIZE` | `10` |")

	apiRef, err := os.ReadFile(filepath.Join(out, "reference", "api.md"))
	require.NoError(t, err)
	assert.Contains(t, string(apiRef), "| `GET` | `/api/contacts/{id}/history` |")
	assert.Contains(t, string(apiRef), "| `POST` | `/api/memory/message` |")

	require.NoError(t, generateDocumentation(factory, out, true))

	require.NoError(t, os.WriteFile(filepath.Join(out, "reference", "config.md"), []byte("stale"), 0o644))
	assert.ErrorContains(t, generateDocumentation(factory, out, true), "config.md differs")
}
