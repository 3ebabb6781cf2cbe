package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dotsetgreg/dotrecall/pkg/config"
	"github.com/dotsetgreg/dotrecall/pkg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnboard(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfgPath := filepath.Join(home, ".dotrecall", "config.json")

	out, err := runRootCommandForTest("onboard", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "dotrecall is ready!")

	cfg, err := config.LoadConfig(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Memory.WindowSize)
	_, err = os.Stat(filepath.Join(home, ".dotrecall", "workspace"))
	assert.NoError(t, err, "workspace directory is created")

	out, err = runRootCommandWithInput(strings.NewReader("n\n"), "onboard", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")

	out, err = runRootCommandWithInput(strings.NewReader("yes\n"), "onboard", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "is ready!")
}

func TestChatThenAskSharesState(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runRootCommandForTest("chat", "--config", cfgPath, "-m", "Jon said his address is 123 Main St, Suite 400")
	require.NoError(t, err)
	assert.Contains(t, out, "contact: Jon (new)")
	assert.Contains(t, out, `address "123 Main St, Suite 400"`)

	out, err = runRootCommandForTest("ask", "--config", cfgPath, "Did Jon send his address?")
	require.NoError(t, err)
	assert.Contains(t, out, "Yes, Jon sent their address")

	out, err = runRootCommandForTest("ask", "--config", cfgPath, "--json", "Did", "Jon", "send", "his", "phone?")
	require.NoError(t, err)
	var ans memory.Answer
	require.NoError(t, json.Unmarshal([]byte(out), &ans))
	assert.Equal(t, memory.QueryInformationCheck, ans.QueryType)
	require.NotNil(t, ans.Found)
	assert.False(t, *ans.Found)

	out, err = runRootCommandForTest("status", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Backend: sqlite")
	assert.Contains(t, out, "Contacts: 1")
	assert.Contains(t, out, "Stored: 1 messages")
}

func TestChatOneShotJSON(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runRootCommandForTest("chat", "--config", cfgPath, "--json", "-m", "I need to meet with Jon next week")
	require.NoError(t, err)
	var res memory.ProcessResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, memory.IntentScheduleMeeting, res.Intent)
	require.Len(t, res.ContactUpdates, 1)
	assert.True(t, res.ContactUpdates[0].Created)
}

func TestChatInteractiveCommands(t *testing.T) {
	cfgPath := writeTestConfig(t)
	input := strings.Join([]string{
		"Jon emailed me from jon@example.com",
		"",
		"/contacts",
		"/history Jon",
		"/ask Did Jon send his email?",
		"/context",
		"/new planning",
		"/threads",
		"/ask",
		"/bogus",
		"exit",
	}, "\n") + "\n"

	out, err := runRootCommandWithInput(strings.NewReader(input), "chat", "--config", cfgPath)
	require.NoError(t, err)
	for _, want := range []string{
		"interactive mode",
		"contact: Jon (new)",
		"jon@example.com (1 interactions)",
		"email: jon@example.com",
		"Yes, Jon sent their email",
		"Recent conversation (1 messages)",
		"Started thread",
		"planning",
		"usage: /ask <question>",
		"unknown command /bogus",
		"Goodbye!",
	} {
		assert.Contains(t, out, want)
	}
}

func TestChatEndsOnEOF(t *testing.T) {
	cfgPath := writeTestConfig(t)
	out, err := runRootCommandWithInput(strings.NewReader("hello there"), "chat", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "intent: statement")
	assert.Contains(t, out, "Goodbye!")
}

func TestContactsCommands(t *testing.T) {
	cfgPath := writeTestConfig(t)
	_, err := runRootCommandForTest("chat", "--config", cfgPath, "-m", "Sarah called about lunch")
	require.NoError(t, err)

	out, err := runRootCommandForTest("contacts", "search", "sar", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Sarah")

	out, err = runRootCommandForTest("contacts", "search", "nobody", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No contacts found.")

	out, err = runRootCommandForTest("contacts", "note", "Sarah", "prefers", "morning", "calls", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Noted for Sarah (1 notes)")

	out, err = runRootCommandForTest("contacts", "show", "sarah", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "note: prefers morning calls")
	assert.Contains(t, out, "interactions: 1")

	out, err = runRootCommandForTest("contacts", "list", "--json", "--config", cfgPath)
	require.NoError(t, err)
	var listed []memory.Contact
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)

	_, err = runRootCommandForTest("contacts", "show", "Zed", "--config", cfgPath)
	assert.ErrorIs(t, err, memory.ErrContactNotFound)
}

func TestMemoryConfigMapping(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Workspace.Path = "/tmp/recall"
	cfg.Memory.LaterDelayMinutes = 30
	cfg.Memory.BreakerMaxFailures = -1

	m := memoryConfig(cfg, nil)
	assert.Equal(t, "/tmp/recall", m.Workspace)
	assert.Equal(t, "local", m.UserID)
	assert.Equal(t, "30m0s", m.LaterDelay.String())
	assert.Equal(t, uint32(0), m.BreakerMaxFailures)
	assert.Equal(t, memory.BackendSQLite, m.Backend)
}
