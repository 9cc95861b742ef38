package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testUpdates = `{"message":{"message_id":1,"chat":{"id":1001},"text":"a"}}
{"message":{"message_id":2,"chat":{"id":1001},"text":"b"}}
{"callback_query":{"id":"q1","from":{"id":3},"data":"x"}}
garbage
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfg := `log:
  level: error
database:
  path: ` + filepath.Join(dir, "test.db") + `
collectors:
  - name: chat
    kind: message
    chat_id: 1001
    max: 2
  - name: buttons
    kind: keyboard
`
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path
}

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), out.String())
	return out.String()
}

func TestReplayThenSessions(t *testing.T) {
	cfgPath := writeConfig(t)
	envFile := filepath.Join(t.TempDir(), "none.env")

	out := run(t, testUpdates, "replay", "-c", cfgPath, "--env-file", envFile, "-o", "json")

	var summary struct {
		Stats struct {
			Lines     int
			Published int
			Skipped   int
		} `json:"stats"`
		Collectors []struct {
			Name      string `json:"name"`
			Collected int    `json:"collected"`
			Ended     bool   `json:"ended"`
			Reason    string `json:"reason"`
		} `json:"collectors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 4, summary.Stats.Lines)
	assert.Equal(t, 3, summary.Stats.Published)
	assert.Equal(t, 1, summary.Stats.Skipped)

	require.Len(t, summary.Collectors, 2)
	reasons := map[string]string{}
	for _, c := range summary.Collectors {
		assert.True(t, c.Ended, c.Name)
		reasons[c.Name] = c.Reason
	}
	assert.Equal(t, map[string]string{"chat": "limit", "buttons": "user"}, reasons)

	out = run(t, "", "sessions", "list", "-c", cfgPath, "--env-file", envFile, "-o", "json")
	var sessions []struct {
		ID     string   `json:"id"`
		Name   string   `json:"name"`
		Reason string   `json:"reason"`
		Keys   []string `json:"keys"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &sessions))
	require.Len(t, sessions, 2)

	var chatID string
	for _, s := range sessions {
		if s.Name == "chat" {
			chatID = s.ID
			assert.Equal(t, []string{"1", "2"}, s.Keys)
		}
	}
	require.NotEmpty(t, chatID)

	out = run(t, "", "sessions", "list", "-c", cfgPath, "--env-file", envFile, "--reason", "user")
	assert.Contains(t, out, "buttons")
	assert.NotContains(t, out, "limit")

	out = run(t, "", "sessions", "show", chatID, "-c", cfgPath, "--env-file", envFile)
	assert.Contains(t, out, `"reason": "limit"`)

	out = run(t, "", "sessions", "prune", "-c", cfgPath, "--env-file", envFile, "--older-than", "720h")
	assert.Equal(t, "deleted 0 sessions\n", out)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
