//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-pipeline/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Sheets:   config.SheetsConfig{SpreadsheetID: "sheet-123"},
		AI:       config.AIConfig{Provider: "openai", OpenAIKey: "sk-abcdefghijklmnop"},
		Workflow: config.WorkflowConfig{Interval: time.Hour, BatchSize: 5},
		Twitter: config.TwitterConfig{Accounts: []config.TwitterAccount{
			{Name: "primary", Username: "writer_account", Password: "hunter2hunter2"},
		}},
		Telegram: config.TelegramConfig{BotToken: "123:abc", Channel: "@news"},
	}
}

func find(r report, name string) (setting, bool) {
	for _, s := range r.Settings {
		if s.Name == name {
			return s, true
		}
	}
	return setting{}, false
}

func TestReport_MasksSecrets(t *testing.T) {
	r := Report(testConfig(), false)

	key, ok := find(r, "OPENAI_API_KEY")
	require.True(t, ok)
	assert.True(t, key.Required)
	assert.Equal(t, "sk-a...op", key.Value)

	tok, _ := find(r, "TELEGRAM_BOT_TOKEN")
	assert.Equal(t, "***", tok.Value)

	id, _ := find(r, "GOOGLE_SHEET_ID")
	assert.Equal(t, "sheet-123", id.Value)
	assert.Empty(t, r.Missing())
}

func TestReport_Reveal(t *testing.T) {
	r := Report(testConfig(), true)
	key, _ := find(r, "OPENAI_API_KEY")
	assert.Equal(t, "sk-abcdefghijklmnop", key.Value)
}

func TestReport_Platforms(t *testing.T) {
	r := Report(testConfig(), false)
	assert.Equal(t, map[string]bool{"twitter": true, "bluesky": false, "linkedin": false, "telegram": true}, r.Platforms)

	var buf bytes.Buffer
	writeReport(&buf, r)
	assert.Contains(t, buf.String(), "twitter   enabled")
	assert.Contains(t, buf.String(), "bluesky   disabled")
	assert.Contains(t, buf.String(), "(unset)")
}

func TestReport_MissingRequired(t *testing.T) {
	cfg := testConfig()
	cfg.Sheets.SpreadsheetID = ""
	cfg.Telegram.Channel = ""
	assert.Equal(t, []string{"GOOGLE_SHEET_ID", "TELEGRAM_CHANNEL"}, Report(cfg, false).Missing())
}

func TestVerifyCmd_FailsWithoutRequired(t *testing.T) {
	t.Setenv("GOOGLE_SHEET_ID", "")
	t.Setenv("LLM_PROVIDER", "noop")
	cmd := newVerifyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
	assert.Contains(t, out.String(), "configuration invalid")
}
