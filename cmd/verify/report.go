package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"social-pipeline/internal/config"
	"social-pipeline/internal/infra/logging"
)

type setting struct {
	Name     string
	Value    string
	Required bool
	Secret   bool
}

type report struct {
	Settings  []setting
	Platforms map[string]bool
}

// Report lists every setting and the platforms the configuration enables.
// Secrets are masked unless reveal is set.
func Report(cfg *config.Config, reveal bool) report {
	r := report{Platforms: map[string]bool{}}
	add := func(name, value string, required, secret bool) {
		if secret && value != "" {
			value = logging.Redact(value, reveal)
		}
		r.Settings = append(r.Settings, setting{Name: name, Value: value, Required: required, Secret: secret})
	}

	add("GOOGLE_SHEET_ID", cfg.Sheets.SpreadsheetID, true, false)
	add("GOOGLE_SHEET_NAME", cfg.Sheets.Worksheet, false, false)
	add("GOOGLE_SHEETS_CREDENTIALS", cfg.Sheets.CredentialsFile, false, false)
	add("LLM_PROVIDER", cfg.AI.Provider, true, false)
	add("LLM_MODEL", cfg.AI.DefaultModel, false, false)
	add("OPENAI_API_KEY", cfg.AI.OpenAIKey, cfg.AI.Provider == "openai", true)
	add("GEMINI_API_KEY", cfg.AI.GeminiKey, cfg.AI.Provider == "gemini", true)
	add("OLLAMA_API_URL", cfg.AI.OllamaURL, false, false)
	add("WORKFLOW_INTERVAL_MINUTES", fmt.Sprintf("%d", int(cfg.Workflow.Interval.Minutes())), false, false)
	add("BATCH_SIZE", fmt.Sprintf("%d", cfg.Workflow.BatchSize), false, false)
	add("ENGAGE_COUNT", fmt.Sprintf("%d", cfg.Workflow.EngageCount), false, false)
	add("HEADLESS", fmt.Sprintf("%t", cfg.Browser.Headless), false, false)
	add("SESSION_DIR", cfg.Browser.SessionDir, false, false)
	for i, a := range cfg.Twitter.Accounts {
		suffix := ""
		if i > 0 {
			suffix = fmt.Sprintf("_%d", i+1)
		}
		add("TWITTER_USERNAME"+suffix, a.Username, false, true)
		add("TWITTER_PASSWORD"+suffix, a.Password, false, true)
		add("SEARCH_TERMS"+suffix, strings.Join(a.SearchTerms, ","), false, false)
	}
	add("TELEGRAM_BOT_TOKEN", cfg.Telegram.BotToken, false, true)
	add("TELEGRAM_CHANNEL", cfg.Telegram.Channel, cfg.Telegram.BotToken != "", false)
	add("BLUESKY_API_KEY", cfg.Bluesky.Identifier, false, false)
	add("BLUESKY_API_PASSWORD", cfg.Bluesky.Password, false, true)
	add("LINKEDIN_ACCESS_TOKEN", cfg.LinkedIn.AccessToken, false, true)
	add("LINKEDIN_REFRESH_TOKEN", cfg.LinkedIn.RefreshToken, false, true)
	add("LINKEDIN_AUTHOR_URN", cfg.LinkedIn.AuthorURN, cfg.LinkedIn.AccessToken != "", false)
	add("DATABASE_URL", cfg.Database.URL, false, true)
	add("REDIS_URL", cfg.Redis.URL, false, true)
	add("ADMIN_PORT", fmt.Sprintf("%d", cfg.Admin.Port), false, false)

	r.Platforms["twitter"] = len(cfg.Twitter.Accounts) > 0
	r.Platforms["bluesky"] = cfg.Bluesky.Identifier != "" && cfg.Bluesky.Password != ""
	r.Platforms["linkedin"] = cfg.LinkedIn.AccessToken != ""
	r.Platforms["telegram"] = cfg.Telegram.BotToken != ""
	return r
}

// Missing returns the required settings that are empty.
func (r report) Missing() []string {
	var out []string
	for _, s := range r.Settings {
		if s.Required && s.Value == "" {
			out = append(out, s.Name)
		}
	}
	return out
}

func writeReport(w io.Writer, r report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SETTING\tVALUE\tREQUIRED")
	for _, s := range r.Settings {
		v := s.Value
		if v == "" {
			v = "(unset)"
		}
		req := ""
		if s.Required {
			req = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, v, req)
	}
	_ = tw.Flush()

	fmt.Fprintln(w, "\nPLATFORMS")
	for _, p := range []string{"twitter", "bluesky", "linkedin", "telegram"} {
		state := "disabled"
		if r.Platforms[p] {
			state = "enabled"
		}
		fmt.Fprintf(w, "  %-9s %s\n", p, state)
	}
}
