package model

import (
	"fmt"
	"time"
)

// ================ Config ================
type ConversationConfig struct {
	WindowDays  int    `envconfig:"CONVERSATION_WINDOW_DAYS" default:"7"`
	MaxMessages int    `envconfig:"CONVERSATION_MAX_MESSAGES" default:"28"`
	TTL         string `envconfig:"CONVERSATION_TTL" default:"720h"`
}

// Window converts the config to a load window.
func (c ConversationConfig) Window() Window {
	return Window{Days: c.WindowDays, MaxMessages: c.MaxMessages}
}

// TTLDuration parses TTL; an empty value disables expiry.
func (c ConversationConfig) TTLDuration() (time.Duration, error) {
	if c.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid CONVERSATION_TTL %q: %w", c.TTL, err)
	}
	return d, nil
}

type LLMConfig struct {
	Provider       string `envconfig:"LLM_PROVIDER" default:"gemini"`
	Model          string `envconfig:"LLM_MODEL" default:"gemini-2.5-flash"`
	APIKey         string `envconfig:"LLM_API_KEY"`
	BaseURL        string `envconfig:"LLM_BASE_URL"`
	ThinkingBudget int32  `envconfig:"LLM_THINKING_BUDGET" default:"0"`
}

type ClassifierConfig struct {
	Temperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" default:"0"`
	MaxTokens   int     `envconfig:"CLASSIFIER_MAX_TOKENS" default:"16"`
	Priority    string  `envconfig:"CLASSIFIER_PRIORITY" default:"summary,prescription,general"`
}

type SummaryConfig struct {
	Temperature float32 `envconfig:"SUMMARY_TEMPERATURE" default:"0.5"`
	MaxTokens   int     `envconfig:"SUMMARY_MAX_TOKENS" default:"1024"`
}

type PrescriptionConfig struct {
	Temperature    float32 `envconfig:"PRESCRIPTION_TEMPERATURE" default:"0.2"`
	MaxTokens      int     `envconfig:"PRESCRIPTION_MAX_TOKENS" default:"1024"`
	MaxMessages    int     `envconfig:"PRESCRIPTION_MAX_MESSAGES" default:"14"`
	GuidelineQuery string  `envconfig:"PRESCRIPTION_GUIDELINE_QUERY" default:"mental health clinical guideline"`
}

type GeneralConfig struct {
	Temperature float32 `envconfig:"GENERAL_TEMPERATURE" default:"0.8"`
	MaxTokens   int     `envconfig:"GENERAL_MAX_TOKENS" default:"1024"`
}

type GuidelineSearchConfig struct {
	Enabled    bool   `envconfig:"GUIDELINE_SEARCH_ENABLED" default:"true"`
	URL        string `envconfig:"GUIDELINE_SEARCH_URL" default:"https://api.duckduckgo.com/"`
	Timeout    string `envconfig:"GUIDELINE_SEARCH_TIMEOUT" default:"10s"`
	MaxResults int    `envconfig:"GUIDELINE_SEARCH_MAX_RESULTS" default:"5"`
}

// TimeoutDuration parses Timeout.
func (c GuidelineSearchConfig) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid GUIDELINE_SEARCH_TIMEOUT %q: %w", c.Timeout, err)
	}
	return d, nil
}
