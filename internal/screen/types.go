package screen

import (
	"encoding/json"

	"github.com/aqubia/stepgate/api"
)

// File represents the top-level YAML configuration: global settings plus the
// submission screening rules.
type File struct {
	Version  int      `yaml:"version" json:"version"`
	Settings Settings `yaml:"settings" json:"settings"`
	Rules    []Rule   `yaml:"rules" json:"rules"`
}

// Settings contains global runtime settings.
type Settings struct {
	DefaultAction     api.Verdict        `yaml:"default_action" json:"default_action"`
	ListenAddr        string             `yaml:"listen_addr" json:"listen_addr"`
	LogDir            string             `yaml:"log_dir" json:"log_dir"`
	FlowTTL           string             `yaml:"flow_ttl" json:"flow_ttl"`
	SweepInterval     string             `yaml:"sweep_interval" json:"sweep_interval"`
	FallbackSynthesis *bool              `yaml:"fallback_synthesis,omitempty" json:"fallback_synthesis,omitempty"`
	OPAPolicy         string             `yaml:"opa_policy,omitempty" json:"opa_policy,omitempty"`
	RateLimit         *RateLimitSettings `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Telegram          *TelegramSettings  `yaml:"telegram,omitempty" json:"telegram,omitempty"`
}

// TelegramSettings configures the operator-channel notifier. BotToken may
// reference an environment variable (e.g. "${STEPGATE_BOT_TOKEN}").
type TelegramSettings struct {
	BotToken string `yaml:"bot_token" json:"-"`
	ChatID   int64  `yaml:"chat_id" json:"chat_id"`
	APIBase  string `yaml:"api_base,omitempty" json:"api_base,omitempty"`
}

// RateLimitSettings caps submissions: max requests per time window.
type RateLimitSettings struct {
	Max    int    `yaml:"max" json:"max"`
	Window string `yaml:"window" json:"window"`
}

// Rule represents a single screening rule.
type Rule struct {
	Name    string    `yaml:"name" json:"name"`
	Match   RuleMatch `yaml:"match" json:"match"`
	Action  string    `yaml:"action" json:"action"`
	Message string    `yaml:"message,omitempty" json:"message,omitempty"`
}

// RuleMatch specifies conditions for matching a submission.
type RuleMatch struct {
	Payload map[string]FieldMatch `yaml:"payload,omitempty" json:"payload,omitempty"`
	Meta    map[string]FieldMatch `yaml:"meta,omitempty" json:"meta,omitempty"`
}

// FieldMatch specifies a matching condition for a single field.
type FieldMatch struct {
	Exact string `yaml:"exact,omitempty" json:"exact,omitempty"`
	Regex string `yaml:"regex,omitempty" json:"regex,omitempty"`
}

// EvalInput is the input to a screening evaluation.
type EvalInput struct {
	Payload json.RawMessage   `json:"payload,omitempty"`
	Meta    map[string]string `json:"meta,omitempty"`
}

// EvalResult is the output of a screening evaluation.
type EvalResult struct {
	Verdict api.Verdict `json:"verdict"`
	Rule    string      `json:"rule,omitempty"`
	Message string      `json:"message,omitempty"`
}
