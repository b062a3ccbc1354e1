package screen

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aqubia/stepgate/api"
)

const testRules = `
version: 1
settings:
  default_action: ask
rules:
  - name: reject-blocked-account
    match:
      payload:
        account:
          exact: "blocked"
    action: deny
    message: account is on the block list
  - name: approve-trusted-source
    match:
      meta:
        source:
          exact: "internal"
    action: allow
  - name: reject-scripted-clients
    match:
      meta:
        userAgent:
          regex: "(?i)(curl|python-requests)"
    action: deny
    message: automated client
`

func testEngine(t *testing.T) *YAMLEngine {
	t.Helper()
	f, err := LoadBytes([]byte(testRules))
	if err != nil {
		t.Fatal(err)
	}
	e, err := NewYAMLEngineFromFile(f)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestYAMLEngine_Evaluate(t *testing.T) {
	e := testEngine(t)

	tests := []struct {
		name    string
		payload string
		meta    map[string]string
		verdict api.Verdict
		rule    string
	}{
		{
			name:    "payload exact match denies",
			payload: `{"account":"blocked","amount":10}`,
			verdict: api.VerdictDeny,
			rule:    "reject-blocked-account",
		},
		{
			name:    "meta exact match allows",
			payload: `{"account":"ok"}`,
			meta:    map[string]string{"source": "internal"},
			verdict: api.VerdictAllow,
			rule:    "approve-trusted-source",
		},
		{
			name:    "meta regex match denies",
			payload: `{"account":"ok"}`,
			meta:    map[string]string{"userAgent": "curl/8.0"},
			verdict: api.VerdictDeny,
			rule:    "reject-scripted-clients",
		},
		{
			name:    "no match falls through to default",
			payload: `{"account":"ok"}`,
			meta:    map[string]string{"userAgent": "Mozilla/5.0"},
			verdict: api.VerdictAsk,
			rule:    "_default",
		},
		{
			name:    "first match wins",
			payload: `{"account":"blocked"}`,
			meta:    map[string]string{"source": "internal"},
			verdict: api.VerdictDeny,
			rule:    "reject-blocked-account",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := &EvalInput{Meta: tt.meta}
			if tt.payload != "" {
				input.Payload = json.RawMessage(tt.payload)
			}
			result, err := e.Evaluate(context.Background(), input)
			if err != nil {
				t.Fatal(err)
			}
			if result.Verdict != tt.verdict {
				t.Errorf("verdict: got %s, want %s", result.Verdict, tt.verdict)
			}
			if result.Rule != tt.rule {
				t.Errorf("rule: got %s, want %s", result.Rule, tt.rule)
			}
		})
	}
}

func TestYAMLEngine_MissingFieldDoesNotMatch(t *testing.T) {
	e := testEngine(t)

	result, err := e.Evaluate(context.Background(), &EvalInput{
		Payload: json.RawMessage(`{"amount":10}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Rule != "_default" {
		t.Errorf("expected default rule, got %s", result.Rule)
	}
}

func TestLoadBytes_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "bad version",
			yaml: "version: 2\nsettings: {}\n",
		},
		{
			name: "missing rule name",
			yaml: `
version: 1
rules:
  - match:
      payload:
        a: {exact: "b"}
    action: deny
`,
		},
		{
			name: "invalid action",
			yaml: `
version: 1
rules:
  - name: r
    match:
      payload:
        a: {exact: "b"}
    action: log
`,
		},
		{
			name: "no match condition",
			yaml: `
version: 1
rules:
  - name: r
    match: {}
    action: deny
`,
		},
		{
			name: "invalid regex",
			yaml: `
version: 1
rules:
  - name: r
    match:
      payload:
        a: {regex: "["}
    action: deny
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadBytes([]byte(tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadBytes_DefaultActionIsAsk(t *testing.T) {
	f, err := LoadBytes([]byte("version: 1\nsettings: {}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if f.Settings.DefaultAction != api.VerdictAsk {
		t.Errorf("expected ask default, got %s", f.Settings.DefaultAction)
	}
}
