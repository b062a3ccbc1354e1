package gateway

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

const maxSummaryValue = 80

// buildSummary renders the human-readable operator message for a submission:
// the flow id, the payload fields, and any client metadata.
func buildSummary(flowID string, payload map[string]json.RawMessage, meta map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Approval request %s\n", flowID)

	for _, key := range sortedKeys(payload) {
		var val any
		display := string(payload[key])
		if err := json.Unmarshal(payload[key], &val); err == nil {
			display = fmt.Sprintf("%v", val)
		}
		fmt.Fprintf(&b, "• %s: %s\n", key, truncate(display, maxSummaryValue))
	}

	if len(meta) > 0 {
		keys := make([]string, 0, len(meta))
		for k := range meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		b.WriteString("—\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, truncate(meta[k], maxSummaryValue))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary; a mid-rune slice produces invalid UTF-8 that
	// the messaging API rejects outright.
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
