// Package token encodes and parses the action tokens round-tripped through
// the operator channel's callback mechanism.
package token

import (
	"fmt"
	"strings"
)

// Action is the operator's choice encoded in a token.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Approve builds the approve token for a flow.
func Approve(flowID string) string {
	return string(ActionApprove) + "_" + flowID
}

// Reject builds the reject token for a flow.
func Reject(flowID string) string {
	return string(ActionReject) + "_" + flowID
}

// Parse splits a callback token into its action and flow id. Flow ids may
// themselves contain underscores, so only the first separator counts.
func Parse(tok string) (Action, string, error) {
	action, flowID, ok := strings.Cut(tok, "_")
	if !ok {
		return "", "", fmt.Errorf("malformed action token %q", tok)
	}
	if flowID == "" {
		return "", "", fmt.Errorf("action token %q has empty flow id", tok)
	}
	switch Action(action) {
	case ActionApprove, ActionReject:
		return Action(action), flowID, nil
	default:
		return "", "", fmt.Errorf("unknown action %q in token", action)
	}
}
