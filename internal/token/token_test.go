package token

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		tok     string
		action  Action
		flowID  string
		wantErr bool
	}{
		{name: "approve", tok: "approve_f1", action: ActionApprove, flowID: "f1"},
		{name: "reject", tok: "reject_f2", action: ActionReject, flowID: "f2"},
		{name: "flow id with underscores", tok: "approve_flow_2024_01", action: ActionApprove, flowID: "flow_2024_01"},
		{name: "garbage", tok: "garbage", wantErr: true},
		{name: "unknown action", tok: "maybe_f1", wantErr: true},
		{name: "empty flow id", tok: "approve_", wantErr: true},
		{name: "empty token", tok: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, flowID, err := Parse(tt.tok)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.tok)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if action != tt.action || flowID != tt.flowID {
				t.Errorf("got (%s, %s), want (%s, %s)", action, flowID, tt.action, tt.flowID)
			}
		})
	}
}

func TestRoundTrip(t *testing.T) {
	for _, build := range []func(string) string{Approve, Reject} {
		tok := build("flow-abc_123")
		_, flowID, err := Parse(tok)
		if err != nil {
			t.Fatal(err)
		}
		if flowID != "flow-abc_123" {
			t.Errorf("round trip lost flow id: %q", flowID)
		}
	}
}
