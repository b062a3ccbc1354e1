package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aqubia/stepgate/api"
	"github.com/spf13/cobra"
)

var (
	resolveServer string
	resolveReason string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <flow-id> <approve|reject>",
	Short: "Resolve a pending flow from the command line",
	Long: `Resolve a flow without going through the operator channel. Intended
for operators with shell access to the gateway host, or for recovering
flows whose notification was never delivered.`,
	Example: `  stepgate resolve my-flow-id approve
  stepgate resolve my-flow-id reject --reason "out-of-band verification failed"`,
	Args: cobra.ExactArgs(2),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVarP(&resolveServer, "server", "s", "http://127.0.0.1:8080", "gateway base URL")
	resolveCmd.Flags().StringVar(&resolveReason, "reason", "", "reason recorded with the decision")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	flowID, action := args[0], args[1]
	if action != "approve" && action != "reject" {
		return fmt.Errorf("action must be approve or reject, got %q", action)
	}

	body, err := json.Marshal(api.ResolveRequest{Action: action, Reason: resolveReason})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/flows/%s/resolve", resolveServer, flowID)
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("resolving flow: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("flow %s not found", flowID)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("resolve failed (HTTP %d): %s", resp.StatusCode, raw)
	}

	var out api.ResolveResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if !out.OK {
		fmt.Printf("flow %s: %s\n", flowID, out.Error)
		return nil
	}
	fmt.Printf("flow %s %sd\n", flowID, action)
	return nil
}
