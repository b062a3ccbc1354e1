package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/cobra"
)

var (
	submitServer  string
	submitFlowID  string
	submitPayload string
	submitWatch   bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a test flow to a running gateway",
	Long: `Submit a flow for approval. A fresh flow id is minted unless one is
given; ids are never reused across attempts.`,
	Example: `  stepgate submit -s http://127.0.0.1:8080 --payload '{"username":"qa-demo"}'
  stepgate submit -s http://127.0.0.1:8080 --payload '{"amount":500}' --watch`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVarP(&submitServer, "server", "s", "http://127.0.0.1:8080", "gateway base URL")
	submitCmd.Flags().StringVar(&submitFlowID, "flow-id", "", "flow id (minted if empty)")
	submitCmd.Flags().StringVar(&submitPayload, "payload", "", "JSON payload fields")
	submitCmd.Flags().BoolVar(&submitWatch, "watch", false, "poll for the decision after submitting")
	_ = submitCmd.MarkFlagRequired("payload")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	flowID := submitFlowID
	if flowID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("minting flow id: %w", err)
		}
		flowID = id
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(submitPayload), &fields); err != nil {
		return fmt.Errorf("invalid --payload: %w", err)
	}
	fields["flowId"] = json.RawMessage(fmt.Sprintf("%q", flowID))
	body, err := json.Marshal(fields)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(submitServer+"/api/v1/flows", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submitting flow: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("submission rejected (HTTP %d): %s", resp.StatusCode, raw)
	}

	fmt.Printf("submitted flow %s: %s\n", flowID, raw)

	if submitWatch {
		return watchFlow(cmd.Context(), submitServer, flowID)
	}
	return nil
}
