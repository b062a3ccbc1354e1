package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/aqubia/stepgate/internal/config"
	"github.com/aqubia/stepgate/internal/screen"
	"github.com/spf13/cobra"
)

var (
	checkPayload string
	checkMeta    []string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run the screening rules without a running server",
	Long: `Check what verdict a submission would receive without running the
gateway. Useful for testing and debugging screening rules.`,
	Example: `  stepgate check -c stepgate.yaml --payload '{"username":"u","amount":500}'
  stepgate check -c stepgate.yaml --payload '{}' --meta userAgent=curl/8.0`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkPayload, "payload", "", "JSON payload fields")
	checkCmd.Flags().StringArrayVar(&checkMeta, "meta", nil, "metadata as key=value (repeatable)")
	_ = checkCmd.MarkFlagRequired("payload")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("--config/-c is required for check command")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	engine, err := buildEngine(cfg)
	if err != nil {
		return fmt.Errorf("creating screening engine: %w", err)
	}

	meta := make(map[string]string)
	for _, kv := range checkMeta {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("invalid --meta %q (expected key=value)", kv)
		}
		meta[k] = v
	}

	input := &screen.EvalInput{
		Payload: json.RawMessage(checkPayload),
		Meta:    meta,
	}

	result, err := engine.Evaluate(context.Background(), input)
	if err != nil {
		return fmt.Errorf("evaluation error: %w", err)
	}

	output := struct {
		Verdict string `json:"verdict"`
		Rule    string `json:"rule"`
		Message string `json:"message,omitempty"`
	}{
		Verdict: string(result.Verdict),
		Rule:    result.Rule,
		Message: result.Message,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}
