package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aqubia/stepgate/poller"
	"github.com/spf13/cobra"
)

var (
	watchServer   string
	watchInterval time.Duration
	watchAttempts int
)

var watchCmd = &cobra.Command{
	Use:   "watch <flow-id>",
	Short: "Poll a flow until it resolves",
	Example: `  stepgate watch -s http://127.0.0.1:8080 my-flow-id
  stepgate watch my-flow-id --interval 2s --attempts 30`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchFlow(cmd.Context(), watchServer, args[0])
	},
}

func init() {
	watchCmd.Flags().StringVarP(&watchServer, "server", "s", "http://127.0.0.1:8080", "gateway base URL")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", poller.DefaultInterval, "polling interval")
	watchCmd.Flags().IntVar(&watchAttempts, "attempts", poller.DefaultMaxAttempts, "maximum poll attempts")
	rootCmd.AddCommand(watchCmd)
}

func watchFlow(ctx context.Context, server, flowID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p := poller.New(server, logger).
		WithInterval(watchInterval).
		WithMaxAttempts(watchAttempts)

	out, err := p.Wait(ctx, flowID)
	switch {
	case errors.Is(err, poller.ErrTimeout):
		return fmt.Errorf("flow %s: no decision within the polling budget", flowID)
	case errors.Is(err, poller.ErrFlowNotFound):
		return fmt.Errorf("flow %s is unknown to the server; submit again with a fresh id", flowID)
	case err != nil:
		return err
	}

	if out.Approved {
		fmt.Printf("flow %s approved\n", flowID)
		return nil
	}
	if out.Reason != "" {
		fmt.Printf("flow %s rejected: %s\n", flowID, out.Reason)
	} else {
		fmt.Printf("flow %s rejected\n", flowID)
	}
	return nil
}
