// Package poller implements the client side of a flow: repeated status
// checks with a fixed interval and a bounded attempt count.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/aqubia/stepgate/api"
)

var (
	// ErrTimeout is returned when the attempt budget is exhausted without a
	// resolution.
	ErrTimeout = errors.New("approval polling timed out")

	// ErrFlowNotFound is returned when the server reports the flow id as
	// unknown (fallback synthesis disabled); the caller should restart the
	// flow with a fresh id.
	ErrFlowNotFound = errors.New("flow not found")
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultMaxAttempts = 120
)

// Outcome is the terminal decision observed for a flow.
type Outcome struct {
	Approved bool
	Reason   string
}

// State is the poller's position in its lifecycle, for logging and tests.
type State string

const (
	StateInit     State = "init"
	StatePolling  State = "polling"
	StateResolved State = "resolved"
	StateTimedOut State = "timed_out"
)

// Poller drives status checks against a StepGate server.
type Poller struct {
	client      *http.Client
	baseURL     string
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger

	state State
}

// New creates a poller for the given server base URL with the default
// 5-second interval and 120-attempt budget (a ~10 minute ceiling).
func New(baseURL string, logger *slog.Logger) *Poller {
	return &Poller{
		client:      &http.Client{Timeout: 10 * time.Second},
		baseURL:     baseURL,
		interval:    DefaultInterval,
		maxAttempts: DefaultMaxAttempts,
		logger:      logger,
		state:       StateInit,
	}
}

// WithInterval overrides the polling interval.
func (p *Poller) WithInterval(d time.Duration) *Poller {
	p.interval = d
	return p
}

// WithMaxAttempts overrides the attempt budget.
func (p *Poller) WithMaxAttempts(n int) *Poller {
	p.maxAttempts = n
	return p
}

// State returns the poller's current lifecycle state.
func (p *Poller) State() State {
	return p.state
}

// Wait polls until the flow resolves, the attempt budget runs out, or the
// context is canceled. Transport errors count as attempts and are tolerated:
// a single network hiccup must not fail the flow.
func (p *Poller) Wait(ctx context.Context, flowID string) (Outcome, error) {
	p.state = StatePolling

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		resp, err := p.poll(ctx, flowID)
		switch {
		case errors.Is(err, ErrFlowNotFound):
			return Outcome{}, err
		case err != nil:
			// Transient; keep polling.
			p.logger.Warn("status poll failed",
				slog.String("flow_id", flowID),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		case resp.Status == api.FlowResolved:
			p.state = StateResolved
			out := Outcome{Reason: resp.Reason}
			if resp.Approved != nil {
				out.Approved = *resp.Approved
			}
			return out, nil
		default:
			// Pending, including synthesized fallback records; no
			// client-visible difference.
		}

		if attempt >= p.maxAttempts {
			p.state = StateTimedOut
			return Outcome{}, ErrTimeout
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		}
	}
}

func (p *Poller) poll(ctx context.Context, flowID string) (*api.StatusResponse, error) {
	u := fmt.Sprintf("%s/api/v1/flows/status?flowId=%s", p.baseURL, url.QueryEscape(flowID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrFlowNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var sr api.StatusResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}
	return &sr, nil
}
