package adjudicator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"arena/internal/domain/fight"
	"arena/pkg/errors"
	"arena/pkg/logger"
)

const defaultTimeout = 10 * time.Second

// Verdict is the adjudicator's final ruling on a fight.
type Verdict struct {
	FinalStatus fight.Status
	WinnerID    *uuid.UUID
	IsDraw      bool

	// Fallback is true when the service was unreachable and the
	// provisional result was promoted locally.
	Fallback bool
	Latency  time.Duration
}

// Client reviews provisional fight results with the external
// anti-cheat service before they are committed.
type Client interface {
	Review(ctx context.Context, fightID uuid.UUID, provisionalWinnerID *uuid.UUID, provisionalIsDraw bool) (*Verdict, error)
	Enabled() bool
}

// Config configures the adjudicator client.
type Config struct {
	// BaseURL empty disables the client entirely
	BaseURL        string
	RequestTimeout time.Duration
	RatePerSecond  float64
	RateBurst      int

	HTTPClient *http.Client
}

type client struct {
	cfg     Config
	limiter *rate.Limiter
}

var _ Client = (*client)(nil)

// NewClient creates an adjudicator client. With an empty BaseURL the
// client reports itself disabled and every Review promotes the
// provisional result.
func NewClient(cfg Config) Client {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultTimeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.RateBurst < 1 {
		cfg.RateBurst = 1
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.RequestTimeout}
	}

	return &client{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.RateBurst),
	}
}

func (c *client) Enabled() bool {
	return c.cfg.BaseURL != ""
}

type reviewRequest struct {
	FightID  string  `json:"fightId"`
	WinnerID *string `json:"winnerId"`
	IsDraw   bool    `json:"isDraw"`
}

type reviewResponse struct {
	FinalStatus string  `json:"finalStatus"`
	WinnerID    *string `json:"winnerId"`
	IsDraw      bool    `json:"isDraw"`
}

// Review submits the provisional result for the fight and returns the
// final verdict. Any failure to reach or parse the service degrades to
// the provisional result with FinalStatus finished: a fight must never
// stay unsettled because the adjudicator is down.
func (c *client) Review(ctx context.Context, fightID uuid.UUID, provisionalWinnerID *uuid.UUID, provisionalIsDraw bool) (*Verdict, error) {
	fallback := &Verdict{
		FinalStatus: fight.StatusFinished,
		WinnerID:    provisionalWinnerID,
		IsDraw:      provisionalIsDraw,
		Fallback:    true,
	}

	if !c.Enabled() {
		return fallback, nil
	}

	log := logger.Get().With("component", "adjudicator", "fight_id", fightID.String())

	verdict, err := c.review(ctx, fightID, provisionalWinnerID, provisionalIsDraw)
	if err != nil {
		// Context cancellation is the caller shutting down, not the
		// adjudicator failing. Propagate so the settlement retries.
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "adjudicator review interrupted")
		}
		log.Warnf("Adjudicator unreachable, promoting provisional result: %v", err)
		return fallback, nil
	}

	return verdict, nil
}

func (c *client) review(ctx context.Context, fightID uuid.UUID, provisionalWinnerID *uuid.UUID, provisionalIsDraw bool) (*Verdict, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "adjudicator rate limiter")
	}

	payload := reviewRequest{
		FightID: fightID.String(),
		IsDraw:  provisionalIsDraw,
	}
	if provisionalWinnerID != nil {
		s := provisionalWinnerID.String()
		payload.WinnerID = &s
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal review request")
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.BaseURL+"/v1/fights/review", bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build review request")
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrAdjudicatorUnavailable, err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read review response")
	}

	if resp.StatusCode >= 400 {
		return nil, errors.Wrapf(errors.ErrAdjudicatorUnavailable, "adjudicator http %d: %s", resp.StatusCode, string(body))
	}

	var res reviewResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, errors.Wrap(err, "failed to decode review response")
	}

	verdict, err := parseVerdict(&res)
	if err != nil {
		return nil, err
	}
	verdict.Latency = time.Since(start)

	return verdict, nil
}

func parseVerdict(res *reviewResponse) (*Verdict, error) {
	var status fight.Status
	switch res.FinalStatus {
	case "FINISHED", "finished":
		status = fight.StatusFinished
	case "NO_CONTEST", "no_contest":
		status = fight.StatusNoContest
	default:
		return nil, errors.Newf("unexpected adjudicator status %q", res.FinalStatus)
	}

	verdict := &Verdict{
		FinalStatus: status,
		IsDraw:      res.IsDraw,
	}

	if res.WinnerID != nil && *res.WinnerID != "" {
		id, err := uuid.Parse(*res.WinnerID)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid winner id %q", *res.WinnerID)
		}
		verdict.WinnerID = &id
	}

	// A no-contest ruling voids the result entirely
	if status == fight.StatusNoContest {
		verdict.WinnerID = nil
		verdict.IsDraw = false
	}

	return verdict, nil
}
