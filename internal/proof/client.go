// Package proof talks to the external proof-computation service that anchors
// reward payouts. Each step returns a ChainState that must be passed unchanged
// into the next step.
package proof

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-rewards/internal/model"
)

// ErrPayoutRejected is returned when the service answers a payout with
// success=false.
var ErrPayoutRejected = errors.New("payout rejected")

// ChainState is the proof and auxiliary output of the last applied step.
type ChainState struct {
	Proof           string `json:"proof"`
	AuxiliaryOutput string `json:"auxiliary_output"`
}

// IsZero reports whether no step has produced this state.
func (s ChainState) IsZero() bool {
	return s.Proof == "" && s.AuxiliaryOutput == ""
}

// Payee is a winner as the proof service sees it.
type Payee struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// Client is an HTTP client for the proof-computation service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a new Client.
func NewClient(baseURL, token string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "proof_client").Logger(),
	}
}

type initializeRequest struct {
	Contract string `json:"contract"`
}

type addWinnerRequest struct {
	Contract                string `json:"contract"`
	PreviousProof           string `json:"previous_proof"`
	PreviousAuxiliaryOutput string `json:"previous_auxiliary_output"`
	Winner                  Payee  `json:"winner"`
}

type payoutRequest struct {
	Contract string   `json:"contract"`
	Winners  []Payee  `json:"winners"`
	Proofs   []string `json:"proofs"`
}

type payoutResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Initialize starts a new chain for a settlement contract.
func (c *Client) Initialize(ctx context.Context, contract string) (ChainState, error) {
	var out ChainState
	if err := c.post(ctx, "/v1/chains/initialize", initializeRequest{Contract: contract}, &out); err != nil {
		return ChainState{}, err
	}
	return out, nil
}

// AddWinner appends one winner to the chain that prev describes.
func (c *Client) AddWinner(ctx context.Context, prev ChainState, contract string, winner Payee) (ChainState, error) {
	req := addWinnerRequest{
		Contract:                contract,
		PreviousProof:           prev.Proof,
		PreviousAuxiliaryOutput: prev.AuxiliaryOutput,
		Winner:                  winner,
	}
	var out ChainState
	if err := c.post(ctx, "/v1/chains/add-winner", req, &out); err != nil {
		return ChainState{}, err
	}
	return out, nil
}

// Payout pays winners[i] against proofs[i].
func (c *Client) Payout(ctx context.Context, contract string, winners []Payee, proofs []string) error {
	if len(winners) != len(proofs) {
		return fmt.Errorf("%w: %d winners for %d proofs", model.ErrValidation, len(winners), len(proofs))
	}

	var out payoutResponse
	if err := c.post(ctx, "/v1/payouts", payoutRequest{Contract: contract, Winners: winners, Proofs: proofs}, &out); err != nil {
		return err
	}
	if !out.Success {
		return fmt.Errorf("%w: %w: %s", model.ErrExternalService, ErrPayoutRejected, out.Error)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", model.ErrExternalService, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Proof service call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned %d: %s", model.ErrExternalService, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", model.ErrExternalService, path, err)
	}
	return nil
}
