package proof

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-rewards/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService is an in-process proof service. Proofs are the previous proof
// with the winner address appended, so threading errors show up in tests.
type fakeService struct {
	mu      sync.Mutex
	calls   []string
	reject  map[string]bool
	payouts []payoutRequest
	token   string
}

func newFakeService() *fakeService {
	return &fakeService{reject: make(map[string]bool)}
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, r.URL.Path)
	if f.token != "" && r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	switch r.URL.Path {
	case "/v1/chains/initialize":
		var req initializeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(ChainState{Proof: "root:" + req.Contract, AuxiliaryOutput: "0"})
	case "/v1/chains/add-winner":
		var req addWinnerRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(ChainState{
			Proof:           req.PreviousProof + "|" + req.Winner.Address,
			AuxiliaryOutput: req.PreviousAuxiliaryOutput + "+",
		})
	case "/v1/payouts":
		var req payoutRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.payouts = append(f.payouts, req)
		for _, p := range req.Winners {
			if f.reject[p.Address] {
				_ = json.NewEncoder(w).Encode(payoutResponse{Success: false, Error: "insufficient pool"})
				return
			}
		}
		_ = json.NewEncoder(w).Encode(payoutResponse{Success: true})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, svc http.Handler, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(svc)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", token, 5*time.Second, zerolog.Nop())
}

func TestClient_InitializeAndAddWinner(t *testing.T) {
	svc := newFakeService()
	svc.token = "secret"
	c := newTestClient(t, svc, "secret")
	ctx := context.Background()

	root, err := c.Initialize(ctx, "0xpool")
	require.NoError(t, err)
	assert.Equal(t, ChainState{Proof: "root:0xpool", AuxiliaryOutput: "0"}, root)

	next, err := c.AddWinner(ctx, root, "0xpool", Payee{Address: "0xaa", Amount: decimal.NewFromInt(5)})
	require.NoError(t, err)
	assert.Equal(t, "root:0xpool|0xaa", next.Proof)
	assert.Equal(t, "0+", next.AuxiliaryOutput)
}

func TestClient_PayoutRejected(t *testing.T) {
	svc := newFakeService()
	svc.reject["0xbad"] = true
	c := newTestClient(t, svc, "")

	err := c.Payout(context.Background(), "0xpool", []Payee{{Address: "0xbad"}}, []string{"p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPayoutRejected)
	assert.ErrorIs(t, err, model.ErrExternalService)
	assert.Contains(t, err.Error(), "insufficient pool")
}

func TestClient_PayoutLengthMismatch(t *testing.T) {
	c := newTestClient(t, newFakeService(), "")

	err := c.Payout(context.Background(), "0xpool", []Payee{{Address: "0xaa"}}, nil)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestClient_Non2xxIsExternalFailure(t *testing.T) {
	srv := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "proof backend down", http.StatusBadGateway)
	})
	c := newTestClient(t, srv, "")

	_, err := c.Initialize(context.Background(), "0xpool")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrExternalService)
	assert.Contains(t, err.Error(), "502")
}

func TestClient_Unauthorized(t *testing.T) {
	svc := newFakeService()
	svc.token = "secret"
	c := newTestClient(t, svc, "wrong")

	_, err := c.Initialize(context.Background(), "0xpool")
	assert.ErrorIs(t, err, model.ErrExternalService)
}
