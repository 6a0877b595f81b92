package proof

import (
	"context"
	"fmt"
)

// Primitives are the raw proof-service calls; *Client implements them.
type Primitives interface {
	Initialize(ctx context.Context, contract string) (ChainState, error)
	AddWinner(ctx context.Context, prev ChainState, contract string, winner Payee) (ChainState, error)
	Payout(ctx context.Context, contract string, winners []Payee, proofs []string) error
}

// Chain composes the primitives into the settlement steps. Every step adds
// its winners one at a time, then pays them in one payout call.
//
// When only the payout fails the returned state is the advanced chain and
// the error is non-nil. When adding fails the returned state is zero.
type Chain struct {
	p Primitives
}

// NewChain creates a new Chain.
func NewChain(p Primitives) *Chain {
	return &Chain{p: p}
}

// InitializeAndPayOne starts a chain and settles a single winner.
func (c *Chain) InitializeAndPayOne(ctx context.Context, contract string, w Payee) (ChainState, error) {
	state, err := c.p.Initialize(ctx, contract)
	if err != nil {
		return ChainState{}, fmt.Errorf("initialize: %w", err)
	}
	return c.addAndPay(ctx, contract, state, w)
}

// InitializeAndPayTwo starts a chain and settles the first pair.
func (c *Chain) InitializeAndPayTwo(ctx context.Context, contract string, a, b Payee) (ChainState, error) {
	state, err := c.p.Initialize(ctx, contract)
	if err != nil {
		return ChainState{}, fmt.Errorf("initialize: %w", err)
	}
	return c.addAndPay(ctx, contract, state, a, b)
}

// AddPairAndPay extends prev with two winners and settles them.
func (c *Chain) AddPairAndPay(ctx context.Context, contract string, prev ChainState, a, b Payee) (ChainState, error) {
	return c.addAndPay(ctx, contract, prev, a, b)
}

// AddOneAndPay extends prev with the odd last winner and settles it.
func (c *Chain) AddOneAndPay(ctx context.Context, contract string, prev ChainState, w Payee) (ChainState, error) {
	return c.addAndPay(ctx, contract, prev, w)
}

func (c *Chain) addAndPay(ctx context.Context, contract string, state ChainState, winners ...Payee) (ChainState, error) {
	proofs := make([]string, 0, len(winners))
	for _, w := range winners {
		next, err := c.p.AddWinner(ctx, state, contract, w)
		if err != nil {
			return ChainState{}, fmt.Errorf("add winner %s: %w", w.Address, err)
		}
		state = next
		proofs = append(proofs, next.Proof)
	}

	if err := c.p.Payout(ctx, contract, winners, proofs); err != nil {
		return state, fmt.Errorf("payout: %w", err)
	}
	return state, nil
}
