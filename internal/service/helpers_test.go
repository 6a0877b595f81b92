package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-rewards/internal/model"
	"github.com/stemsi/exstem-rewards/internal/proof"
	"github.com/stemsi/exstem-rewards/internal/repository/memory"
)

const testContract = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

func strPtr(s string) *string { return &s }

// wallet returns a distinct lower-case address for user n.
func wallet(n int) string {
	return fmt.Sprintf("0x%040x", n)
}

func fixedExam(start time.Time, duration time.Duration) model.Exam {
	return model.Exam{
		ID:            uuid.New(),
		Name:          "Fixed exam",
		QuestionCount: 3,
		Schedule:      model.FixedSchedule{StartDate: start, Duration: duration},
		Reward: model.RewardConfig{
			IsRewarded:      true,
			RewardPerWinner: decimal.RequireFromString("12.5"),
			PassingScore:    70,
			ContractAddress: testContract,
		},
	}
}

func flexibleExam(status model.FlexibleStatus, limit time.Duration) model.Exam {
	return model.Exam{
		ID:            uuid.New(),
		Name:          "Flexible exam",
		QuestionCount: 3,
		Schedule:      model.FlexibleSchedule{TimeLimit: limit, Status: status},
		Reward: model.RewardConfig{
			IsRewarded:      true,
			RewardPerWinner: decimal.NewFromInt(5),
			PassingScore:    70,
			ContractAddress: testContract,
		},
	}
}

// seedWinners adds n finished winners with wallets to a completed exam and
// returns their participation IDs in settlement order.
func seedWinners(db *memory.DB, examID uuid.UUID, n int) []uuid.UUID {
	base := time.Now().Add(-time.Hour)
	ids := make([]uuid.UUID, n)
	for i := 0; i < n; i++ {
		userID := i + 1
		db.PutUser(model.User{ID: userID, WalletAddress: strPtr(wallet(userID)), Email: strPtr(fmt.Sprintf("u%d@example.com", userID))})
		finish := base.Add(time.Duration(i) * time.Minute)
		p := db.PutParticipation(model.Participation{
			UserID:     userID,
			ExamID:     examID,
			IsFinished: true,
			FinishTime: &finish,
			IsWinner:   true,
		})
		ids[i] = p.ID
	}
	return ids
}

// ---------------------------------------------------------------------------
// Proof chain fake
// ---------------------------------------------------------------------------

type chainCall struct {
	Method  string
	Prev    proof.ChainState
	Winners []string
}

// fakeChain records calls. fail maps a 1-based step number to the error the
// step returns; payoutOnly marks failures that still advance the chain.
type fakeChain struct {
	mu         sync.Mutex
	calls      []chainCall
	fail       map[int]error
	payoutOnly map[int]bool
	panicAt    int
}

func newFakeChain() *fakeChain {
	return &fakeChain{fail: make(map[int]error), payoutOnly: make(map[int]bool)}
}

func (f *fakeChain) record(method string, prev proof.ChainState, ws ...proof.Payee) (proof.ChainState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	addrs := make([]string, len(ws))
	for i, w := range ws {
		addrs[i] = w.Address
	}
	f.calls = append(f.calls, chainCall{Method: method, Prev: prev, Winners: addrs})
	step := len(f.calls)

	if f.panicAt == step {
		panic("proof client exploded")
	}

	next := proof.ChainState{
		Proof:           fmt.Sprintf("proof-%d", step),
		AuxiliaryOutput: fmt.Sprintf("aux-%d", step),
	}
	if err, ok := f.fail[step]; ok {
		if f.payoutOnly[step] {
			return next, err
		}
		return proof.ChainState{}, err
	}
	return next, nil
}

func (f *fakeChain) InitializeAndPayOne(_ context.Context, _ string, w proof.Payee) (proof.ChainState, error) {
	return f.record("InitializeAndPayOne", proof.ChainState{}, w)
}

func (f *fakeChain) InitializeAndPayTwo(_ context.Context, _ string, a, b proof.Payee) (proof.ChainState, error) {
	return f.record("InitializeAndPayTwo", proof.ChainState{}, a, b)
}

func (f *fakeChain) AddPairAndPay(_ context.Context, _ string, prev proof.ChainState, a, b proof.Payee) (proof.ChainState, error) {
	return f.record("AddPairAndPay", prev, a, b)
}

func (f *fakeChain) AddOneAndPay(_ context.Context, _ string, prev proof.ChainState, w proof.Payee) (proof.ChainState, error) {
	return f.record("AddOneAndPay", prev, w)
}

func (f *fakeChain) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.Method
	}
	return out
}

// ---------------------------------------------------------------------------
// Queue, mailer and winner-list fakes
// ---------------------------------------------------------------------------

type fakeEnqueuer struct {
	mu   sync.Mutex
	jobs []any
	err  error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, payload)
	return nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

type sentMail struct {
	To, Subject, Body string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

type fakeWinnerList struct {
	requested []uuid.UUID
	err       error
}

func (f *fakeWinnerList) RequestWinnerList(_ context.Context, examID uuid.UUID) error {
	f.requested = append(f.requested, examID)
	return f.err
}

var errBoom = errors.New("boom")
