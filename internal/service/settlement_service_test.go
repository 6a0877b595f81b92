package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stemsi/exstem-rewards/internal/model"
	"github.com/stemsi/exstem-rewards/internal/proof"
	"github.com/stemsi/exstem-rewards/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completedRewardedExam(db *memory.DB) model.Exam {
	exam := fixedExam(time.Now().Add(-2*time.Hour), time.Hour)
	exam.IsCompleted = true
	db.PutExam(exam)
	return exam
}

func newSettlement(db *memory.DB, chain *fakeChain) *SettlementService {
	return NewSettlementService(db.Exams(), db.Participations(), chain, zerolog.Nop())
}

func TestSettleExam_CallSequence(t *testing.T) {
	tests := []struct {
		winners int
		methods []string
	}{
		{1, []string{"InitializeAndPayOne"}},
		{2, []string{"InitializeAndPayTwo"}},
		{3, []string{"InitializeAndPayTwo", "AddOneAndPay"}},
		{4, []string{"InitializeAndPayTwo", "AddPairAndPay"}},
		{5, []string{"InitializeAndPayTwo", "AddPairAndPay", "AddOneAndPay"}},
		{6, []string{"InitializeAndPayTwo", "AddPairAndPay", "AddPairAndPay"}},
	}

	for _, tt := range tests {
		db := memory.New()
		exam := completedRewardedExam(db)
		ids := seedWinners(db, exam.ID, tt.winners)
		chain := newFakeChain()

		report, err := newSettlement(db, chain).SettleExam(context.Background(), exam)
		require.NoError(t, err)

		assert.Equal(t, tt.methods, chain.methods(), "winners=%d", tt.winners)
		assert.Equal(t, (tt.winners+1)/2, report.Steps)
		assert.Equal(t, tt.winners, report.Paid)

		for _, id := range ids {
			p, _ := db.Participation(id)
			assert.True(t, p.IsRewardSent)
			require.NotNil(t, p.RewardAmount)
			assert.True(t, decimal.RequireFromString("12.5").Equal(*p.RewardAmount))
			assert.NotNil(t, p.RewardSentDate)
		}

		e, _ := db.Exam(exam.ID)
		assert.True(t, e.IsDistributed)
	}
}

func TestSettleExam_ThreadsStateAndPairsInOrder(t *testing.T) {
	db := memory.New()
	exam := completedRewardedExam(db)
	seedWinners(db, exam.ID, 5)
	chain := newFakeChain()

	_, err := newSettlement(db, chain).SettleExam(context.Background(), exam)
	require.NoError(t, err)

	require.Len(t, chain.calls, 3)
	assert.Equal(t, []string{wallet(1), wallet(2)}, chain.calls[0].Winners)
	assert.Equal(t, []string{wallet(3), wallet(4)}, chain.calls[1].Winners)
	assert.Equal(t, []string{wallet(5)}, chain.calls[2].Winners)
	assert.Equal(t, proof.ChainState{Proof: "proof-1", AuxiliaryOutput: "aux-1"}, chain.calls[1].Prev)
	assert.Equal(t, proof.ChainState{Proof: "proof-2", AuxiliaryOutput: "aux-2"}, chain.calls[2].Prev)
}

func TestSettleExam_FailedPairDoesNotBlockNext(t *testing.T) {
	db := memory.New()
	exam := completedRewardedExam(db)
	ids := seedWinners(db, exam.ID, 6)
	chain := newFakeChain()
	chain.fail[2] = errBoom

	report, err := newSettlement(db, chain).SettleExam(context.Background(), exam)
	require.NoError(t, err)

	assert.Equal(t, []string{"InitializeAndPayTwo", "AddPairAndPay", "AddPairAndPay"}, chain.methods())
	assert.Equal(t, 4, report.Paid)
	assert.Equal(t, 2, report.Failed)

	// The third step continues from the last good state.
	assert.Equal(t, "proof-1", chain.calls[2].Prev.Proof)

	sent := make([]bool, len(ids))
	for i, id := range ids {
		p, _ := db.Participation(id)
		sent[i] = p.IsRewardSent
	}
	assert.Equal(t, []bool{true, true, false, false, true, true}, sent)

	e, _ := db.Exam(exam.ID)
	assert.True(t, e.IsDistributed)
}

func TestSettleExam_PayoutOnlyFailureAdvancesChain(t *testing.T) {
	db := memory.New()
	exam := completedRewardedExam(db)
	seedWinners(db, exam.ID, 5)
	chain := newFakeChain()
	chain.fail[2] = proof.ErrPayoutRejected
	chain.payoutOnly[2] = true

	_, err := newSettlement(db, chain).SettleExam(context.Background(), exam)
	require.NoError(t, err)
	assert.Equal(t, "proof-2", chain.calls[2].Prev.Proof)
}

func TestSettleExam_FirstStepFailureReinitialises(t *testing.T) {
	db := memory.New()
	exam := completedRewardedExam(db)
	seedWinners(db, exam.ID, 3)
	chain := newFakeChain()
	chain.fail[1] = errBoom

	report, err := newSettlement(db, chain).SettleExam(context.Background(), exam)
	require.NoError(t, err)
	assert.Equal(t, []string{"InitializeAndPayTwo", "InitializeAndPayOne"}, chain.methods())
	assert.Equal(t, 1, report.Paid)
	assert.Equal(t, 2, report.Failed)
}

func TestSettleExam_NoWinnersSkipsWithoutClaim(t *testing.T) {
	db := memory.New()
	exam := completedRewardedExam(db)
	chain := newFakeChain()

	report, err := newSettlement(db, chain).SettleExam(context.Background(), exam)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Skipped)
	assert.Empty(t, chain.calls)

	e, _ := db.Exam(exam.ID)
	assert.False(t, e.IsDistributed)
}

func TestSettleExam_StoreFailureRollsBackClaim(t *testing.T) {
	db := memory.New()
	exam := completedRewardedExam(db)
	seedWinners(db, exam.ID, 2)
	db.FailNext("participations.MarkRewardSent", errBoom)

	_, err := newSettlement(db, newFakeChain()).SettleExam(context.Background(), exam)
	assert.ErrorIs(t, err, errBoom)

	e, _ := db.Exam(exam.ID)
	assert.False(t, e.IsDistributed)
}

func TestSettleExam_PanicRollsBackClaim(t *testing.T) {
	db := memory.New()
	exam := completedRewardedExam(db)
	seedWinners(db, exam.ID, 4)
	chain := newFakeChain()
	chain.panicAt = 2

	_, err := newSettlement(db, chain).SettleExam(context.Background(), exam)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	e, _ := db.Exam(exam.ID)
	assert.False(t, e.IsDistributed)
}

func TestSettleExam_LostClaimIsSkipped(t *testing.T) {
	db := memory.New()
	exam := completedRewardedExam(db)
	seedWinners(db, exam.ID, 2)
	claimed, err := db.Exams().ClaimDistribution(context.Background(), exam.ID)
	require.NoError(t, err)
	require.True(t, claimed)
	chain := newFakeChain()

	report, err := newSettlement(db, chain).SettleExam(context.Background(), exam)
	require.NoError(t, err)
	assert.Equal(t, "claimed by another run", report.Skipped)
	assert.Empty(t, chain.calls)
}

func TestSettleExam_InvalidAddresses(t *testing.T) {
	db := memory.New()
	exam := completedRewardedExam(db)
	ids := seedWinners(db, exam.ID, 3)
	db.PutUser(model.User{ID: 2, WalletAddress: strPtr("not-a-wallet")})
	chain := newFakeChain()

	report, err := newSettlement(db, chain).SettleExam(context.Background(), exam)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Invalid)
	assert.Equal(t, 2, report.Paid)
	assert.Equal(t, []string{"InitializeAndPayTwo"}, chain.methods())
	assert.Equal(t, []string{wallet(1), wallet(3)}, chain.calls[0].Winners)

	p, _ := db.Participation(ids[1])
	assert.False(t, p.IsRewardSent)
}

func TestSettleExam_InvalidContract(t *testing.T) {
	db := memory.New()
	exam := completedRewardedExam(db)
	exam.Reward.ContractAddress = ""
	db.PutExam(exam)
	seedWinners(db, exam.ID, 2)

	_, err := newSettlement(db, newFakeChain()).SettleExam(context.Background(), exam)
	assert.ErrorIs(t, err, model.ErrValidation)

	e, _ := db.Exam(exam.ID)
	assert.False(t, e.IsDistributed)
}

func TestSettlePending_SkipsNonRewardedAndContinuesAfterFailure(t *testing.T) {
	db := memory.New()
	broken := completedRewardedExam(db)
	seedWinners(db, broken.ID, 2)
	good := completedRewardedExam(db)

	db.PutUser(model.User{ID: 50, WalletAddress: strPtr(wallet(50))})
	db.PutParticipation(model.Participation{UserID: 50, ExamID: good.ID, IsFinished: true, IsWinner: true})

	plain := fixedExam(time.Now().Add(-2*time.Hour), time.Hour)
	plain.IsCompleted = true
	plain.Reward.IsRewarded = false
	db.PutExam(plain)

	db.FailNext("participations.ListEligibleWinners", errBoom)
	reports, err := newSettlement(db, newFakeChain()).SettlePending(context.Background())
	assert.ErrorIs(t, err, errBoom)
	assert.Len(t, reports, 2)

	paid := 0
	for _, r := range reports {
		paid += r.Paid
	}
	assert.Greater(t, paid, 0)
}

func TestSettleByID_States(t *testing.T) {
	db := memory.New()
	open := fixedExam(time.Now(), time.Hour)
	db.PutExam(open)
	svc := newSettlement(db, newFakeChain())

	_, err := svc.SettleByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = svc.SettleByID(context.Background(), open.ID)
	assert.ErrorIs(t, err, model.ErrInvalidState)

	done := completedRewardedExam(db)
	seedWinners(db, done.ID, 1)
	report, err := svc.SettleByID(context.Background(), done.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Paid)

	_, err = svc.SettleByID(context.Background(), done.ID)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}
