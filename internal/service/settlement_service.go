package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/model"
	"github.com/stemsi/exstem-rewards/internal/proof"
	"github.com/stemsi/exstem-rewards/internal/validator"
)

// ProofChain is the composite settlement protocol; *proof.Chain implements it.
type ProofChain interface {
	InitializeAndPayOne(ctx context.Context, contract string, w proof.Payee) (proof.ChainState, error)
	InitializeAndPayTwo(ctx context.Context, contract string, a, b proof.Payee) (proof.ChainState, error)
	AddPairAndPay(ctx context.Context, contract string, prev proof.ChainState, a, b proof.Payee) (proof.ChainState, error)
	AddOneAndPay(ctx context.Context, contract string, prev proof.ChainState, w proof.Payee) (proof.ChainState, error)
}

// SettlementReport summarises the settlement of one exam.
type SettlementReport struct {
	ExamID  uuid.UUID `json:"exam_id"`
	Winners int       `json:"winners"`
	Steps   int       `json:"steps"`
	Paid    int       `json:"paid"`
	Failed  int       `json:"failed"`
	Invalid int       `json:"invalid"`
	Skipped string    `json:"skipped,omitempty"`
}

// SettlementService pays the winners of completed rewarded exams through the
// proof service, one exam at a time.
type SettlementService struct {
	examRepo ExamStore
	partRepo ParticipationStore
	chain    ProofChain
	log      zerolog.Logger
	now      func() time.Time
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(examRepo ExamStore, partRepo ParticipationStore, chain ProofChain, log zerolog.Logger) *SettlementService {
	return &SettlementService{
		examRepo: examRepo,
		partRepo: partRepo,
		chain:    chain,
		log:      log.With().Str("component", "settlement").Logger(),
		now:      time.Now,
	}
}

// SettlePending settles every completed, rewarded, undistributed exam in
// sequence. One exam failing does not stop the others.
func (s *SettlementService) SettlePending(ctx context.Context) ([]SettlementReport, error) {
	exams, err := s.examRepo.ListPendingDistribution(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending distribution: %w", err)
	}

	var (
		reports []SettlementReport
		errs    []error
	)
	for _, exam := range exams {
		report, err := s.SettleExam(ctx, exam)
		if err != nil {
			s.log.Error().Err(err).Str("exam_id", exam.ID.String()).Msg("Settlement failed")
			errs = append(errs, err)
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

// SettleByID settles one exam on demand.
func (s *SettlementService) SettleByID(ctx context.Context, examID uuid.UUID) (SettlementReport, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return SettlementReport{ExamID: examID}, fmt.Errorf("get exam: %w", err)
	}
	switch {
	case !exam.IsCompleted:
		return SettlementReport{ExamID: examID}, fmt.Errorf("%w: exam %s is not completed", model.ErrInvalidState, examID)
	case !exam.Reward.IsRewarded:
		return SettlementReport{ExamID: examID}, fmt.Errorf("%w: exam %s is not rewarded", model.ErrInvalidState, examID)
	case exam.IsDistributed:
		return SettlementReport{ExamID: examID}, fmt.Errorf("%w: exam %s is already distributed", model.ErrInvalidState, examID)
	}
	return s.SettleExam(ctx, *exam)
}

// SettleExam collects the exam's winners, claims the exam and runs the
// pairwise protocol. Exams without winners are skipped unclaimed. Any error
// escaping after the claim, panics included, releases the claim.
func (s *SettlementService) SettleExam(ctx context.Context, exam model.Exam) (report SettlementReport, err error) {
	report.ExamID = exam.ID
	log := s.log.With().Str("exam_id", exam.ID.String()).Logger()

	winners, err := s.partRepo.ListEligibleWinners(ctx, exam.ID)
	if err != nil {
		return report, fmt.Errorf("list winners: %w", err)
	}
	report.Winners = len(winners)
	if len(winners) == 0 {
		report.Skipped = "no eligible winners"
		return report, nil
	}

	if !validator.IsPayoutAddress(exam.Reward.ContractAddress) {
		return report, fmt.Errorf("%w: exam %s has invalid contract address %q",
			model.ErrValidation, exam.ID, exam.Reward.ContractAddress)
	}

	claimed, err := s.examRepo.ClaimDistribution(ctx, exam.ID)
	if err != nil {
		return report, fmt.Errorf("claim distribution: %w", err)
	}
	if !claimed {
		report.Skipped = "claimed by another run"
		return report, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("settlement of exam %s panicked: %v", exam.ID, r)
		}
		if err == nil {
			return
		}
		if relErr := s.examRepo.ReleaseDistribution(context.WithoutCancel(ctx), exam.ID); relErr != nil {
			log.Error().Err(relErr).Msg("Failed to release distribution claim")
			err = errors.Join(err, relErr)
			return
		}
		log.Warn().Err(err).Msg("Distribution claim released for retry")
	}()

	valid := make([]model.Winner, 0, len(winners))
	for _, w := range winners {
		if !validator.IsPayoutAddress(w.WalletAddress) {
			log.Warn().
				Str("participation_id", w.ParticipationID.String()).
				Str("wallet_address", w.WalletAddress).
				Msg("Winner excluded: invalid payout address")
			if err := s.partRepo.MarkRewardFailed(ctx, w.ParticipationID); err != nil {
				return report, fmt.Errorf("mark reward failed: %w", err)
			}
			report.Invalid++
			continue
		}
		w.RewardAmount = exam.Reward.RewardPerWinner
		valid = append(valid, w)
	}

	if err := s.settle(ctx, log, exam, valid, &report); err != nil {
		return report, err
	}

	log.Info().
		Int("paid", report.Paid).
		Int("failed", report.Failed).
		Int("invalid", report.Invalid).
		Int("steps", report.Steps).
		Msg("Exam settled")
	return report, nil
}

// settle folds the winners, two at a time, through the proof chain. A failed
// step marks its winners failed and the fold moves on: with the advanced
// chain if only the payout failed, otherwise with the last good state. A zero
// state means the next step starts a new chain.
func (s *SettlementService) settle(ctx context.Context, log zerolog.Logger, exam model.Exam, winners []model.Winner, report *SettlementReport) error {
	var state proof.ChainState

	for start := 0; start < len(winners); start += 2 {
		batch := winners[start:min(start+2, len(winners))]
		report.Steps++

		next, stepErr := s.step(ctx, exam.Reward.ContractAddress, state, batch)
		if stepErr != nil {
			log.Warn().Err(stepErr).
				Int("step", report.Steps).
				Int("winners", len(batch)).
				Msg("Settlement step failed")
			for _, w := range batch {
				if err := s.partRepo.MarkRewardFailed(ctx, w.ParticipationID); err != nil {
					return fmt.Errorf("mark reward failed: %w", err)
				}
			}
			report.Failed += len(batch)
			if !next.IsZero() {
				state = next
			}
			continue
		}

		state = next
		at := s.now()
		for _, w := range batch {
			if err := s.partRepo.MarkRewardSent(ctx, w.ParticipationID, w.RewardAmount, at); err != nil {
				return fmt.Errorf("mark reward sent: %w", err)
			}
		}
		report.Paid += len(batch)
	}
	return nil
}

func (s *SettlementService) step(ctx context.Context, contract string, state proof.ChainState, batch []model.Winner) (proof.ChainState, error) {
	payees := make([]proof.Payee, len(batch))
	for i, w := range batch {
		payees[i] = proof.Payee{Address: w.WalletAddress, Amount: w.RewardAmount}
	}

	switch {
	case state.IsZero() && len(payees) == 1:
		return s.chain.InitializeAndPayOne(ctx, contract, payees[0])
	case state.IsZero():
		return s.chain.InitializeAndPayTwo(ctx, contract, payees[0], payees[1])
	case len(payees) == 2:
		return s.chain.AddPairAndPay(ctx, contract, state, payees[0], payees[1])
	default:
		return s.chain.AddOneAndPay(ctx, contract, state, payees[0])
	}
}
