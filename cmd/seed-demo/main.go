package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/exstem-rewards/internal/config"
	"github.com/stemsi/exstem-rewards/internal/database"
	"github.com/stemsi/exstem-rewards/internal/logger"
)

var names = []string{
	"Budi Santoso", "Siti Aminah", "Andi Pratama", "Rina Wati", "Joko Susilo",
	"Ayu Lestari", "Dodi Kusuma", "Eka Putri", "Fahri Hamzah", "Gita Savitri",
	"Hendra Gunawan", "Ika Sari", "Jamal Mirdad", "Kiki Fatmala", "Lukman Hakim",
	"Maya Septiana", "Nanda Pratama", "Oki Setiana", "Putri Dian", "Qori Maharani",
}

func main() {
	var (
		participants int
		questions    int
		timeLimit    int
		reward       string
	)
	flag.IntVar(&participants, "participants", 10, "number of participants to create (max 20)")
	flag.IntVar(&questions, "questions", 10, "number of questions on the exam")
	flag.IntVar(&timeLimit, "time-limit", 30, "per-participant time limit in minutes")
	flag.StringVar(&reward, "reward", "1.5", "reward per winner")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	participants = min(max(participants, 1), len(names))
	questions = max(questions, 1)

	fmt.Println("=== Seeding demo exam ===")

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	var examID uuid.UUID
	err = tx.QueryRow(ctx,
		`INSERT INTO exams (name, question_count, schedule_mode, participant_time_limit_minutes, status,
		                    is_rewarded, reward_per_winner, passing_score, contract_address)
		 VALUES ($1, $2, 'flexible', $3, 'active', TRUE, $4::numeric, 70, $5)
		 RETURNING id`,
		"Demo Olympiad "+time.Now().Format("2006-01-02 15:04"), questions, timeLimit, reward,
		"0x"+fmt.Sprintf("%040x", time.Now().UnixNano()),
	).Scan(&examID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	fmt.Printf("Created exam %s\n", examID)

	rows := make([][]any, 0, questions)
	for i := 0; i < questions; i++ {
		rows = append(rows, []any{examID, i + 1, string(rune('A' + i%4))})
	}
	if _, err := tx.CopyFrom(ctx,
		pgx.Identifier{"questions"},
		[]string{"exam_id", "order_num", "correct_answer"},
		pgx.CopyFromRows(rows),
	); err != nil {
		log.Fatal().Err(err).Msg("Failed to create questions")
	}
	fmt.Printf("Created %d questions\n", questions)

	for i := 0; i < participants; i++ {
		var id int
		err := tx.QueryRow(ctx,
			`INSERT INTO users (name, email, wallet_address) VALUES ($1, $2, $3) RETURNING id`,
			names[i], fmt.Sprintf("user%d@example.com", i+1), fmt.Sprintf("0x%040x", i+1),
		).Scan(&id)
		if err != nil {
			log.Fatal().Err(err).Str("name", names[i]).Msg("Failed to create participant")
		}
		fmt.Printf("  user %d: %s\n", id, names[i])
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to commit")
	}
	fmt.Printf("\nSeed completed! Exam %s with %d participants.\n", examID, participants)
}
