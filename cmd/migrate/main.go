package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-rewards/internal/config"
	"github.com/stemsi/exstem-rewards/internal/logger"
)

func main() {
	dir := flag.String("path", "migrations", "Path to migration files")
	flag.Usage = usage
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is not set")
	}

	m, err := migrate.New("file://"+*dir, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Str("path", *dir).Msg("Failed to initialise migrator")
	}

	err = run(m, args, log)
	srcErr, dbErr := m.Close()
	if err != nil {
		log.Fatal().Err(err).Str("command", args[0]).Msg("Migration failed")
	}
	if srcErr != nil || dbErr != nil {
		log.Warn().AnErr("source", srcErr).AnErr("database", dbErr).Msg("Failed to close migrator")
	}
}

func run(m *migrate.Migrate, args []string, log zerolog.Logger) error {
	switch args[0] {
	case "up":
		return report(log, "up", m.Up())
	case "down":
		return report(log, "down", m.Down())
	case "steps":
		n, err := intArg(args, "steps")
		if err != nil {
			return err
		}
		return report(log, "steps", m.Steps(n))
	case "goto":
		n, err := intArg(args, "goto")
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("goto: version must not be negative")
		}
		return report(log, "goto", m.Migrate(uint(n)))
	case "force":
		n, err := intArg(args, "force")
		if err != nil {
			return err
		}
		if err := m.Force(n); err != nil {
			return err
		}
		log.Info().Int("version", n).Msg("Forced migration version")
		return nil
	case "version":
		v, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info().Msg("No migration applied yet")
			return nil
		}
		if err != nil {
			return err
		}
		log.Info().Uint("version", v).Bool("dirty", dirty).Msg("Current migration version")
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func report(log zerolog.Logger, cmd string, err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		log.Info().Str("command", cmd).Msg("Schema already up to date")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info().Str("command", cmd).Msg("Migration applied")
	return nil
}

func intArg(args []string, cmd string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("%s requires a numeric argument", cmd)
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q", cmd, args[1])
	}
	return n, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: migrate [flags] <command> [arg]")
	fmt.Fprintln(os.Stderr, "Commands: up, down, steps <n>, goto <version>, force <version>, version")
	fmt.Fprintln(os.Stderr, "Flags:")
	flag.PrintDefaults()
}
