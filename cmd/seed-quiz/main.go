package main

import (
	"context"
	"flag"
	"os"

	"github.com/stemsi/whitelist-backend/internal/config"
	"github.com/stemsi/whitelist-backend/internal/database"
	"github.com/stemsi/whitelist-backend/internal/logger"
	"github.com/stemsi/whitelist-backend/internal/repository"
)

func main() {
	var file string
	flag.StringVar(&file, "file", "examples/quiz/police.yaml", "Quiz definition YAML")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	raw, err := os.ReadFile(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to read quiz definition")
	}

	quiz, err := parseDefinition(raw)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Invalid quiz definition")
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	if err := repository.NewQuizRepository(pool).Create(ctx, quiz); err != nil {
		log.Fatal().Err(err).Msg("Failed to insert quiz")
	}

	log.Info().
		Str("quiz_id", quiz.ID.String()).
		Str("title", quiz.Title).
		Int("questions", len(quiz.Questions)).
		Int("total_seconds", quiz.TotalSeconds()).
		Bool("open", quiz.Open).
		Msg("Quiz seeded")
}
