package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"studentbot-web/internal/config"
	"studentbot-web/internal/corpus"
	"studentbot-web/internal/db"
	"studentbot-web/internal/responder"
	"studentbot-web/internal/server"
	"studentbot-web/internal/store"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML config file")
	skipTrain := flag.Bool("skip-train", false, "Skip corpus training on start")
	trainOnly := flag.Bool("train-only", false, "Train the corpus and exit")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)
	if *skipTrain {
		cfg.SkipTraining = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statements, closeStore, err := openStatementStore(cfg.DatabaseURI)
	if err != nil {
		log.Fatal().Err(err).Str("database_uri", cfg.DatabaseURI).Msg("failed to open storage")
	}
	defer closeStore()

	if !cfg.SkipTraining || *trainOnly {
		if err := train(ctx, cfg, statements); err != nil {
			log.Fatal().Err(err).Msg("training failed")
		}
	}
	if *trainOnly {
		return
	}

	bot := newResponder(cfg, statements)
	s, err := server.NewServer(cfg, bot, store.NewSessionStore(cfg.SessionHistory, server.CookieMaxAge))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}
	if err := s.Start(ctx, cfg.Addr()); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func setupLogging(cfg config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.LogFormat != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Info().Str("level", level.String()).Msg("Setting Log Level")
}

// openStatementStore returns the store for uri; "memory://" keeps statements
// in process memory only.
func openStatementStore(uri string) (store.StatementStore, func(), error) {
	if uri == "memory://" {
		log.Warn().Msg("using in-memory storage; learned statements are lost on exit")
		return store.NewMemoryStatementStore(), func() {}, nil
	}
	database, err := db.New(uri)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info().Str("dialect", string(database.Dialect)).Msg("database ready")
	return store.NewDatabaseStore(database), func() { database.Close() }, nil
}

func train(ctx context.Context, cfg config.Config, st store.StatementStore) error {
	var corpora []corpus.Corpus
	for _, name := range cfg.Corpora {
		cs, err := corpus.Load(name)
		if err != nil {
			return err
		}
		corpora = append(corpora, cs...)
	}
	if cfg.CorpusDir != "" {
		cs, err := corpus.LoadDir(cfg.CorpusDir)
		if err != nil {
			return err
		}
		corpora = append(corpora, cs...)
	}

	n, err := corpus.NewTrainer(st).Train(ctx, corpora...)
	if err != nil {
		return err
	}
	total, err := st.Count(ctx)
	if err != nil {
		return err
	}
	log.Info().Int("new", n).Int("total", total).Msg("training complete")
	return nil
}

func newResponder(cfg config.Config, st store.StatementStore) responder.Responder {
	if cfg.Responder == "openai" {
		log.Info().Str("model", cfg.Model).Msg("using OpenAI responder")
		return responder.NewOpenAIResponder(openai.NewClient(cfg.OpenAIAPIKey), cfg.Model, cfg.BotName)
	}
	return responder.NewCorpusResponder(st, responder.CorpusOptions{
		Threshold:       cfg.MatchThreshold,
		DefaultResponse: cfg.DefaultResponse,
		Learn:           cfg.Learn,
	})
}
