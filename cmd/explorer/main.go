package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mychart/explorer/internal/advisor"
	"github.com/mychart/explorer/internal/config"
	"github.com/mychart/explorer/internal/importer"
	"github.com/mychart/explorer/internal/platform/db"
	"github.com/mychart/explorer/internal/platform/llm"
	"github.com/mychart/explorer/internal/platform/middleware"
	"github.com/mychart/explorer/internal/store"
)

const geminiKeyCache = ".gemini_api_key.cache"

func main() {
	rootCmd := &cobra.Command{
		Use:   "explorer",
		Short: "Import MyChart CDA exports and explore them with an LLM advisor",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(initdbCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// openStore loads config, opens the database and guarantees the schema.
func openStore(ctx context.Context, logger zerolog.Logger) (*config.Config, *store.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	conn, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, nil, err
	}
	st := store.New(conn, logger)
	if err := st.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, nil, nil, err
	}
	return cfg, st, func() { conn.Close() }, nil
}

func newLLMClient(cfg *config.Config) (llm.Client, error) {
	timeout := time.Duration(cfg.LLMTimeoutSeconds) * time.Second
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		key, err := cfg.ResolveGeminiKey(config.NewKeyStore(geminiKeyCache))
		if err != nil {
			return nil, err
		}
		return llm.NewGemini(key, cfg.GeminiModel, timeout), nil
	default:
		return llm.NewOllama(cfg.OllamaURL, cfg.OllamaModel, timeout), nil
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the explorer API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>...",
		Short: "Import one or more CDA export files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			_, st, closeDB, err := openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer closeDB()

			imp := importer.New(st, logger)
			results := imp.ImportFiles(ctx, args)

			total, failed := 0, 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Printf("FAILED   %s: %v\n", r.File, r.Err)
					continue
				}
				total += r.Inserted
				fmt.Printf("imported %s: %d new record(s)\n", r.File, r.Inserted)
			}
			fmt.Printf("%d file(s) processed, %d failed, %d record(s) inserted.\n",
				len(results), failed, total)
			return nil
		},
	}
}

func initdbCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			cfg, _, closeDB, err := openStore(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer closeDB()
			fmt.Printf("Database ready at %s\n", cfg.DBPath)
			return nil
		},
	}
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump every table as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			logger := newLogger()
			ctx := cmd.Context()

			_, st, closeDB, err := openStore(ctx, logger)
			if err != nil {
				return err
			}
			defer closeDB()

			dump, err := st.Dump(ctx)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(dump, "", "  ")
			if err != nil {
				return fmt.Errorf("encode dump: %w", err)
			}

			if out == "" {
				fmt.Println(string(data))
				return nil
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			fmt.Printf("Exported to %s\n", out)
			return nil
		},
	}
	cmd.Flags().String("out", "", "Write the JSON dump to a file instead of stdout")
	return cmd
}

func runServer() error {
	logger := newLogger()

	ctx := context.Background()
	cfg, st, closeDB, err := openStore(ctx, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer closeDB()
	logger.Info().Str("db", cfg.DBPath).Msg("database ready")

	client, err := newLLMClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("llm client setup failed")
	}
	logger.Info().Str("provider", cfg.LLMProvider).Msg("llm client ready")

	adv := advisor.New(st, client, logger)
	sessions := advisor.NewSessions()
	convs := advisor.NewConversationStore(cfg.ConversationsDir)
	imp := importer.New(st, logger)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	apiV1 := e.Group("/api/v1")
	importer.NewHandler(imp).RegisterRoutes(apiV1)
	advisor.NewHandler(adv, sessions, convs).RegisterRoutes(apiV1)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	logger.Info().Msg("server stopped")
	return nil
}
