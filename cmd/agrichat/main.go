package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	httpadapter "github.com/fieldwise/agrichat/internal/adapters/http"
	"github.com/fieldwise/agrichat/internal/app/conversation"
	"github.com/fieldwise/agrichat/internal/config"
	"github.com/fieldwise/agrichat/internal/domain"
	"github.com/fieldwise/agrichat/internal/observability"
)

var rootCmd = &cobra.Command{
	Use:   "agrichat",
	Short: "Agriculture chat assistant",
	Long: `agrichat answers farming questions through a guarded LLM pipeline:
domain gate, follow-up detection, optional web search, profile-aware
prompting and reply validation.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question in a throwaway chat and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var (
	askUser     string
	askSearch   bool
	askReport   bool
	askResearch bool
)

func init() {
	askCmd.Flags().StringVar(&askUser, "user", "cli-user", "user id for the chat")
	askCmd.Flags().BoolVar(&askSearch, "search", false, "allow web search")
	askCmd.Flags().BoolVar(&askReport, "report", false, "ask for a deep report style answer")
	askCmd.Flags().BoolVar(&askResearch, "research", false, "run the research flow instead of a chat turn")

	rootCmd.AddCommand(serveCmd, askCmd)
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	observability.Init(cfg.LogLevel)
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpadapter.NewServer(a.conversations, a.profiles, a.extractor, a.limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		observability.Logger().Info("agrichat API listening", "port", cfg.Port, "mode", cfg.Mode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	observability.Logger().Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.TurnTimeout+5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	question := strings.Join(args, " ")
	out := cmd.OutOrStdout()

	if askResearch {
		res, err := a.conversations.Research(ctx, conversation.ResearchInput{
			UserID: domain.UserID(askUser),
			Query:  question,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, res.Content)
		return nil
	}

	chat, err := a.conversations.CreateChat(ctx, conversation.CreateChatInput{UserID: domain.UserID(askUser), Name: "CLI"})
	if err != nil {
		return err
	}
	res, err := a.conversations.SubmitTurn(ctx, conversation.SubmitTurnInput{
		ChatID:          chat.ID,
		UserID:          domain.UserID(askUser),
		Message:         question,
		SearchOptIn:     askSearch,
		DeepReportOptIn: askReport,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(out, res.Message.Content)
	observability.Logger().Debug("turn metadata",
		"used_search", res.Metadata.UsedSearch,
		"used_history", res.Metadata.UsedHistory,
		"rejected", res.Metadata.Rejected,
		"sources", res.Metadata.SourcesCount)
	return nil
}
