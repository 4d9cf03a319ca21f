package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fieldwise/agrichat/internal/adapters/docextract"
	"github.com/fieldwise/agrichat/internal/adapters/llm"
	"github.com/fieldwise/agrichat/internal/adapters/search"
	firestorestore "github.com/fieldwise/agrichat/internal/adapters/storage/firestore"
	memstore "github.com/fieldwise/agrichat/internal/adapters/storage/memory"
	mongostore "github.com/fieldwise/agrichat/internal/adapters/storage/mongo"
	"github.com/fieldwise/agrichat/internal/app/agentflow"
	"github.com/fieldwise/agrichat/internal/app/conversation"
	"github.com/fieldwise/agrichat/internal/app/profile"
	"github.com/fieldwise/agrichat/internal/app/tools"
	"github.com/fieldwise/agrichat/internal/config"
	"github.com/fieldwise/agrichat/internal/domain"
	"github.com/fieldwise/agrichat/internal/observability"
	"github.com/fieldwise/agrichat/internal/ratelimit"
)

// app holds everything built from the config. close releases stores and
// connections in reverse order.
type app struct {
	conversations *conversation.Service
	profiles      *profile.Service
	extractor     *docextract.Extractor
	limiter       ratelimit.Limiter
	closers       []func(context.Context) error
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			bootLog().Warn("shutdown step failed", "error", err)
		}
	}
}

func bootLog() *slog.Logger {
	return observability.WithFields("component", "bootstrap")
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	llmClient, err := newCompleter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	chats, profiles, err := newStores(ctx, cfg, a)
	if err != nil {
		a.close(ctx)
		return nil, err
	}

	var web tools.Tool
	if cfg.SearchProvider == "tavily" && cfg.TavilyAPIKey != "" {
		client, err := search.NewTavilyClient(cfg.TavilyAPIKey)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		web = tools.NewWebSearchTool(client)
		bootLog().Info("web search enabled", "provider", "tavily")
	} else {
		bootLog().Info("web search disabled")
	}

	opts := agentflow.Options{
		Model:               cfg.ModelName,
		ClassifierModel:     cfg.ClassifierModel,
		Temperature:         cfg.Temperature,
		MaxTokens:           cfg.MaxTokens,
		ClassifierTimeout:   cfg.ClassifierTimeout,
		SearchTimeout:       cfg.SearchTimeout,
		CompletionTimeout:   cfg.CompletionTimeout,
		ParallelClassifiers: cfg.ParallelClassifiers,
		MaxDocumentChars:    cfg.MaxDocumentChars,
	}
	orch := agentflow.NewOrchestrator(llmClient, web, chats, opts)
	researcher := agentflow.NewResearcher(llmClient, web, tools.NewCurrentTimeTool(), opts)

	a.conversations = conversation.NewService(chats, profiles, orch, researcher, cfg.TurnTimeout)
	a.profiles = profile.NewService(profiles)
	a.extractor = docextract.NewExtractor(cfg.MaxDocumentChars)

	if a.limiter, err = newLimiter(cfg, a); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func newCompleter(ctx context.Context, cfg *config.Config) (domain.Completer, error) {
	provider := cfg.LLMProvider
	if cfg.UseMockLLM {
		provider = "mock"
	}
	bootLog().Info("llm client", "provider", provider, "model", cfg.ModelName)

	switch provider {
	case "mock":
		return llm.NewMockLLM(), nil
	case "vertex":
		c, err := llm.NewVertexClient(ctx, cfg.GCPProjectID, cfg.GCPLocation, cfg.ModelName)
		if err != nil {
			return nil, fmt.Errorf("initializing Vertex LLM client: %w", err)
		}
		return c, nil
	case "gemini":
		c, err := llm.NewGeminiClient(ctx, cfg.LLMAPIKey, cfg.ModelName)
		if err != nil {
			return nil, fmt.Errorf("initializing Gemini LLM client: %w", err)
		}
		return c, nil
	case "openai":
		return llm.NewOpenAICompatClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.ModelName), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", provider)
	}
}

func newStores(ctx context.Context, cfg *config.Config, a *app) (domain.ChatStore, domain.ProfileStore, error) {
	switch cfg.StorageBackend {
	case "firestore":
		bootLog().Info("using Firestore storage", "project", cfg.GCPProjectID)
		fs, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing Firestore store: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return fs.Close() })
		// 1 store, implements both interfaces
		return fs, fs, nil

	case "mongo":
		bootLog().Info("using Mongo storage", "database", cfg.MongoDatabase)
		ms, err := mongostore.NewStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing Mongo store: %w", err)
		}
		a.closers = append(a.closers, ms.Close)
		return ms, ms, nil

	default:
		bootLog().Info("using in-memory storage")
		return memstore.NewChatStore(), memstore.NewProfileStore(), nil
	}
}

func newLimiter(cfg *config.Config, a *app) (ratelimit.Limiter, error) {
	if cfg.RateLimit <= 0 {
		return nil, nil
	}
	if cfg.RedisAddr == "" {
		return ratelimit.NewLocalLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	}

	l, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.RateLimit, cfg.RateLimitWindow)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return l.Close() })
	bootLog().Info("using redis rate limiter", "addr", cfg.RedisAddr)
	return l, nil
}
