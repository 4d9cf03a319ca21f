package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldwise/agrichat/internal/app/agentflow"
	"github.com/fieldwise/agrichat/internal/domain"
	"github.com/fieldwise/agrichat/internal/observability"
)

const defaultChatName = "New Chat"

type Service struct {
	chats        domain.ChatStore
	profiles     domain.ProfileStore
	orchestrator *agentflow.Orchestrator
	researcher   *agentflow.Researcher
	turnTimeout  time.Duration
	now          func() time.Time
}

// NewService wires the turn pipeline to its stores. researcher may be nil,
// in which case Research is unavailable.
func NewService(
	chats domain.ChatStore,
	profiles domain.ProfileStore,
	orchestrator *agentflow.Orchestrator,
	researcher *agentflow.Researcher,
	turnTimeout time.Duration,
) *Service {
	return &Service{
		chats:        chats,
		profiles:     profiles,
		orchestrator: orchestrator,
		researcher:   researcher,
		turnTimeout:  turnTimeout,
		now:          time.Now,
	}
}

type CreateChatInput struct {
	UserID domain.UserID
	Name   string
}

func (s *Service) CreateChat(ctx context.Context, in CreateChatInput) (*domain.Chat, error) {
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}

	log := observability.LoggerFromContext(ctx).With("user_id", in.UserID)

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = defaultChatName
	}
	now := s.now()
	chat := &domain.Chat{
		ID:        domain.ChatID(domain.NewID()),
		UserID:    in.UserID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.chats.CreateChat(ctx, chat); err != nil {
		log.Error("failed to create chat", "error", err)
		return nil, fmt.Errorf("%w: create chat: %w", domain.ErrPersistence, err)
	}

	log.Info("chat created", "chat_id", chat.ID)
	return chat, nil
}

func (s *Service) ListChats(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Chat, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}
	return s.chats.ListChatsByUser(ctx, userID, limit)
}

// GetChatTimeline returns the chat and its last limit messages (all when
// limit <= 0). The chat must belong to userID.
func (s *Service) GetChatTimeline(
	ctx context.Context,
	chatID domain.ChatID,
	userID domain.UserID,
	limit int,
) (*domain.Chat, []*domain.Message, error) {

	if userID == "" {
		return nil, nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}

	log := observability.LoggerFromContext(ctx).With(
		"chat_id", chatID,
		"limit", limit,
	)

	chat, err := s.ownedChat(ctx, chatID, userID)
	if err != nil {
		log.Error("failed to get chat", "error", err)
		return nil, nil, err
	}

	msgs, err := s.chats.LoadMessages(ctx, chatID)
	if err != nil {
		log.Error("failed to get messages", "error", err)
		return nil, nil, err
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	log.Info("fetched chat timeline", "message_count", len(msgs))

	return chat, msgs, nil
}

type AttachedFile struct {
	Name string `json:"name"`
}

type SubmitTurnInput struct {
	ChatID               domain.ChatID
	UserID               domain.UserID
	Message              string
	AttachedFiles        []AttachedFile
	AttachedDocumentText string
	SearchOptIn          bool
	DeepReportOptIn      bool
}

type TurnMetadata struct {
	UsedSearch   bool   `json:"usedSearch"`
	UsedHistory  bool   `json:"usedHistory"`
	Rejected     bool   `json:"rejected"`
	SourcesCount int    `json:"sourcesCount"`
	Model        string `json:"model"`
}

type SubmitTurnOutput struct {
	Message  *domain.Message
	Metadata TurnMetadata
}

// SubmitTurn runs one chat turn under the turn deadline. On error nothing
// has been persisted.
func (s *Service) SubmitTurn(ctx context.Context, in SubmitTurnInput) (*SubmitTurnOutput, error) {
	if in.ChatID == "" || in.UserID == "" {
		return nil, fmt.Errorf("%w: chat id and user id are required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrInvalidInput)
	}

	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}

	log := observability.LoggerFromContext(ctx).With(
		"chat_id", in.ChatID,
		"user_id", in.UserID,
	)
	log.Info("submitting turn",
		"search_opt_in", in.SearchOptIn,
		"deep_report", in.DeepReportOptIn,
		"files", len(in.AttachedFiles))

	if _, err := s.ownedChat(ctx, in.ChatID, in.UserID); err != nil {
		log.Error("failed to resolve chat", "error", err)
		return nil, err
	}

	history, err := s.chats.LoadMessages(ctx, in.ChatID)
	if err != nil {
		log.Error("failed to load history", "error", err)
		return nil, err
	}

	res, err := s.orchestrator.Run(ctx, agentflow.Turn{
		ChatID:       in.ChatID,
		UserID:       in.UserID,
		Message:      in.Message,
		FileNames:    fileNames(in.AttachedFiles),
		DocumentText: in.AttachedDocumentText,
		SearchOptIn:  in.SearchOptIn,
		DeepReport:   in.DeepReportOptIn,
		History:      history,
		Profile:      s.profile(ctx, in.UserID),
	})
	if err != nil {
		return nil, err
	}

	log.Info("turn completed", "rejected", res.Rejected, "used_search", res.UsedSearch)

	return &SubmitTurnOutput{
		Message: res.AssistantMessage,
		Metadata: TurnMetadata{
			UsedSearch:   res.UsedSearch,
			UsedHistory:  res.UsedHistory,
			Rejected:     res.Rejected,
			SourcesCount: res.SourcesCount,
			Model:        res.Model,
		},
	}, nil
}

type ResearchInput struct {
	UserID domain.UserID
	ChatID domain.ChatID // optional; supplies recent history
	Query  string
}

// Research produces a report for the query. Nothing is persisted.
func (s *Service) Research(ctx context.Context, in ResearchInput) (*agentflow.ResearchResult, error) {
	if s.researcher == nil {
		return nil, fmt.Errorf("%w: research is not configured", domain.ErrUpstreamUnavailable)
	}
	if in.UserID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}

	if s.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.turnTimeout)
		defer cancel()
	}

	var history []*domain.Message
	if in.ChatID != "" {
		if _, err := s.ownedChat(ctx, in.ChatID, in.UserID); err != nil {
			return nil, err
		}
		msgs, err := s.chats.LoadMessages(ctx, in.ChatID)
		if err != nil {
			return nil, err
		}
		history = msgs
	}

	return s.researcher.Research(ctx, agentflow.ResearchRequest{
		UserID:  in.UserID,
		ChatID:  in.ChatID,
		Query:   in.Query,
		History: history,
		Profile: s.profile(ctx, in.UserID),
	})
}

func (s *Service) ownedChat(ctx context.Context, chatID domain.ChatID, userID domain.UserID) (*domain.Chat, error) {
	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat.UserID != userID {
		return nil, domain.ErrChatForbidden
	}
	return chat, nil
}

// profile is best effort: a failing profile store only costs the turn its
// personalization.
func (s *Service) profile(ctx context.Context, userID domain.UserID) *domain.UserProfile {
	if s.profiles == nil {
		return nil
	}
	p, err := s.profiles.GetUserProfile(ctx, userID)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("failed to load profile", "user_id", userID, "error", err)
		return nil
	}
	return p
}

func fileNames(files []AttachedFile) []string {
	var names []string
	for _, f := range files {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			name = "Unknown"
		}
		names = append(names, name)
	}
	return names
}
