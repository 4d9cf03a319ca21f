package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fieldwise/agrichat/internal/adapters/docextract"
	"github.com/fieldwise/agrichat/internal/app/conversation"
	"github.com/fieldwise/agrichat/internal/app/profile"
	"github.com/fieldwise/agrichat/internal/domain"
	"github.com/fieldwise/agrichat/internal/observability"
	"github.com/fieldwise/agrichat/internal/ratelimit"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 10 << 20
)

type Server struct {
	svc       *conversation.Service
	profiles  *profile.Service
	extractor *docextract.Extractor
	limiter   ratelimit.Limiter
}

// NewServer builds the API handler. limiter and extractor may be nil.
func NewServer(
	svc *conversation.Service,
	profiles *profile.Service,
	extractor *docextract.Extractor,
	limiter ratelimit.Limiter,
) http.Handler {
	s := &Server{
		svc:       svc,
		profiles:  profiles,
		extractor: extractor,
		limiter:   limiter,
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", s.handleHealthz)

	// /chats → POST: create chat, GET: list chats of ?userId=
	mux.HandleFunc("/chats", s.handleChats)

	// /chats/{id}       → GET: chat + messages
	// /chats/{id}/turns → POST: submit a turn
	mux.HandleFunc("/chats/", s.handleChatWithID)

	// /users/{id}/profile → GET / PUT
	mux.HandleFunc("/users/", s.handleUserProfile)

	mux.HandleFunc("/research", s.handleResearch)
	mux.HandleFunc("/documents/extract", s.handleExtractDocument)

	return chainMiddlewares(mux, withLogging, withCORS, withRequestID)
}

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type createChatRequest struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

type chatResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type messageResponse struct {
	ID        string   `json:"id"`
	ChatID    string   `json:"chatId"`
	Role      string   `json:"role"`
	Content   string   `json:"content"`
	Timestamp int64    `json:"timestamp"`
	Files     []string `json:"files,omitempty"`
	HasFiles  bool     `json:"hasFiles,omitempty"`
}

type submitTurnRequest struct {
	ChatID               string                      `json:"chatId,omitempty"`
	UserID               string                      `json:"userId"`
	Message              string                      `json:"message"`
	AttachedFiles        []conversation.AttachedFile `json:"attachedFiles,omitempty"`
	AttachedDocumentText string                      `json:"attachedDocumentText,omitempty"`
	SearchOptIn          bool                        `json:"searchOptIn"`
	DeepReportOptIn      bool                        `json:"deepReportOptIn"`
}

type submitTurnResponse struct {
	Success  bool                      `json:"success"`
	Message  messageResponse           `json:"message"`
	Metadata conversation.TurnMetadata `json:"metadata"`
}

type profileRequest struct {
	Username   string   `json:"username"`
	Location   string   `json:"location"`
	FieldSize  string   `json:"fieldSize"`
	CropsGrown []string `json:"cropsGrown"`
	Climate    string   `json:"climate"`
}

type researchRequest struct {
	UserID string `json:"userId"`
	ChatID string `json:"chatId,omitempty"`
	Query  string `json:"query"`
}

type researchResponse struct {
	Success  bool             `json:"success"`
	Message  messageResponse  `json:"message"`
	Metadata researchMetadata `json:"metadata"`
}

type researchMetadata struct {
	ResearchMode  bool            `json:"researchMode"`
	UsedWebSearch bool            `json:"usedWebSearch"`
	SourcesCount  int             `json:"sourcesCount"`
	Sources       []domain.Source `json:"sources,omitempty"`
	Model         string          `json:"model"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ─────────────────────────────────────────────
// Basic routing
// ─────────────────────────────────────────────

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// /chats
func (s *Server) handleChats(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateChat(w, r)
	case http.MethodGet:
		s.handleListChats(w, r)
	default:
		methodNotAllowed(w)
	}
}

// /chats/{id} or /chats/{id}/turns
func (s *Server) handleChatWithID(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/chats/"), "/")
	id := parts[0]
	if id == "" {
		notFound(w)
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		s.handleGetChat(w, r, domain.ChatID(id))
	case len(parts) == 2 && parts[1] == "turns":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.handleSubmitTurn(w, r, domain.ChatID(id))
	default:
		notFound(w)
	}
}

// /users/{id}/profile
func (s *Server) handleUserProfile(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/users/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "profile" {
		notFound(w)
		return
	}
	userID := domain.UserID(parts[0])

	switch r.Method {
	case http.MethodGet:
		p, err := s.profiles.GetUserProfile(r.Context(), userID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "profile": p})
	case http.MethodPut:
		var req profileRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := s.profiles.UpdateUserProfile(r.Context(), profile.UpdateInput{
			UserID:     userID,
			Username:   req.Username,
			Location:   req.Location,
			FieldSize:  req.FieldSize,
			CropsGrown: req.CropsGrown,
			Climate:    req.Climate,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "profile": p})
	default:
		methodNotAllowed(w)
	}
}

// ─────────────────────────────────────────────
// Concrete handlers
// ─────────────────────────────────────────────

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	chat, err := s.svc.CreateChat(r.Context(), conversation.CreateChatInput{
		UserID: domain.UserID(req.UserID),
		Name:   req.Name,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "chat": toChatResponse(chat)})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	chats, err := s.svc.ListChats(r.Context(), domain.UserID(r.URL.Query().Get("userId")), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]chatResponse, 0, len(chats))
	for _, c := range chats {
		out = append(out, toChatResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "chats": out})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request, id domain.ChatID) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	chat, msgs, err := s.svc.GetChatTimeline(r.Context(), id, domain.UserID(r.URL.Query().Get("userId")), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"chat":     toChatResponse(chat),
		"messages": toMessagesResponse(msgs),
	})
}

func (s *Server) handleSubmitTurn(w http.ResponseWriter, r *http.Request, chatID domain.ChatID) {
	var req submitTurnRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ChatID != "" && req.ChatID != string(chatID) {
		writeError(w, r, domain.ErrInvalidInput)
		return
	}
	if !s.allow(w, r, req.UserID) {
		return
	}

	out, err := s.svc.SubmitTurn(r.Context(), conversation.SubmitTurnInput{
		ChatID:               chatID,
		UserID:               domain.UserID(req.UserID),
		Message:              req.Message,
		AttachedFiles:        req.AttachedFiles,
		AttachedDocumentText: req.AttachedDocumentText,
		SearchOptIn:          req.SearchOptIn,
		DeepReportOptIn:      req.DeepReportOptIn,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, submitTurnResponse{
		Success:  true,
		Message:  toMessageResponse(out.Message),
		Metadata: out.Metadata,
	})
}

func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req researchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.allow(w, r, req.UserID) {
		return
	}

	res, err := s.svc.Research(r.Context(), conversation.ResearchInput{
		UserID: domain.UserID(req.UserID),
		ChatID: domain.ChatID(req.ChatID),
		Query:  req.Query,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, researchResponse{
		Success: true,
		Message: messageResponse{
			Role:      string(domain.RoleAssistant),
			Content:   res.Content,
			Timestamp: domain.NowMillis(time.Now()),
		},
		Metadata: researchMetadata{
			ResearchMode:  true,
			UsedWebSearch: res.UsedWebSearch,
			SourcesCount:  res.SourcesCount,
			Sources:       res.Sources,
			Model:         res.Model,
		},
	})
}

func (s *Server) handleExtractDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.extractor == nil {
		notFound(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, domain.ErrInvalidInput)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, domain.ErrInvalidInput)
		return
	}

	text, err := s.extractor.Extract(header.Filename, data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"name":    header.Filename,
		"text":    text,
		"chars":   len([]rune(text)),
	})
}

// allow applies the rate limit, keyed by user id or client IP.
func (s *Server) allow(w http.ResponseWriter, r *http.Request, userID string) bool {
	if s.limiter == nil {
		return true
	}
	key := "user:" + strings.TrimSpace(userID)
	if strings.TrimSpace(userID) == "" {
		key = "ip:" + clientIP(r)
	}
	if s.limiter.Allow(r.Context(), key) {
		return true
	}
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
	return false
}

// ─────────────────────────────────────────────
// Conversation Helpers
// ─────────────────────────────────────────────

func toChatResponse(c *domain.Chat) chatResponse {
	return chatResponse{
		ID:        string(c.ID),
		UserID:    string(c.UserID),
		Name:      c.Name,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func toMessageResponse(m *domain.Message) messageResponse {
	return messageResponse{
		ID:        string(m.ID),
		ChatID:    string(m.ChatID),
		Role:      string(m.Role),
		Content:   m.Content,
		Timestamp: m.Timestamp,
		Files:     m.Files,
		HasFiles:  m.HasFiles,
	}
}

func toMessagesResponse(msgs []*domain.Message) []messageResponse {
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out
}

// ─────────────────────────────────────────────
// HTTP Helpers
// ─────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return false
	}
	return true
}

// writeError maps domain errors to a status code and the failure envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrChatForbidden):
		status, msg = http.StatusForbidden, "chat does not belong to this user"
	case errors.Is(err, domain.ErrChatNotFound):
		status, msg = http.StatusNotFound, "chat not found"
	case errors.Is(err, domain.ErrProfileNotFound):
		status, msg = http.StatusNotFound, "profile not found"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		status, msg = http.StatusServiceUnavailable, "the assistant is temporarily unavailable, please try again"
	}

	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}
