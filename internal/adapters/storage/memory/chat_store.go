package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/fieldwise/agrichat/internal/domain"
)

// ChatStore is an in-memory domain.ChatStore for local mode and tests.
type ChatStore struct {
	mu       sync.RWMutex
	chats    map[domain.ChatID]*domain.Chat
	messages map[domain.ChatID][]*domain.Message
	now      func() time.Time
}

func NewChatStore() *ChatStore {
	return &ChatStore{
		chats:    make(map[domain.ChatID]*domain.Chat),
		messages: make(map[domain.ChatID][]*domain.Message),
		now:      time.Now,
	}
}

func (s *ChatStore) CreateChat(_ context.Context, chat *domain.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.chats[chat.ID]; exists {
		return errors.New("chat already exists")
	}

	cp := *chat
	s.chats[chat.ID] = &cp
	return nil
}

func (s *ChatStore) GetChat(_ context.Context, id domain.ChatID) (*domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[id]
	if !ok {
		return nil, domain.ErrChatNotFound
	}

	cp := *chat
	return &cp, nil
}

// ListChatsByUser returns the user's chats, most recently updated first.
func (s *ChatStore) ListChatsByUser(_ context.Context, userID domain.UserID, limit int) ([]*domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Chat
	for _, chat := range s.chats {
		if chat.UserID == userID {
			cp := *chat
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *ChatStore) LoadMessages(_ context.Context, id domain.ChatID) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.chats[id]; !ok {
		return nil, domain.ErrChatNotFound
	}

	msgs := s.messages[id]
	out := make([]*domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// AppendMessages adds both messages under one lock so a concurrent reader
// never sees the user message without its reply.
func (s *ChatStore) AppendMessages(_ context.Context, id domain.ChatID, userMsg, assistantMsg *domain.Message) error {
	if userMsg == nil || assistantMsg == nil {
		return errors.New("append messages: both messages are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[id]
	if !ok {
		return domain.ErrChatNotFound
	}

	s.messages[id] = append(s.messages[id], userMsg, assistantMsg)
	chat.UpdatedAt = s.now()
	return nil
}
