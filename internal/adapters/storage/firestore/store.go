package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fieldwise/agrichat/internal/domain"
)

// Store keeps chats in "chats/{id}", their messages in
// "chats/{id}/messages" and profiles in "users/{id}".
type Store struct {
	client *firestore.Client
}

// NewStore creates a Firestore store for the given project.
func NewStore(ctx context.Context, projectID string) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// ─────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────

func (s *Store) chatsCol() *firestore.CollectionRef {
	return s.client.Collection("chats")
}

func (s *Store) chatDoc(id domain.ChatID) *firestore.DocumentRef {
	return s.chatsCol().Doc(string(id))
}

func (s *Store) messagesCol(chatID domain.ChatID) *firestore.CollectionRef {
	return s.chatDoc(chatID).Collection("messages")
}

func (s *Store) userDoc(id domain.UserID) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(string(id))
}

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type chatDoc struct {
	UserID    string    `firestore:"userId"`
	Name      string    `firestore:"name"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type messageDoc struct {
	Role         string   `firestore:"role"`
	Content      string   `firestore:"content"`
	Timestamp    int64    `firestore:"timestamp"`
	Seq          int64    `firestore:"seq"`
	Files        []string `firestore:"files,omitempty"`
	HasFiles     bool     `firestore:"hasFiles"`
	DocumentData string   `firestore:"documentData,omitempty"`
}

type profileDoc struct {
	Username         string    `firestore:"username"`
	Location         string    `firestore:"location"`
	FieldSize        string    `firestore:"fieldSize"`
	CropsGrown       []string  `firestore:"cropsGrown"`
	Climate          string    `firestore:"climate"`
	ProfileCompleted bool      `firestore:"profileCompleted"`
	UpdatedAt        time.Time `firestore:"updatedAt"`
}

func toChat(id string, doc chatDoc) *domain.Chat {
	return &domain.Chat{
		ID:        domain.ChatID(id),
		UserID:    domain.UserID(doc.UserID),
		Name:      doc.Name,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}

func toMessageDoc(m *domain.Message, seq int64) messageDoc {
	return messageDoc{
		Role:         string(m.Role),
		Content:      m.Content,
		Timestamp:    m.Timestamp,
		Seq:          seq,
		Files:        m.Files,
		HasFiles:     m.HasFiles,
		DocumentData: m.DocumentData,
	}
}

// ─────────────────────────────────────────
// ChatStore implementation
// ─────────────────────────────────────────

func (s *Store) CreateChat(ctx context.Context, chat *domain.Chat) error {
	doc := chatDoc{
		UserID:    string(chat.UserID),
		Name:      chat.Name,
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
	}

	if _, err := s.chatDoc(chat.ID).Create(ctx, doc); err != nil {
		return fmt.Errorf("firestore CreateChat: %w", err)
	}
	return nil
}

func (s *Store) GetChat(ctx context.Context, id domain.ChatID) (*domain.Chat, error) {
	snap, err := s.chatDoc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrChatNotFound
		}
		return nil, fmt.Errorf("firestore GetChat: %w", err)
	}

	var doc chatDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetChat decode: %w", err)
	}
	return toChat(snap.Ref.ID, doc), nil
}

func (s *Store) ListChatsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Chat, error) {
	q := s.chatsCol().Where("userId", "==", string(userID)).OrderBy("updatedAt", firestore.Desc)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var out []*domain.Chat
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ListChatsByUser: %w", err)
		}

		var doc chatDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode chatDoc: %w", err)
		}
		out = append(out, toChat(snap.Ref.ID, doc))
	}
	return out, nil
}

func (s *Store) LoadMessages(ctx context.Context, id domain.ChatID) ([]*domain.Message, error) {
	if _, err := s.chatDoc(id).Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, domain.ErrChatNotFound
		}
		return nil, fmt.Errorf("firestore LoadMessages: %w", err)
	}

	iter := s.messagesCol(id).OrderBy("seq", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []*domain.Message
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore LoadMessages: %w", err)
		}

		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode messageDoc: %w", err)
		}
		out = append(out, &domain.Message{
			ID:           domain.MessageID(snap.Ref.ID),
			ChatID:       id,
			Role:         domain.Role(doc.Role),
			Content:      doc.Content,
			Timestamp:    doc.Timestamp,
			Files:        doc.Files,
			HasFiles:     doc.HasFiles,
			DocumentData: doc.DocumentData,
		})
	}
	return out, nil
}

// AppendMessages writes both messages and bumps the chat in one transaction.
// Message order comes from seq, derived from the chat's message count.
func (s *Store) AppendMessages(ctx context.Context, id domain.ChatID, userMsg, assistantMsg *domain.Message) error {
	if userMsg == nil || assistantMsg == nil {
		return fmt.Errorf("%w: both messages are required", domain.ErrInvalidInput)
	}

	chatRef := s.chatDoc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(chatRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return domain.ErrChatNotFound
			}
			return err
		}

		var seq int64
		if v, err := snap.DataAt("messageCount"); err == nil {
			if n, ok := v.(int64); ok {
				seq = n
			}
		}

		if err := tx.Create(s.messagesCol(id).Doc(string(userMsg.ID)), toMessageDoc(userMsg, seq)); err != nil {
			return err
		}
		if err := tx.Create(s.messagesCol(id).Doc(string(assistantMsg.ID)), toMessageDoc(assistantMsg, seq+1)); err != nil {
			return err
		}
		return tx.Update(chatRef, []firestore.Update{
			{Path: "messageCount", Value: seq + 2},
			{Path: "updatedAt", Value: time.UnixMilli(assistantMsg.Timestamp)},
		})
	})
	if err != nil {
		if errors.Is(err, domain.ErrChatNotFound) {
			return err
		}
		return fmt.Errorf("firestore AppendMessages: %w", err)
	}
	return nil
}

// ─────────────────────────────────────────
// ProfileStore implementation
// ─────────────────────────────────────────

func (s *Store) GetUserProfile(ctx context.Context, userID domain.UserID) (*domain.UserProfile, error) {
	snap, err := s.userDoc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("firestore GetUserProfile: %w", err)
	}

	var doc profileDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetUserProfile decode: %w", err)
	}
	return &domain.UserProfile{
		UserID:           userID,
		Username:         doc.Username,
		Location:         doc.Location,
		FieldSize:        doc.FieldSize,
		CropsGrown:       doc.CropsGrown,
		Climate:          doc.Climate,
		ProfileCompleted: doc.ProfileCompleted,
		UpdatedAt:        doc.UpdatedAt,
	}, nil
}

func (s *Store) SaveUserProfile(ctx context.Context, p *domain.UserProfile) error {
	if p == nil || p.UserID == "" {
		return fmt.Errorf("%w: profile user id is required", domain.ErrInvalidInput)
	}

	doc := profileDoc{
		Username:         p.Username,
		Location:         p.Location,
		FieldSize:        p.FieldSize,
		CropsGrown:       p.CropsGrown,
		Climate:          p.Climate,
		ProfileCompleted: p.ProfileCompleted,
		UpdatedAt:        p.UpdatedAt,
	}
	if _, err := s.userDoc(p.UserID).Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore SaveUserProfile: %w", err)
	}
	return nil
}
