package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fieldwise/agrichat/internal/domain"
)

// Store keeps each chat as one document with its messages embedded, and
// profiles in a separate "users" collection.
type Store struct {
	client *mongo.Client
	chats  *mongo.Collection
	users  *mongo.Collection
}

func NewStore(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" || database == "" {
		return nil, fmt.Errorf("mongo uri and database are required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client: client,
		chats:  db.Collection("chats"),
		users:  db.Collection("users"),
	}

	_, err = s.chats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "updated_at", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("creating chats index: %w", err)
	}
	return s, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type messageDoc struct {
	ID           string   `bson:"id"`
	Role         string   `bson:"role"`
	Content      string   `bson:"content"`
	Timestamp    int64    `bson:"timestamp"`
	Files        []string `bson:"files,omitempty"`
	HasFiles     bool     `bson:"has_files,omitempty"`
	DocumentData string   `bson:"document_data,omitempty"`
}

type chatDoc struct {
	ID        string       `bson:"_id"`
	UserID    string       `bson:"user_id"`
	Name      string       `bson:"name"`
	Messages  []messageDoc `bson:"messages"`
	CreatedAt time.Time    `bson:"created_at"`
	UpdatedAt time.Time    `bson:"updated_at"`
}

type profileDoc struct {
	UserID           string    `bson:"_id"`
	Username         string    `bson:"username"`
	Location         string    `bson:"location"`
	FieldSize        string    `bson:"field_size"`
	CropsGrown       []string  `bson:"crops_grown"`
	Climate          string    `bson:"climate"`
	ProfileCompleted bool      `bson:"profile_completed"`
	UpdatedAt        time.Time `bson:"updated_at"`
}

func (d chatDoc) toDomain() *domain.Chat {
	return &domain.Chat{
		ID:        domain.ChatID(d.ID),
		UserID:    domain.UserID(d.UserID),
		Name:      d.Name,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func toMessageDoc(m *domain.Message) messageDoc {
	return messageDoc{
		ID:           string(m.ID),
		Role:         string(m.Role),
		Content:      m.Content,
		Timestamp:    m.Timestamp,
		Files:        m.Files,
		HasFiles:     m.HasFiles,
		DocumentData: m.DocumentData,
	}
}

// chat metadata only; messages are loaded by LoadMessages
var withoutMessages = options.FindOne().SetProjection(bson.M{"messages": 0})

func (s *Store) CreateChat(ctx context.Context, chat *domain.Chat) error {
	doc := chatDoc{
		ID:        string(chat.ID),
		UserID:    string(chat.UserID),
		Name:      chat.Name,
		Messages:  []messageDoc{},
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
	}
	if _, err := s.chats.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo CreateChat: %w", err)
	}
	return nil
}

func (s *Store) GetChat(ctx context.Context, id domain.ChatID) (*domain.Chat, error) {
	var doc chatDoc
	err := s.chats.FindOne(ctx, bson.M{"_id": string(id)}, withoutMessages).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo GetChat: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) ListChatsByUser(ctx context.Context, userID domain.UserID, limit int) ([]*domain.Chat, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "updated_at", Value: -1}}).
		SetProjection(bson.M{"messages": 0})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.chats.Find(ctx, bson.M{"user_id": string(userID)}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo ListChatsByUser: %w", err)
	}
	defer cur.Close(ctx)

	var docs []chatDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo ListChatsByUser decode: %w", err)
	}

	out := make([]*domain.Chat, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s *Store) LoadMessages(ctx context.Context, id domain.ChatID) ([]*domain.Message, error) {
	var doc chatDoc
	err := s.chats.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo LoadMessages: %w", err)
	}

	out := make([]*domain.Message, 0, len(doc.Messages))
	for _, m := range doc.Messages {
		out = append(out, &domain.Message{
			ID:           domain.MessageID(m.ID),
			ChatID:       id,
			Role:         domain.Role(m.Role),
			Content:      m.Content,
			Timestamp:    m.Timestamp,
			Files:        m.Files,
			HasFiles:     m.HasFiles,
			DocumentData: m.DocumentData,
		})
	}
	return out, nil
}

// AppendMessages pushes both messages with a single update, so the pair
// lands atomically and in order.
func (s *Store) AppendMessages(ctx context.Context, id domain.ChatID, userMsg, assistantMsg *domain.Message) error {
	if userMsg == nil || assistantMsg == nil {
		return fmt.Errorf("%w: both messages are required", domain.ErrInvalidInput)
	}

	update := bson.M{
		"$push": bson.M{"messages": bson.M{"$each": []messageDoc{
			toMessageDoc(userMsg),
			toMessageDoc(assistantMsg),
		}}},
		"$set": bson.M{"updated_at": time.UnixMilli(assistantMsg.Timestamp)},
	}

	res, err := s.chats.UpdateOne(ctx, bson.M{"_id": string(id)}, update)
	if err != nil {
		return fmt.Errorf("mongo AppendMessages: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrChatNotFound
	}
	return nil
}

func (s *Store) GetUserProfile(ctx context.Context, userID domain.UserID) (*domain.UserProfile, error) {
	var doc profileDoc
	err := s.users.FindOne(ctx, bson.M{"_id": string(userID)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo GetUserProfile: %w", err)
	}

	return &domain.UserProfile{
		UserID:           domain.UserID(doc.UserID),
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
		UserID:           string(p.UserID),
		Username:         p.Username,
		Location:         p.Location,
		FieldSize:        p.FieldSize,
		CropsGrown:       p.CropsGrown,
		Climate:          p.Climate,
		ProfileCompleted: p.ProfileCompleted,
		UpdatedAt:        p.UpdatedAt,
	}
	_, err := s.users.ReplaceOne(ctx, bson.M{"_id": doc.UserID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo SaveUserProfile: %w", err)
	}
	return nil
}
