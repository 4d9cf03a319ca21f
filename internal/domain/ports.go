package domain

import "context"

// CompletionOptions are the per-call knobs passed to a Completer.
type CompletionOptions struct {
	Temperature float32
	MaxTokens   int
	Model       string // empty means the client's default model
}

// Completion is the raw answer of a completion capability. Role is whatever
// the provider reported and is not trusted by callers.
type Completion struct {
	Role    string
	Content string
}

// Completer is the single seam to the LLM completion capability.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CompletionOptions) (Completion, error)
}

// SearchClient is the external web search capability.
type SearchClient interface {
	Search(ctx context.Context, query string) (RawSearchResult, error)
}

// ChatStore defines chat persistence.
type ChatStore interface {
	CreateChat(ctx context.Context, chat *Chat) error
	GetChat(ctx context.Context, id ChatID) (*Chat, error)
	ListChatsByUser(ctx context.Context, userID UserID, limit int) ([]*Chat, error)

	// LoadMessages returns the full message sequence in insertion order.
	LoadMessages(ctx context.Context, id ChatID) ([]*Message, error)

	// AppendMessages appends the turn's user and assistant messages, in that
	// order, as one operation.
	AppendMessages(ctx context.Context, id ChatID, userMsg, assistantMsg *Message) error
}

// ProfileStore defines profile persistence. GetUserProfile returns
// (nil, nil) when the user has no profile.
type ProfileStore interface {
	GetUserProfile(ctx context.Context, userID UserID) (*UserProfile, error)
	SaveUserProfile(ctx context.Context, profile *UserProfile) error
}
