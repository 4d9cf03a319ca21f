package agentflow_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldwise/agrichat/internal/adapters/storage/memory"
	"github.com/fieldwise/agrichat/internal/app/agentflow"
	"github.com/fieldwise/agrichat/internal/app/tools"
	"github.com/fieldwise/agrichat/internal/domain"
)

type harness struct {
	llm    *fakeLLM
	search *fakeSearch
	store  *memory.ChatStore
	orch   *agentflow.Orchestrator
	chatID domain.ChatID
}

func newHarness(t *testing.T, opts agentflow.Options) *harness {
	t.Helper()
	h := &harness{
		llm:    newFakeLLM(),
		search: &fakeSearch{},
		store:  memory.NewChatStore(),
		chatID: "chat-1",
	}
	require.NoError(t, h.store.CreateChat(context.Background(), &domain.Chat{ID: h.chatID, UserID: "u1", Name: "New Chat"}))
	if opts.Model == "" {
		opts.Model = "llama-3.3-70b-versatile"
	}
	h.orch = agentflow.NewOrchestrator(h.llm, tools.NewWebSearchTool(h.search), h.store, opts)
	return h
}

func (h *harness) turn(t *testing.T, msg string, mutate ...func(*agentflow.Turn)) (*agentflow.TurnResult, error) {
	t.Helper()
	history, err := h.store.LoadMessages(context.Background(), h.chatID)
	require.NoError(t, err)
	turn := agentflow.Turn{ChatID: h.chatID, UserID: "u1", Message: msg, History: history}
	for _, m := range mutate {
		m(&turn)
	}
	return h.orch.Run(context.Background(), turn)
}

func (h *harness) messages(t *testing.T) []*domain.Message {
	t.Helper()
	msgs, err := h.store.LoadMessages(context.Background(), h.chatID)
	require.NoError(t, err)
	return msgs
}

func TestRun_ScenarioPlainQuestion(t *testing.T) {
	h := newHarness(t, agentflow.Options{})

	res, err := h.turn(t, "How do I grow tomatoes?")
	require.NoError(t, err)

	assert.False(t, res.Rejected)
	assert.False(t, res.UsedHistory)
	assert.False(t, res.UsedSearch)
	assert.Equal(t, "llama-3.3-70b-versatile", res.Model)
	assert.Equal(t, 1, h.llm.count(kindAnswer))
	assert.Zero(t, h.llm.count(kindSearch), "search classifier only runs when opted in")

	prompt := h.llm.lastPrompt(kindAnswer)
	assert.Contains(t, prompt, "LastMessage: none")
	assert.NotContains(t, prompt, "=== CONVERSATION HISTORY ===")
	opts := h.llm.opts[kindAnswer][0]
	assert.Equal(t, float32(0.3), opts.Temperature)
	assert.Equal(t, 1500, opts.MaxTokens)

	msgs := h.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.RoleUser, msgs[0].Role)
	assert.Equal(t, "How do I grow tomatoes?", msgs[0].Content)
	assert.Equal(t, domain.RoleAssistant, msgs[1].Role, "role is forced to assistant")
	assert.Equal(t, "Water tomatoes deeply twice a week.", msgs[1].Content)
	assert.LessOrEqual(t, msgs[0].Timestamp, msgs[1].Timestamp)
}

func TestRun_ScenarioRejected(t *testing.T) {
	h := newHarness(t, agentflow.Options{})
	h.llm.set(kindGate, "NOT_AGRICULTURE")

	res, err := h.turn(t, "What's the capital of France?", func(tr *agentflow.Turn) { tr.SearchOptIn = true })
	require.NoError(t, err)

	assert.True(t, res.Rejected)
	assert.Zero(t, h.llm.count(kindAnswer))
	assert.Zero(t, h.llm.count(kindReference))
	assert.Zero(t, h.llm.count(kindSearch))
	assert.Zero(t, h.search.count())

	msgs := h.messages(t)
	require.Len(t, msgs, 2)
	assert.Equal(t, "What's the capital of France?", msgs[0].Content)
	assert.Equal(t, agentflow.RejectionMessage, msgs[1].Content)
}

func TestRun_GateFailsClosed(t *testing.T) {
	for _, reply := range []string{"maybe?", "NON-AGRICULTURE", "This is not an agriculture question."} {
		t.Run(reply, func(t *testing.T) {
			h := newHarness(t, agentflow.Options{})
			h.llm.set(kindGate, reply)

			res, err := h.turn(t, "How do I grow tomatoes?")
			require.NoError(t, err)
			assert.True(t, res.Rejected)
			assert.Equal(t, agentflow.RejectionMessage, res.AssistantMessage.Content)
			assert.Zero(t, h.llm.count(kindAnswer))
		})
	}
}

func TestRun_ScenarioFollowUp(t *testing.T) {
	h := newHarness(t, agentflow.Options{})
	h.llm.set(kindAnswer, "Transplant rice seedlings at 21 days.")
	_, err := h.turn(t, "How should I cultivate rice?")
	require.NoError(t, err)

	h.llm.set(kindReference, "YES").set(kindAnswer, "More on rice transplanting.")
	res, err := h.turn(t, "Tell me more about that")
	require.NoError(t, err)

	assert.False(t, res.Rejected)
	assert.True(t, res.UsedHistory)
	assert.Contains(t, h.llm.lastPrompt(kindGate), "Assistant: Transplant rice seedlings at 21 days.")

	prompt := h.llm.lastPrompt(kindAnswer)
	assert.Contains(t, prompt, "=== CONVERSATION HISTORY ===\n[Exchange 1]\nUser: How should I cultivate rice?\nAssistant: Transplant rice seedlings at 21 days.")
	assert.Contains(t, prompt, "Answer directly based on the conversation history and documents provided.")
	assert.Len(t, h.messages(t), 4)
}

func TestRun_ScenarioSearch(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		t.Run(fmt.Sprintf("parallel=%v", parallel), func(t *testing.T) {
			h := newHarness(t, agentflow.Options{ParallelClassifiers: parallel})
			h.llm.set(kindSearch, "YES").set(kindAnswer, "Paddy prices are steady [2].")
			h.search.res = domain.RawSearchResult{Answer: "Prices are steady.", References: mixedReferences()}

			res, err := h.turn(t, "What is the paddy price today?", func(tr *agentflow.Turn) { tr.SearchOptIn = true })
			require.NoError(t, err)

			assert.True(t, res.UsedSearch)
			assert.Equal(t, 3, res.SourcesCount)
			assert.Equal(t, 1, h.search.count())

			prompt := h.llm.lastPrompt(kindAnswer)
			assert.Contains(t, prompt, "Web Search Results:\nPrices are steady.")
			assert.Contains(t, prompt, "[2]: [Paddy market](https://example.org/market)")

			reply := res.AssistantMessage.Content
			assert.True(t, strings.HasPrefix(reply, "Paddy prices are steady [2]."))
			assert.Contains(t, reply, "## Sources\n[1]: [Rice blast guide](https://example.org/blast)")
			assert.Contains(t, reply, "[3]: [Extension note](http://example.org/note)")
		})
	}
}

func TestRun_MalformedSearchStillAnswers(t *testing.T) {
	h := newHarness(t, agentflow.Options{})
	h.llm.set(kindSearch, "YES")
	h.search.res = domain.RawSearchResult{References: "{not json"}

	res, err := h.turn(t, "Latest wheat news?", func(tr *agentflow.Turn) { tr.SearchOptIn = true })
	require.NoError(t, err)

	assert.False(t, res.UsedSearch)
	assert.Zero(t, res.SourcesCount)
	assert.NotContains(t, h.llm.lastPrompt(kindAnswer), "Web Search Results")
	assert.Equal(t, "Water tomatoes deeply twice a week.", res.AssistantMessage.Content)
	assert.Len(t, h.messages(t), 2)
}

func TestRun_AlternatingHistory(t *testing.T) {
	h := newHarness(t, agentflow.Options{})
	const n = 7
	for i := 0; i < n; i++ {
		if i == 3 {
			h.llm.set(kindGate, "NOT_AGRICULTURE")
		} else {
			h.llm.set(kindGate, "AGRICULTURE")
		}
		_, err := h.turn(t, fmt.Sprintf("message %d about soil", i))
		require.NoError(t, err)
	}

	msgs := h.messages(t)
	require.Len(t, msgs, 2*n)
	for i, m := range msgs {
		if i%2 == 0 {
			assert.Equal(t, domain.RoleUser, m.Role)
			assert.Equal(t, fmt.Sprintf("message %d about soil", i/2), m.Content)
		} else {
			assert.Equal(t, domain.RoleAssistant, m.Role)
		}
	}
}

func TestRun_DeepReport(t *testing.T) {
	h := newHarness(t, agentflow.Options{})
	_, err := h.turn(t, "Report on drip irrigation for cotton", func(tr *agentflow.Turn) {
		tr.DeepReport = true
		tr.Profile = completeProfile
		tr.FileNames = []string{"farm.pdf"}
		tr.DocumentText = "Soil: black cotton soil"
	})
	require.NoError(t, err)

	prompt := h.llm.lastPrompt(kindAnswer)
	assert.Contains(t, prompt, "[Agent Mode]")
	assert.Contains(t, prompt, "[Report Mode]")
	assert.Contains(t, prompt, "Location: Nashik")
	assert.Contains(t, prompt, "Fetched Document Data:\nSoil: black cotton soil")

	msgs := h.messages(t)
	assert.True(t, msgs[0].HasFiles)
	assert.Equal(t, []string{"farm.pdf"}, msgs[0].Files)
	assert.Equal(t, "Soil: black cotton soil", msgs[0].DocumentData)
}

func TestRun_DocumentIsCapped(t *testing.T) {
	h := newHarness(t, agentflow.Options{MaxDocumentChars: 100})
	_, err := h.turn(t, "Summarize this soil test", func(tr *agentflow.Turn) {
		tr.DocumentText = strings.Repeat("n", 150)
	})
	require.NoError(t, err)

	assert.Equal(t, strings.Repeat("n", 100), h.messages(t)[0].DocumentData)
	assert.NotContains(t, h.llm.lastPrompt(kindAnswer), strings.Repeat("n", 100)+"...")
}

func TestRun_EmptyCompletionUsesFallback(t *testing.T) {
	h := newHarness(t, agentflow.Options{})
	h.llm.set(kindAnswer, "   ")

	res, err := h.turn(t, "How do I grow tomatoes?")
	require.NoError(t, err)
	assert.Equal(t, agentflow.FallbackReply, res.AssistantMessage.Content)

	h.llm.fail(kindAnswer, fmt.Errorf("decode: %w", domain.ErrMalformedResponse))
	res, err = h.turn(t, "How do I grow tomatoes?")
	require.NoError(t, err)
	assert.Equal(t, agentflow.FallbackReply, res.AssistantMessage.Content)
}

func TestRun_FailuresPersistNothing(t *testing.T) {
	cases := map[string]struct {
		setup func(h *harness)
		opts  agentflow.Options
		want  error
	}{
		"completion unavailable": {
			setup: func(h *harness) { h.llm.fail(kindAnswer, domain.ErrUpstreamUnavailable) },
			want:  domain.ErrUpstreamUnavailable,
		},
		"gate unavailable": {
			setup: func(h *harness) { h.llm.fail(kindGate, domain.ErrUpstreamUnavailable) },
			want:  domain.ErrUpstreamUnavailable,
		},
		"reference unavailable in parallel": {
			setup: func(h *harness) { h.llm.fail(kindReference, domain.ErrUpstreamUnavailable) },
			opts:  agentflow.Options{ParallelClassifiers: true},
			want:  domain.ErrUpstreamUnavailable,
		},
		"completion timeout": {
			setup: func(h *harness) { h.llm.hang(kindAnswer) },
			opts:  agentflow.Options{CompletionTimeout: 20 * time.Millisecond},
			want:  domain.ErrUpstreamUnavailable,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, tc.opts)
			tc.setup(h)

			res, err := h.turn(t, "How do I grow tomatoes?", func(tr *agentflow.Turn) { tr.SearchOptIn = true })
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, h.messages(t))
		})
	}
}

func TestRun_TurnDeadline(t *testing.T) {
	h := newHarness(t, agentflow.Options{CompletionTimeout: time.Minute})
	h.llm.hang(kindAnswer)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := h.orch.Run(ctx, agentflow.Turn{ChatID: h.chatID, UserID: "u1", Message: "How do I grow tomatoes?"})
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.Empty(t, h.messages(t))
}

type failingStore struct {
	*memory.ChatStore
}

func (failingStore) AppendMessages(context.Context, domain.ChatID, *domain.Message, *domain.Message) error {
	return errors.New("disk full")
}

func TestRun_PersistenceFailure(t *testing.T) {
	llm := newFakeLLM()
	orch := agentflow.NewOrchestrator(llm, nil, failingStore{memory.NewChatStore()}, agentflow.Options{})

	_, err := orch.Run(context.Background(), agentflow.Turn{ChatID: "c", UserID: "u1", Message: "How do I grow tomatoes?"})
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestRun_EmptyMessage(t *testing.T) {
	h := newHarness(t, agentflow.Options{})
	_, err := h.turn(t, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, h.llm.count(kindGate))
}
