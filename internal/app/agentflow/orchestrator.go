package agentflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fieldwise/agrichat/internal/app/tools"
	"github.com/fieldwise/agrichat/internal/domain"
	"github.com/fieldwise/agrichat/internal/observability"
)

// TurnState names the steps of one orchestration run.
type TurnState string

const (
	StateStart          TurnState = "START"
	StateGating         TurnState = "GATING"
	StateRejected       TurnState = "REJECTED"
	StateReferenceCheck TurnState = "REFERENCE_CHECK"
	StateSearchCheck    TurnState = "SEARCH_CHECK"
	StateContextBuild   TurnState = "CONTEXT_BUILD"
	StatePromptAssemble TurnState = "PROMPT_ASSEMBLE"
	StateComplete       TurnState = "COMPLETE"
	StateValidate       TurnState = "VALIDATE"
	StatePersist        TurnState = "PERSIST"
	StateDone           TurnState = "DONE"
)

// RejectionMessage is the canned reply for messages outside agriculture.
const RejectionMessage = `**Agriculture-Focused Assistant**

I am specialized exclusively for **agriculture and farming-related queries**.

I can help you with:
- Crop cultivation and farming techniques
- Livestock and animal husbandry
- Agricultural machinery and technology
- Irrigation and water management
- Soil health and fertilizers
- Pest control and plant diseases
- Agricultural market and economics
- Sustainable and organic farming

Please ask me anything related to agriculture, and I'll be happy to assist!`

// FallbackReply replaces an empty or unusable completion.
const FallbackReply = "Sorry, I was unable to generate a proper response. Please try again."

// Turn is the input of one orchestration run. History is the chat's
// messages before this turn.
type Turn struct {
	ChatID       domain.ChatID
	UserID       domain.UserID
	Message      string
	FileNames    []string
	DocumentText string
	SearchOptIn  bool
	DeepReport   bool
	History      []*domain.Message
	Profile      *domain.UserProfile
}

// TurnResult is what the run produced and persisted.
type TurnResult struct {
	UserMessage      *domain.Message
	AssistantMessage *domain.Message

	UsedSearch   bool
	UsedHistory  bool
	Rejected     bool
	SourcesCount int
	Model        string
}

// Options tune the orchestrator. Zero timeouts mean no per-call limit
// beyond the caller's context.
type Options struct {
	Model           string
	ClassifierModel string
	Temperature     float32
	MaxTokens       int

	ClassifierTimeout time.Duration
	SearchTimeout     time.Duration
	CompletionTimeout time.Duration

	ParallelClassifiers bool
	MaxDocumentChars    int
}

func (o Options) withDefaults() Options {
	if o.Temperature == 0 {
		o.Temperature = 0.3
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1500
	}
	if o.ClassifierModel == "" {
		o.ClassifierModel = o.Model
	}
	return o
}

// Orchestrator runs one chat turn from gate to persistence. It holds no
// per-turn state and is safe for concurrent use.
type Orchestrator struct {
	llm       domain.Completer
	store     domain.ChatStore
	gate      *Classifier
	reference *Classifier
	augmenter *SearchAugmenter
	opts      Options
	now       func() time.Time
}

// NewOrchestrator wires the classifiers and the search augmenter around
// one completer. web may be nil when no search provider is configured.
func NewOrchestrator(llm domain.Completer, web tools.Tool, store domain.ChatStore, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	return &Orchestrator{
		llm:       llm,
		store:     store,
		gate:      NewClassifier(llm, GateConfig, opts.ClassifierModel, opts.ClassifierTimeout),
		reference: NewClassifier(llm, ReferenceConfig, opts.ClassifierModel, opts.ClassifierTimeout),
		augmenter: NewSearchAugmenter(
			NewClassifier(llm, SearchNeedConfig, opts.ClassifierModel, opts.ClassifierTimeout),
			web,
			opts.SearchTimeout,
		),
		opts: opts,
		now:  time.Now,
	}
}

// Run executes the turn. On success both messages have been appended to
// the chat. On error nothing has been persisted.
func (o *Orchestrator) Run(ctx context.Context, turn Turn) (*TurnResult, error) {
	log := observability.LoggerFromContext(ctx).With(
		"chat_id", turn.ChatID,
		"user_id", turn.UserID,
	)
	started := time.Now()
	step := func(s TurnState) {
		log.Info("turn state", "state", s, "elapsed_ms", time.Since(started).Milliseconds())
	}

	step(StateStart)
	if strings.TrimSpace(turn.Message) == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrInvalidInput)
	}
	if o.opts.MaxDocumentChars > 0 {
		turn.DocumentText = cutRunes(turn.DocumentText, o.opts.MaxDocumentChars)
	}

	userMsg := &domain.Message{
		ID:           domain.MessageID(domain.NewID()),
		ChatID:       turn.ChatID,
		Role:         domain.RoleUser,
		Content:      turn.Message,
		Timestamp:    domain.NowMillis(o.now()),
		Files:        turn.FileNames,
		HasFiles:     len(turn.FileNames) > 0,
		DocumentData: turn.DocumentText,
	}
	res := &TurnResult{UserMessage: userMsg, Model: o.opts.Model}

	step(StateGating)
	label, err := o.gate.Classify(ctx, ClassifierInput{
		Message:      turn.Message,
		Recent:       turn.History,
		DocumentText: turn.DocumentText,
		FileNames:    turn.FileNames,
	})
	if err != nil {
		return nil, o.fail(log, StateGating, err)
	}
	if label != domain.LabelAgriculture {
		step(StateRejected)
		res.Rejected = true
		res.AssistantMessage = o.assistantMessage(turn.ChatID, RejectionMessage)
		if err := o.persist(ctx, turn.ChatID, res); err != nil {
			return nil, o.fail(log, StatePersist, err)
		}
		step(StateDone)
		return res, nil
	}

	referencing, search, err := o.classify(ctx, step, turn)
	if err != nil {
		return nil, o.fail(log, StateReferenceCheck, err)
	}
	res.UsedHistory = referencing
	if search != nil {
		res.UsedSearch = true
		res.SourcesCount = len(search.Sources)
	}

	step(StateContextBuild)
	conversation := BuildContext(turn.History, referencing)

	step(StatePromptAssemble)
	prompt := Assemble(PromptInput{
		Question:     turn.Message,
		AgentMode:    turn.DeepReport,
		ReportMode:   turn.DeepReport,
		Profile:      turn.Profile,
		Referencing:  referencing,
		Conversation: conversation,
		DocumentText: turn.DocumentText,
		Search:       search,
	})

	step(StateComplete)
	completion, err := o.complete(ctx, prompt)
	if err != nil {
		return nil, o.fail(log, StateComplete, err)
	}

	step(StateValidate)
	res.AssistantMessage = o.assistantMessage(turn.ChatID, ValidateReply(completion, search))

	step(StatePersist)
	if err := o.persist(ctx, turn.ChatID, res); err != nil {
		return nil, o.fail(log, StatePersist, err)
	}

	step(StateDone)
	return res, nil
}

// classify runs the reference check and the search check, overlapping them
// when ParallelClassifiers is set.
func (o *Orchestrator) classify(ctx context.Context, step func(TurnState), turn Turn) (bool, *SearchContext, error) {
	if !o.opts.ParallelClassifiers {
		step(StateReferenceCheck)
		label, err := o.reference.Classify(ctx, ClassifierInput{Message: turn.Message})
		if err != nil {
			return false, nil, err
		}

		step(StateSearchCheck)
		search, err := o.augmenter.MaybeSearch(ctx, turn.Message, turn.SearchOptIn)
		if err != nil {
			return false, nil, err
		}
		return label == domain.LabelYes, search, nil
	}

	step(StateReferenceCheck)
	var (
		label domain.Label
		need  bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		label, err = o.reference.Classify(gctx, ClassifierInput{Message: turn.Message})
		return err
	})
	g.Go(func() error {
		var err error
		need, err = o.augmenter.NeedsSearch(gctx, turn.Message, turn.SearchOptIn)
		return err
	})
	if err := g.Wait(); err != nil {
		return false, nil, err
	}

	step(StateSearchCheck)
	var search *SearchContext
	if need {
		search = o.augmenter.Fetch(ctx, turn.Message)
	}
	return label == domain.LabelYes, search, nil
}

// complete makes the single completion call. An unusable answer becomes an
// empty completion so validation substitutes the fallback reply.
func (o *Orchestrator) complete(ctx context.Context, prompt string) (domain.Completion, error) {
	callCtx := ctx
	if o.opts.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.opts.CompletionTimeout)
		defer cancel()
	}

	c, err := o.llm.Complete(callCtx, prompt, domain.CompletionOptions{
		Temperature: o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
		Model:       o.opts.Model,
	})
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, domain.ErrMalformedResponse):
		observability.LoggerFromContext(ctx).Warn("unusable completion, using fallback reply", "error", err)
		return domain.Completion{}, nil
	case isTerminal(err):
		return domain.Completion{}, fmt.Errorf("completion: %w", asUpstream(err))
	default:
		return domain.Completion{}, fmt.Errorf("completion: %w", err)
	}
}

// ValidateReply trims the completion, substitutes the fallback reply for an
// empty one and appends the sources list when the reply lacks it.
func ValidateReply(c domain.Completion, search *SearchContext) string {
	content := strings.TrimSpace(c.Content)
	if content == "" {
		return FallbackReply
	}
	if search != nil && len(search.Sources) > 0 && !strings.Contains(content, search.Sources[0].URL) {
		content += "\n\n## Sources\n" + FormatSources(search.Sources)
	}
	return content
}

func (o *Orchestrator) assistantMessage(chatID domain.ChatID, content string) *domain.Message {
	return &domain.Message{
		ID:        domain.MessageID(domain.NewID()),
		ChatID:    chatID,
		Role:      domain.RoleAssistant,
		Content:   content,
		Timestamp: domain.NowMillis(o.now()),
	}
}

func (o *Orchestrator) persist(ctx context.Context, chatID domain.ChatID, res *TurnResult) error {
	if err := o.store.AppendMessages(ctx, chatID, res.UserMessage, res.AssistantMessage); err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	return nil
}

func (o *Orchestrator) fail(log *slog.Logger, state TurnState, err error) error {
	log.Error("turn failed", "state", state, "error", err)
	return fmt.Errorf("turn failed at %s: %w", strings.ToLower(string(state)), err)
}
