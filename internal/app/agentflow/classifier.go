package agentflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/fieldwise/agrichat/internal/domain"
	"github.com/fieldwise/agrichat/internal/observability"
)

// ClassifierInput carries everything a classifier prompt may reference.
// Each config renders only the fields it needs.
type ClassifierInput struct {
	Message      string
	Recent       []*domain.Message
	DocumentText string
	FileNames    []string
	UserContext  string
}

// ClassifierConfig describes one single-shot labelling call.
type ClassifierConfig struct {
	Name      string
	Render    func(ClassifierInput) string
	Labels    []domain.Label
	Fallback  domain.Label
	MaxTokens int
}

// Classifier asks the completer for exactly one label of its config.
type Classifier struct {
	llm     domain.Completer
	cfg     ClassifierConfig
	model   string
	timeout time.Duration
}

func NewClassifier(llm domain.Completer, cfg ClassifierConfig, model string, timeout time.Duration) *Classifier {
	return &Classifier{
		llm:     llm,
		cfg:     cfg,
		model:   model,
		timeout: timeout,
	}
}

func (c *Classifier) Name() string {
	return c.cfg.Name
}

// Classify returns the parsed label. An unusable reply yields the fallback
// label and no error. Transport failures also yield the fallback label, but
// when the upstream was unavailable or the context expired the error is
// returned too so the caller can end the turn.
func (c *Classifier) Classify(ctx context.Context, in ClassifierInput) (domain.Label, error) {
	log := observability.LoggerFromContext(ctx).With("classifier", c.cfg.Name)

	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := c.llm.Complete(callCtx, c.cfg.Render(in), domain.CompletionOptions{
		Temperature: 0,
		MaxTokens:   c.cfg.MaxTokens,
		Model:       c.model,
	})
	if err != nil {
		if isTerminal(err) {
			log.Error("classifier call failed", "error", err)
			return c.cfg.Fallback, fmt.Errorf("%s classifier: %w", c.cfg.Name, asUpstream(err))
		}
		log.Warn("classifier call failed, using fallback", "error", err, "fallback", c.cfg.Fallback)
		return c.cfg.Fallback, nil
	}

	label, ok := ParseLabel(res.Content, c.cfg.Labels)
	if !ok {
		log.Warn("unusable classifier reply, using fallback",
			"reply", truncate(res.Content, 40),
			"fallback", c.cfg.Fallback)
		return c.cfg.Fallback, nil
	}

	log.Info("classified", "label", label, "elapsed_ms", time.Since(start).Milliseconds())
	return label, nil
}

// ParseLabel accepts a reply that is exactly one of labels. Case, edge
// punctuation and space or hyphen separators are ignored, so "Not Agriculture."
// reads as NOT_AGRICULTURE. Anything else, including "NON-AGRICULTURE" or a
// sentence around a label, is reported as !ok.
func ParseLabel(reply string, labels []domain.Label) (domain.Label, bool) {
	text := strings.TrimFunc(strings.ToUpper(reply), func(r rune) bool {
		return !unicode.IsLetter(r) && r != '_'
	})
	words := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_'
	})
	norm := strings.Join(words, "_")

	for _, l := range labels {
		if norm == string(l) {
			return l, true
		}
	}
	return "", false
}

// isTerminal reports errors that must end the turn instead of falling back.
func isTerminal(err error) bool {
	return errors.Is(err, domain.ErrUpstreamUnavailable) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// asUpstream makes sure context expiry is reported as ErrUpstreamUnavailable.
func asUpstream(err error) error {
	if errors.Is(err, domain.ErrUpstreamUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
}

// --- classifier configs --- //

// GateConfig is the domain gate. It fails closed.
var GateConfig = ClassifierConfig{
	Name:      "domain_gate",
	Render:    renderGatePrompt,
	Labels:    []domain.Label{domain.LabelAgriculture, domain.LabelNotAgriculture},
	Fallback:  domain.LabelNotAgriculture,
	MaxTokens: 10,
}

// ReferenceConfig decides whether the message needs earlier chat history.
var ReferenceConfig = ClassifierConfig{
	Name:      "reference",
	Render:    renderReferencePrompt,
	Labels:    []domain.Label{domain.LabelYes, domain.LabelNo},
	Fallback:  domain.LabelNo,
	MaxTokens: 3,
}

// SearchNeedConfig decides whether an opted-in message needs a web search.
var SearchNeedConfig = ClassifierConfig{
	Name:      "search_need",
	Render:    renderSearchNeedPrompt,
	Labels:    []domain.Label{domain.LabelYes, domain.LabelNo},
	Fallback:  domain.LabelNo,
	MaxTokens: 3,
}

// ResearchPlannerConfig decides whether a research query needs a web search.
var ResearchPlannerConfig = ClassifierConfig{
	Name:      "research_planner",
	Render:    renderResearchPlannerPrompt,
	Labels:    []domain.Label{domain.LabelYes, domain.LabelNo},
	Fallback:  domain.LabelNo,
	MaxTokens: 3,
}

const (
	gateRecentMessages = 6
	gateMessageChars   = 200
	gateDocumentChars  = 500
)

func renderGatePrompt(in ClassifierInput) string {
	var b strings.Builder
	b.WriteString("You are an Agriculture Domain Validator. Your task is to determine if a user's query is related to agriculture or farming.\n\n")
	fmt.Fprintf(&b, "Current User Query: %q\n", in.Message)
	if in.DocumentText != "" {
		fmt.Fprintf(&b, "\nDocument Content Preview: %q\n", truncate(in.DocumentText, gateDocumentChars))
	}
	if len(in.FileNames) > 0 {
		fmt.Fprintf(&b, "\nUploaded Files: %s\n", fileList(in.FileNames))
	}

	recent := in.Recent
	if len(recent) > gateRecentMessages {
		recent = recent[len(recent)-gateRecentMessages:]
	}
	if len(recent) > 0 {
		b.WriteString("\nRecent Conversation:\n")
		for _, m := range recent {
			fmt.Fprintf(&b, "%s: %s\n", speaker(m.Role), truncate(m.Content, gateMessageChars))
		}
	}

	b.WriteString(`
Agriculture-related topics include crop cultivation and farming techniques, soil
management, plant diseases and pests, agricultural machinery and technology,
irrigation and fertilizers, livestock and dairy, agricultural markets, prices and
subsidies, sustainable and organic farming, seeds and plant breeding, weather and
climate impact on farming, food processing, farm management and agribusiness,
agricultural policy and schemes, rural development and precision agriculture.

Decision rules:
- Crops, plants, farming, soil, livestock or agriculture -> AGRICULTURE
- General topics (technology, math, history, entertainment) -> NOT_AGRICULTURE
- Greetings or casual conversation -> NOT_AGRICULTURE
- A question about an uploaded document is AGRICULTURE only if the document is about agriculture and the question relates to it
- Follow-ups like "explain this", "tell me more", "give me a report about the same" or "elaborate on that" MUST inherit the topic of the recent conversation: AGRICULTURE if that conversation was about agriculture, NOT_AGRICULTURE otherwise

Examples:
"How to grow tomatoes?" -> AGRICULTURE
"What is the best fertilizer for rice?" -> AGRICULTURE
"What is the capital of France?" -> NOT_AGRICULTURE
"Write me a poem" -> NOT_AGRICULTURE
"Elaborate on that" (after discussing rice cultivation) -> AGRICULTURE
"Tell me more" (after a non-agriculture topic) -> NOT_AGRICULTURE
"Summarize this document" (agriculture PDF uploaded) -> AGRICULTURE

Answer ONLY with: AGRICULTURE or NOT_AGRICULTURE`)
	return b.String()
}

func renderReferencePrompt(in ClassifierInput) string {
	return fmt.Sprintf(`You are a context classifier. Decide if the user's message REQUIRES the previous chat history to be answered.

Message: %q

Answer YES only if the message:
- asks about previous messages ("what did I say", "earlier you mentioned")
- asks about documents or files shared earlier ("the PDF I uploaded")
- cannot be understood without the prior discussion ("elaborate on that", "tell me more about it")
- compares with or summarizes past topics

Answer NO if the message:
- is an acknowledgment or feedback ("thanks", "great", "that was helpful")
- is a standalone question that carries its own context
- asks for general knowledge or current events
- starts a new topic or is a greeting

Answer ONLY: YES or NO`, in.Message)
}

func renderSearchNeedPrompt(in ClassifierInput) string {
	return fmt.Sprintf("Does this message require searching the web for an answer?\nMessage: %q\nAnswer: YES or NO", in.Message)
}

func renderResearchPlannerPrompt(in ClassifierInput) string {
	return fmt.Sprintf(`You are a research planner. Does this agricultural query require searching the web for current, real-time information?

Query: %q

User Context: %s

Answer ONLY: YES or NO`, in.Message, in.UserContext)
}

func speaker(r domain.Role) string {
	if r == domain.RoleUser {
		return "User"
	}
	return "Assistant"
}
