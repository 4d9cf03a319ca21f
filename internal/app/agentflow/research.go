package agentflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/fieldwise/agrichat/internal/app/tools"
	"github.com/fieldwise/agrichat/internal/domain"
	"github.com/fieldwise/agrichat/internal/observability"
)

const (
	researchHistoryMessages = 6
	researchHistoryChars    = 300
	researchMaxTokens       = 2000
)

// ResearchRequest is one research question. History is the chat's recent
// messages; only the last six are used.
type ResearchRequest struct {
	UserID  domain.UserID
	ChatID  domain.ChatID
	Query   string
	History []*domain.Message
	Profile *domain.UserProfile
}

// ResearchResult is the generated report. It is not persisted.
type ResearchResult struct {
	Content       string
	UsedWebSearch bool
	SourcesCount  int
	Sources       []domain.Source
	Model         string
}

// Researcher performs one decide, search, report pass.
type Researcher struct {
	llm     domain.Completer
	planner *Classifier
	web     tools.Tool
	clock   tools.Tool
	opts    Options
}

// NewResearcher builds the research flow. web and clock may be nil.
func NewResearcher(llm domain.Completer, web, clock tools.Tool, opts Options) *Researcher {
	opts = opts.withDefaults()
	return &Researcher{
		llm:     llm,
		planner: NewClassifier(llm, ResearchPlannerConfig, opts.ClassifierModel, opts.ClassifierTimeout),
		web:     web,
		clock:   clock,
		opts:    opts,
	}
}

func (r *Researcher) Research(ctx context.Context, req ResearchRequest) (*ResearchResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty research query", domain.ErrInvalidInput)
	}

	log := observability.LoggerFromContext(ctx).With("user_id", req.UserID, "chat_id", req.ChatID)
	tctx := tools.ToolContext{
		UserID:    string(req.UserID),
		ChatID:    string(req.ChatID),
		RequestID: observability.RequestIDFromContext(ctx),
	}
	farmer := farmerProfileBlock(req.Profile)

	needsSearch := false
	if r.web != nil {
		label, err := r.planner.Classify(ctx, ClassifierInput{Message: query, UserContext: farmer})
		if err != nil {
			return nil, err
		}
		needsSearch = label == domain.LabelYes
	}
	log.Info("research planned", "needs_search", needsSearch)

	var (
		webContext string
		sources    []domain.Source
	)
	if needsSearch {
		webContext, sources = r.search(ctx, tctx, query)
	}

	prompt := r.reportPrompt(ctx, tctx, query, farmer, req.History, webContext)

	callCtx := ctx
	if r.opts.CompletionTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.opts.CompletionTimeout)
		defer cancel()
	}
	c, err := r.llm.Complete(callCtx, prompt, domain.CompletionOptions{
		Temperature: r.opts.Temperature,
		MaxTokens:   researchMaxTokens,
		Model:       r.opts.Model,
	})
	if err != nil && isTerminal(err) {
		return nil, fmt.Errorf("research completion: %w", asUpstream(err))
	}
	if err != nil {
		log.Warn("unusable research completion, using fallback reply", "error", err)
	}

	body := strings.TrimSpace(c.Content)
	if body == "" {
		body = FallbackReply
	}

	log.Info("research done", "used_web_search", needsSearch, "sources", len(sources))
	return &ResearchResult{
		Content:       body + "\n\n" + researchSources(sources, needsSearch),
		UsedWebSearch: needsSearch,
		SourcesCount:  len(sources),
		Sources:       sources,
		Model:         r.opts.Model,
	}, nil
}

// search returns the "[Source n]" context and the cited sources. Failures
// become a note in the context instead of an error.
func (r *Researcher) search(ctx context.Context, tctx tools.ToolContext, query string) (string, []domain.Source) {
	callCtx := ctx
	if r.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.opts.SearchTimeout)
		defer cancel()
	}

	out, err := r.web.Call(callCtx, tctx, map[string]any{"query": query})
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("research search failed", "error", err)
		return "Web search encountered an error.", nil
	}

	sources := NormalizeReferences(out["references"])
	if len(sources) == 0 {
		if answer, _ := out["answer"].(string); strings.TrimSpace(answer) != "" {
			return strings.TrimSpace(answer), nil
		}
		return "Web search was attempted but returned no usable results.", nil
	}

	blocks := make([]string, 0, len(sources))
	for i, s := range sources {
		content := s.Content
		if content == "" {
			content = "No content"
		}
		blocks = append(blocks, fmt.Sprintf("[Source %d]\nTitle: %s\nURL: %s\nContent: %s", i+1, s.Title, s.URL, content))
	}
	return strings.Join(blocks, "\n\n"), sources
}

func (r *Researcher) reportPrompt(
	ctx context.Context,
	tctx tools.ToolContext,
	query, farmer string,
	history []*domain.Message,
	webContext string,
) string {
	var b strings.Builder
	b.WriteString("You are an expert Agricultural Research AI Assistant. Generate a comprehensive, well-structured research report.\n\n")
	b.WriteString(farmer)
	b.WriteString("\n\n")

	if r.clock != nil {
		if out, err := r.clock.Call(ctx, tctx, nil); err == nil {
			if text, ok := out["text"].(string); ok {
				b.WriteString(text + "\n\n")
			}
		}
	}

	if len(history) > researchHistoryMessages {
		history = history[len(history)-researchHistoryMessages:]
	}
	if len(history) > 0 {
		b.WriteString("Recent Conversation:\n")
		for _, m := range history {
			fmt.Fprintf(&b, "%s: %s\n", speaker(m.Role), truncate(m.Content, researchHistoryChars))
		}
		b.WriteString("\n")
	}

	if webContext != "" {
		b.WriteString("Web Research Results:\n" + webContext + "\n\n")
	}

	b.WriteString("User Query: " + query + "\n\n")
	b.WriteString(`Generate a comprehensive report based only on the provided context and user query. Follow this structure exactly:

## Title
[Create an informative title]

## Executive Summary
- Provide 3-5 concise bullet points highlighting key findings
- Tailor to the farmer's location, crops, and climate

## Key Findings
[Present the most important discoveries from your research]

## Detailed Analysis
### [Topic 1]
[In-depth analysis]
### [Topic 2]
[In-depth analysis]

## Practical Recommendations
- Actionable steps the farmer can take
- Consider local conditions and resources
- Include timelines if applicable

If you use information from the Web Research Results you MUST cite it with the [Source X] tag.
Do NOT include a "Sources" section. It will be added automatically.
Format your response in clear Markdown.`)
	return b.String()
}

func farmerProfileBlock(p *domain.UserProfile) string {
	if !p.Complete() {
		return "[Farmer Profile]\nProfile not completed. Provide general agriculture advice applicable to various conditions."
	}
	return fmt.Sprintf(`[Farmer Profile]
Farmer Name: %s
Location: %s
Field Size: %s
Climate: %s
Crops Currently Growing: %s

IMPORTANT: All research and recommendations must be tailored to this farmer's specific location, climate, crops, and field size.`,
		orDefault(p.Username, "Unknown"),
		orDefault(p.Location, "Not specified"),
		orDefault(p.FieldSize, "Not specified"),
		orDefault(p.Climate, "Not specified"),
		orDefault(strings.Join(p.CropsGrown, ", "), "Not specified"),
	)
}

func researchSources(sources []domain.Source, searched bool) string {
	switch {
	case len(sources) > 0:
		return "## Sources\n" + FormatSources(sources)
	case searched:
		return "## Sources\nWeb search was conducted, but no specific articles were cited."
	default:
		return "## Sources\nThis report was generated based on general knowledge and did not require external web searches."
	}
}
