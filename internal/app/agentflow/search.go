package agentflow

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/fieldwise/agrichat/internal/app/tools"
	"github.com/fieldwise/agrichat/internal/domain"
	"github.com/fieldwise/agrichat/internal/observability"
)

// SearchContext is the normalized web evidence for one turn.
type SearchContext struct {
	Answer  string
	Sources []domain.Source
}

// SearchAugmenter runs the search-need classifier and, when it says YES,
// the ask_to_web tool.
type SearchAugmenter struct {
	need    *Classifier
	web     tools.Tool
	timeout time.Duration
}

func NewSearchAugmenter(need *Classifier, web tools.Tool, timeout time.Duration) *SearchAugmenter {
	return &SearchAugmenter{
		need:    need,
		web:     web,
		timeout: timeout,
	}
}

// NeedsSearch asks the search-need classifier. It is only meaningful when
// the user opted in; otherwise it returns false without calling the LLM.
func (a *SearchAugmenter) NeedsSearch(ctx context.Context, query string, optedIn bool) (bool, error) {
	if !optedIn || a.web == nil {
		return false, nil
	}
	label, err := a.need.Classify(ctx, ClassifierInput{Message: query})
	if err != nil {
		return false, err
	}
	return label == domain.LabelYes, nil
}

// MaybeSearch returns search evidence, or nil when the user did not opt in,
// the classifier said NO, or the search failed in any way. The error is
// only set for classifier failures that end the turn.
func (a *SearchAugmenter) MaybeSearch(ctx context.Context, query string, optedIn bool) (*SearchContext, error) {
	need, err := a.NeedsSearch(ctx, query, optedIn)
	if err != nil || !need {
		return nil, err
	}
	return a.Fetch(ctx, query), nil
}

// Fetch runs the web search. Failures are logged and degrade to nil.
func (a *SearchAugmenter) Fetch(ctx context.Context, query string) *SearchContext {
	log := observability.LoggerFromContext(ctx).With("tool", a.web.Name())

	callCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := a.web.Call(callCtx, tools.ToolContext{
		RequestID: observability.RequestIDFromContext(ctx),
	}, map[string]any{"query": query})
	if err != nil {
		log.Warn("web search failed, continuing without it", "error", err)
		return nil
	}

	answer, _ := out["answer"].(string)
	sc := &SearchContext{
		Answer:  strings.TrimSpace(answer),
		Sources: NormalizeReferences(out["references"]),
	}
	if sc.Answer == "" && len(sc.Sources) == 0 {
		log.Warn("web search returned nothing usable")
		return nil
	}

	log.Info("web search done",
		"sources", len(sc.Sources),
		"elapsed_ms", time.Since(start).Milliseconds())
	return sc
}

// NormalizeReferences turns whatever a search provider returned into
// sources. raw may be a JSON string, a single object or an array of
// objects whose field names vary by provider. Entries without an http(s)
// URL are dropped; anything unrecognised yields nil.
func NormalizeReferences(raw any) []domain.Source {
	switch v := raw.(type) {
	case nil:
		return nil
	case string:
		return normalizeJSON([]byte(strings.TrimSpace(v)))
	case []byte:
		return normalizeJSON(v)
	case json.RawMessage:
		return normalizeJSON(v)
	case []domain.Source:
		var out []domain.Source
		for _, s := range v {
			if usableURL(s.URL) {
				out = append(out, s)
			}
		}
		return out
	case map[string]any:
		if s, ok := sourceFromMap(v); ok {
			return []domain.Source{s}
		}
		return nil
	case []map[string]any:
		var out []domain.Source
		for _, m := range v {
			if s, ok := sourceFromMap(m); ok {
				out = append(out, s)
			}
		}
		return out
	case []any:
		var out []domain.Source
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if s, ok := sourceFromMap(m); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func normalizeJSON(data []byte) []domain.Source {
	if len(data) == 0 {
		return nil
	}
	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil
	}
	switch parsed.(type) {
	case map[string]any, []any:
		return NormalizeReferences(parsed)
	default:
		return nil
	}
}

func sourceFromMap(m map[string]any) (domain.Source, bool) {
	link := firstString(m, "url", "link")
	if !usableURL(link) {
		return domain.Source{}, false
	}
	title := firstString(m, "title", "name")
	if title == "" {
		title = "Untitled"
	}
	return domain.Source{
		Title:         title,
		URL:           link,
		Content:       firstString(m, "content", "snippet", "description"),
		PublishedDate: firstString(m, "publishedDate", "published_date"),
	}, true
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

func usableURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
