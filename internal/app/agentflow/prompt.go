package agentflow

import (
	"fmt"
	"strings"

	"github.com/fieldwise/agrichat/internal/domain"
)

// PromptInput is everything the final completion prompt is built from.
// Conversation is the output of BuildContext.
type PromptInput struct {
	Question     string
	AgentMode    bool
	ReportMode   bool
	Profile      *domain.UserProfile
	Referencing  bool
	Conversation string
	DocumentText string
	Search       *SearchContext
}

const roleStatement = "You are an agriculture AI assistant."

const agentModeNote = `[Agent Mode]
- First, use the provided chat context and documents to reason.
- If more current information is needed, rely on the web search results when they are present.
- The web search tool returns an answer plus numbered references.`

const reportModeNote = `[Report Mode]
Produce a comprehensive, well-structured report with the following sections (use Markdown headings):
- Title
- Executive Summary (5-8 concise bullets)
- Table of Contents
- Background / Context
- Key Findings
- Detailed Analysis (use multiple subsections with ### headings)
- Data, Examples or Evidence (use bullet points or tables)
- Limitations and Assumptions
- Conclusion
- Recommendations / Next Steps

Formatting rules:
- Use clear Markdown headings (##, ###) and short paragraphs.
- Use bullet lists and tables where helpful.
- When you reference external facts, cite with [n] that maps to Sources.
- At the end, include a Sources section listing each source on its own line as: [number]: [Title](URL).`

// Assemble builds the completion prompt. Sections appear in a fixed order:
// role, mode notes, profile, conversation, document, web results, question,
// instruction. Inputs are inserted verbatim.
func Assemble(in PromptInput) string {
	sections := []string{roleStatement}

	if in.AgentMode {
		sections = append(sections, agentModeNote)
	}
	if in.ReportMode {
		sections = append(sections, reportModeNote)
	}
	if block := UserContextBlock(in.Profile); block != "" {
		sections = append(sections, block)
	}
	if in.Conversation != "" {
		if in.Referencing {
			sections = append(sections, in.Conversation)
		} else {
			sections = append(sections, "Recent User Messages:\n"+in.Conversation)
		}
	}
	if in.DocumentText != "" {
		sections = append(sections, "Fetched Document Data:\n"+in.DocumentText+"\n\nUse the above document content to answer the user's question.")
	}

	hasSearch := in.Search != nil
	if hasSearch {
		var b strings.Builder
		b.WriteString("Web Search Results:\n")
		if in.Search.Answer != "" {
			b.WriteString(in.Search.Answer)
		} else {
			b.WriteString("No summary answer was returned.")
		}
		if len(in.Search.Sources) > 0 {
			b.WriteString("\n\nNumbered Sources:\n")
			b.WriteString(FormatSources(in.Search.Sources))
		}
		sections = append(sections, b.String())
	}

	sections = append(sections, "User Question: "+in.Question)

	switch {
	case hasSearch:
		sections = append(sections, "Provide a direct answer. Cite web sources using [1], [2]. Include a Sources section at the end.")
	case in.Referencing:
		sections = append(sections, "Answer directly based on the conversation history and documents provided.")
	default:
		sections = append(sections, "Answer directly and concisely.")
	}

	return strings.Join(sections, "\n\n")
}

// UserContextBlock renders a completed profile. Incomplete or missing
// profiles contribute nothing.
func UserContextBlock(p *domain.UserProfile) string {
	if !p.Complete() {
		return ""
	}
	return fmt.Sprintf(`[User Profile]
Farmer: %s
Location: %s
Field Size: %s
Crops: %s
Climate: %s

Note: Provide advice tailored to this farmer's location, crops, and climate conditions.`,
		orDefault(p.Username, "Unknown"),
		orDefault(p.Location, "Not specified"),
		orDefault(p.FieldSize, "Not specified"),
		orDefault(strings.Join(p.CropsGrown, ", "), "Not specified"),
		orDefault(p.Climate, "Not specified"),
	)
}

// FormatSources renders sources as "[n]: [Title](URL)" lines.
func FormatSources(sources []domain.Source) string {
	lines := make([]string, 0, len(sources))
	for i, s := range sources {
		lines = append(lines, fmt.Sprintf("[%d]: [%s](%s)", i+1, s.Title, s.URL))
	}
	return strings.Join(lines, "\n")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
