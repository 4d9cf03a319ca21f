package agentflow

import (
	"fmt"
	"strings"

	"github.com/fieldwise/agrichat/internal/domain"
)

const (
	// minimal anchor
	anchorMessageChars  = 500
	anchorDocumentChars = 400

	// full history
	historyWindow        = 20
	historyMaxExchanges  = 8
	historyUserChars     = 1000
	historyDocumentChars = 1000
	historyReplyChars    = 800

	noResponseRecorded = "[No response recorded]"

	// attached file names, in history and in the gate prompt
	maxListedFiles    = 10
	maxFileNameChars  = 100
)

// BuildContext renders the part of the chat history that goes into the
// prompt. With referencing it renders the recent exchanges, otherwise only
// the last two user messages. The result is bounded in size whatever the
// length of history.
func BuildContext(history []*domain.Message, referencing bool) string {
	if referencing {
		return buildHistoryBlock(history)
	}
	return buildAnchor(history)
}

func buildAnchor(history []*domain.Message) string {
	var last, secondLast *domain.Message
	for i := len(history) - 1; i >= 0 && secondLast == nil; i-- {
		m := history[i]
		if m == nil || m.Role != domain.RoleUser {
			continue
		}
		if last == nil {
			last = m
		} else {
			secondLast = m
		}
	}
	return fmt.Sprintf("LastMessage: %s\nSecondLastMessage: %s", anchorLine(last), anchorLine(secondLast))
}

func anchorLine(m *domain.Message) string {
	if m == nil {
		return "none"
	}
	line := truncate(m.Content, anchorMessageChars)
	if m.DocumentData != "" {
		line += "\n[Document: " + truncate(m.DocumentData, anchorDocumentChars) + "]"
	}
	return line
}

type exchange struct {
	user      string
	assistant string
}

func buildHistoryBlock(history []*domain.Message) string {
	window := history
	if len(window) > historyWindow {
		window = window[len(window)-historyWindow:]
	}

	var pairs []exchange
	for i := 0; i < len(window); {
		m := window[i]
		if m == nil || m.Role != domain.RoleUser {
			// assistant without a preceding user message inside the window
			i++
			continue
		}

		p := exchange{user: formatUserTurn(m), assistant: noResponseRecorded}
		if i+1 < len(window) && window[i+1] != nil && window[i+1].Role == domain.RoleAssistant {
			p.assistant = truncate(window[i+1].Content, historyReplyChars)
			i += 2
		} else {
			i++
		}
		pairs = append(pairs, p)
	}

	if len(pairs) > historyMaxExchanges {
		pairs = pairs[len(pairs)-historyMaxExchanges:]
	}

	blocks := make([]string, 0, len(pairs))
	for n, p := range pairs {
		blocks = append(blocks, fmt.Sprintf("[Exchange %d]\nUser: %s\nAssistant: %s", n+1, p.user, p.assistant))
	}

	return "=== CONVERSATION HISTORY ===\n" + strings.Join(blocks, "\n\n---\n\n") + "\n=== END HISTORY ==="
}

func formatUserTurn(m *domain.Message) string {
	s := truncate(m.Content, historyUserChars)
	if len(m.Files) > 0 {
		s += "\n[Files]: " + fileList(m.Files)
	}
	if m.DocumentData != "" {
		s += "\n[Document Content]: " + truncate(m.DocumentData, historyDocumentChars)
	}
	return s
}

// fileList joins at most maxListedFiles names, each cut to maxFileNameChars,
// and counts the rest.
func fileList(names []string) string {
	shown := names
	if len(shown) > maxListedFiles {
		shown = shown[:maxListedFiles]
	}
	parts := make([]string, 0, len(shown)+1)
	for _, n := range shown {
		parts = append(parts, truncate(n, maxFileNameChars))
	}
	if extra := len(names) - len(shown); extra > 0 {
		parts = append(parts, fmt.Sprintf("(+%d more)", extra))
	}
	return strings.Join(parts, ", ")
}

// cutRunes cuts s to at most n runes without a marker.
func cutRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// truncate cuts s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
