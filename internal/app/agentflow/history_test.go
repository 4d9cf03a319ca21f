package agentflow_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fieldwise/agrichat/internal/app/agentflow"
	"github.com/fieldwise/agrichat/internal/domain"
)

func user(content string) *domain.Message {
	return &domain.Message{Role: domain.RoleUser, Content: content}
}

func assistant(content string) *domain.Message {
	return &domain.Message{Role: domain.RoleAssistant, Content: content}
}

func conversation(pairs int) []*domain.Message {
	var msgs []*domain.Message
	for i := 1; i <= pairs; i++ {
		msgs = append(msgs,
			user(fmt.Sprintf("question %d %s", i, strings.Repeat("q", 1200))),
			assistant(fmt.Sprintf("answer %d %s", i, strings.Repeat("a", 1200))),
		)
	}
	return msgs
}

func TestBuildContext_Anchor(t *testing.T) {
	assert.Equal(t, "LastMessage: none\nSecondLastMessage: none", agentflow.BuildContext(nil, false))

	history := []*domain.Message{
		user("first"),
		assistant("reply"),
		{Role: domain.RoleUser, Content: "second", DocumentData: strings.Repeat("d", 500)},
		assistant("reply 2"),
		user("third"),
	}
	out := agentflow.BuildContext(history, false)

	assert.True(t, strings.HasPrefix(out, "LastMessage: third\nSecondLastMessage: second\n[Document: "))
	assert.Contains(t, out, strings.Repeat("d", 400)+"...]")
	assert.NotContains(t, out, "first")
	assert.NotContains(t, out, "reply")
}

func TestBuildContext_Bounded(t *testing.T) {
	short := agentflow.BuildContext(conversation(1)[:1], true)
	long := agentflow.BuildContext(conversation(500), true)

	assert.Equal(t, 1, strings.Count(short, "[Exchange "))
	assert.Equal(t, 8, strings.Count(long, "[Exchange "))
	assert.True(t, strings.HasPrefix(long, "=== CONVERSATION HISTORY ===\n"))
	assert.True(t, strings.HasSuffix(long, "\n=== END HISTORY ==="))

	// the tail of a longer conversation renders to the same size
	longer := agentflow.BuildContext(conversation(1000), true)
	assert.Equal(t, 8, strings.Count(longer, "[Exchange "))
	assert.InDelta(t, len(long), len(longer), 64)

	assert.Contains(t, long, "question 500")
	assert.NotContains(t, long, "question 492 ")
	// "answer N " plus 1200 a's is cut to 800 runes
	assert.Contains(t, long, strings.Repeat("a", 780)+"...")
	assert.NotContains(t, long, strings.Repeat("a", 790))
}

func TestBuildContext_BrokenPairingDoesNotShift(t *testing.T) {
	history := []*domain.Message{
		assistant("welcome"),
		user("u1"),
		user("u2"),
		assistant("a2"),
		user("u3"),
		assistant("a3"),
	}
	out := agentflow.BuildContext(history, true)

	assert.Equal(t, 3, strings.Count(out, "[Exchange "))
	assert.Contains(t, out, "[Exchange 1]\nUser: u1\nAssistant: [No response recorded]")
	assert.Contains(t, out, "[Exchange 2]\nUser: u2\nAssistant: a2")
	assert.Contains(t, out, "[Exchange 3]\nUser: u3\nAssistant: a3")
	assert.NotContains(t, out, "welcome")
}

func TestBuildContext_FilesAndDocuments(t *testing.T) {
	history := []*domain.Message{
		{Role: domain.RoleUser, Content: "see report", Files: []string{"a.pdf", "b.txt"}, DocumentData: strings.Repeat("z", 1200)},
		assistant("ok"),
	}
	out := agentflow.BuildContext(history, true)

	assert.Contains(t, out, "User: see report\n[Files]: a.pdf, b.txt\n[Document Content]: ")
	assert.Contains(t, out, strings.Repeat("z", 1000)+"...")
	assert.NotContains(t, out, strings.Repeat("z", 1001))
}

func TestBuildContext_FileListIsBounded(t *testing.T) {
	names := make([]string, 50)
	for i := range names {
		names[i] = fmt.Sprintf("%02d-%s.pdf", i, strings.Repeat("f", 300))
	}
	msg := user("compare these reports")
	msg.Files = names

	out := agentflow.BuildContext([]*domain.Message{msg, assistant("ok")}, true)

	assert.Contains(t, out, "09-"+strings.Repeat("f", 97)+"...")
	assert.NotContains(t, out, "10-")
	assert.NotContains(t, out, strings.Repeat("f", 98))
	assert.Contains(t, out, "(+40 more)")
}
