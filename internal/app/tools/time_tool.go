package tools

import (
	"context"
	"time"
)

// CurrentTimeTool is the get_current_time tool.
type CurrentTimeTool struct {
	now func() time.Time
}

func NewCurrentTimeTool() *CurrentTimeTool {
	return &CurrentTimeTool{now: time.Now}
}

func (t *CurrentTimeTool) Name() string {
	return "get_current_time"
}

// Call ignores its input and returns {"time": RFC3339, "text": "Current time: ..."}.
func (t *CurrentTimeTool) Call(_ context.Context, _ ToolContext, _ map[string]any) (map[string]any, error) {
	now := t.now().UTC()
	return map[string]any{
		"time": now.Format(time.RFC3339),
		"text": "Current time: " + now.Format(time.RFC3339),
	}, nil
}
