package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/banter/internal/chat"
	"github.com/hpungsan/banter/internal/config"
	"github.com/hpungsan/banter/internal/conversation"
	"github.com/hpungsan/banter/internal/errors"
	"github.com/hpungsan/banter/internal/export"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	session    *conversation.Session
	cfg        *config.Config
	exportsDir string
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(sess *conversation.Session, cfg *config.Config, exportsDir string) *Handlers {
	return &Handlers{session: sess, cfg: cfg, exportsDir: exportsDir}
}

// SendRequest represents the arguments for chat_send.
type SendRequest struct {
	Message     string `json:"message"`
	Category    string `json:"category,omitempty"`
	Personality string `json:"personality,omitempty"`
}

// HistoryRequest represents the arguments for chat_history.
type HistoryRequest struct {
	Category string `json:"category,omitempty"`
	Search   string `json:"search,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// ExportRequest represents the arguments for chat_export.
type ExportRequest struct {
	Category string `json:"category,omitempty"`
	Path     string `json:"path,omitempty"`
}

// SendOutput is the chat_send result.
type SendOutput struct {
	Outcome  string `json:"outcome"`
	Category string `json:"category"`
	// Reply is the assistant message appended by this call; empty when the message was ignored.
	Reply string `json:"reply,omitempty"`
}

// HistoryOutput is the chat_history result.
type HistoryOutput struct {
	Category string         `json:"category"`
	Messages []chat.Message `json:"messages"`
	Total    int            `json:"total"`
}

// CategoryItem is one entry of chat_categories.
type CategoryItem struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Messages int    `json:"messages"`
}

// resolveCategory returns the normalized category id, or the active one when id is empty.
func (h *Handlers) resolveCategory(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return h.session.ActiveCategory(), nil
	}
	cat, err := chat.LookupCategory(id)
	if err != nil {
		return "", err
	}
	return cat.ID, nil
}

// HandleSend handles the chat_send tool call.
func (h *Handlers) HandleSend(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SendRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if chat.IsBlank(input.Message) {
		return errorResult(errors.NewInvalidRequest("message is required")), nil
	}

	category, err := h.resolveCategory(input.Category)
	if err != nil {
		return errorResult(err), nil
	}
	outcome, reply, err := h.session.SendTo(ctx, category, input.Personality, input.Message)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(SendOutput{Outcome: outcome.String(), Category: category, Reply: reply})
}

// HandleHistory handles the chat_history tool call.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	if input.Limit < 0 {
		return errorResult(errors.NewInvalidRequest("limit must not be negative")), nil
	}

	category, err := h.resolveCategory(input.Category)
	if err != nil {
		return errorResult(err), nil
	}

	all := h.session.Snapshot().Chats[category]
	msgs := slices.Collect(h.session.FilteredView(category, input.Search))
	if msgs == nil {
		msgs = []chat.Message{}
	}
	if input.Limit > 0 && len(msgs) > input.Limit {
		msgs = msgs[len(msgs)-input.Limit:]
	}

	return successResult(HistoryOutput{Category: category, Messages: msgs, Total: len(all)})
}

// HandleCategories handles the chat_categories tool call.
func (h *Handlers) HandleCategories(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := h.session.Snapshot()
	items := make([]CategoryItem, 0, len(chat.Categories()))
	for _, c := range chat.Categories() {
		items = append(items, CategoryItem{ID: c.ID, Label: c.Label, Messages: len(snap.Chats[c.ID])})
	}
	return successResult(map[string]any{
		"categories": items,
		"active":     snap.ActiveCategory,
	})
}

// HandleExport handles the chat_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	category, err := h.resolveCategory(input.Category)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := export.WriteFile(h.exportsDir, h.cfg, export.Input{
		Category: category,
		Messages: h.session.Snapshot().Chats[category],
		Path:     input.Path,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleReminder handles the reminder_get tool call.
func (h *Handlers) HandleReminder(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return successResult(map[string]any{"reminder": h.session.Reminder()})
}

// HandleTodos handles the todo_list tool call.
func (h *Handlers) HandleTodos(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	todos := h.session.Todos()
	return successResult(map[string]any{"todos": todos, "count": len(todos)})
}

// errorResult creates an MCP error result from an error.
// Wrapping context added with fmt.Errorf is kept in the message.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var bErr *errors.BanterError
	if stderrors.As(err, &bErr) {
		message := bErr.Message
		if err != error(bErr) {
			message = strings.TrimSuffix(err.Error(), bErr.Error()) + bErr.Message
		}
		errorObj := map[string]any{
			"code":    bErr.Code,
			"message": message,
			"status":  bErr.Status,
		}
		// Internal errors may carry file paths or SQL text
		if bErr.Code != errors.ErrInternal && bErr.Details != nil {
			errorObj["details"] = bErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
