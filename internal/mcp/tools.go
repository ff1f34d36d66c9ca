package mcp

import "github.com/mark3labs/mcp-go/mcp"

var sendToolDef = mcp.NewTool("chat_send",
	mcp.WithDescription("Send a message in a chat category and return the assistant reply. "+
		"Messages starting with /reminder or /todo are handled locally and never reach the assistant."),
	mcp.WithString("message", mcp.Required(), mcp.Description("Message text")),
	mcp.WithString("category", mcp.Description("Category id (general, code, life, jokes). Defaults to the active category.")),
	mcp.WithString("personality", mcp.Description("Personality id to use for this and later messages")),
)

var historyToolDef = mcp.NewTool("chat_history",
	mcp.WithDescription("Return the messages of a chat category, optionally filtered by a case-insensitive search term."),
	mcp.WithString("category", mcp.Description("Category id. Defaults to the active category.")),
	mcp.WithString("search", mcp.Description("Only return messages containing this text")),
	mcp.WithNumber("limit", mcp.Description("Return only the most recent N messages")),
)

var categoriesToolDef = mcp.NewTool("chat_categories",
	mcp.WithDescription("List chat categories with their message counts and the active category."),
)

var exportToolDef = mcp.NewTool("chat_export",
	mcp.WithDescription("Write a category transcript as \"Role: content\" lines to <category>-chat.txt in the exports directory."),
	mcp.WithString("category", mcp.Description("Category id. Defaults to the active category.")),
	mcp.WithString("path", mcp.Description("Destination .txt path; must be directly in the exports directory or an allowed path")),
)

var reminderToolDef = mcp.NewTool("reminder_get",
	mcp.WithDescription("Return the stored reminder (set with /reminder)."),
)

var todoListToolDef = mcp.NewTool("todo_list",
	mcp.WithDescription("Return the to-do list (items added with /todo)."),
)
