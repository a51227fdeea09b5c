package bridge

import (
	"context"
	"encoding/json"

	"github.com/dyluth/coordinator/pkg/client"
	"github.com/dyluth/coordinator/pkg/coordination"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Tool names.
const (
	ToolJoin             = "coordinator_join"
	ToolLeave            = "coordinator_leave"
	ToolListAgents       = "coordinator_list_agents"
	ToolShareContext     = "coordinator_share_context"
	ToolGetContext       = "coordinator_get_context"
	ToolListContext      = "coordinator_list_context"
	ToolAsk              = "coordinator_ask"
	ToolAnswer           = "coordinator_answer"
	ToolPendingQuestions = "coordinator_pending_questions"
	ToolLogDecision      = "coordinator_log_decision"
	ToolListDecisions    = "coordinator_list_decisions"
)

var stringItems = mcp.Items(map[string]any{"type": "string"})

// Tools returns every coordinator tool with its handler.
func (b *Bridge) Tools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool(ToolJoin,
				mcp.WithDescription("Join the coordination session as an agent"),
				mcp.WithString("name", mcp.Required(), mcp.Description("Name of this agent")),
				mcp.WithString("role", mcp.Required(), mcp.Enum(string(coordination.RoleSource), string(coordination.RoleTarget)),
					mcp.Description("source provides knowledge, target receives it")),
				mcp.WithString("repoPath", mcp.Required(), mcp.Description("Repository this agent works in")),
			),
			Handler: b.handleJoin,
		},
		{
			Tool:    mcp.NewTool(ToolLeave, mcp.WithDescription("Leave the coordination session")),
			Handler: b.handleLeave,
		},
		{
			Tool:    mcp.NewTool(ToolListAgents, mcp.WithDescription("List all connected agents in the session")),
			Handler: b.handleListAgents,
		},
		{
			Tool: mcp.NewTool(ToolShareContext,
				mcp.WithDescription("Share a context entry with other agents"),
				mcp.WithString("key", mcp.Required(), mcp.Description("Unique key; sharing an existing key replaces it")),
				mcp.WithString("value", mcp.Required(), mcp.Description("Content to share")),
				mcp.WithArray("tags", stringItems, mcp.Description("Tags for filtering")),
			),
			Handler: b.handleShareContext,
		},
		{
			Tool: mcp.NewTool(ToolGetContext,
				mcp.WithDescription("Get a context entry by key"),
				mcp.WithString("key", mcp.Required(), mcp.Description("Key of the entry")),
			),
			Handler: b.handleGetContext,
		},
		{
			Tool: mcp.NewTool(ToolListContext,
				mcp.WithDescription("List context entries with optional filters"),
				mcp.WithArray("tags", stringItems, mcp.Description("Only entries carrying all of these tags")),
				mcp.WithString("createdBy", mcp.Description("Only entries created by this agent ID")),
			),
			Handler: b.handleListContext,
		},
		{
			Tool: mcp.NewTool(ToolAsk,
				mcp.WithDescription("Ask a question to other agents"),
				mcp.WithString("question", mcp.Required(), mcp.Description("The question")),
				mcp.WithString("to", mcp.Description("Agent ID to address; omit to ask everyone")),
			),
			Handler: b.handleAsk,
		},
		{
			Tool: mcp.NewTool(ToolAnswer,
				mcp.WithDescription("Answer a pending question"),
				mcp.WithString("questionId", mcp.Required(), mcp.Description("ID of the question")),
				mcp.WithString("answer", mcp.Required(), mcp.Description("The answer")),
			),
			Handler: b.handleAnswer,
		},
		{
			Tool: mcp.NewTool(ToolPendingQuestions,
				mcp.WithDescription("List pending questions (optionally for a specific agent)"),
				mcp.WithString("agentId", mcp.Description("Filter questions directed to this agent")),
			),
			Handler: b.handlePendingQuestions,
		},
		{
			Tool: mcp.NewTool(ToolLogDecision,
				mcp.WithDescription("Log a decision made during the session"),
				mcp.WithString("decision", mcp.Required(), mcp.Description("What was decided")),
				mcp.WithString("rationale", mcp.Description("Why")),
			),
			Handler: b.handleLogDecision,
		},
		{
			Tool:    mcp.NewTool(ToolListDecisions, mcp.WithDescription("List all decisions made during the session")),
			Handler: b.handleListDecisions,
		},
	}
}

// hub returns the client or a ready-made failure result.
func (b *Bridge) hub(ctx context.Context) (*client.Client, *mcp.CallToolResult) {
	c, err := b.getClient(ctx)
	if err != nil {
		return nil, failure(err, b.url)
	}
	return c, nil
}

func (b *Bridge) handleJoin(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return failure(err, ""), nil
	}
	role, err := req.RequireString("role")
	if err != nil {
		return failure(err, ""), nil
	}
	repoPath, err := req.RequireString("repoPath")
	if err != nil {
		return failure(err, ""), nil
	}

	c, fail := b.hub(ctx)
	if fail != nil {
		return fail, nil
	}

	result, err := c.Join(ctx, name, coordination.Role(role), repoPath)
	if err != nil {
		return failure(err, b.url), nil
	}
	b.setAgentID(result.Agent.ID)

	data, err := json.Marshal(map[string]any{"success": true, "agent": result.Agent, "sessionId": result.SessionID})
	if err != nil {
		return failure(err, ""), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (b *Bridge) handleLeave(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID, err := b.requireAgentID()
	if err != nil {
		return failure(err, ""), nil
	}

	c, fail := b.hub(ctx)
	if fail != nil {
		return fail, nil
	}

	removed, err := c.Leave(ctx, agentID)
	if err != nil {
		return failure(err, b.url), nil
	}
	if removed {
		b.setAgentID("")
	}

	data, _ := json.Marshal(map[string]any{"success": removed})
	return mcp.NewToolResultText(string(data)), nil
}

func (b *Bridge) handleListAgents(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, fail := b.hub(ctx)
	if fail != nil {
		return fail, nil
	}

	agents, err := c.ListAgents(ctx)
	if err != nil {
		return failure(err, b.url), nil
	}
	return success("agents", agents), nil
}

func (b *Bridge) handleShareContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return failure(err, ""), nil
	}
	value, err := req.RequireString("value")
	if err != nil {
		return failure(err, ""), nil
	}
	tags := req.GetStringSlice("tags", nil)

	if _, err := b.requireAgentID(); err != nil {
		return failure(err, ""), nil
	}

	c, fail := b.hub(ctx)
	if fail != nil {
		return fail, nil
	}

	entry, err := c.ShareContext(ctx, key, value, tags)
	if err != nil {
		return failure(err, b.url), nil
	}
	return success("entry", entry), nil
}

func (b *Bridge) handleGetContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return failure(err, ""), nil
	}

	c, fail := b.hub(ctx)
	if fail != nil {
		return fail, nil
	}

	entry, err := c.GetContext(ctx, key)
	if err != nil {
		return failure(err, b.url), nil
	}
	return success("entry", entry), nil
}

func (b *Bridge) handleListContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tags := req.GetStringSlice("tags", nil)
	createdBy := req.GetString("createdBy", "")

	c, fail := b.hub(ctx)
	if fail != nil {
		return fail, nil
	}

	entries, err := c.ListContext(ctx, tags, createdBy)
	if err != nil {
		return failure(err, b.url), nil
	}
	return success("entries", entries), nil
}

func (b *Bridge) handleAsk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return failure(err, ""), nil
	}
	to := req.GetString("to", "")

	if _, err := b.requireAgentID(); err != nil {
		return failure(err, ""), nil
	}

	c, fail := b.hub(ctx)
	if fail != nil {
		return fail, nil
	}

	q, err := c.Ask(ctx, question, to)
	if err != nil {
		return failure(err, b.url), nil
	}
	return success("question", q), nil
}

func (b *Bridge) handleAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	questionID, err := req.RequireString("questionId")
	if err != nil {
		return failure(err, ""), nil
	}
	answer, err := req.RequireString("answer")
	if err != nil {
		return failure(err, ""), nil
	}

	if _, err := b.requireAgentID(); err != nil {
		return failure(err, ""), nil
	}

	c, fail := b.hub(ctx)
	if fail != nil {
		return fail, nil
	}

	q, err := c.Answer(ctx, questionID, answer)
	if err != nil {
		return failure(err, b.url), nil
	}
	return success("question", q), nil
}

func (b *Bridge) handlePendingQuestions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	agentID := req.GetString("agentId", "")

	c, fail := b.hub(ctx)
	if fail != nil {
		return fail, nil
	}

	questions, err := c.ListPendingQuestions(ctx, agentID)
	if err != nil {
		return failure(err, b.url), nil
	}
	return success("questions", questions), nil
}

func (b *Bridge) handleLogDecision(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	decision, err := req.RequireString("decision")
	if err != nil {
		return failure(err, ""), nil
	}
	rationale := req.GetString("rationale", "")

	if _, err := b.requireAgentID(); err != nil {
		return failure(err, ""), nil
	}

	c, fail := b.hub(ctx)
	if fail != nil {
		return fail, nil
	}

	d, err := c.LogDecision(ctx, decision, rationale)
	if err != nil {
		return failure(err, b.url), nil
	}
	return success("decision", d), nil
}

func (b *Bridge) handleListDecisions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, fail := b.hub(ctx)
	if fail != nil {
		return fail, nil
	}

	decisions, err := c.ListDecisions(ctx)
	if err != nil {
		return failure(err, b.url), nil
	}
	return success("decisions", decisions), nil
}
