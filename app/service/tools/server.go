// Package tools exposes the moderation pipeline steps as MCP tools so agents
// can classify and screen text without going through the chat gateway.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"companion/app/service/pacing"
	"companion/app/service/prompt"
	"companion/app/service/safety"
	"companion/app/service/tone"

	"github.com/elliotchance/pie/v2"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	ServerName = "companion-moderation"

	ToolClassifyTone  = "classify_tone"
	ToolComposePrompt = "compose_prompt"
	ToolCheckSafety   = "check_safety"
	ToolTypingDelay   = "typing_delay"
)

type SafetyResult struct {
	Text      string `json:"text"`
	Triggered bool   `json:"triggered"`
}

func NewServer(version string) *server.MCPServer {
	s := server.NewMCPServer(ServerName, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool(ToolClassifyTone,
		mcp.WithDescription("Classify the emotional tone of a message. Returns one of: "+labelNames()+"."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Latest user message"),
		),
	), handleClassifyTone)

	s.AddTool(mcp.NewTool(ToolComposePrompt,
		mcp.WithDescription("Build the supportive system prompt used for a given tone."),
		mcp.WithString("tone",
			mcp.Required(),
			mcp.Description("Tone label"),
			mcp.Enum(pie.Map(tone.Labels, tone.Label.String)...),
		),
	), handleComposePrompt)

	s.AddTool(mcp.NewTool(ToolCheckSafety,
		mcp.WithDescription("Screen a draft reply and the user's last message for crisis language. Returns JSON with the text to show and whether the crisis override fired."),
		mcp.WithString("draft",
			mcp.Required(),
			mcp.Description("Draft assistant reply"),
		),
		mcp.WithString("last_user_message",
			mcp.Description("Latest user message"),
		),
	), handleCheckSafety)

	s.AddTool(mcp.NewTool(ToolTypingDelay,
		mcp.WithDescription("Typing delay in milliseconds for a reply, between 800 and 3000."),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("Reply text"),
		),
	), handleTypingDelay)

	return s
}

func handleClassifyTone(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(tone.ClassifyText(text).String()), nil
}

func handleComposePrompt(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("tone")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	label, ok := tone.Parse(name)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("unknown tone %q, expected one of: %s", name, labelNames())), nil
	}

	return mcp.NewToolResultText(prompt.Compose(label)), nil
}

func handleCheckSafety(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	draft, err := request.RequireString("draft")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := safety.Check(draft, request.GetString("last_user_message", ""))

	data, err := json.Marshal(SafetyResult{Text: res.Text, Triggered: res.Triggered})
	if err != nil {
		return nil, fmt.Errorf("marshal safety result: %w", err)
	}

	return mcp.NewToolResultText(string(data)), nil
}

func handleTypingDelay(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(strconv.Itoa(pacing.DelayMillis(text))), nil
}

func labelNames() string {
	return strings.Join(pie.Map(tone.Labels, tone.Label.String), ", ")
}
