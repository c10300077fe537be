package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/sentio/internal/sentiment"
)

const recentMessages = 10

// NewMCPServer exposes the pipeline as MCP tools and resources.
func NewMCPServer(svc Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"sentio",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sentio: enrich chat messages with summaries, replies and sentiment, and search them semantically."),
		server.WithRecovery(),
	)

	s.AddTools(mcpTools(svc)...)

	s.AddResource(
		mcp.NewResource(
			"messages://recent",
			"Recent Messages",
			mcp.WithResourceDescription("Last 10 processed messages with their summaries"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(svc),
	)

	return s
}

// mcpTools lists the tools NewMCPServer registers.
func mcpTools(svc Service) []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("process_message",
				mcp.WithDescription("Enrich a chat message with a summary, an automatic reply and a sentiment label, then store and index it."),
				mcp.WithString("message", mcp.Description("The message text"), mcp.Required()),
			),
			Handler: mcpProcessMessage(svc),
		},
		{
			Tool: mcp.NewTool("semantic_search",
				mcp.WithDescription("Find stored messages semantically similar to a query, closest first."),
				mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
				mcp.WithNumber("topK", mcp.Description("Maximum number of results (default 5)")),
			),
			Handler: mcpSemanticSearch(svc),
		},
		{
			Tool: mcp.NewTool("summarize_text",
				mcp.WithDescription("Summarize a text concisely in Portuguese."),
				mcp.WithString("text", mcp.Description("Text to summarize"), mcp.Required()),
			),
			Handler: mcpSummarize(svc),
		},
		{
			Tool: mcp.NewTool("translate_text",
				mcp.WithDescription("Translate a text into a target language."),
				mcp.WithString("text", mcp.Description("Text to translate"), mcp.Required()),
				mcp.WithString("targetLanguage", mcp.Description("Target language"), mcp.Required()),
			),
			Handler: mcpTranslate(svc),
		},
		{
			Tool: mcp.NewTool("generate_code",
				mcp.WithDescription("Generate code from a description."),
				mcp.WithString("description", mcp.Description("What the code should do"), mcp.Required()),
				mcp.WithString("language", mcp.Description("Programming language"), mcp.Required()),
			),
			Handler: mcpGenerateCode(svc),
		},
		{
			Tool: mcp.NewTool("messages_by_sentiment",
				mcp.WithDescription("List stored messages with a sentiment label, newest first."),
				mcp.WithString("sentiment", mcp.Description("POSITIVE, NEGATIVE or NEUTRAL"), mcp.Required()),
				mcp.WithNumber("limit", mcp.Description("Maximum number of messages")),
			),
			Handler: mcpBySentiment(svc),
		},
	}
}

func mcpProcessMessage(svc Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		msg, err := req.RequireString("message")
		if err != nil || isBlank(msg) {
			return mcpError("message is required"), nil
		}
		res, err := svc.ProcessMessage(ctx, msg)
		if err != nil {
			return mcpError(fmt.Sprintf("processing failed: %v", err)), nil
		}
		return mcpJSON(res)
	}
}

func mcpSemanticSearch(svc Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || isBlank(query) {
			return mcpError("query is required"), nil
		}
		msgs, err := svc.SemanticSearch(ctx, query, req.GetInt("topK", 0))
		if err != nil {
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return mcpJSON(nonNil(msgs))
	}
}

func mcpSummarize(svc Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || isBlank(text) {
			return mcpError("text is required"), nil
		}
		out, err := svc.Summarize(ctx, text)
		if err != nil {
			return mcpError(fmt.Sprintf("summarization failed: %v", err)), nil
		}
		return mcpText(out), nil
	}
}

func mcpTranslate(svc Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil || isBlank(text) {
			return mcpError("text is required"), nil
		}
		lang, err := req.RequireString("targetLanguage")
		if err != nil || isBlank(lang) {
			return mcpError("targetLanguage is required"), nil
		}
		out, err := svc.Translate(ctx, text, lang)
		if err != nil {
			return mcpError(fmt.Sprintf("translation failed: %v", err)), nil
		}
		return mcpText(out), nil
	}
}

func mcpGenerateCode(svc Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		desc, err := req.RequireString("description")
		if err != nil || isBlank(desc) {
			return mcpError("description is required"), nil
		}
		lang, err := req.RequireString("language")
		if err != nil || isBlank(lang) {
			return mcpError("language is required"), nil
		}
		out, err := svc.GenerateCode(ctx, desc, lang)
		if err != nil {
			return mcpError(fmt.Sprintf("code generation failed: %v", err)), nil
		}
		return mcpText(out), nil
	}
}

func mcpBySentiment(svc Service) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := req.RequireString("sentiment")
		if err != nil {
			return mcpError("sentiment is required"), nil
		}
		label, err := sentiment.ParseLabel(raw)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		msgs, err := svc.BySentiment(ctx, label, req.GetInt("limit", 0))
		if err != nil {
			return mcpError(fmt.Sprintf("listing failed: %v", err)), nil
		}
		return mcpJSON(nonNil(msgs))
	}
}

func mcpResourceRecent(svc Service) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		msgs, err := svc.History(ctx, recentMessages)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent messages: %w", err)
		}

		type messageSummary struct {
			ID        int64           `json:"id"`
			CreatedAt string          `json:"createdAt"`
			Message   string          `json:"message"`
			Summary   string          `json:"summary"`
			Sentiment sentiment.Label `json:"sentiment"`
		}

		summaries := make([]messageSummary, len(msgs))
		for i, m := range msgs {
			text := m.OriginalMessage
			if utf8.RuneCountInString(text) > 200 {
				runes := []rune(text)
				text = string(runes[:200]) + "..."
			}
			summaries[i] = messageSummary{
				ID:        m.ID,
				CreatedAt: m.CreatedAt.Format(time.RFC3339),
				Message:   text,
				Summary:   m.Summary,
				Sentiment: m.Sentiment,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal messages: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
