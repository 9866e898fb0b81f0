// Package mcpserver exposes tally to MCP clients. Agents can record
// expenses through the same router chat messages use, or just parse text.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/spetersoncode/tally/internal/channel"
	"github.com/spetersoncode/tally/internal/domain"
	"github.com/spetersoncode/tally/internal/parse"
)

// ChannelName is the channel of messages received through MCP.
const ChannelName = "mcp"

const defaultConversation = "default"

// Router processes one inbound message, sending replies through out.
type Router interface {
	HandleWith(ctx context.Context, msg domain.InboundMessage, out channel.Sender) error
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	name     string
	version  string
	currency string
}

// WithName sets the server name reported to MCP clients.
func WithName(name string) ServerOption {
	return func(c *serverConfig) { c.name = name }
}

// WithVersion sets the server version reported to MCP clients.
func WithVersion(version string) ServerOption {
	return func(c *serverConfig) { c.version = version }
}

// WithCurrency sets the currency parse_expense assumes when the text
// names none.
func WithCurrency(code string) ServerOption {
	return func(c *serverConfig) { c.currency = code }
}

// NewServer creates an MCP server with the record_expense and
// parse_expense tools. A nil router leaves out record_expense.
func NewServer(r Router, p *parse.Parser, opts ...ServerOption) *server.MCPServer {
	cfg := &serverConfig{name: "tally", version: "1.0.0", currency: "THB"}
	for _, opt := range opts {
		opt(cfg)
	}

	s := server.NewMCPServer(cfg.name, cfg.version, server.WithToolCapabilities(true))

	if r != nil {
		s.AddTool(mcp.NewTool("record_expense",
			mcp.WithDescription("Record an expense from a chat-style message such as \"coffee 65\" or \"lunch 600 @all\". Returns tally's replies, including any clarifying question; answer it by calling the tool again with the same conversation_id."),
			mcp.WithString("text", mcp.Required(), mcp.Description("The message text")),
			mcp.WithString("conversation_id", mcp.Description("Conversation to record into; defaults to \"default\"")),
			mcp.WithString("sender_id", mcp.Description("Who paid; defaults to the conversation")),
		), recordHandler(r))
	}

	s.AddTool(mcp.NewTool("parse_expense",
		mcp.WithDescription("Parse an expense message into structured fields without recording it."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The message text")),
		mcp.WithString("currency", mcp.Description("Currency code to assume when the text names none")),
	), parseHandler(p, cfg.currency))

	return s
}

// ServeStdio serves s over stdin and stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

type recordArgs struct {
	Text           string `json:"text"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
}

func recordHandler(r Router) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args recordArgs
		if err := decodeArgs(req, &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if strings.TrimSpace(args.Text) == "" {
			return mcp.NewToolResultError("text is required"), nil
		}
		if args.ConversationID == "" {
			args.ConversationID = defaultConversation
		}
		if args.SenderID == "" {
			args.SenderID = args.ConversationID
		}

		msg := domain.InboundMessage{
			Channel:  ChannelName,
			SourceID: args.ConversationID,
			SenderID: args.SenderID,
			Text:     args.Text,
		}
		out := channel.NewRecorder()
		if err := r.HandleWith(ctx, msg, out); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to process message: %v", err)), nil
		}
		return mcp.NewToolResultText(strings.Join(out.Texts(channel.TargetOf(msg)), "\n\n")), nil
	}
}

type parseArgs struct {
	Text     string `json:"text"`
	Currency string `json:"currency"`
}

func parseHandler(p *parse.Parser, currency string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args parseArgs
		if err := decodeArgs(req, &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if args.Currency == "" {
			args.Currency = currency
		}
		data, err := json.Marshal(p.Parse(args.Text, strings.ToUpper(args.Currency)))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

func decodeArgs(req mcp.CallToolRequest, v any) error {
	if req.Params.Arguments == nil {
		return nil
	}
	data, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal arguments: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
