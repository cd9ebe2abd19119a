// Package agent is the paid sentiment agent served behind the gateway. It
// exposes an MCP "sentiment" tool over streamable HTTP and an agent card
// that stays free to fetch.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	mcpproto "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	httpx402 "github.com/mark3labs/x402-movement/http"
)

// ToolName is the MCP tool the agent sells.
const ToolName = "sentiment"

// Analyzer answers one sentiment query.
type Analyzer interface {
	Analyze(ctx context.Context, query string) (*Analysis, error)
}

// Config holds configuration for an Agent.
type Config struct {
	Name    string
	Version string

	// URL is the public base URL advertised in the agent card.
	URL string

	// Analyzer defaults to LexiconAnalyzer.
	Analyzer Analyzer

	Logger *slog.Logger
}

// Agent serves the sentiment tool and its discovery documents.
type Agent struct {
	mcpServer *mcpserver.MCPServer
	analyzer  Analyzer
	card      Card
	logger    *slog.Logger
}

// New creates an Agent.
func New(cfg Config) (*Agent, error) {
	if cfg.Name == "" {
		cfg.Name = "Sentiment Agent"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = LexiconAnalyzer{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Agent{
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version, mcpserver.WithToolCapabilities(false)),
		analyzer:  cfg.Analyzer,
		card:      NewCard(cfg.Name, cfg.Version, cfg.URL),
		logger:    cfg.Logger,
	}

	tool := mcpproto.NewTool(ToolName,
		mcpproto.WithDescription("Scores the sentiment of a piece of crypto market text"),
		mcpproto.WithString("query", mcpproto.Required(), mcpproto.Description("Text to analyze")),
	)
	a.mcpServer.AddTool(tool, a.handleSentiment)
	return a, nil
}

// Card returns the agent's discovery document.
func (a *Agent) Card() Card {
	return a.card
}

// MCPServer returns the underlying MCP server.
func (a *Agent) MCPServer() *mcpserver.MCPServer {
	return a.mcpServer
}

// Handler serves the agent card at both well-known paths and MCP
// streamable HTTP at "/". It works standalone or mounted under a prefix.
func (a *Agent) Handler() http.Handler {
	streamable := mcpserver.NewStreamableHTTPServer(a.mcpServer,
		mcpserver.WithStateLess(true),
		mcpserver.WithHTTPContextFunc(withPayer),
	)

	r := chi.NewRouter()
	r.Get("/.well-known/agent-card.json", a.serveCard)
	r.Get("/.well-known/agent.json", a.serveCard)
	r.Handle("/", streamable)
	return r
}

func (a *Agent) serveCard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(a.card)
}

type payerKey struct{}

// withPayer copies the paywall's verified payer into the tool context.
func withPayer(ctx context.Context, r *http.Request) context.Context {
	if payment, ok := httpx402.PaymentFromContext(r.Context()); ok && payment.Payer != "" {
		return context.WithValue(ctx, payerKey{}, payment.Payer)
	}
	return ctx
}

// PayerFromContext returns the account that paid for the current tool call.
func PayerFromContext(ctx context.Context) (string, bool) {
	payer, ok := ctx.Value(payerKey{}).(string)
	return payer, ok
}

func (a *Agent) handleSentiment(ctx context.Context, req mcpproto.CallToolRequest) (*mcpproto.CallToolResult, error) {
	args := req.GetArguments()
	query, _ := args["query"].(string)
	if query == "" {
		return mcpproto.NewToolResultError("query is required"), nil
	}

	payer, _ := PayerFromContext(ctx)
	logger := a.logger.With("tool", ToolName, "payer", payer)

	analysis, err := a.analyzer.Analyze(ctx, query)
	if err != nil {
		logger.Error("sentiment analysis failed", "error", err)
		return mcpproto.NewToolResultError(fmt.Sprintf("analysis failed: %v", err)), nil
	}
	analysis.Payer = payer

	out, err := json.Marshal(analysis)
	if err != nil {
		return nil, errors.Join(errors.New("failed to encode analysis"), err)
	}
	logger.Info("sentiment analyzed", "label", analysis.Label, "score", analysis.Score)
	return mcpproto.NewToolResultText(string(out)), nil
}
