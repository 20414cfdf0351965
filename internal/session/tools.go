package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// ToolRegistry publishes tools for a session. The hosting server adapts
// this onto its MCP server; tests substitute a recorder.
type ToolRegistry interface {
	RegisterTools(sessionID string, tools []server.ServerTool) error
}

// minimalTools is the set registered synchronously at the very start of
// initialization. It must never depend on the token manager or client.
func (a *Actor) minimalTools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("get_status",
				mcp.WithDescription("Report the session's lifecycle state and whether brokerage access is available"),
			),
			Handler: a.handleGetStatus,
		},
	}
}

// fullTools is the brokerage toolset, registered as the last step of
// initialization once the client is usable.
func (a *Actor) fullTools() []server.ServerTool {
	return []server.ServerTool{
		{
			Tool: mcp.NewTool("list_accounts",
				mcp.WithDescription("List the brokerage accounts linked to the authorized user"),
			),
			Handler: a.handleListAccounts,
		},
		{
			Tool: mcp.NewTool("get_quotes",
				mcp.WithDescription("Get current market quotes for one or more symbols"),
				mcp.WithString("symbols",
					mcp.Required(),
					mcp.Description("Comma-separated ticker symbols, e.g. AAPL,MSFT"),
				),
			),
			Handler: a.handleGetQuotes,
		},
		{
			Tool: mcp.NewTool("list_orders",
				mcp.WithDescription("List orders for a brokerage account"),
				mcp.WithString("account_id",
					mcp.Required(),
					mcp.Description("Brokerage account identifier"),
				),
			),
			Handler: a.handleListOrders,
		},
		{
			Tool: mcp.NewTool("list_transactions",
				mcp.WithDescription("List transactions for a brokerage account"),
				mcp.WithString("account_id",
					mcp.Required(),
					mcp.Description("Brokerage account identifier"),
				),
			),
			Handler: a.handleListTransactions,
		},
	}
}

func (a *Actor) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a.Touch()

	status := struct {
		SessionID string `json:"session_id"`
		State     string `json:"state"`
		Connected bool   `json:"connected"`
	}{
		SessionID: a.sessionID,
		State:     string(a.State()),
		Connected: a.brokerClient() != nil,
	}
	return jsonResult(status)
}

func (a *Actor) handleListAccounts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a.Touch()

	client := a.brokerClient()
	if client == nil {
		return mcp.NewToolResultError("brokerage connection is not established; complete authorization first"), nil
	}

	accounts, err := client.ListAccounts(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list accounts: %v", err)), nil
	}
	return jsonResult(accounts)
}

func (a *Actor) handleGetQuotes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a.Touch()

	raw, err := request.RequireString("symbols")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var symbols []string
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		return mcp.NewToolResultError("symbols must contain at least one ticker"), nil
	}

	client := a.brokerClient()
	if client == nil {
		return mcp.NewToolResultError("brokerage connection is not established; complete authorization first"), nil
	}

	quotes, err := client.GetQuotes(ctx, symbols)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get quotes: %v", err)), nil
	}
	return jsonResult(quotes)
}

func (a *Actor) handleListOrders(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a.Touch()

	accountID, err := request.RequireString("account_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client := a.brokerClient()
	if client == nil {
		return mcp.NewToolResultError("brokerage connection is not established; complete authorization first"), nil
	}

	orders, err := client.ListOrders(ctx, accountID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list orders: %v", err)), nil
	}
	return jsonResult(orders)
}

func (a *Actor) handleListTransactions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a.Touch()

	accountID, err := request.RequireString("account_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client := a.brokerClient()
	if client == nil {
		return mcp.NewToolResultError("brokerage connection is not established; complete authorization first"), nil
	}

	transactions, err := client.ListTransactions(ctx, accountID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list transactions: %v", err)), nil
	}
	return jsonResult(transactions)
}

// brokerClient reads the client under the state lock. Tool handlers run on
// server goroutines and may race with recovery rebuilding the client.
func (a *Actor) brokerClient() BrokerAPI {
	a.stateMu.RLock()
	defer a.stateMu.RUnlock()
	return a.client
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
