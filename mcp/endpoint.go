package mcp

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flarexio/docrag"
)

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      mcp.RequestId   `json:"id"`
	Method  mcp.MCPMethod   `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func ErrorResponse(id mcp.RequestId, code int, message string) mcp.JSONRPCError {
	return mcp.JSONRPCError{
		JSONRPC: mcp.JSONRPC_VERSION,
		ID:      id,
		Error: struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    any    `json:"data,omitempty"`
		}{
			Code:    code,
			Message: message,
		},
	}
}

type MCPEndpoint func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage

const (
	ToolSearchDocuments = "search_documents"
	ToolAnswerQuestion  = "answer_question"
)

const MCPSERVER_INSTRUCTIONS string = `docrag answers questions from a local document collection.

Available tools:
- search_documents: return the stored passages closest to a query, best first
- answer_question: answer a question grounded on the retrieved passages

Documents are ingested from the configured source directory. When nothing in
the collection is relevant, answer_question says so instead of guessing.`

func MakeEndpoints(svc docrag.Service) map[mcp.MCPMethod]MCPEndpoint {
	return map[mcp.MCPMethod]MCPEndpoint{
		mcp.MethodInitialize: InitializeEndpoint(svc),
		mcp.MethodPing:       PingEndpoint(svc),
		mcp.MethodToolsList:  ListToolsEndpoint(svc),
		mcp.MethodToolsCall:  CallToolEndpoint(svc),
	}
}

func InitializeEndpoint(svc docrag.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		var params mcp.InitializeParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return ErrorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
		}

		protocolVersion := mcp.LATEST_PROTOCOL_VERSION
		if clientVersion := params.ProtocolVersion; clientVersion != "" {
			if slices.Contains(mcp.ValidProtocolVersions, clientVersion) {
				protocolVersion = clientVersion
			}
		}

		result := &mcp.InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities: mcp.ServerCapabilities{
				Tools: &struct {
					ListChanged bool `json:"listChanged,omitempty"`
				}{},
			},
			ServerInfo: mcp.Implementation{
				Name:    "docrag",
				Version: "1.0.0",
			},
			Instructions: MCPSERVER_INSTRUCTIONS,
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

func PingEndpoint(svc docrag.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  struct{}{}, // empty response
		}
	}
}

// Tools lists the tools exposed over MCP.
func Tools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(ToolSearchDocuments,
			mcp.WithDescription("Search the document collection and return the closest passages with their scores."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Natural language search query"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum number of passages to return"),
			),
			mcp.WithNumber("threshold",
				mcp.Description("Minimum cosine similarity of a returned passage"),
			),
		),
		mcp.NewTool(ToolAnswerQuestion,
			mcp.WithDescription("Answer a question using passages retrieved from the document collection."),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("The question to answer"),
			),
		),
	}
}

func ListToolsEndpoint(svc docrag.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		result := &mcp.ListToolsResult{
			Tools: Tools(),
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

func CallToolEndpoint(svc docrag.Service) MCPEndpoint {
	return func(ctx context.Context, req JSONRPCRequest) mcp.JSONRPCMessage {
		var params mcp.CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return ErrorResponse(req.ID, mcp.INVALID_PARAMS, err.Error())
		}

		callToolReq := mcp.CallToolRequest{
			Request: mcp.Request{
				Method: string(req.Method),
			},
			Params: params,
		}

		var result *mcp.CallToolResult
		switch params.Name {
		case ToolSearchDocuments:
			result = searchDocuments(ctx, svc, callToolReq)

		case ToolAnswerQuestion:
			result = answerQuestion(ctx, svc, callToolReq)

		default:
			return ErrorResponse(req.ID, mcp.INVALID_PARAMS, "unknown tool: "+params.Name)
		}

		return mcp.JSONRPCResponse{
			JSONRPC: mcp.JSONRPC_VERSION,
			ID:      req.ID,
			Result:  result,
		}
	}
}

// Service failures are reported inside the tool result so the calling
// model can see them.
func searchDocuments(ctx context.Context, svc docrag.Service, req mcp.CallToolRequest) *mcp.CallToolResult {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}

	limit := req.GetInt("limit", 0)

	var threshold []float32
	if _, ok := req.GetArguments()["threshold"]; ok {
		threshold = append(threshold, float32(req.GetFloat("threshold", 0)))
	}

	hits, err := svc.Search(ctx, query, limit, threshold...)
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}

	bs, err := json.Marshal(map[string]any{
		"query":   query,
		"results": hits,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}

	return mcp.NewToolResultText(string(bs))
}

func answerQuestion(ctx context.Context, svc docrag.Service, req mcp.CallToolRequest) *mcp.CallToolResult {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}

	answer, err := svc.Answer(ctx, query, nil)
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}

	return mcp.NewToolResultText(answer)
}
