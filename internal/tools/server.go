// Package tools contains both ends of the tool protocol: the MCP server that
// exposes the facility and drug lookups, and the gateway the pipeline uses to
// call it in a short-lived subprocess.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

const (
	RecommendHospitalTool = "recommend_hospital_tool"
	DrugInformationTool   = "get_drug_information_tool"
)

// NewServer registers the lookup tools over catalog.
func NewServer(catalog *Catalog) *server.MCPServer {
	s := server.NewMCPServer(
		"medical-tools",
		Version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool(RecommendHospitalTool,
		mcp.WithDescription("Recommend a hospital in a city for the given severity and specialist."),
		mcp.WithString("city", mcp.Required(), mcp.Description("City the patient is in")),
		mcp.WithString("severity_level", mcp.Description("low, moderate, high or emergency")),
		mcp.WithString("specialist_type", mcp.Description("Preferred specialist, e.g. Cardiologist")),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()
		city, ok := args["city"].(string)
		if !ok || city == "" {
			return mcp.NewToolResultError("city is required"), nil
		}
		return jsonResult(catalog.RecommendHospital(city, stringArg(args, "severity_level"), stringArg(args, "specialist_type")))
	})

	s.AddTool(mcp.NewTool(DrugInformationTool,
		mcp.WithDescription("Look up reference information for a drug by name."),
		mcp.WithString("drug_name", mcp.Required(), mcp.Description("Generic drug name")),
	), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name := stringArg(req.GetArguments(), "drug_name")
		if name == "" {
			return mcp.NewToolResultError("drug_name is required"), nil
		}
		return jsonResult(catalog.DrugInformation(name))
	})

	return s
}

// ServeStdio runs the tool server on stdin/stdout until the client goes away.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
