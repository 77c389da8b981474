package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"medassist/internal/logger"
	"medassist/internal/metrics"
	"medassist/pkg"
)

const (
	ErrNoHospitalData    = "No hospital data returned"
	ErrEmptyHospital     = "Empty hospital response"
	ErrInvalidHospital   = "Invalid hospital data"
	DefaultToolTimeout   = 20 * time.Second
	gatewayClientName    = "medassist-gateway"
	gatewayClientVersion = "1.0.0"
)

// Connector returns a started client for one tool session.  The caller
// initializes it and closes it.
type Connector func(ctx context.Context) (*client.Client, error)

// StdioConnector spawns command with args for each session.
func StdioConnector(command string, args, env []string) Connector {
	return func(ctx context.Context) (*client.Client, error) {
		return client.NewStdioMCPClient(command, env, args...)
	}
}

// Gateway calls the tool server.  Every call opens a fresh session and closes
// it before returning, whatever the outcome.
type Gateway struct {
	connect Connector
	timeout time.Duration
	log     *logger.Logger
}

// NewGateway returns a gateway using connect for each call.
func NewGateway(connect Connector, timeout time.Duration, log *logger.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	return &Gateway{connect: connect, timeout: timeout, log: log.With("component", "tools")}
}

// Call runs one tool invocation in its own session.
func (g *Gateway) Call(ctx context.Context, tool string, args map[string]any) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	log := g.log.With("tool", tool, "call_id", uuid.NewString())
	c, err := g.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Debug("closing tool session", "error", err)
		}
	}()

	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: gatewayClientName, Version: gatewayClientVersion}
	if _, err := c.Initialize(ctx, init); err != nil {
		return nil, err
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args
	start := time.Now()
	res, err := c.CallTool(ctx, req)
	log.Debug("tool call finished", "duration", time.Since(start), "error", err)
	return res, err
}

// RecommendFacility asks the tool server for a facility suited to the
// assessment.  Failures come back as an error-tagged result, never as an
// error.
func (g *Gateway) RecommendFacility(ctx context.Context, city string, a *pkg.Assessment) pkg.FacilityResult {
	args := map[string]any{
		"city":           city,
		"severity_level": string(a.Severity()),
	}
	if len(a.RecommendedSpecialists) > 0 {
		args["specialist_type"] = a.RecommendedSpecialists[0]
	}

	res, err := g.Call(ctx, RecommendHospitalTool, args)
	if err != nil {
		g.log.Warn("facility lookup failed", "city", city, "error", err)
		metrics.ToolCalls.WithLabelValues(RecommendHospitalTool, "error").Inc()
		return pkg.FacilityResult{Error: ErrNoHospitalData}
	}
	out := ParseFacility(res)
	if out.Failed() {
		metrics.ToolCalls.WithLabelValues(RecommendHospitalTool, "error").Inc()
		g.log.Info("facility lookup returned no facility", "city", city, "reason", out.Error)
	} else {
		metrics.ToolCalls.WithLabelValues(RecommendHospitalTool, "ok").Inc()
	}
	return out
}

// DrugInformation looks up a drug record.  Lookup failures are reported in
// the record's "error" key.
func (g *Gateway) DrugInformation(ctx context.Context, name string) (pkg.DrugRecord, error) {
	res, err := g.Call(ctx, DrugInformationTool, map[string]any{"drug_name": name})
	if err != nil {
		metrics.ToolCalls.WithLabelValues(DrugInformationTool, "error").Inc()
		return nil, err
	}
	text, ok := firstText(res)
	if !ok || strings.TrimSpace(text) == "" {
		metrics.ToolCalls.WithLabelValues(DrugInformationTool, "error").Inc()
		return nil, errors.New("empty drug response")
	}
	var rec pkg.DrugRecord
	if err := json.Unmarshal([]byte(text), &rec); err != nil {
		metrics.ToolCalls.WithLabelValues(DrugInformationTool, "error").Inc()
		return nil, errors.New("invalid drug data")
	}
	metrics.ToolCalls.WithLabelValues(DrugInformationTool, "ok").Inc()
	return rec, nil
}

// ParseFacility decodes the first content block of a facility tool result.
func ParseFacility(res *mcp.CallToolResult) pkg.FacilityResult {
	if res == nil || len(res.Content) == 0 {
		return pkg.FacilityResult{Error: ErrNoHospitalData}
	}
	text, _ := firstText(res)
	if strings.TrimSpace(text) == "" {
		return pkg.FacilityResult{Error: ErrEmptyHospital}
	}
	var out pkg.FacilityResult
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return pkg.FacilityResult{Error: ErrInvalidHospital}
	}
	return out
}

func firstText(res *mcp.CallToolResult) (string, bool) {
	if res == nil || len(res.Content) == 0 {
		return "", false
	}
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text, true
	case *mcp.TextContent:
		return c.Text, true
	}
	return "", false
}
