package main

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPTools exposes a subset of the Coordinator's command surface as Model
// Context Protocol tools, so an LLM client can drive the session the same
// way a WebSocket client does, without a second parallel command path: the
// handlers all go through Coordinator.Dispatch.
type MCPTools struct {
	coord      *Coordinator
	mcpServer  *server.MCPServer
	httpServer *server.StreamableHTTPServer
}

// NewMCPTools builds and registers the tool set.
func NewMCPTools(coord *Coordinator) *MCPTools {
	m := &MCPTools{coord: coord}
	m.mcpServer = server.NewMCPServer(
		"spectrumd",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	m.registerTools()
	m.httpServer = server.NewStreamableHTTPServer(m.mcpServer)
	return m
}

func (m *MCPTools) registerTools() {
	m.mcpServer.AddTool(
		mcp.NewTool("get_status",
			mcp.WithDescription("Get the current session state: mode, tuned frequency, sample rate, bandwidth, gain, FFT size, and whether a sweep is in progress."),
		),
		m.handleGetStatus,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("set_frequency",
			mcp.WithDescription("Retune the device to a new center frequency, in Hz."),
			mcp.WithNumber("center_hz", mcp.Required(), mcp.Description("Center frequency in Hz")),
		),
		m.handleSetFrequency,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("sweep_start",
			mcp.WithDescription("Start a wideband sweep across a frequency range, stitching per-step captures into a single panorama as it completes."),
			mcp.WithNumber("freq_start_hz", mcp.Required(), mcp.Description("Sweep start frequency in Hz")),
			mcp.WithNumber("freq_end_hz", mcp.Required(), mcp.Description("Sweep end frequency in Hz")),
		),
		m.handleSweepStart,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("sweep_stop",
			mcp.WithDescription("Stop an in-progress sweep and return to live capture."),
		),
		m.handleSweepStop,
	)

	m.mcpServer.AddTool(
		mcp.NewTool("rec_list",
			mcp.WithDescription("List recorded IQ and spectrum captures with their metadata."),
		),
		m.handleRecList,
	)
}

func textResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (m *MCPTools) handleGetStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return textResult(m.coord.Status())
}

func (m *MCPTools) handleSetFrequency(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	centerHz, err := req.RequireFloat("center_hz")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hz := uint64(centerHz)
	_, err = m.coord.Dispatch(ctx, Command{Type: "set_frequency", CenterHz: &hz})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return textResult(m.coord.Status())
}

func (m *MCPTools) handleSweepStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, err := req.RequireFloat("freq_start_hz")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	end, err := req.RequireFloat("freq_end_hz")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	startHz, endHz := uint64(start), uint64(end)
	_, err = m.coord.Dispatch(ctx, Command{Type: "sweep_start", FreqStartHz: &startHz, FreqEndHz: &endHz})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return textResult(m.coord.Status())
}

func (m *MCPTools) handleSweepStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := m.coord.Dispatch(ctx, Command{Type: "sweep_stop"}); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return textResult(m.coord.Status())
}

func (m *MCPTools) handleRecList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recs, err := m.coord.recorder.List()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return textResult(recs)
}

// ServeHTTP exposes the MCP endpoint for mounting alongside the WebSocket
// server.
func (m *MCPTools) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.httpServer.ServeHTTP(w, r)
}
