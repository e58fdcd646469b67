// ABOUTME: Normalization of the heterogeneous agent response into a flat Result
// ABOUTME: Decoded once at the boundary; missing fields default to zero/empty, never nil

package agentapi

import (
	"encoding/json"
	"fmt"
	"io"
)

// Result is the normalized outcome of a successful agent call. Token and
// latency fields are zero (not nil) when the agent omitted them, so later
// arithmetic never null-propagates.
type Result struct {
	ResponseText string
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	LatencyMs    int64
	Model        string
	ToolCalls    []json.RawMessage
	RAGContext   []json.RawMessage
}

// wireResponse mirrors the agent's success body. All sub-objects are
// optional on the wire.
type wireResponse struct {
	AgentOutput struct {
		Text       string            `json:"text"`
		ToolCalls  []json.RawMessage `json:"tool_calls"`
		RAGContext []json.RawMessage `json:"rag_context"`
	} `json:"agent_output"`
	Usage struct {
		InputTokens  int64  `json:"input_tokens"`
		OutputTokens int64  `json:"output_tokens"`
		TotalTokens  int64  `json:"total_tokens"`
		Model        string `json:"model"`
	} `json:"usage"`
	LatencyMs int64 `json:"latency_ms"`
}

// decodeResult reads and normalizes the agent response body.
func decodeResult(r io.Reader) (*Result, error) {
	var wire wireResponse
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("parsing response body: %w", err)
	}

	result := &Result{
		ResponseText: wire.AgentOutput.Text,
		InputTokens:  wire.Usage.InputTokens,
		OutputTokens: wire.Usage.OutputTokens,
		TotalTokens:  wire.Usage.TotalTokens,
		LatencyMs:    wire.LatencyMs,
		Model:        wire.Usage.Model,
		ToolCalls:    wire.AgentOutput.ToolCalls,
		RAGContext:   wire.AgentOutput.RAGContext,
	}

	// Agents that omit total_tokens still get a usable total.
	if result.TotalTokens == 0 {
		result.TotalTokens = result.InputTokens + result.OutputTokens
	}

	if result.ToolCalls == nil {
		result.ToolCalls = []json.RawMessage{}
	}
	if result.RAGContext == nil {
		result.RAGContext = []json.RawMessage{}
	}

	return result, nil
}
