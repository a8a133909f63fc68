// Package agent runs the tool-augmented conversation loop.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/enviamx/paqbot/internal/llm"
	"github.com/enviamx/paqbot/internal/tools"
)

const (
	// DefaultMaxIterations bounds the model/tool round trips per request.
	DefaultMaxIterations = 5

	// defaultToolTimeout bounds a single tool execution.
	defaultToolTimeout = 15 * time.Second
)

// exhaustedMessage is returned when the iteration budget runs out
// before the model produces a text answer.
const exhaustedMessage = "No pude completar la consulta dentro del límite de pasos. Intenta una pregunta más específica."

// ToolCallRecord describes one executed tool call, reported back to the
// API caller alongside the answer.
type ToolCallRecord struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Failed    bool           `json:"failed,omitempty"`
}

// Response is the outcome of one conversation run.
type Response struct {
	Content      string           `json:"content"`
	Provider     string           `json:"provider"`
	Model        string           `json:"model"`
	ToolCalls    []ToolCallRecord `json:"toolCalls"`
	Iterations   int              `json:"iterations"`
	Exhausted    bool             `json:"exhausted"`
	InputTokens  int              `json:"inputTokens"`
	OutputTokens int              `json:"outputTokens"`
}

// Driver runs conversations against a single provider client. Provider
// selection and fallback happen upstream; by the time a Driver exists
// the client is the one we are committed to for this request.
type Driver struct {
	logger        *slog.Logger
	client        llm.Client
	registry      *tools.Registry
	maxIterations int
	toolTimeout   time.Duration
}

// NewDriver creates a conversation driver.
func NewDriver(logger *slog.Logger, client llm.Client, registry *tools.Registry, maxIterations int) *Driver {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &Driver{
		logger:        logger,
		client:        client,
		registry:      registry,
		maxIterations: maxIterations,
		toolTimeout:   defaultToolTimeout,
	}
}

// Run drives the conversation to a text answer. The caller supplies the
// full transcript including the system message; Run appends to a copy
// and never mutates the input slice.
func (d *Driver) Run(ctx context.Context, messages []llm.Message) (*Response, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages")
	}

	runID, _ := uuid.NewV7()
	rid := runID.String()

	transcript := make([]llm.Message, len(messages))
	copy(transcript, messages)

	toolDefs := d.registry.List()
	var records []ToolCallRecord
	var totalInput, totalOutput int
	start := time.Now()

	for i := range d.maxIterations {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("conversation cancelled: %w", err)
		}

		d.logger.Info("model call",
			"run_id", rid,
			"provider", d.client.Provider(),
			"iter", i,
			"msgs", len(transcript),
		)

		resp, err := d.client.Chat(ctx, transcript, toolDefs)
		if err != nil {
			return nil, fmt.Errorf("model call failed (iter %d): %w", i, err)
		}
		totalInput += resp.InputTokens
		totalOutput += resp.OutputTokens

		// No tool calls means the model is done talking to tools.
		if len(resp.Message.ToolCalls) == 0 {
			d.logger.Info("conversation completed",
				"run_id", rid,
				"provider", resp.Provider,
				"model", resp.Model,
				"iterations", i+1,
				"tool_calls", len(records),
				"elapsed", time.Since(start).Round(time.Millisecond),
			)
			return &Response{
				Content:      resp.Message.Content,
				Provider:     resp.Provider,
				Model:        resp.Model,
				ToolCalls:    records,
				Iterations:   i + 1,
				InputTokens:  totalInput,
				OutputTokens: totalOutput,
			}, nil
		}

		// On the last permitted iteration there is no further model
		// call to consume the results, so skip the batch entirely.
		if i == d.maxIterations-1 {
			break
		}

		transcript = append(transcript, resp.Message)
		results, batchRecords := d.runToolBatch(ctx, rid, i, resp.Message.ToolCalls)
		transcript = append(transcript, results...)
		records = append(records, batchRecords...)
	}

	d.logger.Warn("iteration budget exhausted",
		"run_id", rid,
		"provider", d.client.Provider(),
		"max_iterations", d.maxIterations,
		"tool_calls", len(records),
	)
	return &Response{
		Content:      exhaustedMessage,
		Provider:     d.client.Provider(),
		Model:        d.client.Model(),
		ToolCalls:    records,
		Iterations:   d.maxIterations,
		Exhausted:    true,
		InputTokens:  totalInput,
		OutputTokens: totalOutput,
	}, nil
}

// runToolBatch executes one batch of tool calls concurrently. Results
// come back in request order regardless of completion order, and a
// failing tool becomes an error-shaped result rather than aborting the
// batch.
func (d *Driver) runToolBatch(ctx context.Context, rid string, iter int, calls []llm.ToolCall) ([]llm.Message, []ToolCallRecord) {
	results := make([]llm.Message, len(calls))
	records := make([]ToolCallRecord, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for idx, tc := range calls {
		g.Go(func() error {
			toolCtx, cancel := context.WithTimeout(gctx, d.toolTimeout)
			defer cancel()

			start := time.Now()
			out, err := d.registry.Execute(toolCtx, tc.Function.Name, tc.Function.Arguments)
			record := ToolCallRecord{Name: tc.Function.Name, Arguments: tc.Function.Arguments}
			if err != nil {
				out = "Error: " + err.Error()
				record.Failed = true
				d.logger.Error("tool failed",
					"run_id", rid,
					"iter", iter,
					"tool", tc.Function.Name,
					"error", err,
				)
			} else {
				d.logger.Debug("tool done",
					"run_id", rid,
					"iter", iter,
					"tool", tc.Function.Name,
					"result_len", len(out),
					"elapsed", time.Since(start).Round(time.Millisecond),
				)
			}

			results[idx] = llm.Message{
				Role:       "tool",
				Content:    out,
				ToolCallID: tc.ID,
			}
			records[idx] = record
			return nil
		})
	}
	// Workers only ever return nil; Wait is for completion, not errors.
	_ = g.Wait()

	return results, records
}
