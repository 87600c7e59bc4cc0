package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pilotdeck/pilotdeck/pkg/events"
	"github.com/pilotdeck/pilotdeck/pkg/llm"
	"github.com/pilotdeck/pilotdeck/pkg/prompt"
	"github.com/pilotdeck/pilotdeck/pkg/variables"
)

// Analysis phase names published while a run progresses.
const (
	PhasePlanning  = "planning"
	PhaseExecuting = "executing"
	PhaseReporting = "reporting"
)

// maxCompletionRetries is how many times the planner and reporter
// completions are retried before the run fails.
const maxCompletionRetries = 3

// Runner executes one llm(data, question) invocation end to end: a planner
// completion produces the calculation plan, the runtime executes it line by
// line, and a reporter completion turns the results into narrative and
// visual directives.
type Runner struct {
	client  llm.Client
	vars    *variables.Store
	builder *prompt.Builder
	logger  *slog.Logger
}

// NewRunner creates a runner over the session's variable store.
func NewRunner(client llm.Client, vars *variables.Store) *Runner {
	return &Runner{
		client:  client,
		vars:    vars,
		builder: prompt.NewBuilder(),
		logger:  slog.With("component", "analysis"),
	}
}

// Outcome is the product of one analysis run. Runtime keeps the run's
// analysis variables alive so visual references can still be resolved while
// rendering; they are discarded with the outcome.
type Outcome struct {
	Plan    []PlanLine
	Results []Result
	Report  *Report
	Runtime *Runtime
}

// Analyze runs the full pipeline over the referenced variables. Operation
// failures do not abort the run; their error text flows to the reporter.
func (r *Runner) Analyze(ctx context.Context, refs []string, question string, pub events.Publisher) (*Outcome, error) {
	pub.Publish(events.AnalysisPhasePayload{Type: events.EventTypeAnalysisPhase, Phase: PhasePlanning})

	previews := BuildPreviews(r.vars, refs)
	planResp, err := llm.CompleteWithRetry(ctx, r.client, llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: r.builder.BuildPlannerPrompt(previews, question)}},
	}, maxCompletionRetries)
	if err != nil {
		return nil, fmt.Errorf("planning analysis: %w", err)
	}
	plan := ParsePlan(planResp.Content)
	if len(plan) == 0 {
		r.logger.Warn("Planner output had no parseable operations", "output_bytes", len(planResp.Content))
		return nil, fmt.Errorf("planner produced no operations")
	}
	r.logger.Info("Analysis plan ready", "operations", len(plan), "question", question)

	pub.Publish(events.AnalysisPhasePayload{Type: events.EventTypeAnalysisPhase, Phase: PhaseExecuting})
	runtime := NewRuntime(r.vars)
	results := make([]Result, 0, len(plan))
	for _, line := range plan {
		res := runtime.ExecuteLine(line)
		results = append(results, res)
		pub.Publish(events.AnalysisOperationResultPayload{
			Type:      events.EventTypeAnalysisOperationRes,
			Output:    line.Output,
			Operation: line.Op,
			Result:    res.Display(),
		})
		if res.Failed() {
			r.logger.Warn("Analysis operation failed", "output", line.Output, "op", line.Op, "error", res.Err)
		}
	}

	pub.Publish(events.AnalysisPhasePayload{Type: events.EventTypeAnalysisPhase, Phase: PhaseReporting})
	reportResp, err := llm.CompleteWithRetry(ctx, r.client, llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: r.builder.BuildReporterPrompt(FormatResults(results), question)}},
	}, maxCompletionRetries)
	if err != nil {
		return nil, fmt.Errorf("reporting analysis: %w", err)
	}
	report := ParseReport(reportResp.Content)
	r.logger.Info("Analysis complete", "visuals", len(report.Visuals))

	return &Outcome{Plan: plan, Results: results, Report: report, Runtime: runtime}, nil
}

// FormatResults renders executed results for the reporter prompt, one line
// per operation with the plan's comment when present.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No results."
	}
	lines := make([]string, 0, len(results))
	for _, res := range results {
		line := fmt.Sprintf("%s = %s", res.Line.Output, res.Display())
		if res.Line.Comment != "" {
			line += "  # " + res.Line.Comment
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
