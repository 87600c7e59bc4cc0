package pilot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pilotdeck/pilotdeck/pkg/events"
	"github.com/pilotdeck/pilotdeck/pkg/llm"
	"github.com/pilotdeck/pilotdeck/pkg/prompt"
	"github.com/pilotdeck/pilotdeck/pkg/subtool"
	"github.com/pilotdeck/pilotdeck/pkg/variables"
)

// DefaultMaxTurns bounds the Pilot loop for one user message.
const DefaultMaxTurns = 10

// DefaultMaxRetries is how many times one turn's completion is retried with
// the same history before the canned apology.
const DefaultMaxRetries = 3

// ApologyReply is the canned REPLY after completion retries are exhausted.
const ApologyReply = "I'm sorry, I ran into repeated errors while working on your request. Please try again in a moment."

// UnableToCompleteReply is the canned REPLY at the turn budget.
const UnableToCompleteReply = "I wasn't able to complete this request within the allowed number of steps. Try narrowing the request or splitting it into smaller parts."

// builtinToolNames feeds the no-prefix fallback heuristic.
var builtinToolNames = []string{"llm", "extractor", "table", "line-chart", "card", "alert"}

// Executor performs one Pilot instruction and reports the outcome in a form
// the Pilot can read on its next turn.
type Executor interface {
	Execute(ctx context.Context, instruction string) (report string, err error)
}

// Pilot drives the turn loop for one user message at a time. Stateless across
// requests; conversation state travels in the history.
type Pilot struct {
	client  llm.Client
	catalog *subtool.Catalog
	builder *prompt.Builder
	logger  *slog.Logger

	// MaxTurns and MaxRetries may be raised or lowered before Run.
	MaxTurns   int
	MaxRetries int
}

// New creates a Pilot over the given completion client and sub-tool catalog.
func New(client llm.Client, catalog *subtool.Catalog) *Pilot {
	return &Pilot{
		client:     client,
		catalog:    catalog,
		builder:    prompt.NewBuilder(),
		logger:     slog.With("component", "pilot"),
		MaxTurns:   DefaultMaxTurns,
		MaxRetries: DefaultMaxRetries,
	}
}

// Run drives Pilot turns until a REPLY or the turn budget. history must end
// with the latest user message; the returned history includes every turn
// taken and ends with the assistant's final reply.
func (p *Pilot) Run(ctx context.Context, history []llm.Message, vars *variables.Store, exec Executor, pub events.Publisher) (string, []llm.Message, error) {
	knownTools := p.knownToolNames()

	for turn := 1; turn <= p.MaxTurns; turn++ {
		pub.Publish(events.PilotThinkingPayload{Type: events.EventTypePilotThinking, Turn: turn})

		system := p.builder.BuildPilotSystem(p.catalog.All(), vars.Summaries(), time.Now().Format("2006-01-02"))
		resp, err := llm.CompleteWithRetry(ctx, p.client, llm.Request{
			System:   system,
			Messages: history,
		}, p.MaxRetries)
		if err != nil {
			if ctx.Err() != nil {
				return "", history, ctx.Err()
			}
			p.logger.Warn("Pilot completion failed after retries", "turn", turn, "error", err)
			return p.finishWithReply(ApologyReply, history, pub)
		}

		history = append(history, llm.Message{Role: llm.RoleAssistant, Content: resp.Content})

		decision := ParseDecision(resp.Content, knownTools)
		if decision.Heuristic {
			p.logger.Debug("Pilot reply had no prefix, kind inferred",
				"turn", turn, "kind", decision.Kind)
		}

		if decision.Kind == KindReply {
			pub.Publish(events.PilotResponsePayload{Type: events.EventTypePilotResponse, Message: decision.Text})
			return decision.Text, history, nil
		}

		pub.Publish(events.InstructingExecutorPayload{
			Type:        events.EventTypeInstructingExecutor,
			Turn:        turn,
			Instruction: decision.Text,
		})

		report, execErr := exec.Execute(ctx, decision.Text)
		if execErr != nil {
			if ctx.Err() != nil {
				return "", history, ctx.Err()
			}
			report = fmt.Sprintf("The executor could not complete the step: %v. Adjust the instruction or reply to the user.", execErr)
		}
		history = append(history, llm.Message{Role: llm.RoleUser, Content: report})
	}

	p.logger.Info("Pilot turn budget exhausted", "max_turns", p.MaxTurns)
	return p.finishWithReply(UnableToCompleteReply, history, pub)
}

// finishWithReply appends a canned REPLY to the history so the next request's
// inbound history stays well-formed.
func (p *Pilot) finishWithReply(reply string, history []llm.Message, pub events.Publisher) (string, []llm.Message, error) {
	history = append(history, llm.Message{Role: llm.RoleAssistant, Content: "REPLY: " + reply})
	pub.Publish(events.PilotResponsePayload{Type: events.EventTypePilotResponse, Message: reply})
	return reply, history, nil
}

// knownToolNames lists every name the fallback heuristic may match: learned
// sub-tool ids and names plus the built-ins.
func (p *Pilot) knownToolNames() []string {
	names := append([]string{}, builtinToolNames...)
	for _, st := range p.catalog.All() {
		names = append(names, st.ID, st.Name)
	}
	return names
}
