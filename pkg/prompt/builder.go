package prompt

import (
	"fmt"

	"github.com/pilotdeck/pilotdeck/pkg/mcp"
	"github.com/pilotdeck/pilotdeck/pkg/subtool"
	"github.com/pilotdeck/pilotdeck/pkg/variables"
)

// Builder composes the system and user prompts for every agent role.
// Stateless — all state comes from parameters. Thread-safe.
type Builder struct{}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// LearningFormatReminder is injected as a user turn when the learning agent's
// reply carried no recognizable tagged block.
const LearningFormatReminder = `Your last reply did not contain exactly one recognized tagged block. Reply again with a single [CALL_TOOL], [BROWSE_WEB], [INPUT_LEARNED], [SUB_TOOL], [WORKFLOW], or [LEARNING_COMPLETE] block whose body is one valid JSON object.`

// BuildPilotSystem renders the Pilot system prompt: protocol, tool summaries
// (sub-tools plus built-ins), and the current variable summaries.
func (b *Builder) BuildPilotSystem(subTools []*subtool.SubTool, vars []variables.Summary, currentDate string) string {
	return fmt.Sprintf(pilotSystemTemplate,
		currentDate,
		FormatToolSummaries(subTools),
		FormatVariableSummaries(vars),
	)
}

// BuildExecutorSystem renders the Executor system prompt with full documents
// for the catalog tools matched against the current instruction. The
// instruction itself travels as the user message.
func (b *Builder) BuildExecutorSystem(matched []*subtool.SubTool, vars []variables.Summary) string {
	return fmt.Sprintf(executorSystemTemplate,
		FormatSubToolDocs(matched),
		FormatVariableSummaries(vars),
	)
}

// BuildLearningSystem renders the learning agent system prompt over the live
// tool definitions of the servers being learned.
func (b *Builder) BuildLearningSystem(tools []*mcp.ToolInfo) string {
	return fmt.Sprintf(learningSystemTemplate, FormatNativeTools(tools))
}

// BuildPlannerPrompt renders the analysis planner prompt. previews is the
// pre-rendered data preview block (first rows per referenced variable).
func (b *Builder) BuildPlannerPrompt(previews, question string) string {
	return fmt.Sprintf(plannerSystemTemplate, previews, question)
}

// BuildReporterPrompt renders the analysis reporter prompt over the executed
// plan results.
func (b *Builder) BuildReporterPrompt(results, question string) string {
	return fmt.Sprintf(reporterSystemTemplate, results, question)
}

// BuildExtractorPrompt renders the single-shot extraction prompt.
func (b *Builder) BuildExtractorPrompt(extract, data string) string {
	return fmt.Sprintf(extractorSystemTemplate, extract, data)
}
