package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/pilotdeck/pilotdeck/pkg/prompt"
	"github.com/pilotdeck/pilotdeck/pkg/subtool"
)

// MCPStatus is one entry in the GET /mcps listing.
type MCPStatus struct {
	Name      string     `json:"name"`
	Connected bool       `json:"connected"`
	Error     string     `json:"error,omitempty"`
	ToolCount int        `json:"tool_count"`
	Learned   bool       `json:"learned"`
	SubTools  int        `json:"sub_tools,omitempty"`
	Workflows int        `json:"workflows,omitempty"`
	Version   int        `json:"version,omitempty"`
	LearnedAt *time.Time `json:"learned_at,omitempty"`
}

// MCPListResponse is returned by GET /mcps.
type MCPListResponse struct {
	MCPs []MCPStatus `json:"mcps"`
}

// mcpsHandler handles GET /mcps: every configured server with its connection
// state, plus learning state from the catalog. Learned MCPs that are no
// longer configured still show up, marked disconnected.
func (s *Server) mcpsHandler(c *echo.Context) error {
	catalog := s.Catalog()

	out := make([]MCPStatus, 0)
	seen := make(map[string]bool)
	for _, st := range s.manager.ServerStatuses() {
		entry := MCPStatus{
			Name:      st.Name,
			Connected: st.Connected,
			Error:     st.Error,
			ToolCount: st.ToolCount,
		}
		applyLearning(&entry, catalog)
		seen[st.Name] = true
		out = append(out, entry)
	}
	for _, name := range catalog.MCPNames() {
		if seen[name] {
			continue
		}
		entry := MCPStatus{Name: name, Error: "not configured"}
		applyLearning(&entry, catalog)
		out = append(out, entry)
	}

	return c.JSON(http.StatusOK, &MCPListResponse{MCPs: out})
}

// applyLearning fills the learning-side fields from the catalog.
func applyLearning(entry *MCPStatus, catalog *subtool.Catalog) {
	file, ok := catalog.File(entry.Name)
	if !ok {
		return
	}
	entry.Learned = true
	entry.SubTools = len(file.SubTools)
	entry.Workflows = len(file.Workflows)
	entry.Version = file.Version
	if !file.LearnedAt.IsZero() {
		t := file.LearnedAt
		entry.LearnedAt = &t
	}
}

// LearningPreviewResponse is returned by GET /mcp-learning-preview.
type LearningPreviewResponse struct {
	MCP      string `json:"mcp,omitempty"`
	SubTools int    `json:"sub_tools"`
	Preview  string `json:"preview"`
}

// learningPreviewHandler handles GET /mcp-learning-preview: the learned
// sub-tool documents rendered exactly as the Executor receives them.
// ?mcp=<name> scopes the preview to one MCP's learning file.
func (s *Server) learningPreviewHandler(c *echo.Context) error {
	catalog := s.Catalog()

	name := c.QueryParam("mcp")
	var subTools []*subtool.SubTool
	var insights []string
	if name != "" {
		file, ok := catalog.File(name)
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no learning recorded for %q", name))
		}
		for i := range file.SubTools {
			subTools = append(subTools, &file.SubTools[i])
		}
		insights = file.Insights
	} else {
		subTools = catalog.All()
		insights = catalog.Insights()
	}

	var sb strings.Builder
	sb.WriteString(prompt.FormatSubToolDocs(subTools))
	if len(insights) > 0 {
		sb.WriteString("\n\nInsights:\n")
		for _, insight := range insights {
			sb.WriteString("- " + insight + "\n")
		}
	}

	return c.JSON(http.StatusOK, &LearningPreviewResponse{
		MCP:      name,
		SubTools: len(subTools),
		Preview:  sb.String(),
	})
}
