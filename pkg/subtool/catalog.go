package subtool

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Catalog is the in-memory sub-tool catalog built from all learning files in
// the learnings directory. Read-only after load; re-learning replaces files
// on disk and the catalog is rebuilt on the next startup.
type Catalog struct {
	subTools map[string]*SubTool // by ID
	byName   map[string]string   // lowercased name → ID
	order    []string            // IDs in load order

	files     map[string]*LearningFile // by MCP name
	mcpNames  []string                 // sorted
	workflows []Workflow
	insights  []string

	logger *slog.Logger
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		subTools: make(map[string]*SubTool),
		byName:   make(map[string]string),
		files:    make(map[string]*LearningFile),
		logger:   slog.Default(),
	}
}

// LoadCatalog scans dir for per-MCP learning files (*.json) and builds the
// catalog. A missing directory yields an empty catalog; unreadable or
// undecodable files are logged and skipped, never fatal.
func LoadCatalog(dir string) (*Catalog, error) {
	c := NewCatalog()
	c.logger = slog.Default().With("component", "subtool.catalog")

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.Info("Learnings directory not found, starting with empty catalog", "dir", dir)
			return c, nil
		}
		return nil, fmt.Errorf("read learnings directory %q: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := c.ingestFile(path); err != nil {
			c.logger.Warn("Skipping unreadable learning file", "file", path, "error", err)
		}
	}

	sort.Strings(c.mcpNames)
	c.logger.Info("Sub-tool catalog loaded",
		"mcps", len(c.files), "sub_tools", len(c.subTools), "workflows", len(c.workflows))
	return c, nil
}

func (c *Catalog) ingestFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file LearningFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if file.MCPName == "" {
		// Fall back to the file stem so older artifacts still load.
		file.MCPName = strings.TrimSuffix(filepath.Base(path), ".json")
	}

	c.AddFile(&file)
	return nil
}

// AddFile merges one learning file into the catalog. Duplicate sub-tool IDs
// keep the first registration.
func (c *Catalog) AddFile(file *LearningFile) {
	if _, seen := c.files[file.MCPName]; !seen {
		c.mcpNames = append(c.mcpNames, file.MCPName)
	}
	c.files[file.MCPName] = file

	for i := range file.SubTools {
		st := &file.SubTools[i]
		if st.ServerName == "" {
			st.ServerName = file.MCPName
		}
		if _, dup := c.subTools[st.ID]; dup {
			c.logger.Warn("Duplicate sub-tool ID, keeping first", "id", st.ID, "mcp", file.MCPName)
			continue
		}
		c.subTools[st.ID] = st
		c.order = append(c.order, st.ID)
		if st.Name != "" {
			c.byName[strings.ToLower(st.Name)] = st.ID
		}
	}

	c.workflows = append(c.workflows, file.Workflows...)
	c.insights = append(c.insights, file.Insights...)
}

// Get resolves a sub-tool by ID, falling back to its display name.
func (c *Catalog) Get(idOrName string) (*SubTool, bool) {
	if st, ok := c.subTools[idOrName]; ok {
		return st, true
	}
	if id, ok := c.byName[strings.ToLower(idOrName)]; ok {
		return c.subTools[id], true
	}
	return nil, false
}

// All returns every sub-tool in load order.
func (c *Catalog) All() []*SubTool {
	out := make([]*SubTool, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.subTools[id])
	}
	return out
}

// MCPNames returns the learned MCP names, sorted.
func (c *Catalog) MCPNames() []string {
	return append([]string(nil), c.mcpNames...)
}

// File returns the learning file for one MCP.
func (c *Catalog) File(mcpName string) (*LearningFile, bool) {
	f, ok := c.files[mcpName]
	return f, ok
}

// Workflows returns all learned workflows across MCPs.
func (c *Catalog) Workflows() []Workflow {
	return append([]Workflow(nil), c.workflows...)
}

// Insights returns all learned insights across MCPs.
func (c *Catalog) Insights() []string {
	return append([]string(nil), c.insights...)
}

// Len reports the number of sub-tools.
func (c *Catalog) Len() int {
	return len(c.subTools)
}

// Match returns the sub-tools whose ID or name occurs as a substring of the
// instruction (case-insensitive). Used to scope the tool documents handed to
// the executor agent.
func (c *Catalog) Match(instruction string) []*SubTool {
	lowered := strings.ToLower(instruction)
	var out []*SubTool
	for _, id := range c.order {
		st := c.subTools[id]
		if strings.Contains(lowered, strings.ToLower(st.ID)) ||
			(st.Name != "" && strings.Contains(lowered, strings.ToLower(st.Name))) {
			out = append(out, st)
		}
	}
	return out
}
