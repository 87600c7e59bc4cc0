// Package variables holds the session-scoped store of named data containers
// created by tool calls. Planner-facing code sees only summaries (name,
// description, schema keys); the raw payload stays behind Get.
package variables

import (
	"fmt"
	"sort"
	"sync"
)

// FieldSpec documents one field of a variable's schema.
type FieldSpec struct {
	Description string `json:"description,omitempty"`
	DataType    string `json:"data_type,omitempty"`
	SourcePath  string `json:"source_path,omitempty"`
}

// Variable is a named container of projected, field-renamed data.
// ActualData is never the raw MCP envelope.
type Variable struct {
	Name        string               `json:"name"`
	Schema      map[string]FieldSpec `json:"schema"`
	ActualData  any                  `json:"actual_data"`
	Description string               `json:"description,omitempty"`
	CreatedBy   string               `json:"created_by,omitempty"`
}

// FieldNames returns the variable's schema keys in sorted order.
func (v Variable) FieldNames() []string {
	names := make([]string, 0, len(v.Schema))
	for name := range v.Schema {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summary is the planner-visible view of a variable. It deliberately omits
// the data payload.
type Summary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Fields      []string `json:"fields"`
}

// Store is a name-keyed variable container. Writing an existing name
// overwrites. Safe for concurrent use; cleared on session reset.
type Store struct {
	mu   sync.RWMutex
	vars map[string]Variable
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{vars: make(map[string]Variable)}
}

// Put stores a variable under its name, replacing any previous value.
func (s *Store) Put(v Variable) error {
	if v.Name == "" {
		return fmt.Errorf("variable name is required")
	}
	s.mu.Lock()
	s.vars[v.Name] = v
	s.mu.Unlock()
	return nil
}

// Get returns the variable stored under name.
func (s *Store) Get(name string) (Variable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[name]
	return v, ok
}

// Names returns all stored names in sorted order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Summaries returns the planner-visible view of every variable, ordered by
// name.
func (s *Store) Summaries() []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.vars))
	for name := range s.vars {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries := make([]Summary, 0, len(names))
	for _, name := range names {
		v := s.vars[name]
		summaries = append(summaries, Summary{
			Name:        v.Name,
			Description: v.Description,
			Fields:      v.FieldNames(),
		})
	}
	return summaries
}

// Len returns the number of stored variables.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}

// Clear removes every variable. Used on session reset.
func (s *Store) Clear() {
	s.mu.Lock()
	s.vars = make(map[string]Variable)
	s.mu.Unlock()
}
