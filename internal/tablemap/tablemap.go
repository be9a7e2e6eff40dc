// Package tablemap resolves entity names used in filters to table names.
package tablemap

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/hashicorp/go-multierror"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Mapping is an immutable entity → table mapping. Entities without an
// entry map to their lower-cased name. A nil *Mapping maps everything that
// way.
type Mapping struct {
	tables map[string]string
}

// New validates tables and returns a Mapping over a copy of it. Every
// invalid entry is reported.
func New(tables map[string]string) (*Mapping, error) {
	var errs *multierror.Error
	for _, entity := range slices.Sorted(maps.Keys(tables)) {
		table := tables[entity]
		if strings.TrimSpace(entity) == "" {
			errs = multierror.Append(errs, fmt.Errorf("empty entity name mapped to %q", table))
			continue
		}
		if !identRe.MatchString(table) {
			errs = multierror.Append(errs, fmt.Errorf("entity %q: table name %q is not a valid SQL identifier", entity, table))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return &Mapping{tables: maps.Clone(tables)}, nil
}

// Default returns the built-in mapping for the standard reporting entities.
func Default() *Mapping {
	return &Mapping{tables: map[string]string{
		"Test":    "tests",
		"Run":     "test_runs",
		"Project": "projects",
		"Task":    "tasks",
		"User":    "users",
		"Issue":   "issues",
	}}
}

// TableName returns the table for entity.
func (m *Mapping) TableName(entity string) string {
	if m != nil {
		if t, ok := m.tables[entity]; ok {
			return t
		}
	}
	return strings.ToLower(entity)
}

// Lookup returns the explicitly mapped table for entity.
func (m *Mapping) Lookup(entity string) (string, bool) {
	if m == nil {
		return "", false
	}
	t, ok := m.tables[entity]
	return t, ok
}

// Entities returns the explicitly mapped entity names, sorted.
func (m *Mapping) Entities() []string {
	if m == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(m.tables))
}

// Tables returns a copy of the explicit entries.
func (m *Mapping) Tables() map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return maps.Clone(m.tables)
}

// Len returns the number of explicit entries.
func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.tables)
}
