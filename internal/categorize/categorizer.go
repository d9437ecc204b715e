package categorize

import (
	"strings"

	"penny/internal/core"
)

// Categorizer applies a rule table to vendor names. It holds no mutable
// state and is safe for concurrent use.
type Categorizer struct {
	table *RuleTable
}

func New(table *RuleTable) *Categorizer {
	return &Categorizer{table: table}
}

// Categorize returns the category of the first rule whose token occurs in the
// lowercased vendor name, or core.Other when none does.
func (c *Categorizer) Categorize(vendorName string) core.Category {
	normalized := strings.ToLower(strings.TrimSpace(vendorName))
	if normalized == "" {
		return core.Other
	}
	for _, r := range c.table.rules {
		if strings.Contains(normalized, r.Token) {
			return r.Category
		}
	}
	return core.Other
}
