// Package reshape implements the wide-to-long pivot at the heart of
// the transformation engine. It is pure and deterministic: the same
// batch and schema always produce the same observations, which is what
// makes watermark-gated re-runs idempotent.
package reshape

import (
	"fmt"
	"sort"
	"strings"

	"github.com/datalift-io/marketpivot/pkg/core"
)

// Schema is the explicit, versioned metric-column schema: a mapping
// from column-name prefix to metric kind. Column discovery is driven
// by this mapping, never by ad-hoc string conventions, so schema drift
// is a first-class input rather than an accident.
type Schema struct {
	Version  int
	Prefixes map[string]core.MetricKind

	// ordered longest-first for deterministic resolution
	ordered []string
}

// DefaultSchema returns version 1 of the metric-column schema used by
// the raw market feed.
func DefaultSchema() Schema {
	s, _ := NewSchema(1, map[string]core.MetricKind{
		"O_":         core.MetricOpen,
		"H_":         core.MetricHigh,
		"L_":         core.MetricLow,
		"C_":         core.MetricClose,
		"INFLATION_": core.MetricInflation,
		"TRUST_":     core.MetricTrust,
	})
	return s
}

// NewSchema builds a Schema from a prefix mapping, validating that
// every kind is known and every prefix non-empty.
func NewSchema(version int, prefixes map[string]core.MetricKind) (Schema, error) {
	if len(prefixes) == 0 {
		return Schema{}, fmt.Errorf("metric schema has no prefixes")
	}

	ordered := make([]string, 0, len(prefixes))
	for prefix, kind := range prefixes {
		if prefix == "" {
			return Schema{}, fmt.Errorf("metric schema has an empty prefix")
		}
		if !core.ValidMetricKind(kind) {
			return Schema{}, fmt.Errorf("metric schema prefix %q maps to unknown kind %q", prefix, kind)
		}
		ordered = append(ordered, prefix)
	}

	// Longest prefix wins so that e.g. "INFLATION_" can never be
	// shadowed by a shorter overlapping prefix. Ties broken
	// lexicographically for determinism.
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return ordered[i] < ordered[j]
	})

	return Schema{Version: version, Prefixes: prefixes, ordered: ordered}, nil
}

// Resolve maps a raw column name to the item it tracks and the metric
// kind it carries. ok is false for columns no prefix recognizes; such
// columns are schema drift and are ignored by the reshaper.
func (s Schema) Resolve(column string) (item string, kind core.MetricKind, ok bool) {
	upper := strings.ToUpper(column)
	for _, prefix := range s.ordered {
		if strings.HasPrefix(upper, prefix) && len(column) > len(prefix) {
			return strings.ToLower(column[len(prefix):]), s.Prefixes[prefix], true
		}
	}
	return "", "", false
}
