// Package querysql compiles record queries over the nodes table to
// parameterized SQLite SQL.
//
// Record bodies are stored as JSON text, so field predicates compile to
// json_extract over the value column.
package querysql

import "github.com/roach88/recordsync/internal/ir"

// Predicate is a sealed interface for record filters.
type Predicate interface {
	predicate()
}

// Missing matches records whose field is absent or JSON null.
type Missing struct {
	Field string
}

func (Missing) predicate() {}

// FieldEquals matches records whose field equals a scalar value.
type FieldEquals struct {
	Field string
	Value ir.Value
}

func (FieldEquals) predicate() {}

// And is the conjunction of its predicates. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicate() {}

// Or is the disjunction of its predicates. An empty Or is always false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicate() {}

// Select reads records of one collection.
type Select struct {
	Collection string
	Filter     Predicate // nil means every record
	Limit      int       // 0 means no limit
}

// ViolationsOf returns the query selecting records of collection that
// violate rule.
func ViolationsOf(collection string, rule ir.Rule) Select {
	preds := make([]Predicate, len(rule.Require))
	for i, f := range rule.Require {
		preds[i] = Missing{Field: f}
	}
	return Select{Collection: collection, Filter: Or{Predicates: preds}}
}
