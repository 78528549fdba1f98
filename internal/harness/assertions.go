package harness

import (
	"fmt"
	"slices"
)

// AssertionError describes one expectation that did not hold.
type AssertionError struct {
	Field    string
	Expected []string
	Actual   []string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %v, got %v", e.Field, e.Expected, e.Actual)
}

// CheckExpectations compares a result with the scenario's expectations.
// Returns one message per failed check.
func CheckExpectations(result *Result, expect Expectation) []string {
	var errs []string
	if err := assertSequence("anomalies", expect.Anomalies, result.AnomalyIDs()); err != nil {
		errs = append(errs, err.Error())
	}
	if err := assertSequence("remaining", expect.Remaining, result.Remaining); err != nil {
		errs = append(errs, err.Error())
	}
	return errs
}

// assertSequence requires actual to equal expected, order included.
// A nil expectation equals an empty one.
func assertSequence(field string, expected, actual []string) error {
	if slices.Equal(expected, actual) {
		return nil
	}
	return &AssertionError{Field: field, Expected: expected, Actual: actual}
}
