// Package intent implements the deterministic fast-path detectors that
// classify high-frequency commands before any model round-trip.
package intent

import (
	"regexp"
	"strings"
)

// Kind is the classified goal of a fast-path command.
type Kind string

const (
	KindSetStock      Kind = "set_stock"
	KindApplyDiscount Kind = "apply_discount"
)

// Intent is the result of a fast-path detection. Detectors are pure functions
// over (command, snapshot, context) and never mutate state.
type Intent struct {
	Kind         Kind
	ProductQuery string
	ProductID    string
	ProductName  string
	Quantity     int
	Percentage   float64
}

var (
	allTokens = regexp.MustCompile(`(?i)(?:^|\s)(все|всем|всех|всё|каждый|каждому|каждого|any|all|every)(?:\s|$)`)
	hasLetter = regexp.MustCompile(`\p{L}`)
	conjSplit = regexp.MustCompile(`(?i)\s+и\s+|,`)
)

// mentionsAll reports whether the text targets the whole catalog.
func mentionsAll(text string) bool {
	return allTokens.MatchString(text)
}

// multiProduct reports whether a candidate names more than one product.
func multiProduct(candidate string) bool {
	return len(conjSplit.Split(candidate, -1)) > 1
}

// validCandidate rejects candidates with no alphabetic token, "all" tokens
// and multi-product conjunctions. Ambiguity defers to the model path.
func validCandidate(candidate string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || !hasLetter.MatchString(candidate) {
		return false
	}
	if mentionsAll(candidate) || multiProduct(candidate) {
		return false
	}
	return true
}
