// Package synonym implements synonym rule parsing, serialization, and
// compilation into search-engine filter specs.
//
// A rule maps a from-side to a to-side, written one per line as
// "from => to". Either side may hold a comma-separated list: the from-side
// lists alternatives that all expand to the to-side terms. Rules are
// curated per locale; the compiler turns a locale's rule set into the
// filter spec the search engine consumes.
package synonym

import (
	"fmt"
	"strings"
	"time"
)

// Arrow separates the two sides of a rule.
const Arrow = "=>"

// Pair is one parsed rule: the raw from-side and to-side text,
// whitespace-trimmed but otherwise verbatim.
type Pair struct {
	From string
	To   string
}

// String returns the canonical "from => to" form.
func (p Pair) String() string {
	return p.From + " " + Arrow + " " + p.To
}

// Rule is a stored synonym rule.
type Rule struct {
	ID        int64
	Locale    string
	From      string
	To        string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Pair returns the rule's from/to pair.
func (r Rule) Pair() Pair {
	return Pair{From: r.From, To: r.To}
}

// String returns the canonical "from => to" form.
func (r Rule) String() string {
	return r.Pair().String()
}

// LineError describes one unparseable line of rule text.
type LineError struct {
	// Line is the 1-based line number in the input.
	Line int
	// Text is the offending line, trimmed.
	Text string
	// Reason says what was wrong with it.
	Reason string
}

// String renders the error the way editors see it.
func (e LineError) String() string {
	return fmt.Sprintf("line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// ParseError reports every bad line of a parse in one shot, so an editor
// can fix the whole text in a single pass instead of resubmitting once
// per error.
type ParseError struct {
	Lines []LineError
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if len(e.Lines) == 1 {
		return "synonym text has 1 unparseable line: " + e.Lines[0].String()
	}
	return fmt.Sprintf("synonym text has %d unparseable lines", len(e.Lines))
}

// Parse splits admin-entered rule text into unique pairs.
//
// One rule per line, sides separated by exactly one "=>". Sides are
// trimmed; interior text (including comma lists) is kept verbatim. Blank
// lines are skipped, duplicate pairs collapse. Every line is examined
// even after an error so the returned *ParseError carries all problems
// at once; on error no pairs are returned.
//
// Parse does not judge content: a pair with an empty side parses here
// and is rejected at write time instead.
func Parse(text string) ([]Pair, error) {
	var (
		pairs []Pair
		perr  *ParseError
	)
	seen := make(map[Pair]struct{})

	for i, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		parts := strings.Split(trimmed, Arrow)
		if len(parts) != 2 {
			reason := `expected one "` + Arrow + `"`
			if len(parts) > 2 {
				reason = `more than one "` + Arrow + `"`
			}
			if perr == nil {
				perr = &ParseError{}
			}
			perr.Lines = append(perr.Lines, LineError{Line: i + 1, Text: trimmed, Reason: reason})
			continue
		}

		p := Pair{
			From: strings.TrimSpace(parts[0]),
			To:   strings.TrimSpace(parts[1]),
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		pairs = append(pairs, p)
	}

	if perr != nil {
		return nil, perr
	}
	return pairs, nil
}

// ParsePair parses a single "from => to" entry.
func ParsePair(s string) (Pair, error) {
	pairs, err := Parse(s)
	if err != nil {
		return Pair{}, err
	}
	if len(pairs) != 1 {
		return Pair{}, fmt.Errorf("expected one rule, got %d", len(pairs))
	}
	return pairs[0], nil
}

// Serialize renders rules in canonical text form, one "from => to" per
// line in deterministic (from, to) order, ending with a newline when any
// rules exist. The output round-trips through Parse.
func Serialize(rules []Rule) string {
	if len(rules) == 0 {
		return ""
	}

	entries := make([]string, 0, len(rules))
	for _, r := range sortedUnique(rules) {
		entries = append(entries, r.String())
	}
	return strings.Join(entries, "\n") + "\n"
}
