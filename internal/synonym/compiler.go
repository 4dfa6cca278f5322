package synonym

import "sort"

// FilterTypeSynonym is the filter body type the search engine accepts.
const FilterTypeSynonym = "synonym"

// FallbackEntry keeps a compiled filter non-empty when a locale has no
// rules: the engine rejects empty synonym lists, and a term mapping to
// itself changes nothing at query time.
const FallbackEntry = "ember => ember"

const filterNamePrefix = "synonyms-"

// FilterBody is the engine-facing payload of a synonym filter.
type FilterBody struct {
	Type     string   `json:"type" yaml:"type"`
	Synonyms []string `json:"synonyms" yaml:"synonyms"`
}

// FilterSpec names a synonym filter and carries its body. Specs are
// plain values: compiling the same rules always yields an identical
// spec, so callers may compare or cache them freely.
type FilterSpec struct {
	Name string     `json:"name" yaml:"name"`
	Body FilterBody `json:"body" yaml:"body"`
}

// FilterName returns the well-known filter name for a locale.
func FilterName(locale string) string {
	return filterNamePrefix + locale
}

// Compile turns a locale's rules into the filter spec the engine
// consumes. Entries are deduplicated and sorted by (from, to) so equal
// rule sets compile to equal specs regardless of input order. An empty
// rule set compiles to the fallback entry rather than an empty list.
func Compile(locale string, rules []Rule) FilterSpec {
	entries := []string{FallbackEntry}
	if len(rules) > 0 {
		entries = entries[:0]
		for _, r := range sortedUnique(rules) {
			entries = append(entries, r.String())
		}
	}

	return FilterSpec{
		Name: FilterName(locale),
		Body: FilterBody{
			Type:     FilterTypeSynonym,
			Synonyms: entries,
		},
	}
}

// sortedUnique returns the rules ordered by (from, to) with duplicate
// pairs collapsed. The input is not modified.
func sortedUnique(rules []Rule) []Rule {
	out := make([]Rule, 0, len(rules))
	seen := make(map[Pair]struct{}, len(rules))
	for _, r := range rules {
		p := r.Pair()
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}
