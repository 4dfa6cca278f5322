package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	emberrors "github.com/emberboard/emberboard/internal/errors"
	"github.com/emberboard/emberboard/internal/synonym"
)

const (
	// SynonymFilterType is the registry type of the synonym token
	// filter. Filter specs compiled from rule sets are instantiated
	// through this constructor.
	SynonymFilterType = "synonym_expansion"

	// indexAnalyzerName analyzes document text: unicode tokens,
	// lowercased, nothing else.
	indexAnalyzerName = "forum_text"

	// queryAnalyzerName analyzes query text: the same chain plus the
	// locale's synonym filter. Expansion is query-time only, so the
	// rule "frob => frob, glork" widens searches for frob without
	// making glork documents claim to contain frob.
	queryAnalyzerName = "forum_query"
)

func init() {
	_ = registry.RegisterTokenFilter(SynonymFilterType, synonymFilterConstructor)
}

// synonymMapping is one compiled rule: consume the match sequence,
// emit the replacement terms in its place.
type synonymMapping struct {
	match []string
	emit  []string
}

// synonymFilter expands query tokens according to explicit mappings.
// The left side of each entry lists alternatives (possibly multi-word
// phrases); when one matches, the consumed tokens are replaced by every
// right-side term at the same position.
type synonymFilter struct {
	// byFirst indexes mappings by the first word of their match
	// sequence, longest sequence first so phrases win over their own
	// prefixes.
	byFirst map[string][]synonymMapping
}

var _ analysis.TokenFilter = (*synonymFilter)(nil)

// synonymFilterConstructor builds the filter from its mapping config.
// The synonyms list arrives as []string when the mapping was built in
// process and as []interface{} when reloaded from a stored index.
func synonymFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	raw, ok := config["synonyms"]
	if !ok {
		return nil, fmt.Errorf("%s filter: missing synonyms list", SynonymFilterType)
	}
	entries, err := toStringSlice(raw)
	if err != nil {
		return nil, fmt.Errorf("%s filter: %w", SynonymFilterType, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%s filter: empty synonyms list", SynonymFilterType)
	}
	return newSynonymFilter(entries)
}

func toStringSlice(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("synonyms entry %v is not a string", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("synonyms must be a list of strings, got %T", raw)
	}
}

func newSynonymFilter(entries []string) (*synonymFilter, error) {
	f := &synonymFilter{byFirst: make(map[string][]synonymMapping)}

	for _, entry := range entries {
		pair, err := synonym.ParsePair(entry)
		if err != nil {
			return nil, fmt.Errorf("bad synonym entry %q: %w", entry, err)
		}

		emit := splitTerms(pair.To)
		if len(emit) == 0 {
			return nil, fmt.Errorf("bad synonym entry %q: empty right side", entry)
		}

		alternatives := 0
		for _, alt := range strings.Split(pair.From, ",") {
			match := strings.Fields(strings.ToLower(alt))
			if len(match) == 0 {
				continue
			}
			alternatives++
			f.byFirst[match[0]] = append(f.byFirst[match[0]], synonymMapping{match: match, emit: emit})
		}
		if alternatives == 0 {
			return nil, fmt.Errorf("bad synonym entry %q: empty left side", entry)
		}
	}

	for first := range f.byFirst {
		mappings := f.byFirst[first]
		sort.SliceStable(mappings, func(i, j int) bool {
			return len(mappings[i].match) > len(mappings[j].match)
		})
	}
	return f, nil
}

// splitTerms flattens a comma list of (possibly multi-word) terms into
// lowercased single words.
func splitTerms(s string) []string {
	var words []string
	for _, term := range strings.Split(s, ",") {
		words = append(words, strings.Fields(strings.ToLower(term))...)
	}
	return words
}

// Filter implements analysis.TokenFilter.
func (f *synonymFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	output := make(analysis.TokenStream, 0, len(input))

	for i := 0; i < len(input); {
		tok := input[i]
		term := strings.ToLower(string(tok.Term))

		var applied *synonymMapping
		for idx := range f.byFirst[term] {
			m := &f.byFirst[term][idx]
			if matchesAt(input, i, m.match) {
				applied = m
				break
			}
		}
		if applied == nil {
			output = append(output, tok)
			i++
			continue
		}

		last := input[i+len(applied.match)-1]
		for _, word := range applied.emit {
			output = append(output, &analysis.Token{
				Term:     []byte(word),
				Start:    tok.Start,
				End:      last.End,
				Position: tok.Position,
				Type:     analysis.AlphaNumeric,
			})
		}
		i += len(applied.match)
	}
	return output
}

func matchesAt(input analysis.TokenStream, start int, match []string) bool {
	if start+len(match) > len(input) {
		return false
	}
	for j, word := range match {
		if strings.ToLower(string(input[start+j].Term)) != word {
			return false
		}
	}
	return true
}

// validateSpec decides whether the engine accepts a compiled filter.
// Failures here are permanent: retrying the identical spec cannot
// succeed, an operator has to fix the rules.
func validateSpec(spec synonym.FilterSpec) error {
	reject := func(reason string) error {
		return emberrors.FilterRejected("engine refused filter "+spec.Name, nil).
			WithDetail("reason", reason).
			WithSuggestion("fix the locale's synonym rules and sync again")
	}

	if spec.Name == "" {
		return reject("filter has no name")
	}
	if spec.Body.Type != synonym.FilterTypeSynonym {
		return reject(fmt.Sprintf("unsupported filter type %q", spec.Body.Type))
	}
	if len(spec.Body.Synonyms) == 0 {
		return reject("empty synonyms list")
	}
	for _, entry := range spec.Body.Synonyms {
		pair, err := synonym.ParsePair(entry)
		if err != nil {
			return reject(fmt.Sprintf("unparseable entry %q", entry))
		}
		if pair.From == "" || pair.To == "" {
			return reject(fmt.Sprintf("entry %q has an empty side", entry))
		}
	}
	return nil
}

// buildIndexMapping bakes the filter spec into a fresh index mapping:
// plain analysis for documents, synonym-expanded analysis for queries.
func buildIndexMapping(spec synonym.FilterSpec) (mapping.IndexMapping, error) {
	m := bleve.NewIndexMapping()

	if err := m.AddCustomAnalyzer(indexAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}); err != nil {
		return nil, fmt.Errorf("add index analyzer: %w", err)
	}

	synonyms := make([]interface{}, len(spec.Body.Synonyms))
	for i, entry := range spec.Body.Synonyms {
		synonyms[i] = entry
	}
	if err := m.AddCustomTokenFilter(spec.Name, map[string]interface{}{
		"type":     SynonymFilterType,
		"synonyms": synonyms,
	}); err != nil {
		return nil, fmt.Errorf("add synonym filter: %w", err)
	}

	if err := m.AddCustomAnalyzer(queryAnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name, spec.Name},
	}); err != nil {
		return nil, fmt.Errorf("add query analyzer: %w", err)
	}

	title := bleve.NewTextFieldMapping()
	title.Analyzer = indexAnalyzerName
	title.Store = true

	content := bleve.NewTextFieldMapping()
	content.Analyzer = indexAnalyzerName
	content.Store = false

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", title)
	doc.AddFieldMappingsAt("content", content)

	m.DefaultMapping = doc
	m.DefaultAnalyzer = indexAnalyzerName
	return m, nil
}

// specFromMapping recovers the filter spec baked into a stored index
// mapping, so an engine reopened after a restart still knows which
// vocabulary its live generation carries.
func specFromMapping(m mapping.IndexMapping) (synonym.FilterSpec, bool) {
	impl, ok := m.(*mapping.IndexMappingImpl)
	if !ok || impl.CustomAnalysis == nil {
		return synonym.FilterSpec{}, false
	}

	for name, config := range impl.CustomAnalysis.TokenFilters {
		if config["type"] != SynonymFilterType {
			continue
		}
		entries, err := toStringSlice(config["synonyms"])
		if err != nil {
			return synonym.FilterSpec{}, false
		}
		return synonym.FilterSpec{
			Name: name,
			Body: synonym.FilterBody{Type: synonym.FilterTypeSynonym, Synonyms: entries},
		}, true
	}
	return synonym.FilterSpec{}, false
}
