package synonym

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Compiler memoizes compiled filter specs. Entries are keyed by locale
// and store revision, so a cached spec is valid exactly as long as the
// rule set it was compiled from: any mutation bumps the revision and
// naturally misses the cache.
type Compiler struct {
	cache *lru.Cache[string, FilterSpec]
}

// NewCompiler returns a compiler holding at most size cached specs.
func NewCompiler(size int) (*Compiler, error) {
	cache, err := lru.New[string, FilterSpec](size)
	if err != nil {
		return nil, fmt.Errorf("create filter cache: %w", err)
	}
	return &Compiler{cache: cache}, nil
}

// Compile returns the filter spec for the locale's rules at the given
// revision, reusing a cached result when one exists.
func (c *Compiler) Compile(locale string, revision int64, rules []Rule) FilterSpec {
	key := cacheKey(locale, revision)
	if spec, ok := c.cache.Get(key); ok {
		return spec
	}
	spec := Compile(locale, rules)
	c.cache.Add(key, spec)
	return spec
}

// Len reports how many specs are currently cached.
func (c *Compiler) Len() int {
	return c.cache.Len()
}

// Purge drops every cached spec.
func (c *Compiler) Purge() {
	c.cache.Purge()
}

func cacheKey(locale string, revision int64) string {
	return fmt.Sprintf("%s@%d", locale, revision)
}
