package importer

import (
	"sort"
	"strings"
)

// Registry looks parsers up by platform id and detects a platform from headers
type Registry struct {
	parsers map[string]Parser
	// detection order; the most specific signatures come first
	order []string
}

// NewRegistry creates a registry. Detect tries parsers in the given order.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{parsers: make(map[string]Parser, len(parsers))}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// DefaultRegistry holds every built-in platform, generic last
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewTradovateParser(),
		NewTopstepXParser(),
		NewNinjaTraderParser(),
		NewMetaTraderParser(),
		NewGenericParser(),
	)
}

// Register adds or replaces a parser
func (r *Registry) Register(p Parser) {
	key := strings.ToLower(p.Platform())
	if _, exists := r.parsers[key]; !exists {
		r.order = append(r.order, key)
	}
	r.parsers[key] = p
}

// Get returns the parser registered for platform
func (r *Registry) Get(platform string) (Parser, bool) {
	p, ok := r.parsers[strings.ToLower(strings.TrimSpace(platform))]
	return p, ok
}

// Detect returns the first parser whose signature matches the headers
func (r *Registry) Detect(headers []string) (Parser, bool) {
	for _, key := range r.order {
		if p := r.parsers[key]; p.ValidateHeaders(headers) {
			return p, true
		}
	}
	return nil, false
}

// DetectRaw reads the header row of raw and detects its platform
func (r *Registry) DetectRaw(raw string) (Parser, bool) {
	headers, err := headerLine(raw)
	if err != nil {
		return nil, false
	}
	return r.Detect(headers)
}

// Platforms lists the registered platform ids in sorted order
func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.parsers))
	for key := range r.parsers {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// SupportsCompanion reports whether the platform accepts a second fills or
// orders file
func (r *Registry) SupportsCompanion(platform string) bool {
	p, ok := r.Get(platform)
	if !ok {
		return false
	}
	_, ok = p.(CorrelatedParser)
	return ok
}
