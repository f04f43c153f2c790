package retrieval

import (
	"context"
	"log/slog"
	"strings"
)

// placeholderMarkers are substrings that mark a hit as a non-answer —
// a source returning "no results found" as if it were real content
// (spec.md §4.3, step 3: "drops placeholder entries").
var placeholderMarkers = []string{
	"not found", "no results", "no result found", "n/a",
}

// Router queries a set of named external sources in a preferred order,
// merges their hits, and caps the total (spec.md §4.3).
type Router struct {
	sources     map[string]Source
	order       []string
	available   map[string]bool
}

// NewRouter builds a Router from the given sources and probes each one
// exactly once; availability is cached for the Router's lifetime
// (spec.md §4.3, step 1).
func NewRouter(ctx context.Context, sources []Source, preferredOrder []string) *Router {
	r := &Router{
		sources:   make(map[string]Source, len(sources)),
		available: make(map[string]bool, len(sources)),
	}
	for _, s := range sources {
		r.sources[s.Name()] = s
	}

	for _, name := range preferredOrder {
		if _, ok := r.sources[name]; ok {
			r.order = append(r.order, name)
		}
	}
	// Any source not named in preferredOrder is still queried, appended
	// after the configured order.
	for _, s := range sources {
		found := false
		for _, name := range r.order {
			if name == s.Name() {
				found = true
				break
			}
		}
		if !found {
			r.order = append(r.order, s.Name())
		}
	}

	for _, name := range r.order {
		r.available[name] = r.sources[name].Probe(ctx)
		slog.Debug("retrieval: source probed", "source", name, "available", r.available[name])
	}

	return r
}

// AnyAvailable reports whether at least one source passed its probe
// (spec.md §4.3, step 2: callers fall back to local Vector-Store hits only
// when this is false).
func (r *Router) AnyAvailable() bool {
	for _, ok := range r.available {
		if ok {
			return true
		}
	}
	return false
}

// Search queries available sources in preferred order, merging hits,
// dropping placeholders, deduplicating by URL, and stopping once maxResults
// have been collected (spec.md §4.3, steps 3-4). A source whose Search call
// fails is logged and skipped; it never aborts the Router's overall query.
func (r *Router) Search(ctx context.Context, query string, maxResults int) []Hit {
	seenURL := make(map[string]bool)
	var merged []Hit

	for _, name := range r.order {
		if !r.available[name] {
			continue
		}
		if len(merged) >= maxResults {
			break
		}

		src := r.sources[name]
		remaining := maxResults - len(merged)
		hits, err := src.Search(ctx, query, remaining)
		if err != nil {
			slog.Warn("retrieval: source search failed, skipping", "source", name, "error", err)
			continue
		}

		for _, h := range hits {
			if len(merged) >= maxResults {
				break
			}
			if isPlaceholder(h) {
				continue
			}
			if h.URL == "" || seenURL[h.URL] {
				continue
			}
			seenURL[h.URL] = true
			merged = append(merged, h)
		}
	}

	return merged
}

func isPlaceholder(h Hit) bool {
	if h.URL == "" {
		return true
	}
	body := strings.ToLower(h.Title + " " + h.Snippet)
	for _, marker := range placeholderMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}
