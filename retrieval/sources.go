package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Hit is one result returned by a Source's Search call. It mirrors the
// domain Reference shape without importing the root package (the root
// package imports retrieval, not the other way around).
type Hit struct {
	Title     string
	URL       string
	SourceTag string
	Snippet   string
}

// Source is one named external retrieval backend (spec.md §4.3: "Named
// set of sources, each exposing probe() -> bool and search(query) ->
// list[Reference]").
type Source interface {
	Name() string
	Probe(ctx context.Context) bool
	Search(ctx context.Context, query string, max int) ([]Hit, error)
}

// httpSource is the shared HTTP plumbing for the three concrete source
// archetypes below: a rate-limited client with a health-probe endpoint and
// a search endpoint, both GET, both JSON. Each archetype supplies its own
// response-decoding logic via decode.
type httpSource struct {
	name        string
	client      *http.Client
	limiter     *rate.Limiter
	probeURL    string
	searchURL   func(query string, max int) string
	decode      func(body []byte) ([]Hit, error)
}

func newHTTPSource(name, probeURL string, searchURL func(string, int) string, decode func([]byte) ([]Hit, error), timeout time.Duration) *httpSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &httpSource{
		name:      name,
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(rate.Every(200*time.Millisecond), 3),
		probeURL:  probeURL,
		searchURL: searchURL,
		decode:    decode,
	}
}

func (s *httpSource) Name() string { return s.name }

// Probe performs a single reachability check. The Router calls this once at
// construction and caches the result (spec.md §4.3, step 1).
func (s *httpSource) Probe(ctx context.Context) bool {
	if s.probeURL == "" {
		return true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.probeURL, nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

func (s *httpSource) Search(ctx context.Context, query string, max int) ([]Hit, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.searchURL(query, max), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", s.name, resp.StatusCode)
	}

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if readErr != nil {
			break
		}
	}

	hits, err := s.decode(buf)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		hits[i].SourceTag = s.name
	}
	return hits, nil
}

// academicResponse is the shape of an OpenAlex-style academic index response.
type academicResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"abstract"`
	} `json:"results"`
}

// NewAcademicSource builds a Source backed by an academic paper index
// reachable at baseURL (an OpenAlex-compatible search API). timeout bounds
// every probe/search request (cfg.SearchTimeout, SPEC_FULL.md §5).
func NewAcademicSource(baseURL string, timeout time.Duration) Source {
	return newHTTPSource(
		"academic",
		baseURL+"/health",
		func(q string, max int) string {
			return fmt.Sprintf("%s/search?q=%s&limit=%d", baseURL, queryEscape(q), max)
		},
		func(body []byte) ([]Hit, error) {
			var r academicResponse
			if err := json.Unmarshal(body, &r); err != nil {
				return nil, err
			}
			hits := make([]Hit, len(r.Results))
			for i, item := range r.Results {
				hits[i] = Hit{Title: item.Title, URL: item.URL, Snippet: item.Snippet}
			}
			return hits, nil
		},
		timeout,
	)
}

// encyclopediaResponse is the shape of a Wikipedia-style summary response.
type encyclopediaResponse struct {
	Pages []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Extract string `json:"extract"`
	} `json:"pages"`
}

// NewEncyclopediaSource builds a Source backed by an encyclopedia search
// API reachable at baseURL. timeout bounds every probe/search request
// (cfg.SearchTimeout, SPEC_FULL.md §5).
func NewEncyclopediaSource(baseURL string, timeout time.Duration) Source {
	return newHTTPSource(
		"encyclopedia",
		baseURL+"/health",
		func(q string, max int) string {
			return fmt.Sprintf("%s/search?q=%s&limit=%d", baseURL, queryEscape(q), max)
		},
		func(body []byte) ([]Hit, error) {
			var r encyclopediaResponse
			if err := json.Unmarshal(body, &r); err != nil {
				return nil, err
			}
			hits := make([]Hit, len(r.Pages))
			for i, p := range r.Pages {
				hits[i] = Hit{Title: p.Title, URL: p.URL, Snippet: p.Extract}
			}
			return hits, nil
		},
		timeout,
	)
}

// webResponse is the shape of a generic web-search API response.
type webResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// NewWebSource builds a Source backed by a general web-search API reachable
// at baseURL. Results whose body contains a "not found" placeholder marker
// are dropped by the Router, not here (spec.md §4.3, step 3). timeout bounds
// every probe/search request (cfg.SearchTimeout, SPEC_FULL.md §5).
func NewWebSource(baseURL string, timeout time.Duration) Source {
	return newHTTPSource(
		"web",
		baseURL+"/health",
		func(q string, max int) string {
			return fmt.Sprintf("%s/search?q=%s&num=%d", baseURL, queryEscape(q), max)
		},
		func(body []byte) ([]Hit, error) {
			var r webResponse
			if err := json.Unmarshal(body, &r); err != nil {
				return nil, err
			}
			hits := make([]Hit, len(r.Items))
			for i, item := range r.Items {
				hits[i] = Hit{Title: item.Title, URL: item.Link, Snippet: item.Snippet}
			}
			return hits, nil
		},
		timeout,
	)
}

func queryEscape(q string) string {
	return strings.ReplaceAll(strings.TrimSpace(q), " ", "+")
}
