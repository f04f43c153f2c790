package studyforge

import "time"

// FileKind enumerates the kinds of upstream documents the pipeline accepts.
type FileKind string

const (
	FileKindDeck FileKind = "deck"
	FileKindPDF  FileKind = "pdf"
)

// GapKind enumerates the kinds of comprehension gap a page may surface.
type GapKind string

const (
	GapIntuition    GapKind = "intuition"
	GapExample      GapKind = "example"
	GapPrerequisite GapKind = "prerequisite"
	GapDerivation   GapKind = "derivation"
)

// CheckStatus is the verdict produced by the Checker agent.
type CheckStatus string

const (
	CheckPass   CheckStatus = "pass"
	CheckRevise CheckStatus = "revise"
)

// Document is the top-level unit the pipeline operates on. content_hash is
// the content-addressed identity: ingesting bytes that hash to an existing
// Document returns that Document's id unchanged (spec.md §6, §8).
type Document struct {
	ID             string    `json:"id"`
	FileName       string    `json:"file_name"`
	FileKind       FileKind  `json:"file_kind"`
	ContentHash    string    `json:"content_hash"`
	Pages          []Page    `json:"pages"`
	GlobalAnalysis *GlobalAnalysis `json:"global_analysis,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BulletPoint is one node in a page's outline tree. Depth is 0-indexed;
// a table row is represented as a leaf bullet whose Text holds the
// pipe-joined cell values (the upstream producer owns the real shape —
// see SPEC_FULL.md §6, docsource/ for a concrete demo producer).
type BulletPoint struct {
	Text     string        `json:"text"`
	Depth    int           `json:"depth"`
	Children []BulletPoint `json:"children,omitempty"`
}

// Page is one slide/page of a Document. Immutable once attached.
type Page struct {
	PageNumber        int           `json:"page_number"` // 1-indexed
	Title             string        `json:"title"`
	RawText           string        `json:"raw_text"`
	BulletPoints      []BulletPoint `json:"bullet_points"`
	ImageDescriptions []string      `json:"image_descriptions"`
}

// Chapter groups a contiguous-or-not run of pages under one heading.
type Chapter struct {
	Title        string `json:"title"`
	PageNumbers  []int  `json:"page_numbers"`
	KeyConcepts  []string `json:"key_concepts"`
}

// KnowledgeUnit is a cross-page bundle of related concepts. Advisory only:
// unit_id is not guaranteed stable across force-recomputes (SPEC_FULL.md §9).
type KnowledgeUnit struct {
	UnitID       string   `json:"unit_id"`
	Title        string   `json:"title"`
	PageNumbers  []int    `json:"page_numbers"`
	CoreConcepts []string `json:"core_concepts"`
}

// GlobalAnalysis is the document-scoped output of the global pass.
type GlobalAnalysis struct {
	MainTopic      string          `json:"main_topic"`
	Chapters       []Chapter       `json:"chapters"`
	KnowledgeFlow  string          `json:"knowledge_flow"`
	KnowledgeUnits []KnowledgeUnit `json:"knowledge_units"`
	TotalPages     int             `json:"total_pages"`
}

// ConceptCluster pairs a concept with a difficulty score and the reason
// it is hard. difficulty is clamped to [1,5] by the producing agent.
type ConceptCluster struct {
	Concept         string   `json:"concept"`
	Difficulty      int      `json:"difficulty"`
	WhyDifficult    string   `json:"why_difficult"`
	RelatedConcepts []string `json:"related_concepts"`
	GlobalContext   string   `json:"global_context,omitempty"`
}

// KnowledgeGap is a missing piece of context a learner would need.
type KnowledgeGap struct {
	Concept  string  `json:"concept"`
	GapKind  GapKind `json:"gap_kind"`
	Priority int     `json:"priority"` // clamped to [1,5]

	// RelatedConcepts is optional context carried over from the page's
	// ConceptCluster list (see PageClusterer) for the same concept, used by
	// Retriever to widen its query and by snippet extraction to weight
	// sentences. GapFinder itself never populates it.
	RelatedConcepts []string `json:"related_concepts,omitempty"`
}

// ExpandedContent is a short, gap-specific elaboration. Only produced for
// the top-3 highest-priority gaps that also meet min_gap_priority.
type ExpandedContent struct {
	Concept string     `json:"concept"`
	GapKind GapKind    `json:"gap_kind"`
	Body    string     `json:"body"` // <=150 chars
	Sources []Reference `json:"sources"`
}

// Reference is one retrieved source, local or external.
type Reference struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	SourceTag string `json:"source_tag"`
	Snippet   string `json:"snippet"`
}

// CheckResult is the Checker agent's verdict for one revision cycle.
type CheckResult struct {
	Status      CheckStatus `json:"status"`
	Issues      []string    `json:"issues"`
	Suggestions []string    `json:"suggestions"`
}

// PageAnalysis is the per-page deep-analysis output, keyed by
// (document_id, page_number).
type PageAnalysis struct {
	PageNumber    int               `json:"page_number"`
	Clusters      []ConceptCluster  `json:"clusters"`
	Notes         string            `json:"notes"` // markdown, <=300 chars
	Gaps          []KnowledgeGap    `json:"gaps"`
	Expansions    []ExpandedContent `json:"expansions"`
	References    []Reference       `json:"references"`
	CheckResult   CheckResult       `json:"check_result"`
	FinalNotes    string            `json:"final_notes"` // markdown, <=300 chars
	RevisionCount int               `json:"revision_count"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// PageStructure is the structured extraction the Noter agent's second
// call produces (spec.md §4.6).
type PageStructure struct {
	PageNumber   int      `json:"page_number"`
	Title        string   `json:"title"`
	MainConcepts []string `json:"main_concepts"`
	KeyPoints    []string `json:"key_points"`
}
