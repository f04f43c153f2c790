// Package docsource implements the producer side of the upstream-ingest
// contract: adapters that turn a file on disk into the raw_text/bullet_points
// page shape studyforge.Document expects (SPEC_FULL.md §6). Real slide
// parsing (OOXML shape trees, image extraction) stays out of scope; these
// adapters exist to hand the pipeline real Document values for demos,
// fixtures, and tests.
package docsource

import "github.com/bbiangul/studyforge"

// Source loads a file into its FileKind and the Page slice the pipeline's
// IngestDocument call expects, alongside the raw bytes IngestDocument hashes
// for content-addressed dedup.
type Source interface {
	Load(path string) (studyforge.FileKind, []byte, []studyforge.Page, error)
}
