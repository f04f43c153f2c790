package studyforge

import "errors"

// Error taxonomy per SPEC_FULL.md §7. Decode failures and invariant
// violations are deliberately *not* sentinel errors here — each agent
// degrades rather than raising (spec.md §4.4-§4.9); these values cover
// only the kinds that genuinely propagate: fatal storage, cancellation
// surfaces as ctx.Err(), and upstream exhaustion from llm.ErrUpstream.
var (
	// ErrDocumentNotFound is returned when a document ID does not exist.
	ErrDocumentNotFound = errors.New("studyforge: document not found")

	// ErrPageNotFound is returned when a page number does not exist on a document.
	ErrPageNotFound = errors.New("studyforge: page not found")

	// ErrDocumentExists names a content-hash collision. No function returns
	// it: content-addressed dedup resolves a collision by returning the
	// pre-existing Document (spec.md §6, §8 law).
	ErrDocumentExists = errors.New("studyforge: document already exists")

	// ErrStoreClosed names an operation on a closed store. No function
	// returns it: the store package reports a closed store with its own
	// unwrapped "store is closed" error.
	ErrStoreClosed = errors.New("studyforge: store is closed")

	// ErrInvalidConfig names an invalid configuration value. No function in
	// this module returns it.
	ErrInvalidConfig = errors.New("studyforge: invalid configuration")

	// ErrFatalStorage wraps a persistence write failure that could not be
	// recovered; it propagates to the caller after the store's mutex is
	// released (spec.md §7, "Fatal storage").
	ErrFatalStorage = errors.New("studyforge: persistence write failed")
)
