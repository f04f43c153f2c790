package llm

import "errors"

// ErrUpstream is returned when a chat or embedding call exhausts its
// retry budget against the remote endpoint.
var ErrUpstream = errors.New("llm: upstream request failed")
