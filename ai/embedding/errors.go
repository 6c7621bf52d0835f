package embedding

import "errors"

var (
	// ErrEmbeddingUnavailable reports that no vector could be obtained: the
	// service timed out, refused the connection, answered with a non-success
	// status, or the caller gave up waiting.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrMalformedEmbedding reports a response that cannot be stored: an
	// empty vector, non-finite components, or the wrong dimension.
	ErrMalformedEmbedding = errors.New("malformed embedding")
)
