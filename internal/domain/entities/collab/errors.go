package collab

import "errors"

var (
	// ErrDocumentNotFound reports a join or lookup for a document id with
	// no durable record.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrUnauthorized reports a join rejected by the ownership check. No
	// shared state is touched.
	ErrUnauthorized = errors.New("participant not authorized for document")
)
