package storage

import "errors"

var (
	ErrIndexUnavailable    = errors.New("vector index unavailable")
	ErrIndexNotInitialized = errors.New("vector index not initialized")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
	ErrDocumentNotFound    = errors.New("document not found")
	ErrNamespaceMismatch   = errors.New("chunk does not belong to document namespace")
)
