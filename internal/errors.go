package gencache

import "errors"

// Sentinel errors for the gencache domain.
var (
	ErrBadRequest        = errors.New("bad request")
	ErrNotFound          = errors.New("not found")
	ErrTemplateNotFound  = errors.New("template not found")
	ErrProviderError     = errors.New("provider error")
	ErrEmptyContent      = errors.New("generator returned empty content")
	ErrGeneratorNotFound = errors.New("generator not found")
)
