package apperrors

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnknownGroup       = errors.New("unknown caller group")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrToolNotAllowed     = errors.New("tool not available for this group")
	ErrMalformedNarrative = errors.New("malformed narrative")
	ErrEmptyCompletion    = errors.New("completion service returned empty response")
)
