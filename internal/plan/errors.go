package plan

import "github.com/myrjola/ruckplan/internal/errors"

var (
	// ErrNotFound is returned by repositories when a row does not exist.
	ErrNotFound = errors.NewSentinel("not found")

	ErrSessionNotFound   = errors.NewSentinel("session not found")
	ErrTemplateNotFound  = errors.NewSentinel("template not found")
	ErrInvalidParameters = errors.NewSentinel("invalid parameters")
	ErrGenerationFailed  = errors.NewSentinel("generation failed")
	ErrAdaptationFailed  = errors.NewSentinel("adaptation failed")
	ErrCacheCorrupted    = errors.NewSentinel("cache corrupted")
)
