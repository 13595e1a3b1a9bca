package segment

import (
	"errors"

	"github.com/ignite/studio-platform/internal/segmentation"
)

// Sentinel errors for the segment service layer.
var (
	ErrNotFound       = segmentation.ErrSegmentNotFound
	ErrNameRequired   = errors.New("segment name is required")
	ErrInvalidSegment = errors.New("invalid segment definition")
)
