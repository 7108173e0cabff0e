package ports

import "github.com/roastwire/roastwire/internal/domain"

// Archive receives the summary of a finished recording. Optional; a nil
// archive means finished roasts simply leave the live channel's world.
type Archive interface {
	WriteRecording(rec *domain.Recording) error
	Name() string
}
