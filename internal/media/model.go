// README: Media index entries returned by a library scan.
package media

import (
	"errors"
	"time"

	"tripalbum/internal/types"
)

var (
	// ErrStorage wraps device or filesystem I/O failures.
	ErrStorage  = errors.New("media storage failure")
	ErrNotFound = errors.New("media not found")
)

type Kind int

const (
	KindImage Kind = iota
	KindVideo
)

func (k Kind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "image"
}

// Entry is one item of the library. ID is stable across scans.
type Entry struct {
	ID          types.ID
	TakenAt     time.Time
	FilePath    string
	DisplayName string
}
