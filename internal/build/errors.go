package build

import (
	"errors"
	"fmt"
)

// Kind classifies build failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPrerequisite
	KindEngineUnavailable
	KindPull
	KindContainerCreate
	KindContainerRemove
	KindContainerExitedNonZero
	KindContainerNotFoundRetriesExceeded
	KindTimeout
	KindVolumeCleanup
	KindLogWrite
	KindFileSystem
	KindCanceled
)

var kindNames = map[Kind]string{
	KindUnknown:                          "unknown",
	KindValidation:                       "validation",
	KindPrerequisite:                     "prerequisite",
	KindEngineUnavailable:                "engine_unavailable",
	KindPull:                             "pull",
	KindContainerCreate:                  "container_create",
	KindContainerRemove:                  "container_remove",
	KindContainerExitedNonZero:           "container_exited_non_zero",
	KindContainerNotFoundRetriesExceeded: "container_not_found",
	KindTimeout:                          "timeout",
	KindVolumeCleanup:                    "volume_cleanup",
	KindLogWrite:                         "log_write",
	KindFileSystem:                       "filesystem",
	KindCanceled:                         "canceled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a build failure of a known kind. Msg is the user-facing sentence;
// Err, when set, is the underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// NewError returns a build failure of kind. cause may be nil.
func NewError(kind Kind, msg string, cause error) *Error {
	return newError(kind, msg, cause)
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// ErrBuildDeleted is returned when a build's history entry was removed while
// its container was still running. The failure that follows is expected and
// is not reported.
var ErrBuildDeleted = errors.New("build was deleted while running")

// ErrOverwriteDeclined is returned when the user refuses to overwrite an
// existing disk image.
var ErrOverwriteDeclined = errors.New("overwrite declined")
