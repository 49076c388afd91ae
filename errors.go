package flatwire

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Builder misuse. These indicate a bug in the calling code and are
// returned immediately; the builder never papers over them.
var (
	// ErrNesting reports an operation that would interleave object
	// construction, such as adding a field with no object open.
	ErrNesting = xerrors.New("flatwire: operation would interleave object construction")

	// ErrAlreadyFinished reports a second Finish, or any write after
	// the buffer has been finalized.
	ErrAlreadyFinished = xerrors.New("flatwire: builder already finished")

	// ErrOpenObject reports a Finish while objects remain under
	// construction.
	ErrOpenObject = xerrors.New("flatwire: object still under construction")

	// ErrSlotRange reports a slot index outside the descriptor's
	// declared slot count.
	ErrSlotRange = xerrors.New("flatwire: slot index out of range")

	// ErrDeprecatedSlot reports a write to a slot the descriptor marks
	// deprecated. Deprecated slots keep their index but are never
	// written.
	ErrDeprecatedSlot = xerrors.New("flatwire: slot is deprecated")

	// ErrKindMismatch reports a field accessed through an operation of
	// the wrong wire kind.
	ErrKindMismatch = xerrors.New("flatwire: descriptor kind mismatch")

	// ErrDanglingOffset reports an offset field whose target has not
	// been finalized yet. Children must be built before their parents.
	ErrDanglingOffset = xerrors.New("flatwire: offset target not finalized")

	// ErrFileIdentifier reports a file identifier that is not exactly
	// 4 bytes.
	ErrFileIdentifier = xerrors.New("flatwire: file identifier must be 4 bytes")
)

// Decode failures. A malformed buffer produces one of these; the
// engine never dereferences an unvalidated address.
var (
	// ErrOutOfBounds reports a computed offset or length outside the
	// buffer extent.
	ErrOutOfBounds = xerrors.New("flatwire: offset outside buffer bounds")

	// ErrSlotWidth reports a read wider than the vtable's declared
	// object extent allows for the field.
	ErrSlotWidth = xerrors.New("flatwire: field narrower than requested read")

	// ErrUnknownType reports a table reference whose type is not
	// present in the registry.
	ErrUnknownType = xerrors.New("flatwire: type not registered")

	// ErrUnknownUnionTag reports a union discriminant with no matching
	// variant in the descriptor.
	ErrUnknownUnionTag = xerrors.New("flatwire: union tag has no variant")
)

// A DecodeError carries the offending position alongside the sentinel
// it wraps, so callers can both dispatch with errors.Is and report
// where a buffer went bad.
type DecodeError struct {
	Off  UOffsetT // position the read was attempted at
	Need int      // bytes the read required
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v (at offset %d, need %d bytes)", e.Err, e.Off, e.Need)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func decodeErr(err error, off UOffsetT, need int) error {
	return &DecodeError{Off: off, Need: need, Err: err}
}
