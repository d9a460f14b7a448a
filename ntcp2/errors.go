package ntcp2

import (
	"errors"

	"github.com/samber/oops"
)

// Error code constants mirror the NTCP2 error taxonomy: every fatal
// handshake or data-phase failure is tagged with one of these codes so
// callers can distinguish "blacklist the peer" failures from transient,
// recoverable ones.
const (
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeInvalidLength    = "INVALID_LENGTH"
	CodeInvalidBlockType = "INVALID_BLOCK_TYPE"
	CodeInvalidPadding   = "INVALID_PADDING"
	CodeInvalidTimestamp = "INVALID_TIMESTAMP"
	CodeDecryptFailure   = "DECRYPT_FAILURE"
	CodeIdentityMismatch = "IDENTITY_MISMATCH"
	CodeInvalidM3P2      = "INVALID_M3P2"
	CodeDuplicateSession = "DUPLICATE_SESSION"
	CodeNotReady         = "NOT_READY"
	CodeSocketError      = "SOCKET_ERROR"
	CodeCancelled        = "CANCELLED"
)

// fatalCodes are the error codes that mandate terminating the session and
// blacklisting the remote peer, per the error handling design.
var fatalCodes = map[string]bool{
	CodeInvalidLength:    true,
	CodeInvalidBlockType: true,
	CodeInvalidPadding:   true,
	CodeInvalidTimestamp: true,
	CodeDecryptFailure:   true,
	CodeIdentityMismatch: true,
	CodeInvalidM3P2:      true,
}

// taggedError carries the NTCP2 error-taxonomy code alongside the
// oops-wrapped error it originated from, so callers can classify an error
// without string-matching its message.
type taggedError struct {
	code string
	err  error
}

func (t *taggedError) Error() string { return t.err.Error() }
func (t *taggedError) Unwrap() error { return t.err }

// Code returns the NTCP2 error-taxonomy code for err, or "" if err was not
// produced by this package's error constructors.
func Code(err error) string {
	var t *taggedError
	if errors.As(err, &t) {
		return t.code
	}
	return ""
}

// IsFatal reports whether err carries one of the error codes that requires
// terminating the session and blacklisting the peer.
func IsFatal(err error) bool {
	return fatalCodes[Code(err)]
}

func tag(code string, err error) error {
	return &taggedError{code: code, err: err}
}

func errInvalidArgument(component, msg string) error {
	return tag(CodeInvalidArgument, oops.Code(CodeInvalidArgument).In(component).Errorf(msg))
}

func errInvalidLength(component string, got, want any) error {
	return tag(CodeInvalidLength, oops.Code(CodeInvalidLength).In(component).
		With("got", got).With("want", want).Errorf("invalid length"))
}

func errInvalidBlockType(component string, typ any) error {
	return tag(CodeInvalidBlockType, oops.Code(CodeInvalidBlockType).In(component).
		With("type", typ).Errorf("invalid block type"))
}

func errInvalidPadding(component, msg string) error {
	return tag(CodeInvalidPadding, oops.Code(CodeInvalidPadding).In(component).Errorf(msg))
}

func errInvalidTimestamp(component, msg string) error {
	return tag(CodeInvalidTimestamp, oops.Code(CodeInvalidTimestamp).In(component).Errorf(msg))
}

func errDecryptFailure(component string, cause error) error {
	return tag(CodeDecryptFailure, oops.Code(CodeDecryptFailure).In(component).Wrapf(cause, "decryption failed"))
}

func errIdentityMismatch(component, msg string) error {
	return tag(CodeIdentityMismatch, oops.Code(CodeIdentityMismatch).In(component).Errorf(msg))
}

func errInvalidM3P2(component, msg string) error {
	return tag(CodeInvalidM3P2, oops.Code(CodeInvalidM3P2).In(component).Errorf(msg))
}

func errDuplicateSession(component, msg string) error {
	return tag(CodeDuplicateSession, oops.Code(CodeDuplicateSession).In(component).Errorf(msg))
}

func errNotReady(component, msg string) error {
	return tag(CodeNotReady, oops.Code(CodeNotReady).In(component).Errorf(msg))
}

func errSocket(component string, cause error) error {
	return tag(CodeSocketError, oops.Code(CodeSocketError).In(component).Wrapf(cause, "socket error"))
}

func errCancelled(component, msg string) error {
	return tag(CodeCancelled, oops.Code(CodeCancelled).In(component).Errorf(msg))
}

// NewDuplicateSessionError lets callers outside this package (the session
// manager) raise a DuplicateSession error carrying the same taxonomy code
// this package's own handshake code uses.
func NewDuplicateSessionError(component, msg string) error {
	return errDuplicateSession(component, msg)
}

// NewInvalidArgumentError lets callers outside this package raise an
// InvalidArgument error carrying this package's taxonomy code.
func NewInvalidArgumentError(component, msg string) error {
	return errInvalidArgument(component, msg)
}

// NewNotReadyError lets callers outside this package raise a NotReady
// error, e.g. the session manager refusing to dial a currently blacklisted
// peer.
func NewNotReadyError(component, msg string) error {
	return errNotReady(component, msg)
}

// NewSocketError lets callers outside this package wrap an underlying
// transport failure (e.g. a listener's Accept call) with this package's
// SocketError taxonomy code.
func NewSocketError(component string, cause error) error {
	return errSocket(component, cause)
}
