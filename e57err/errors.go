// Package e57err defines the error taxonomy raised by the compressed vector
// I/O engine. Every error is an *Error whose Kind names its taxonomy member,
// so callers can use errors.As and switch on Kind to branch on cause rather
// than matching message text.
package e57err

import (
	"errors"
	"fmt"
)

// Kind identifies one of the taxonomy members in the engine's error handling
// design. It is carried by every *Error so generic handling code can switch
// on it without a type assertion per kind.
type Kind int

const (
	KindUnknown Kind = iota
	KindImageFileNotOpen
	KindFileReadOnly
	KindWriteNotSupported
	KindReaderNotOpen
	KindWriterNotOpen
	KindBadApiArgument
	KindBadPathName
	KindPathUndefined
	KindBadBuffer
	KindBuffersNotCompatible
	KindBadCVPacket
	KindValueOutOfRange
	KindNotImplemented
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindImageFileNotOpen:
		return "ImageFileNotOpen"
	case KindFileReadOnly:
		return "FileReadOnly"
	case KindWriteNotSupported:
		return "WriteNotSupported"
	case KindReaderNotOpen:
		return "ReaderNotOpen"
	case KindWriterNotOpen:
		return "WriterNotOpen"
	case KindBadApiArgument:
		return "BadApiArgument"
	case KindBadPathName:
		return "BadPathName"
	case KindPathUndefined:
		return "PathUndefined"
	case KindBadBuffer:
		return "BadBuffer"
	case KindBuffersNotCompatible:
		return "BuffersNotCompatible"
	case KindBadCVPacket:
		return "BadCVPacket"
	case KindValueOutOfRange:
		return "ValueOutOfRange"
	case KindNotImplemented:
		return "NotImplemented"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type raised by the engine. Field and Value are
// optional context, populated the way core.ValidationError does in the
// teacher codebase.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	Value   string
	Err     error // wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s=%q)", e.Kind, e.Message, e.Field, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func new_(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func ImageFileNotOpen(msg string) *Error { return new_(KindImageFileNotOpen, msg) }
func FileReadOnly(msg string) *Error     { return new_(KindFileReadOnly, msg) }
func WriteNotSupported(msg string) *Error {
	return new_(KindWriteNotSupported, msg)
}
func ReaderNotOpen(msg string) *Error { return new_(KindReaderNotOpen, msg) }
func WriterNotOpen(msg string) *Error { return new_(KindWriterNotOpen, msg) }

func BadApiArgument(field, value, msg string) *Error {
	return &Error{Kind: KindBadApiArgument, Message: msg, Field: field, Value: value}
}

func BadPathName(path string) *Error {
	return &Error{Kind: KindBadPathName, Message: "path is not syntactically valid", Field: "path", Value: path}
}

func PathUndefined(path string) *Error {
	return &Error{Kind: KindPathUndefined, Message: "path does not resolve to a terminal", Field: "path", Value: path}
}

func BadBuffer(field, msg string) *Error {
	return &Error{Kind: KindBadBuffer, Message: msg, Field: field}
}

func BuffersNotCompatible(path, msg string) *Error {
	return &Error{Kind: KindBuffersNotCompatible, Message: msg, Field: "path", Value: path}
}

func BadCVPacket(msg string) *Error { return new_(KindBadCVPacket, msg) }

func BadCVPacketf(format string, args ...any) *Error {
	return newf(KindBadCVPacket, format, args...)
}

func ValueOutOfRange(path string, msg string) *Error {
	return &Error{Kind: KindValueOutOfRange, Message: msg, Field: "path", Value: path}
}

func NotImplemented(op string) *Error {
	return &Error{Kind: KindNotImplemented, Message: "not implemented", Field: "operation", Value: op}
}

func Internal(msg string) *Error { return new_(KindInternal, msg) }

func Internalf(format string, args ...any) *Error {
	return newf(KindInternal, format, args...)
}

// Wrap attaches an existing error as the cause of a new taxonomy error,
// preserving it for errors.Is/errors.As on the chain.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}
