// Package errs defines the sentinel errors shared by every package in this
// module. Call sites wrap a sentinel with additional context using
// fmt.Errorf("%w: ...", errs.ErrX, ...) rather than constructing ad-hoc error
// strings, so callers can still match with errors.Is.
package errs

import "errors"

// ErrorKind categorizes a sentinel error for the purpose of deciding how the
// engine layer should react: abort the engine instance, reject the single
// call, abort only the affected block, or simply stop streaming.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindInvalidArgument
	KindLogicError
	KindFormatCorruption
	KindOperatorFailure
	KindIoFailure
	KindEndOfStream
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidArgument:
		return "InvalidArgument"
	case KindLogicError:
		return "LogicError"
	case KindFormatCorruption:
		return "FormatCorruption"
	case KindOperatorFailure:
		return "OperatorFailure"
	case KindIoFailure:
		return "IoFailure"
	case KindEndOfStream:
		return "EndOfStream"
	default:
		return "Unknown"
	}
}

// kindError pairs a sentinel with its category so Kind(err) can recover it
// even after the sentinel has been wrapped by fmt.Errorf("%w: ...", ...).
type kindError struct {
	kind ErrorKind
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func newKind(kind ErrorKind, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// Kind recovers the ErrorKind of err, walking the unwrap chain. Returns
// KindUnknown if err (or nothing in its chain) was minted by this package.
func Kind(err error) ErrorKind {
	for err != nil {
		if ke, ok := err.(*kindError); ok { //nolint:errorlint
			return ke.kind
		}
		err = errors.Unwrap(err)
	}

	return KindUnknown
}

// InvalidArgument sentinels: the caller of an API misused it (bad dimension,
// missing variable, out-of-range step selection). Surfaced without side
// effects: the pending queue and bitfield are left unchanged.
var (
	ErrInvalidDimension     = newKind(KindInvalidArgument, "bp5: invalid dimension count")
	ErrInvalidShape         = newKind(KindInvalidArgument, "bp5: invalid or shrinking shape")
	ErrUnknownVariable      = newKind(KindInvalidArgument, "bp5: unknown variable")
	ErrStepRangeOutOfBounds = newKind(KindInvalidArgument, "bp5: requested step range exceeds available steps")
	ErrInvalidSelection     = newKind(KindInvalidArgument, "bp5: invalid selection bounding box")
	ErrInvalidArgument      = newKind(KindInvalidArgument, "bp5: invalid argument")
	ErrNilDestination       = newKind(KindInvalidArgument, "bp5: nil destination buffer")
	ErrStringPutInvalid     = newKind(KindInvalidArgument, "bp5: string put requires a valid pointer")
)

// LogicError sentinels: protocol violations, fatal to the engine instance.
var (
	ErrMarshalBeforeInit   = newKind(KindLogicError, "bp5: Marshal called before InitStep")
	ErrCloseBeforeInit     = newKind(KindLogicError, "bp5: CloseTimestep called before InitStep")
	ErrAlreadyClosed       = newKind(KindLogicError, "bp5: timestep already closed")
	ErrMetaMetaNotEstablished = newKind(KindLogicError, "bp5: EstablishConversion required before decode")
	ErrStagerMisuse           = newKind(KindLogicError, "bp5: staging buffer used out of order")
)

// FormatCorruption sentinels: the wire format is self-inconsistent.
var (
	ErrUnknownFormatID       = newKind(KindFormatCorruption, "bp5: unrecognized format id")
	ErrUnparseableFieldName  = newKind(KindFormatCorruption, "bp5: unparseable metadata field name")
	ErrUnsupportedFieldType  = newKind(KindFormatCorruption, "bp5: unsupported field type prefix")
	ErrTruncatedBlock        = newKind(KindFormatCorruption, "bp5: truncated metadata block")
	ErrMalformedSuffix       = newKind(KindFormatCorruption, "bp5: unrecognized +O/+MM suffix sequence")
	ErrRecordLayoutMismatch  = newKind(KindFormatCorruption, "bp5: incoming record layout incompatible with local layout")
)

// OperatorFailure sentinels: the compression codec failed.
var (
	ErrOperatorCompress   = newKind(KindOperatorFailure, "bp5: operator compression failed")
	ErrOperatorDecompress = newKind(KindOperatorFailure, "bp5: operator decompression failed")
	ErrUnknownOperator    = newKind(KindOperatorFailure, "bp5: unknown operator type")
)

// IoFailure sentinels: reported by the transport, passed through verbatim.
var ErrIo = newKind(KindIoFailure, "bp5: transport I/O failure")

// EndOfStream is advisory, not an error in the usual sense.
var ErrEndOfStream = newKind(KindEndOfStream, "bp5: end of stream")
