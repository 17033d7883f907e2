// Package wire implements the fixed-layout message codec shared by the
// initiator and responder halves of the cluster cache protocol: a 16-byte
// common header (version, byte-order marker, opcode, flags) followed by one
// of a handful of per-opcode variable layouts. Every inbound frame's version
// is checked before anything else; a mismatch is a fatal protocol error for
// the session that carried it.
package wire

// Opcode identifies the shape and intent of a message on the wire.
type Opcode uint8

const (
	OpNone Opcode = iota

	// Control opcodes, sent by the initiator.
	OpOpenRead
	OpOpenReadLong
	OpOpenWrite
	OpOpenWriteLong
	OpRemove
	OpLink
	OpDeref
	OpUpdate

	// OpCacheOpResult carries the responder's reply to any control opcode.
	OpCacheOpResult

	// Data-plane frames, exchanged after a reply establishes a stream.
	OpReadBegin
	OpReadReenable
	OpReadDone
	OpWriteBegin
	OpWriteDone
	OpHeaderOnlyUpdate
	OpClose
	OpAbort
	OpError
)

func (o Opcode) String() string {
	switch o {
	case OpOpenRead:
		return "OPEN_READ"
	case OpOpenReadLong:
		return "OPEN_READ_LONG"
	case OpOpenWrite:
		return "OPEN_WRITE"
	case OpOpenWriteLong:
		return "OPEN_WRITE_LONG"
	case OpRemove:
		return "REMOVE"
	case OpLink:
		return "LINK"
	case OpDeref:
		return "DEREF"
	case OpUpdate:
		return "UPDATE"
	case OpCacheOpResult:
		return "CACHE_OP_RESULT"
	case OpReadBegin:
		return "READ_BEGIN"
	case OpReadReenable:
		return "READ_REENABLE"
	case OpReadDone:
		return "READ_DONE"
	case OpWriteBegin:
		return "WRITE_BEGIN"
	case OpWriteDone:
		return "WRITE_DONE"
	case OpHeaderOnlyUpdate:
		return "HEADER_ONLY_UPDATE"
	case OpClose:
		return "CLOSE"
	case OpAbort:
		return "ABORT"
	case OpError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Result is the outcome carried by a CACHE_OP_RESULT reply.
type Result uint8

const (
	ResultNone Result = iota
	ResultOpenRead
	ResultOpenReadFailed
	ResultOpenWrite
	ResultOpenWriteFailed
	ResultRemove
	ResultRemoveFailed
	ResultLink
	ResultLinkFailed
	ResultDeref
	ResultDerefFailed
	ResultLookup
	ResultLookupFailed
	ResultUpdate
	ResultUpdateFailed
)

// Failed reports whether the result is one of the "..._FAILED" variants,
// which carry a negative reason code.
func (r Result) Failed() bool {
	switch r {
	case ResultOpenReadFailed, ResultOpenWriteFailed, ResultRemoveFailed,
		ResultLinkFailed, ResultDerefFailed, ResultLookupFailed, ResultUpdateFailed:
		return true
	default:
		return false
	}
}

// FragType is the two-variant tagged union of cache fragment kinds: HTTP
// fragments carry marshaled headers and a lookup config, generic fragments
// carry only an object size.
type FragType uint8

const (
	FragGeneric FragType = iota
	FragHTTP
)

