package wire

import (
	"fmt"
)

// ProtocolVersion is bumped whenever the wire layout changes incompatibly.
// Every inbound header is checked against it; on mismatch the session is
// torn down, matching jiva's magic-version check in rpc/wire.go.
const ProtocolVersion uint16 = 0x0301

// nativeByteOrderMarker tags which field order this process writes frames in.
// 0 means little-endian, 1 means big-endian — this process always writes 0.
const nativeByteOrderMarker uint8 = 0

// headerSize is the fixed common header shared by every message shape:
// version(2) + byte-order(1) + opcode(1) + flags(4) + reserved(8) = 16.
const headerSize = 16

// Flag bits carried in the common header.
const (
	FlagNone         uint32 = 0
	FlagCancelled    uint32 = 1 << 0
	FlagHasHTTPInfo  uint32 = 1 << 1
	FlagConditional  uint32 = 1 << 2
	FlagFinal        uint32 = 1 << 3
)

// Digest is the 128-bit content-address cache key.
type Digest [16]byte

func (d Digest) String() string {
	return fmt.Sprintf("%x", d[:])
}

// Header is the common 16-byte prefix of every message on the wire.
type Header struct {
	Version   uint16
	ByteOrder uint8
	Opcode    Opcode
	Flags     uint32
}

// ErrBadVersion is returned when an inbound header's version doesn't match
// ProtocolVersion. The caller must treat the owning session as dead.
type ErrBadVersion struct {
	Got uint16
}

func (e *ErrBadVersion) Error() string {
	return fmt.Sprintf("wire: bad protocol version 0x%x, expected 0x%x", e.Got, ProtocolVersion)
}

// ErrTruncated is returned when a variable-length trailer's declared size
// doesn't fit the bytes actually available.
type ErrTruncated struct {
	Opcode Opcode
	Want   int
	Have   int
}

func (e *ErrTruncated) Error() string {
	return fmt.Sprintf("wire: truncated %s frame: want %d trailer bytes, have %d", e.Opcode, e.Want, e.Have)
}

// ShortMsg is the layout for OPEN_READ, OPEN_WRITE, REMOVE, UPDATE: a single
// digest, a sequence number, a byte count, one opcode-specific data word
// (overwrite flag, pin time, ...) and a buffer-size hint.
type ShortMsg struct {
	Header
	Digest     Digest
	Seq        uint32
	NBytes     int64
	DataWord   int64
	BufferHint uint32
	FragType   FragType
	Hostname   []byte
}

// Short2Msg is the layout for LINK: two digests plus a sequence number.
type Short2Msg struct {
	Header
	Digest     Digest
	DigestPrev Digest
	Seq        uint32
	FragType   FragType
}

// LongMsg is the layout for OPEN_READ_LONG/OPEN_WRITE_LONG: a digest, a
// sequence number, a byte count, a pin time, a buffer-size hint, and a
// trailing blob holding the marshaled HTTP request plus lookup config.
type LongMsg struct {
	Header
	Digest     Digest
	Seq        uint32
	NBytes     int64
	PinTime    int64
	BufferHint uint32
	FragType   FragType
	Hostname   []byte
	// Trailer is the opaque HTTP-header/lookup-config blob; the codec
	// neither parses nor validates it.
	Trailer []byte
}

// ReplyMsg is the CACHE_OP_RESULT layout: a sequence number, a result code,
// a reason (negative on failure), an inlined-header length, and a DataLen
// that means one of two things depending on FlagFinal: with FlagFinal set,
// DataLen bytes of Data follow inline (the small-object fast path); without
// it, DataLen is just the declared total size of the object the caller is
// about to stream in over READ_DONE frames, and no bytes follow inline.
type ReplyMsg struct {
	Header
	Seq        uint32
	Result     Result
	Reason     int32
	HdrLen     uint32
	DataLen    uint32
	HTTPInfo   []byte
	Data       []byte
	WriteToken uint64 // non-zero when OPEN_READ_FAILED carries a salvaged write VC
}

// DataFrame covers every data-plane shape: READ_BEGIN/READ_REENABLE/
// READ_DONE/WRITE_BEGIN/WRITE_DONE/HEADER_ONLY_UPDATE/CLOSE/ABORT/ERROR.
// Not every field is meaningful for every opcode; see the per-opcode
// builders in codec.go.
type DataFrame struct {
	Header
	Seq      uint32
	Offset   int64
	NBytes   int64
	HdrLen   uint32
	HTTPInfo []byte
	Data     []byte
	ErrCode  int32
}
