package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// byteOrder resolves the encoding/binary.ByteOrder for a header's declared
// marker. The header itself (version, marker, opcode, flags) is always
// written in network byte order so a receiver can parse it before it knows
// which order the rest of the frame uses; only the fields after the header
// are written in the sender's native order and byte-swapped on read when it
// differs from the receiver's own.
func byteOrder(marker uint8) binary.ByteOrder {
	if marker == 0 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// WriteHeader writes the common 16-byte header in network byte order.
func WriteHeader(w io.Writer, h Header) error {
	var buf [headerSize]byte
	binary.BigEndian.PutUint16(buf[0:2], h.Version)
	buf[2] = nativeByteOrderMarker
	buf[3] = byte(h.Opcode)
	binary.BigEndian.PutUint32(buf[4:8], h.Flags)
	// buf[8:16] reserved, left zero.
	_, err := w.Write(buf[:])
	return err
}

// ReadHeader reads and validates the common header. A version mismatch is
// reported as *ErrBadVersion; callers must treat the session as dead.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, err
	}
	h := Header{
		Version:   binary.BigEndian.Uint16(buf[0:2]),
		ByteOrder: buf[2],
		Opcode:    Opcode(buf[3]),
		Flags:     binary.BigEndian.Uint32(buf[4:8]),
	}
	if h.Version != ProtocolVersion {
		return h, &ErrBadVersion{Got: h.Version}
	}
	return h, nil
}

// field encoder/decoder helpers below write/read the sender-order body.

func writeUint32(w io.Writer, order binary.ByteOrder, v uint32) error {
	var b [4]byte
	order.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader, order binary.ByteOrder) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return order.Uint32(b[:]), nil
}

func writeInt64(w io.Writer, order binary.ByteOrder, v int64) error {
	return writeUint64(w, order, uint64(v))
}

func readInt64(r io.Reader, order binary.ByteOrder) (int64, error) {
	v, err := readUint64(r, order)
	return int64(v), err
}

func writeUint64(w io.Writer, order binary.ByteOrder, v uint64) error {
	var b [8]byte
	order.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint64(r io.Reader, order binary.ByteOrder) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return order.Uint64(b[:]), nil
}

func writeDigest(w io.Writer, d Digest) error {
	_, err := w.Write(d[:])
	return err
}

func readDigest(r io.Reader) (Digest, error) {
	var d Digest
	_, err := io.ReadFull(r, d[:])
	return d, err
}

func writeBlob(w io.Writer, order binary.ByteOrder, b []byte) error {
	if err := writeUint32(w, order, uint32(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

func readBlob(r io.Reader, order binary.ByteOrder, opcode Opcode, maxSize int) ([]byte, error) {
	n, err := readUint32(r, order)
	if err != nil {
		return nil, err
	}
	if int(n) < 0 || (maxSize > 0 && int(n) > maxSize) {
		return nil, &ErrTruncated{Opcode: opcode, Want: int(n), Have: maxSize}
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// maxTrailerSize bounds variable-length trailers to guard against a
// corrupt or malicious length field driving an unbounded allocation; a
// value exceeding it is a fatal parse error.
const maxTrailerSize = 64 << 20

// EncodeShort serializes a ShortMsg.
func EncodeShort(w io.Writer, m *ShortMsg) error {
	m.Header.Opcode = m.Opcode()
	if err := WriteHeader(w, m.Header); err != nil {
		return err
	}
	order := byteOrder(nativeByteOrderMarker)
	if err := writeDigest(w, m.Digest); err != nil {
		return err
	}
	if err := writeUint32(w, order, m.Seq); err != nil {
		return err
	}
	if err := writeInt64(w, order, m.NBytes); err != nil {
		return err
	}
	if err := writeInt64(w, order, m.DataWord); err != nil {
		return err
	}
	if err := writeUint32(w, order, m.BufferHint); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(m.FragType)}); err != nil {
		return err
	}
	return writeBlob(w, order, m.Hostname)
}

// Opcode is a placeholder satisfied by the header's Opcode field at
// encode time; ShortMsg doesn't carry its own opcode storage beyond Header.
func (m *ShortMsg) Opcode() Opcode { return m.Header.Opcode }

// DecodeShort parses a ShortMsg body following an already-read header.
func DecodeShort(r io.Reader, h Header) (*ShortMsg, error) {
	order := byteOrder(h.ByteOrder)
	m := &ShortMsg{Header: h}
	var err error
	if m.Digest, err = readDigest(r); err != nil {
		return nil, err
	}
	if m.Seq, err = readUint32(r, order); err != nil {
		return nil, err
	}
	if m.NBytes, err = readInt64(r, order); err != nil {
		return nil, err
	}
	if m.DataWord, err = readInt64(r, order); err != nil {
		return nil, err
	}
	if m.BufferHint, err = readUint32(r, order); err != nil {
		return nil, err
	}
	var fragByte [1]byte
	if _, err := io.ReadFull(r, fragByte[:]); err != nil {
		return nil, err
	}
	m.FragType = FragType(fragByte[0])
	if m.Hostname, err = readBlob(r, order, h.Opcode, maxTrailerSize); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeShort2 serializes a Short2Msg (LINK).
func EncodeShort2(w io.Writer, m *Short2Msg) error {
	m.Header.Opcode = OpLink
	if err := WriteHeader(w, m.Header); err != nil {
		return err
	}
	order := byteOrder(nativeByteOrderMarker)
	if err := writeDigest(w, m.Digest); err != nil {
		return err
	}
	if err := writeDigest(w, m.DigestPrev); err != nil {
		return err
	}
	if err := writeUint32(w, order, m.Seq); err != nil {
		return err
	}
	_, err := w.Write([]byte{byte(m.FragType)})
	return err
}

// DecodeShort2 parses a Short2Msg body.
func DecodeShort2(r io.Reader, h Header) (*Short2Msg, error) {
	order := byteOrder(h.ByteOrder)
	m := &Short2Msg{Header: h}
	var err error
	if m.Digest, err = readDigest(r); err != nil {
		return nil, err
	}
	if m.DigestPrev, err = readDigest(r); err != nil {
		return nil, err
	}
	if m.Seq, err = readUint32(r, order); err != nil {
		return nil, err
	}
	var fragByte [1]byte
	if _, err := io.ReadFull(r, fragByte[:]); err != nil {
		return nil, err
	}
	m.FragType = FragType(fragByte[0])
	return m, nil
}

// EncodeLong serializes a LongMsg (OPEN_READ_LONG/OPEN_WRITE_LONG).
func EncodeLong(w io.Writer, m *LongMsg) error {
	if err := WriteHeader(w, m.Header); err != nil {
		return err
	}
	order := byteOrder(nativeByteOrderMarker)
	if err := writeDigest(w, m.Digest); err != nil {
		return err
	}
	if err := writeUint32(w, order, m.Seq); err != nil {
		return err
	}
	if err := writeInt64(w, order, m.NBytes); err != nil {
		return err
	}
	if err := writeInt64(w, order, m.PinTime); err != nil {
		return err
	}
	if err := writeUint32(w, order, m.BufferHint); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(m.FragType)}); err != nil {
		return err
	}
	if err := writeBlob(w, order, m.Hostname); err != nil {
		return err
	}
	return writeBlob(w, order, m.Trailer)
}

// DecodeLong parses a LongMsg body. A trailer whose declared length would
// run past the frame is a fatal parse error.
func DecodeLong(r io.Reader, h Header) (*LongMsg, error) {
	order := byteOrder(h.ByteOrder)
	m := &LongMsg{Header: h}
	var err error
	if m.Digest, err = readDigest(r); err != nil {
		return nil, err
	}
	if m.Seq, err = readUint32(r, order); err != nil {
		return nil, err
	}
	if m.NBytes, err = readInt64(r, order); err != nil {
		return nil, err
	}
	if m.PinTime, err = readInt64(r, order); err != nil {
		return nil, err
	}
	if m.BufferHint, err = readUint32(r, order); err != nil {
		return nil, err
	}
	var fragByte [1]byte
	if _, err := io.ReadFull(r, fragByte[:]); err != nil {
		return nil, err
	}
	m.FragType = FragType(fragByte[0])
	if m.Hostname, err = readBlob(r, order, h.Opcode, maxTrailerSize); err != nil {
		return nil, err
	}
	if m.Trailer, err = readBlob(r, order, h.Opcode, maxTrailerSize); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeReply serializes a ReplyMsg (CACHE_OP_RESULT).
func EncodeReply(w io.Writer, m *ReplyMsg) error {
	m.Header.Opcode = OpCacheOpResult
	if m.HTTPInfo != nil {
		m.Header.Flags |= FlagHasHTTPInfo
	}
	if err := WriteHeader(w, m.Header); err != nil {
		return err
	}
	order := byteOrder(nativeByteOrderMarker)
	if err := writeUint32(w, order, m.Seq); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(m.Result)}); err != nil {
		return err
	}
	if err := binary.Write(&byteWriter{w}, order, m.Reason); err != nil {
		return err
	}
	if err := writeUint32(w, order, m.HdrLen); err != nil {
		return err
	}
	if err := writeUint32(w, order, m.DataLen); err != nil {
		return err
	}
	if err := writeUint64(w, order, m.WriteToken); err != nil {
		return err
	}
	if m.Header.Flags&FlagHasHTTPInfo != 0 {
		if err := writeBlob(w, order, m.HTTPInfo); err != nil {
			return err
		}
	}
	if m.Header.Flags&FlagFinal != 0 && m.DataLen > 0 {
		if _, err := w.Write(m.Data); err != nil {
			return err
		}
	}
	return nil
}

// byteWriter adapts io.Writer for binary.Write of a single scalar.
type byteWriter struct{ io.Writer }

// DecodeReply parses a ReplyMsg body.
func DecodeReply(r io.Reader, h Header) (*ReplyMsg, error) {
	order := byteOrder(h.ByteOrder)
	m := &ReplyMsg{Header: h}
	var err error
	if m.Seq, err = readUint32(r, order); err != nil {
		return nil, err
	}
	var resultByte [1]byte
	if _, err := io.ReadFull(r, resultByte[:]); err != nil {
		return nil, err
	}
	m.Result = Result(resultByte[0])
	var reasonBuf [4]byte
	if _, err := io.ReadFull(r, reasonBuf[:]); err != nil {
		return nil, err
	}
	m.Reason = int32(order.Uint32(reasonBuf[:]))
	if m.HdrLen, err = readUint32(r, order); err != nil {
		return nil, err
	}
	if m.DataLen, err = readUint32(r, order); err != nil {
		return nil, err
	}
	if m.WriteToken, err = readUint64(r, order); err != nil {
		return nil, err
	}
	if h.Flags&FlagHasHTTPInfo != 0 {
		if m.HTTPInfo, err = readBlob(r, order, h.Opcode, maxTrailerSize); err != nil {
			return nil, err
		}
	}
	if h.Flags&FlagFinal != 0 && m.DataLen > 0 {
		if m.DataLen > maxTrailerSize {
			return nil, &ErrTruncated{Opcode: h.Opcode, Want: int(m.DataLen), Have: maxTrailerSize}
		}
		m.Data = make([]byte, m.DataLen)
		if _, err := io.ReadFull(r, m.Data); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// EncodeDataFrame serializes any of the data-plane frame shapes; opcode
// selects which fields are meaningful.
func EncodeDataFrame(w io.Writer, f *DataFrame) error {
	if err := WriteHeader(w, f.Header); err != nil {
		return err
	}
	order := byteOrder(nativeByteOrderMarker)
	if err := writeUint32(w, order, f.Seq); err != nil {
		return err
	}
	switch f.Header.Opcode {
	case OpReadBegin:
		if err := writeInt64(w, order, f.Offset); err != nil {
			return err
		}
		return writeInt64(w, order, f.NBytes)
	case OpReadReenable:
		return nil
	case OpReadDone:
		if err := writeInt64(w, order, f.NBytes); err != nil {
			return err
		}
		return writeBlob(w, order, f.Data)
	case OpWriteBegin:
		if err := writeInt64(w, order, f.NBytes); err != nil {
			return err
		}
		if err := writeUint32(w, order, f.HdrLen); err != nil {
			return err
		}
		if f.HdrLen > 0 {
			return writeBlob(w, order, f.HTTPInfo)
		}
		return nil
	case OpWriteDone:
		if err := writeInt64(w, order, f.NBytes); err != nil {
			return err
		}
		return writeBlob(w, order, f.Data)
	case OpHeaderOnlyUpdate:
		if err := writeUint32(w, order, f.HdrLen); err != nil {
			return err
		}
		return writeBlob(w, order, f.HTTPInfo)
	case OpClose:
		return writeInt64(w, order, f.NBytes)
	case OpAbort:
		return nil
	case OpError:
		return binary.Write(&byteWriter{w}, order, f.ErrCode)
	default:
		return fmt.Errorf("wire: unknown data frame opcode %s", f.Header.Opcode)
	}
}

// DecodeDataFrame parses any data-plane frame shape.
func DecodeDataFrame(r io.Reader, h Header) (*DataFrame, error) {
	order := byteOrder(h.ByteOrder)
	f := &DataFrame{Header: h}
	var err error
	if f.Seq, err = readUint32(r, order); err != nil {
		return nil, err
	}
	switch h.Opcode {
	case OpReadBegin:
		if f.Offset, err = readInt64(r, order); err != nil {
			return nil, err
		}
		f.NBytes, err = readInt64(r, order)
		return f, err
	case OpReadReenable:
		return f, nil
	case OpReadDone:
		if f.NBytes, err = readInt64(r, order); err != nil {
			return nil, err
		}
		f.Data, err = readBlob(r, order, h.Opcode, maxTrailerSize)
		return f, err
	case OpWriteBegin:
		if f.NBytes, err = readInt64(r, order); err != nil {
			return nil, err
		}
		if f.HdrLen, err = readUint32(r, order); err != nil {
			return nil, err
		}
		if f.HdrLen > 0 {
			f.HTTPInfo, err = readBlob(r, order, h.Opcode, maxTrailerSize)
			return f, err
		}
		return f, nil
	case OpWriteDone:
		if f.NBytes, err = readInt64(r, order); err != nil {
			return nil, err
		}
		f.Data, err = readBlob(r, order, h.Opcode, maxTrailerSize)
		return f, err
	case OpHeaderOnlyUpdate:
		if f.HdrLen, err = readUint32(r, order); err != nil {
			return nil, err
		}
		f.HTTPInfo, err = readBlob(r, order, h.Opcode, maxTrailerSize)
		return f, err
	case OpClose:
		f.NBytes, err = readInt64(r, order)
		return f, err
	case OpAbort:
		return f, nil
	case OpError:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		f.ErrCode = int32(order.Uint32(b[:]))
		return f, nil
	default:
		return nil, fmt.Errorf("wire: unknown data frame opcode %s", h.Opcode)
	}
}

// MarshalTrailer concatenates two opaque blobs with length prefixes, for
// the LONG opcodes' combined HTTP-request/lookup-config trailer.
func MarshalTrailer(a, b []byte) []byte {
	var buf bytes.Buffer
	writeLenPrefixed(&buf, a)
	writeLenPrefixed(&buf, b)
	return buf.Bytes()
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	var lenBytes [4]byte
	n := uint32(len(b))
	lenBytes[0] = byte(n >> 24)
	lenBytes[1] = byte(n >> 16)
	lenBytes[2] = byte(n >> 8)
	lenBytes[3] = byte(n)
	buf.Write(lenBytes[:])
	buf.Write(b)
}

// SplitTrailer reverses MarshalTrailer.
func SplitTrailer(trailer []byte) (a, b []byte) {
	readOne := func() []byte {
		if len(trailer) < 4 {
			return nil
		}
		n := uint32(trailer[0])<<24 | uint32(trailer[1])<<16 | uint32(trailer[2])<<8 | uint32(trailer[3])
		trailer = trailer[4:]
		if uint32(len(trailer)) < n {
			return nil
		}
		out := trailer[:n]
		trailer = trailer[n:]
		return out
	}
	a = readOne()
	b = readOne()
	return
}

// EncodeToBytes is a convenience used by tests and by callers that need a
// contiguous buffer (the responder copies the payload out of the
// transport's buffer chain immediately).
func EncodeToBytes(encode func(io.Writer) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
