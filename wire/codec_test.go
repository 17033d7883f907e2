package wire

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Version: ProtocolVersion, Opcode: OpOpenRead, Flags: FlagFinal}
	var buf bytes.Buffer
	if err := WriteHeader(&buf, h); err != nil {
		t.Fatal(err)
	}
	got, err := ReadHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != h.Version || got.Opcode != h.Opcode || got.Flags != h.Flags {
		t.Fatalf("got %+v, want %+v", got, h)
	}
}

func TestReadHeaderBadVersion(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHeader(&buf, Header{Version: 0x0001, Opcode: OpOpenRead}); err != nil {
		t.Fatal(err)
	}
	_, err := ReadHeader(&buf)
	if _, ok := err.(*ErrBadVersion); !ok {
		t.Fatalf("expected *ErrBadVersion, got %v", err)
	}
}

func TestShortMsgRoundTrip(t *testing.T) {
	digest := Digest{1, 2, 3}
	m := &ShortMsg{
		Header:     Header{Version: ProtocolVersion, Opcode: OpOpenWrite},
		Digest:     digest,
		Seq:        42,
		NBytes:     1024,
		DataWord:   7,
		BufferHint: 99,
		FragType:   FragGeneric,
		Hostname:   []byte("node-a"),
	}
	var buf bytes.Buffer
	if err := EncodeShort(&buf, m); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeShort(&buf, h)
	if err != nil {
		t.Fatal(err)
	}
	if got.Digest != m.Digest || got.Seq != m.Seq || got.NBytes != m.NBytes ||
		got.DataWord != m.DataWord || got.BufferHint != m.BufferHint ||
		got.FragType != m.FragType || string(got.Hostname) != string(m.Hostname) {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestShort2MsgRoundTrip(t *testing.T) {
	m := &Short2Msg{
		Header:     Header{Version: ProtocolVersion},
		Digest:     Digest{9},
		DigestPrev: Digest{8},
		Seq:        7,
		FragType:   FragHTTP,
	}
	var buf bytes.Buffer
	if err := EncodeShort2(&buf, m); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if h.Opcode != OpLink {
		t.Fatalf("expected OpLink, got %s", h.Opcode)
	}
	got, err := DecodeShort2(&buf, h)
	if err != nil {
		t.Fatal(err)
	}
	if got.Digest != m.Digest || got.DigestPrev != m.DigestPrev || got.Seq != m.Seq || got.FragType != m.FragType {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestLongMsgRoundTrip(t *testing.T) {
	m := &LongMsg{
		Header:   Header{Version: ProtocolVersion, Opcode: OpOpenReadLong},
		Digest:   Digest{5},
		Seq:      3,
		NBytes:   2048,
		PinTime:  500,
		FragType: FragGeneric,
		Hostname: []byte("node-b"),
		Trailer:  MarshalTrailer([]byte("http-request"), []byte("lookup-config")),
	}
	var buf bytes.Buffer
	if err := EncodeLong(&buf, m); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeLong(&buf, h)
	if err != nil {
		t.Fatal(err)
	}
	httpReq, lookup := SplitTrailer(got.Trailer)
	if string(httpReq) != "http-request" || string(lookup) != "lookup-config" {
		t.Fatalf("trailer round trip mismatch: %q %q", httpReq, lookup)
	}
	if got.NBytes != m.NBytes || got.PinTime != m.PinTime {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestReplyMsgRoundTripWithData(t *testing.T) {
	m := &ReplyMsg{
		Header:     Header{Version: ProtocolVersion, Flags: FlagFinal},
		Seq:        11,
		Result:     ResultOpenRead,
		Reason:     0,
		DataLen:    5,
		Data:       []byte("hello"),
		WriteToken: 0,
	}
	var buf bytes.Buffer
	if err := EncodeReply(&buf, m); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeReply(&buf, h)
	if err != nil {
		t.Fatal(err)
	}
	if got.Result != m.Result || string(got.Data) != string(m.Data) {
		t.Fatalf("got %+v, want %+v", got, m)
	}
}

func TestReplyMsgStreamingDeclaresSizeWithNoInlineBytes(t *testing.T) {
	m := &ReplyMsg{
		Header:  Header{Version: ProtocolVersion}, // no FlagFinal: streaming follows
		Seq:     4,
		Result:  ResultOpenRead,
		DataLen: 4096,
	}
	var buf bytes.Buffer
	if err := EncodeReply(&buf, m); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeReply(&buf, h)
	if err != nil {
		t.Fatal(err)
	}
	if got.DataLen != 4096 {
		t.Fatalf("DataLen = %d, want 4096", got.DataLen)
	}
	if len(got.Data) != 0 {
		t.Fatalf("expected no inline Data without FlagFinal, got %d bytes", len(got.Data))
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no leftover bytes after decoding, got %d", buf.Len())
	}
}

func TestReplyMsgCarriesWriteToken(t *testing.T) {
	m := &ReplyMsg{
		Header:     Header{Version: ProtocolVersion},
		Seq:        1,
		Result:     ResultOpenReadFailed,
		Reason:     -1,
		WriteToken: 0xdeadbeef,
	}
	var buf bytes.Buffer
	if err := EncodeReply(&buf, m); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeReply(&buf, h)
	if err != nil {
		t.Fatal(err)
	}
	if got.WriteToken != m.WriteToken {
		t.Fatalf("got write token %d, want %d", got.WriteToken, m.WriteToken)
	}
}

func TestDataFrameReadDoneRoundTrip(t *testing.T) {
	f := &DataFrame{
		Header: Header{Version: ProtocolVersion, Opcode: OpReadDone},
		Seq:    3,
		NBytes: 4,
		Data:   []byte("data"),
	}
	var buf bytes.Buffer
	if err := EncodeDataFrame(&buf, f); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeDataFrame(&buf, h)
	if err != nil {
		t.Fatal(err)
	}
	if got.NBytes != f.NBytes || string(got.Data) != string(f.Data) {
		t.Fatalf("got %+v, want %+v", got, f)
	}
}

func TestDataFrameErrorRoundTrip(t *testing.T) {
	f := &DataFrame{
		Header:  Header{Version: ProtocolVersion, Opcode: OpError},
		Seq:     9,
		ErrCode: -7,
	}
	var buf bytes.Buffer
	if err := EncodeDataFrame(&buf, f); err != nil {
		t.Fatal(err)
	}
	h, err := ReadHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeDataFrame(&buf, h)
	if err != nil {
		t.Fatal(err)
	}
	if got.ErrCode != f.ErrCode {
		t.Fatalf("got errcode %d, want %d", got.ErrCode, f.ErrCode)
	}
}

func TestSplitTrailerEmpty(t *testing.T) {
	a, b := SplitTrailer(nil)
	if a != nil || b != nil {
		t.Fatalf("expected nil/nil for empty trailer, got %v %v", a, b)
	}
}

func TestResultFailed(t *testing.T) {
	cases := map[Result]bool{
		ResultOpenRead:       false,
		ResultOpenReadFailed: true,
		ResultUpdate:         false,
		ResultUpdateFailed:   true,
	}
	for r, want := range cases {
		if got := r.Failed(); got != want {
			t.Errorf("Result(%d).Failed() = %v, want %v", r, got, want)
		}
	}
}
