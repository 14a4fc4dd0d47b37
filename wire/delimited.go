package wire

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"github.com/hysios/protomx/descriptor"
	"github.com/hysios/protomx/dynamic"
	"google.golang.org/protobuf/encoding/protowire"
)

// MarshalDelimited encodes m prefixed with its varint length, the framing
// used to concatenate messages in one stream.
func MarshalDelimited(m *dynamic.Message) ([]byte, error) {
	size := Size(m)
	b := protowire.AppendVarint(make([]byte, 0, protowire.SizeVarint(uint64(size))+size), uint64(size))
	return appendMessage(b, m)
}

// UnmarshalDelimited decodes one length-prefixed message from the front
// of b and reports how many bytes it used.
func UnmarshalDelimited(b []byte, desc *descriptor.Message) (*dynamic.Message, int, error) {
	size, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return nil, 0, parseErr(0, n)
	}
	if size > uint64(len(b)-n) {
		return nil, 0, errAt(n, "delimited size %d exceeds the %d remaining bytes", size, len(b)-n)
	}

	m := dynamic.New(desc)
	if err := decodeInto(m, b[n:n+int(size)], n); err != nil {
		return nil, 0, err
	}
	return m, n + int(size), nil
}

// DelimitedReader reads consecutive length-prefixed messages.
type DelimitedReader struct {
	r   *bufio.Reader
	off int
}

func NewDelimitedReader(r io.Reader) *DelimitedReader {
	return &DelimitedReader{r: bufio.NewReader(r)}
}

// Next returns io.EOF once the stream ends cleanly between messages.
func (d *DelimitedReader) Next(desc *descriptor.Message) (*dynamic.Message, error) {
	size, err := binary.ReadUvarint(d.r)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errAt(d.off, "read size: %v", err)
	}
	prefix := protowire.SizeVarint(size)
	if size > math.MaxInt32 {
		return nil, errAt(d.off, "delimited size %d exceeds %d", size, math.MaxInt32)
	}

	// Grows with the bytes actually read, not the claimed size.
	buf, err := io.ReadAll(io.LimitReader(d.r, int64(size)))
	if err != nil {
		return nil, errAt(d.off+prefix, "delimited size %d: %v", size, err)
	}
	if uint64(len(buf)) < size {
		return nil, errAt(d.off+prefix, "delimited size %d: %v", size, io.ErrUnexpectedEOF)
	}

	m := dynamic.New(desc)
	if err := decodeInto(m, buf, d.off+prefix); err != nil {
		return nil, err
	}
	d.off += prefix + int(size)
	return m, nil
}
