package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/ruteri/confchannel/confcrypto"
)

// writer accumulates a message body using the same big-endian,
// length-prefixed framing idiom as cryptoutils' ECIES wire format in the
// teacher repo, generalized to nested variable-length fields.
type writer struct {
	buf bytes.Buffer
}

func newWriter() *writer { return &writer{} }

func (w *writer) writeFixed(b []byte) { w.buf.Write(b) }

func (w *writer) writeByte(b byte) { w.buf.WriteByte(b) }

func (w *writer) writeUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf.Write(tmp[:])
}

func (w *writer) writeBool(v bool) {
	if v {
		w.writeByte(1)
	} else {
		w.writeByte(0)
	}
}

// writeBytes writes a uint32 length prefix followed by the data.
func (w *writer) writeBytes(b []byte) {
	w.writeUint32(uint32(len(b)))
	w.buf.Write(b)
}

func (w *writer) bytes() []byte { return w.buf.Bytes() }

// reader consumes a message body written by writer.
type reader struct {
	r   *bytes.Reader
	err error
}

func newReader(b []byte) *reader { return &reader{r: bytes.NewReader(b)} }

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) readFixed(n int) []byte {
	if r.err != nil {
		return nil
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(r.r, out); err != nil {
		r.fail(confcrypto.WrapPayloadParseError("unexpected end of message", err))
		return nil
	}
	return out
}

func (r *reader) readByte() byte {
	b := r.readFixed(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) readUint32() uint32 {
	b := r.readFixed(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) readBool() bool {
	return r.readByte() != 0
}

func (r *reader) readBytes() []byte {
	if r.err != nil {
		return nil
	}
	n := r.readUint32()
	if r.err != nil {
		return nil
	}
	if int64(n) > int64(r.r.Len()) {
		r.fail(confcrypto.NewPayloadParseError("declared length exceeds remaining message"))
		return nil
	}
	return r.readFixed(int(n))
}

func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.r.Len() != 0 {
		return confcrypto.NewPayloadParseError("trailing bytes after message body")
	}
	return nil
}
