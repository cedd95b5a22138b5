package wireframe

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// headerSize is the 8-byte (u32 id, u32 length) little-endian frame
	// header. It is never ciphered, in either direction.
	headerSize = 8

	// bootstrapSize is the legacy v1 XOR key the server writes immediately
	// on accept, before any framed data. v2 clients discard it.
	bootstrapSize = 4

	// readChunkSize bounds a single socket Read call feeding the
	// accumulator; frames themselves may be much larger.
	readChunkSize = 64 * 1024
)

// Reader decodes a stream of frames out of an io.Reader, discarding the
// one-time bootstrap prefix and applying Cipher to each frame's body.
type Reader struct {
	src    io.Reader
	cipher *Cipher

	buf         []byte // accumulated, not-yet-parsed bytes
	bootRemain  int    // bootstrap bytes still to discard, set from bootstrapSize on first use
	bootStarted bool   // bootRemain has been initialized
	readScratch []byte
}

// NewReader wraps src. cipher is shared with the session so that installing
// the key (once, mid-handshake) is visible to both the reader and the
// writer without re-plumbing it through every call.
func NewReader(src io.Reader, cipher *Cipher) *Reader {
	return &Reader{
		src:         src,
		cipher:      cipher,
		readScratch: make([]byte, readChunkSize),
	}
}

// Frame is one decoded, deciphered protocol frame.
type Frame struct {
	ID   uint32
	Body []byte
}

// ReadFrame blocks until one whole frame is available, discarding the
// 4-byte bootstrap prefix first if it hasn't been discarded yet on this
// connection. It returns the underlying read error (including io.EOF)
// unchanged so callers can distinguish a clean close from a transport
// error.
func (r *Reader) ReadFrame() (Frame, error) {
	for {
		if f, ok, err := r.tryParse(); err != nil {
			return Frame{}, err
		} else if ok {
			return f, nil
		}
		if err := r.fill(); err != nil {
			return Frame{}, err
		}
	}
}

// fill performs one Read and discards the bootstrap prefix, however many
// reads it takes to see all of it. The prefix can arrive split across
// multiple Read calls (e.g. one byte at a time), so the count of bytes
// still owed is tracked across fill calls instead of assumed to fit in
// whichever chunk happens to arrive first.
func (r *Reader) fill() error {
	if !r.bootStarted {
		r.bootStarted = true
		r.bootRemain = bootstrapSize
	}

	n, err := r.src.Read(r.readScratch)
	if n > 0 {
		chunk := r.readScratch[:n]
		if r.bootRemain > 0 {
			discard := r.bootRemain
			if discard > len(chunk) {
				discard = len(chunk)
			}
			chunk = chunk[discard:]
			r.bootRemain -= discard
		}
		r.buf = append(r.buf, chunk...)
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return io.ErrNoProgress
	}
	return nil
}

// tryParse extracts at most one whole frame from the front of the
// accumulator. ok is false when fewer than a whole frame is buffered.
func (r *Reader) tryParse() (Frame, bool, error) {
	if len(r.buf) < headerSize {
		return Frame{}, false, nil
	}
	id := binary.LittleEndian.Uint32(r.buf[0:4])
	length := binary.LittleEndian.Uint32(r.buf[4:8])
	total := headerSize + int(length)
	if len(r.buf) < total {
		return Frame{}, false, nil
	}

	body := make([]byte, length)
	copy(body, r.buf[headerSize:total])
	r.cipher.XOR(body, 0)

	remaining := len(r.buf) - total
	copy(r.buf, r.buf[total:])
	r.buf = r.buf[:remaining]

	return Frame{ID: id, Body: body}, true, nil
}

// Writer encodes a single frame per call onto an io.Writer. The header is
// written in the clear; the body is ciphered with Cipher before being
// written, both sharing the same write so a partial write can't interleave
// a torn frame onto the wire.
type Writer struct {
	dst    io.Writer
	cipher *Cipher
}

// NewWriter wraps dst. See NewReader for why the cipher is shared by
// pointer.
func NewWriter(dst io.Writer, cipher *Cipher) *Writer {
	return &Writer{dst: dst, cipher: cipher}
}

// WriteFrame ciphers a copy of body and writes [header][ciphered body] as
// one Write call.
func (w *Writer) WriteFrame(id uint32, body []byte) error {
	if uint64(len(body)) > 0xFFFFFFFF {
		return fmt.Errorf("wireframe: body of %d bytes exceeds u32 length field", len(body))
	}
	out := make([]byte, headerSize+len(body))
	binary.LittleEndian.PutUint32(out[0:4], id)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(body)))
	copy(out[headerSize:], body)
	w.cipher.XOR(out[headerSize:], 0)

	_, err := w.dst.Write(out)
	return err
}
