package packet

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const DefaultMaxPayloadSize uint32 = 1024 * 1024

type FrameReader interface {
	ReadFrame() ([]byte, error)
}

type FrameReaderError struct {
	Message string
	Err     error
}

func (e FrameReaderError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e FrameReaderError) Unwrap() error {
	return e.Err
}

type FrameWriter interface {
	WriteFrame(frame []byte) error
}

type FrameWriterError struct {
	Message string
	Err     error
}

func (e FrameWriterError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e FrameWriterError) Unwrap() error {
	return e.Err
}

// StreamFrameReader cuts frames off a byte stream. The returned slice has the layout Codec.Decode expects.
type StreamFrameReader struct {
	reader         *bufio.Reader
	maxPayloadSize uint32
}

func NewStreamFrameReader(r io.Reader, bufferSize int, maxPayloadSize uint32) *StreamFrameReader {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	if maxPayloadSize == 0 {
		maxPayloadSize = DefaultMaxPayloadSize
	}
	return &StreamFrameReader{
		reader:         bufio.NewReaderSize(r, bufferSize),
		maxPayloadSize: maxPayloadSize,
	}
}

// ReadFrame returns io.EOF only if the stream ends before the first byte of a frame.
func (r *StreamFrameReader) ReadFrame() ([]byte, error) {
	magic, err := r.reader.ReadByte()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	} else if err != nil {
		return nil, FrameReaderError{Message: "error reading magic byte", Err: err}
	}
	if magic != Magic {
		return nil, ErrNotAPacket
	}

	header := make([]byte, HeaderSize)
	header[0] = magic
	if _, err = io.ReadFull(r.reader, header[1:17]); err != nil {
		return nil, FrameReaderError{Message: "error reading frame header", Err: unexpected(err)}
	}
	if _, err = io.ReadFull(r.reader, header[17:21]); err != nil {
		return nil, FrameReaderError{Message: "error reading frame length", Err: unexpected(err)}
	}

	length := binary.BigEndian.Uint32(header[17:21])
	if length > r.maxPayloadSize {
		return nil, ErrFrameTooLarge
	}

	frame := make([]byte, HeaderSize+int(length)+TrailerSize)
	copy(frame, header)
	if _, err = io.ReadFull(r.reader, frame[HeaderSize:]); err != nil {
		return nil, FrameReaderError{Message: "error reading frame body", Err: unexpected(err)}
	}
	return frame, nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

type StreamFrameWriter struct {
	writer *bufio.Writer
}

func NewStreamFrameWriter(w io.Writer, bufferSize int) *StreamFrameWriter {
	if bufferSize <= 0 {
		bufferSize = 4096
	}
	return &StreamFrameWriter{writer: bufio.NewWriterSize(w, bufferSize)}
}

func (w *StreamFrameWriter) WriteFrame(frame []byte) error {
	if _, err := w.writer.Write(frame); err != nil {
		return FrameWriterError{Message: "error writing frame", Err: err}
	}
	if err := w.writer.Flush(); err != nil {
		return FrameWriterError{Message: "error flushing frame", Err: err}
	}
	return nil
}
