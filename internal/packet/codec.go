package packet

import (
	"encoding/binary"
	"fmt"
	"math"
)

type CodecOption func(*Codec)

// WithStrictDecryption makes cipher failures fatal instead of passing the raw bytes through.
func WithStrictDecryption() CodecOption {
	return func(c *Codec) {
		c.strict = true
	}
}

// Codec converts between Packet values and wire frames.
//
// Frame layout, big endian:
//
//	magic(1) sequence(8) status(4) command(4) length(4) message(length) crc16(2)
//
// The checksum covers everything before it.
type Codec struct {
	cipher Cipher
	strict bool
}

func NewCodec(cipher Cipher, opts ...CodecOption) *Codec {
	if cipher == nil {
		cipher = NopCipher{}
	}
	c := &Codec{cipher: cipher}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Codec) Strict() bool {
	return c.strict
}

func (c *Codec) Encode(p Packet) ([]byte, error) {
	message, err := c.cipher.Encrypt([]byte(p.Payload))
	if err != nil {
		if c.strict {
			return nil, fmt.Errorf("failed to encrypt payload: %w", err)
		}
		message = []byte(p.Payload)
	}
	if uint64(len(message)) > math.MaxUint32 {
		return nil, ErrPayloadTooLarge
	}
	end := HeaderSize + len(message)
	data := make([]byte, end+TrailerSize)
	data[0] = Magic
	binary.BigEndian.PutUint64(data[1:9], p.Sequence)
	binary.BigEndian.PutUint32(data[9:13], uint32(p.Status))
	binary.BigEndian.PutUint32(data[13:17], uint32(p.Command))
	binary.BigEndian.PutUint32(data[17:21], uint32(len(message)))
	copy(data[HeaderSize:end], message)
	binary.BigEndian.PutUint16(data[end:], Checksum(data[:end]))
	return data, nil
}

func (c *Codec) Decode(data []byte) (Packet, error) {
	if len(data) == 0 {
		return Packet{}, ErrTruncated
	}
	if data[0] != Magic {
		return Packet{}, ErrNotAPacket
	}
	if len(data) < Overhead {
		return Packet{}, ErrTruncated
	}
	length := binary.BigEndian.Uint32(data[17:21])
	if uint64(len(data)) != uint64(Overhead)+uint64(length) {
		return Packet{}, ErrTruncated
	}
	end := HeaderSize + int(length)
	if binary.BigEndian.Uint16(data[end:]) != Checksum(data[:end]) {
		return Packet{}, ErrIntegrity
	}
	message := data[HeaderSize:end]
	plaintext, err := c.cipher.Decrypt(message)
	if err != nil {
		if c.strict {
			return Packet{}, fmt.Errorf("%w: %v", ErrDecryption, err)
		}
		plaintext = message
	}
	return Packet{
		Sequence: binary.BigEndian.Uint64(data[1:9]),
		Status:   Status(int32(binary.BigEndian.Uint32(data[9:13]))),
		Command:  Command(int32(binary.BigEndian.Uint32(data[13:17]))),
		Payload:  string(plaintext),
	}, nil
}
