package packet

type stringError string

func (e stringError) Error() string {
	return string(e)
}

const ErrNotAPacket = stringError("not a packet")
const ErrIntegrity = stringError("packet checksum mismatch")
const ErrTruncated = stringError("truncated packet")
const ErrDecryption = stringError("payload decryption failed")
const ErrPayloadTooLarge = stringError("payload too large")
const ErrFrameTooLarge = stringError("frame too large")
