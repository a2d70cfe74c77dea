package packet

import (
	"github.com/sigurn/crc16"
)

var crcTable = crc16.MakeTable(crc16.CRC16_ARC)

// Checksum is the CRC-16/ARC of data. Encoder and decoder both cover magic through ciphertext.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
