package utils

import (
	"encoding/binary"
	"hash/crc32"
)

const CrcSize = 4

func GenerateCrc(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

func CheckCrc(crc uint32, data []byte) bool {
	return GenerateCrc(data) == crc
}

// AppendCrc appends the little-endian checksum of data to data.
func AppendCrc(data []byte) []byte {
	return binary.LittleEndian.AppendUint32(data, GenerateCrc(data))
}

// TrimCrc verifies and strips a trailer written by AppendCrc.
func TrimCrc(data []byte) ([]byte, bool) {
	if len(data) < CrcSize {
		return nil, false
	}
	body := data[:len(data)-CrcSize]
	return body, CheckCrc(binary.LittleEndian.Uint32(data[len(data)-CrcSize:]), body)
}
