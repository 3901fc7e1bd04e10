package modbus

// CRC16 is the reflected CRC-16 of Modbus RTU: init 0xFFFF, polynomial
// 0xA001, no table.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// AppendCRC appends the checksum low byte first, closing the frame.
func AppendCRC(frame []byte) []byte {
	crc := CRC16(frame)
	return append(frame, byte(crc), byte(crc>>8))
}

// VerifyCRC checks the trailing checksum of a complete frame.
func VerifyCRC(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	body, tail := frame[:len(frame)-2], frame[len(frame)-2:]
	crc := CRC16(body)
	return tail[0] == byte(crc) && tail[1] == byte(crc>>8)
}
