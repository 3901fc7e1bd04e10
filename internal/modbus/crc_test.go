package modbus

import (
	"math/rand"
	"testing"
)

// crcReference is an independent table-driven implementation used as the
// oracle for the differential test.
func crcReference(data []byte) uint16 {
	var table [256]uint16
	for i := range table {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
		table[i] = crc
	}
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc = (crc >> 8) ^ table[byte(crc)^b]
	}
	return crc
}

func TestCRC16KnownVectors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"check value", []byte("123456789"), 0x4B37},
		{"empty", nil, 0xFFFF},
		{"single zero", []byte{0x00}, 0x40BF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CRC16(tt.data); got != tt.want {
				t.Errorf("CRC16(% X) = %#04x, want %#04x", tt.data, got, tt.want)
			}
		})
	}
}

func TestCRC16MatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 0; n <= maxFrame; n++ {
		data := make([]byte, n)
		rng.Read(data)
		if got, want := CRC16(data), crcReference(data); got != want {
			t.Fatalf("len %d: CRC16 = %#04x, reference = %#04x", n, got, want)
		}
	}
}

func TestAppendAndVerifyCRC(t *testing.T) {
	frame := AppendCRC([]byte{0x11, 0x03, 0x00, 0x00, 0x00, 0x04})
	if !VerifyCRC(frame) {
		t.Fatalf("fresh frame failed verification: % X", frame)
	}
	// low byte travels first
	crc := CRC16(frame[:len(frame)-2])
	if frame[len(frame)-2] != byte(crc) || frame[len(frame)-1] != byte(crc>>8) {
		t.Errorf("checksum byte order wrong: % X", frame[len(frame)-2:])
	}

	for i := range frame {
		bad := append([]byte(nil), frame...)
		bad[i] ^= 0x01
		if VerifyCRC(bad) {
			t.Errorf("single-bit corruption at byte %d not detected", i)
		}
	}

	if VerifyCRC([]byte{0x11, 0x03}) {
		t.Error("frame shorter than checksum accepted")
	}
}
