package f9t

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	sync1 = 0xB5
	sync2 = 0x62

	ClassTIM = 0x0D
	IDTimTP  = 0x01

	timTPLen = 16

	// Longer frames are taken for a false sync.
	maxPayloadLen = 1024
)

var (
	ErrBadChecksum = errors.New("bad UBX checksum")
	ErrShortFrame  = errors.New("short UBX frame")
)

type Frame struct {
	Class   byte
	ID      byte
	Payload []byte
}

// checksum is the 8-bit Fletcher checksum over class, id, length, and
// payload.
func checksum(data []byte) (ckA, ckB byte) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// Encode returns the complete frame for class, id, and payload.
func Encode(class, id byte, payload []byte) []byte {
	buf := make([]byte, 0, 8+len(payload))
	buf = append(buf, sync1, sync2, class, id)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	ckA, ckB := checksum(buf[2:])
	return append(buf, ckA, ckB)
}

// readFrame skips to the next UBX sync and reads one frame. NMEA and RTCM
// traffic between frames is discarded.
func readFrame(r *bufio.Reader) (Frame, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b != sync1 {
			continue
		}
		next, err := r.Peek(1)
		if err != nil {
			return Frame{}, err
		}
		if next[0] != sync2 {
			continue
		}
		_, _ = r.Discard(1)

		hdr := make([]byte, 4)
		if _, err := io.ReadFull(r, hdr); err != nil {
			return Frame{}, err
		}
		n := int(binary.LittleEndian.Uint16(hdr[2:]))
		if n > maxPayloadLen {
			continue
		}
		body := make([]byte, n+2)
		if _, err := io.ReadFull(r, body); err != nil {
			return Frame{}, err
		}
		ckA, ckB := checksum(append(hdr, body[:n]...))
		f := Frame{Class: hdr[0], ID: hdr[1], Payload: body[:n]}
		if ckA != body[n] || ckB != body[n+1] {
			return f, fmt.Errorf("%w: class %#02x id %#02x", ErrBadChecksum, f.Class, f.ID)
		}
		return f, nil
	}
}

// TimTP is the UBX-TIM-TP time pulse timedata message. It describes the
// next time pulse and arrives before it.
type TimTP struct {
	TowMS    uint32
	TowSubMS uint32 // 2^-32 ms
	QErrPs   int32  // quantization error of the pulse
	Week     uint16
	Flags    byte
	RefInfo  byte
}

func ParseTimTP(payload []byte) (TimTP, error) {
	if len(payload) < timTPLen {
		return TimTP{}, fmt.Errorf("%w: TIM-TP payload of %d bytes", ErrShortFrame, len(payload))
	}
	return TimTP{
		TowMS:    binary.LittleEndian.Uint32(payload[0:]),
		TowSubMS: binary.LittleEndian.Uint32(payload[4:]),
		QErrPs:   int32(binary.LittleEndian.Uint32(payload[8:])),
		Week:     binary.LittleEndian.Uint16(payload[12:]),
		Flags:    payload[14],
		RefInfo:  payload[15],
	}, nil
}
