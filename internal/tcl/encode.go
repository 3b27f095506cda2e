// Package tcl speaks the TCL strand controller's UDP protocol: bit-planar
// frame encoding, chunked framing and the handshake/send/drain cycle.
package tcl

import (
	"time"

	"github.com/coreman2200/strandlight/internal/layout"
	"github.com/coreman2200/strandlight/internal/led"
)

// Control messages. START_FRAME shares its bytes with INIT.
var (
	MsgReset      = []byte{0xC2, 0x77, 0x88, 0x00, 0x00}
	MsgInit       = []byte{0xC5, 0x77, 0x88, 0x00, 0x00}
	MsgStartFrame = []byte{0xC5, 0x77, 0x88, 0x00, 0x00}
	MsgEndFrame   = []byte{0xAA, 0x01, 0x8C, 0x01, 0x55}

	chunkPrefix = [...]byte{0x88, 0x00, 0x68, 0x3F, 0x2B, 0xFD, 0x60, 0x8B, 0x95, 0xEF, 0x04, 0x69}
	chunkSuffix = [...]byte{0x00, 0x00, 0x00, 0x00}
)

// Controller pacing.
const (
	ResetDelay      = 5 * time.Second
	InitDelay       = 100 * time.Millisecond
	StartFrameDelay = 500 * time.Microsecond
	ChunkDelay      = 1500 * time.Microsecond
)

const (
	// Bias is added (mod 256) to every payload byte; an all-zero frame
	// encodes as 0x2C.
	Bias = 0x2C

	ChunkPayload = 1024
	PayloadSize  = layout.StrandLength * 3 * 8
	ChunkCount   = PayloadSize / ChunkPayload
	ChunkSize    = len(chunkPrefix) + ChunkPayload + len(chunkSuffix)

	// chunkIndexOffset is the prefix byte overwritten with the chunk index.
	chunkIndexOffset = 1
)

// componentOrder is the order in which the RGB triple is emitted on the wire.
var componentOrder = [3]int{2, 1, 0}

// EncodeFrame bit-slices strand colors into the controller payload. Each
// output byte carries one bit of one color component for up to eight
// strands, bit n belonging to strand n. LEDs past a strand's end read as 0.
// The result is always PayloadSize bytes.
func EncodeFrame(s *led.Strands) []byte {
	out := make([]byte, PayloadSize)
	i := 0
	for ledID := 0; ledID < layout.StrandLength; ledID++ {
		for _, comp := range componentOrder {
			for mask := uint8(0x80); mask != 0; mask >>= 1 {
				var b byte
				if s != nil {
					for id, colors := range s {
						if ledID < len(colors) && colors[ledID][comp]&mask != 0 {
							b |= 1 << uint(id)
						}
					}
				}
				out[i] = b + Bias
				i++
			}
		}
	}
	return out
}

// Chunk wraps the idx-th 1024-byte slice of payload in the chunk envelope.
func Chunk(payload []byte, idx int) []byte {
	msg := make([]byte, 0, ChunkSize)
	msg = append(msg, chunkPrefix[:]...)
	msg[chunkIndexOffset] = byte(idx)
	msg = append(msg, payload[idx*ChunkPayload:(idx+1)*ChunkPayload]...)
	msg = append(msg, chunkSuffix[:]...)
	return msg
}

// SendDuration is the pacing time spent on one frame, excluding I/O.
func SendDuration() time.Duration {
	return StartFrameDelay + ChunkCount*ChunkDelay
}
