package led

import "context"

// StrandTransport abstracts the link to a strand controller.
type StrandTransport interface {
	// SendFrame pushes one encoded frame payload. targetMS is the wall-clock
	// millisecond at which the frame is meant to be on the LEDs.
	SendFrame(ctx context.Context, payload []byte, targetMS int64) error
	// Close releases resources. Call only between complete frames.
	Close() error
}
