package editor

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// frameBufferSize bounds the per-client backlog. A client that cannot keep
// up loses frames rather than stalling the relay.
const frameBufferSize = 8

// frameTrailerSize is the fixed geometry trailer the engine appends to each
// binary frame message: three little-endian uint32s.
const frameTrailerSize = 12

// redialDelay is the pause before reconnecting a dropped engine frame socket.
const redialDelay = time.Second

// FrameInfo is one decoded relay message: BGRA pixel rows followed by a
// [stride, height, width] trailer.
type FrameInfo struct {
	Stride int
	Height int
	Width  int
	Pixels []byte
}

// ParseFrame splits a relay message into pixels and geometry.
func ParseFrame(data []byte) (*FrameInfo, error) {
	if len(data) < frameTrailerSize {
		return nil, fmt.Errorf("frame message too short: %d bytes", len(data))
	}
	tail := data[len(data)-frameTrailerSize:]
	info := &FrameInfo{
		Stride: int(binary.LittleEndian.Uint32(tail[0:4])),
		Height: int(binary.LittleEndian.Uint32(tail[4:8])),
		Width:  int(binary.LittleEndian.Uint32(tail[8:12])),
		Pixels: data[:len(data)-frameTrailerSize],
	}
	if info.Stride*info.Height != len(info.Pixels) {
		return nil, fmt.Errorf("frame geometry %dx%d stride %d does not match %d pixel bytes",
			info.Width, info.Height, info.Stride, len(info.Pixels))
	}
	return info, nil
}

// FrameSource is the engine capability the relay consumes.
type FrameSource interface {
	StreamFrames(ctx context.Context, onFrame func(frame []byte)) error
}

// FrameHub fans rendered preview frames out to UI subscribers. Messages are
// relayed untouched; subscribers read the same trailer the engine writes.
type FrameHub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[chan []byte]struct{}
}

func NewFrameHub(logger *slog.Logger) *FrameHub {
	return &FrameHub{
		logger:  logger,
		clients: make(map[chan []byte]struct{}),
	}
}

// Run subscribes to the engine frame stream and rebroadcasts until ctx ends.
// A dropped engine socket is redialed after a short pause.
func (h *FrameHub) Run(ctx context.Context, source FrameSource) {
	for {
		err := source.StreamFrames(ctx, h.Broadcast)
		if ctx.Err() != nil {
			return
		}
		h.logger.Warn("frame stream interrupted, redialing", "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(redialDelay):
		}
	}
}

// Broadcast hands one frame to every subscriber, skipping any whose buffer
// is full.
func (h *FrameHub) Broadcast(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Subscribe registers a frame consumer. The returned cancel func removes the
// subscription and closes the channel; it is safe to call more than once.
func (h *FrameHub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, frameBufferSize)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	}
	return ch, cancel
}

// SubscriberCount reports how many clients are attached.
func (h *FrameHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
