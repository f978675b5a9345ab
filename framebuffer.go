package camdetect

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Frame is a single raw camera frame
type Frame struct {
	// Data holds the RGBA8888 pixels, at least Width*Height*4 bytes.  It must
	// not be modified after being submitted.
	Data []byte
	// Width of the frame in pixels
	Width int
	// Height of the frame in pixels
	Height int
	// Rotation in degrees clockwise needed to display the frame upright
	Rotation int
	// Timestamp when the frame was captured
	Timestamp time.Time
	// Seq is assigned by FrameBuffer.Submit, monotonically increasing
	Seq uint64
}

// BufferStats are the FrameBuffer counters
type BufferStats struct {
	// Submitted is the number of frames given to Submit
	Submitted uint64
	// Dropped is the number of frames replaced before being consumed
	Dropped uint64
	// Consumed is the number of frames returned by Next
	Consumed uint64
	// Allocations is the number of times the pixel buffer was (re)allocated
	Allocations uint64
	// LastSeq is the sequence number of the last submitted frame
	LastSeq uint64
}

// FrameBuffer holds the latest camera frame for a single consumer.  Submit
// never blocks, a frame not yet taken by the consumer is replaced by a newer
// one so detection always runs on the most recent frame and memory use is
// bounded to one pending frame plus one pixel buffer.
type FrameBuffer struct {
	// mu protects the pending slot and counters
	mu      sync.Mutex
	cond    *sync.Cond
	pending *Frame
	closed  bool
	stats   BufferStats

	// bufMu protects the reused pixel buffer
	bufMu     sync.Mutex
	mat       gocv.Mat
	allocated bool
	width     int
	height    int
}

// NewFrameBuffer returns an empty frame buffer, the pixel buffer is allocated
// when the first frame is loaded
func NewFrameBuffer() *FrameBuffer {
	b := &FrameBuffer{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Submit places the frame in the slot replacing any frame not yet consumed
func (b *FrameBuffer) Submit(f *Frame) error {

	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions")
	}

	if need := f.Width * f.Height * 4; len(f.Data) < need {
		return fmt.Errorf("frame data too short, need %d bytes got %d", need, len(f.Data))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	b.stats.Submitted++
	b.stats.LastSeq++
	f.Seq = b.stats.LastSeq

	// previous frame was never picked up
	if b.pending != nil {
		b.stats.Dropped++
	}

	b.pending = f
	b.cond.Signal()

	return nil
}

// Next blocks until a frame is available and takes it from the slot.  It
// returns ErrClosed once the buffer is closed or the context error if ctx is
// done first.
func (b *FrameBuffer) Next(ctx context.Context) (*Frame, error) {

	// wake the waiter below when the context ends
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	for b.pending == nil && !b.closed && ctx.Err() == nil {
		b.cond.Wait()
	}

	if b.closed {
		return nil, ErrClosed
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f := b.pending
	b.pending = nil
	b.stats.Consumed++

	return f, nil
}

// Load copies the frame pixels into the reused RGBA pixel buffer and returns
// it.  The returned Mat is owned by the FrameBuffer and only valid until the
// next call to Load or Close.  The buffer is reallocated only when the frame
// resolution changes.
func (b *FrameBuffer) Load(f *Frame) (gocv.Mat, error) {

	b.bufMu.Lock()
	defer b.bufMu.Unlock()

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return gocv.Mat{}, ErrClosed
	}

	if !b.allocated || b.width != f.Width || b.height != f.Height {

		if b.allocated {
			b.mat.Close()
		}

		b.mat = gocv.NewMatWithSize(f.Height, f.Width, gocv.MatTypeCV8UC4)
		b.allocated = true
		b.width = f.Width
		b.height = f.Height

		b.mu.Lock()
		b.stats.Allocations++
		b.mu.Unlock()
	}

	src, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC4,
		f.Data[:f.Width*f.Height*4])

	if err != nil {
		return gocv.Mat{}, fmt.Errorf("error wrapping frame pixels: %w", err)
	}

	defer src.Close()

	src.CopyTo(&b.mat)

	return b.mat, nil
}

// Stats returns a copy of the buffer counters
func (b *FrameBuffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Close wakes any waiting consumer and frees the pixel buffer
func (b *FrameBuffer) Close() error {

	b.mu.Lock()
	b.closed = true
	b.pending = nil
	b.cond.Broadcast()
	b.mu.Unlock()

	b.bufMu.Lock()
	defer b.bufMu.Unlock()

	if !b.allocated {
		return nil
	}

	b.allocated = false

	return b.mat.Close()
}
