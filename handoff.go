package hsicamera

import "sync"

// handoffCapacity keeps the consumer at most two frames behind the wire.
const handoffCapacity = 2

// handoffBuffer passes frames from the capture loop to the consumer.
// When full, the oldest frame is overwritten: a slow consumer loses old
// data, never fresh data, and the producer never blocks.
type handoffBuffer struct {
	mu      sync.Mutex
	frames  []*Frame
	evicted uint64
}

func (b *handoffBuffer) put(f *Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == handoffCapacity {
		copy(b.frames, b.frames[1:])
		b.frames = b.frames[:handoffCapacity-1]
		b.evicted++
	}
	b.frames = append(b.frames, f)
}

// takeLatest removes and returns the newest buffered frame. Older frames
// stay buffered until they are taken or overwritten.
func (b *handoffBuffer) takeLatest() (*Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return nil, false
	}
	f := b.frames[len(b.frames)-1]
	b.frames = b.frames[:len(b.frames)-1]
	return f, true
}

func (b *handoffBuffer) evictions() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}

func (b *handoffBuffer) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = nil
	b.evicted = 0
}
