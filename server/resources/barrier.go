package resources

import "github.com/twitter/equalizer/fabric"

// SwapBarrier synchronizes the buffer swap of every window that joined it
// this frame. Compounds naming the same barrier share one instance.
type SwapBarrier struct {
	name    string
	id      string
	height  uint32
	version uint32
	windows []*Window
}

func NewSwapBarrier(name string) *SwapBarrier {
	return &SwapBarrier{name: name, id: fabric.NewID()}
}

func (b *SwapBarrier) Name() string       { return b.name }
func (b *SwapBarrier) ID() string         { return b.id }
func (b *SwapBarrier) Height() uint32     { return b.height }
func (b *SwapBarrier) Version() uint32    { return b.version }
func (b *SwapBarrier) Windows() []*Window { return b.windows }

func (b *SwapBarrier) join(w *Window) {
	b.height++
	b.windows = append(b.windows, w)
}

// Commit publishes the membership of this frame and returns its version.
func (b *SwapBarrier) Commit() uint32 {
	b.version++
	return b.version
}

// Reset empties the barrier before the windows join for a new frame.
func (b *SwapBarrier) Reset() {
	b.height = 0
	b.windows = nil
}
