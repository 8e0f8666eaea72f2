package mpeg4

// reorderBuffer holds decoded frames until they can be output in presentation order.
type reorderBuffer struct {
	frames []*Frame
}

func (r *reorderBuffer) len() int {
	return len(r.frames)
}

func (r *reorderBuffer) push(f *Frame) {
	r.frames = append(r.frames, f)
}

// pop removes and returns the frame with the lowest poc, the earliest pushed on ties.
func (r *reorderBuffer) pop() *Frame {
	if len(r.frames) == 0 {
		return nil
	}

	lo := 0
	for i, f := range r.frames {
		if f.poc < r.frames[lo].poc {
			lo = i
		}
	}

	f := r.frames[lo]
	copy(r.frames[lo:], r.frames[lo+1:])
	r.frames[len(r.frames)-1] = nil
	r.frames = r.frames[:len(r.frames)-1]

	return f
}

// drain pops every frame in order.
func (r *reorderBuffer) drain() []*Frame {
	out := make([]*Frame, 0, len(r.frames))
	for len(r.frames) > 0 {
		out = append(out, r.pop())
	}

	return out
}

func (r *reorderBuffer) reset() {
	r.frames = nil
}
