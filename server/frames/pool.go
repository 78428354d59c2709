package frames

type payload interface {
	ID() string
	FrameNumber() uint32
	reset(frame uint32)
}

// pool recycles the payloads of one eye pass, newest first. An instance is
// reused once it is older than the latency window, so at most latency+1
// instances are live.
type pool struct {
	session Session
	entries []payload
}

func (p *pool) cycle(frame, latency uint32, alloc func() payload) payload {
	if n := len(p.entries); n > 0 {
		if newest := p.entries[0]; newest.FrameNumber() == frame {
			return newest
		}
		oldest := p.entries[n-1]
		if frame > latency && oldest.FrameNumber() < frame-latency {
			p.entries = p.entries[:n-1]
			oldest.reset(frame)
			p.entries = append([]payload{oldest}, p.entries...)
			return oldest
		}
	}
	data := alloc()
	data.reset(frame)
	p.session.Register(data.ID())
	p.entries = append([]payload{data}, p.entries...)
	return data
}

func (p *pool) flush() {
	for _, data := range p.entries {
		p.session.Deregister(data.ID())
	}
	p.entries = nil
}

func (p *pool) len() int { return len(p.entries) }
