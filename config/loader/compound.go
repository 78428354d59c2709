package loader

import (
	"github.com/pkg/errors"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/equalizers"
	"github.com/twitter/equalizer/server/frames"
)

func (b *builder) buildCompound(c *compound.Compound, cb *compoundBlock) error {
	if cb.Channel != "" {
		ch := b.topo.FindChannelByName(cb.Channel)
		if ch == nil {
			return errors.Errorf("unknown channel %s", cb.Channel)
		}
		c.SetChannel(ch)
	}
	if err := b.applyAttributes(c, cb); err != nil {
		return err
	}
	if err := applyFrustum(c, cb.Wall, cb.Projection); err != nil {
		return err
	}
	if cb.SwapBarrier != nil {
		c.SetSwapBarrier(cb.SwapBarrier.Name)
	}

	for _, fb := range cb.OutputFrames {
		f, err := b.frame(fb, frames.Output)
		if err != nil {
			return errors.Wrap(err, "output_frame")
		}
		c.AddOutputFrame(f)
	}
	for _, fb := range cb.InputFrames {
		f, err := b.frame(fb, frames.Input)
		if err != nil {
			return errors.Wrap(err, "input_frame")
		}
		c.AddInputFrame(f)
	}
	for _, tb := range cb.OutputTiles {
		q, err := b.tiles(tb, frames.Output)
		if err != nil {
			return errors.Wrap(err, "output_tiles")
		}
		c.AddOutputQueue(q)
	}
	for _, tb := range cb.InputTiles {
		q, err := b.tiles(tb, frames.Input)
		if err != nil {
			return errors.Wrap(err, "input_tiles")
		}
		c.AddInputQueue(q)
	}

	for _, child := range cb.Children {
		cc := c.AddChild(child.Name)
		if err := b.buildCompound(cc, child); err != nil {
			return errors.Wrapf(err, "compound %s", describe(cc))
		}
	}

	// equalizers see the complete subtree when they attach
	for _, eb := range cb.Equalizers {
		eq, err := b.equalizer(eb)
		if err != nil {
			return errors.Wrapf(err, "equalizer %s", eb.Type)
		}
		if err := c.AddEqualizer(eq); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) applyAttributes(c *compound.Compound, cb *compoundBlock) error {
	if cb.Tasks != nil {
		tasks, err := parseTasks(cb.Tasks)
		if err != nil {
			return err
		}
		c.SetTasks(tasks)
	}
	if cb.Eyes != nil {
		eyes, err := parseEyes(cb.Eyes)
		if err != nil {
			return err
		}
		c.SetEyes(eyes)
	}
	if cb.Buffers != nil {
		buffers, err := parseBuffers(cb.Buffers)
		if err != nil {
			return err
		}
		c.SetBuffers(buffers)
	}
	if cb.StereoMode != "" {
		mode, err := parseStereoMode(cb.StereoMode)
		if err != nil {
			return err
		}
		c.SetStereoMode(mode)
	}
	if cb.Viewport != nil {
		vp, err := viewport(cb.Viewport)
		if err != nil {
			return err
		}
		c.SetViewport(vp)
	}
	if cb.Range != nil {
		r, err := floats("range", cb.Range, 2)
		if err != nil {
			return err
		}
		rng := fabric.Range{Start: float32(r[0]), End: float32(r[1])}
		if !rng.IsValid() {
			return errors.Errorf("invalid range %v", rng)
		}
		c.SetRange(rng)
	}
	if cb.Pixel != nil {
		p, err := floats("pixel", cb.Pixel, 4)
		if err != nil {
			return err
		}
		pixel := fabric.Pixel{X: uint32(p[0]), Y: uint32(p[1]), W: uint32(p[2]), H: uint32(p[3])}
		if !pixel.IsValid() {
			return errors.Errorf("invalid pixel %v", pixel)
		}
		c.SetPixel(pixel)
	}
	if cb.SubPixel != nil {
		s, err := floats("subpixel", cb.SubPixel, 2)
		if err != nil {
			return err
		}
		sub := fabric.SubPixel{Index: uint32(s[0]), Size: uint32(s[1])}
		if !sub.IsValid() {
			return errors.Errorf("invalid subpixel %v", sub)
		}
		c.SetSubPixel(sub)
	}
	if cb.Zoom != nil {
		z, err := zoom(cb.Zoom)
		if err != nil {
			return err
		}
		c.SetZoom(z)
	}
	if cb.Period != nil {
		if *cb.Period < 1 {
			return errors.Errorf("invalid period %d", *cb.Period)
		}
		c.SetPeriod(uint32(*cb.Period))
	}
	if cb.Phase != nil {
		if *cb.Phase < 0 {
			return errors.Errorf("invalid phase %d", *cb.Phase)
		}
		c.SetPhase(uint32(*cb.Phase))
	}
	if cb.MaxFPS != nil {
		c.SetMaxFPS(float32(*cb.MaxFPS))
	}
	return nil
}

func (b *builder) frame(fb *frameBlock, kind frames.Kind) (*frames.Frame, error) {
	f := frames.NewFrame(fb.Name, kind, b.session, b.defaults.Latency)
	if fb.Viewport != nil {
		vp, err := viewport(fb.Viewport)
		if err != nil {
			return nil, err
		}
		f.SetViewport(vp)
	}
	if fb.Buffers != nil {
		buffers, err := parseBuffers(fb.Buffers)
		if err != nil {
			return nil, err
		}
		f.SetBuffers(buffers)
	}
	storage, err := parseStorage(fb.Storage, b.defaults.FrameStorage)
	if err != nil {
		return nil, err
	}
	f.SetStorage(storage)
	if fb.Zoom != nil {
		z, err := zoom(fb.Zoom)
		if err != nil {
			return nil, err
		}
		f.SetNativeZoom(z)
	}
	if fb.Offset != nil {
		o, err := vector2i("offset", fb.Offset)
		if err != nil {
			return nil, err
		}
		f.SetNativeOffset(o)
	}
	return f, nil
}

func (b *builder) tiles(tb *tilesBlock, kind frames.Kind) (*frames.TileQueue, error) {
	q := frames.NewTileQueue(tb.Name, kind, b.session, b.defaults.Latency)
	if tb.Size != nil {
		size, err := vector2i("size", tb.Size)
		if err != nil {
			return nil, err
		}
		q.SetTileSize(size)
	}
	return q, nil
}

func (b *builder) equalizer(eb *equalizerBlock) (compound.Equalizer, error) {
	params, values, err := equalizerParams(eb.Config, compound.DefaultParams(b.defaults))
	if err != nil {
		return nil, err
	}
	switch eb.Type {
	case "load":
		return equalizers.NewLoadEqualizer(params), nil
	case "tree":
		return equalizers.NewTreeEqualizer(params), nil
	case "view":
		return equalizers.NewViewEqualizer(params), nil
	case "dfr":
		return equalizers.NewDFREqualizer(params), nil
	case "framerate":
		return equalizers.NewFramerateEqualizer(params), nil
	case "monitor":
		return equalizers.NewMonitorEqualizer(params), nil
	case "tile":
		var name string
		if v, ok := values["name"]; ok {
			if name, err = ctyString(v); err != nil {
				return nil, errors.Wrap(err, "name")
			}
		}
		return equalizers.NewTileEqualizer(params, name, b.session), nil
	}
	return nil, errors.Errorf("unknown equalizer type %q", eb.Type)
}
