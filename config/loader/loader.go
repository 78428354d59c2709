// Package loader reads the HCL description of a rendering cluster: its
// nodes, pipes, windows and channels, the layouts and canvases it shows,
// and the compound trees decomposing the rendering onto it.
package loader

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/compound"
	"github.com/twitter/equalizer/server/frames"
	"github.com/twitter/equalizer/server/resources"
)

// Cluster is a loaded description, ready to be handed to config.New.
type Cluster struct {
	Name     string
	Defaults fabric.Defaults
	Topology *resources.Topology
	Tree     *compound.Tree
	Session  *frames.Registry
}

// LoadFile reads the description at path. Commands of the resulting
// topology go to sender.
func LoadFile(path string, sender resources.Sender, defaults fabric.Defaults) (*Cluster, error) {
	src, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading cluster description %s", path)
	}
	return Load(src, path, sender, defaults)
}

// Load parses src, a description named filename in diagnostics.
func Load(src []byte, filename string, sender resources.Sender, defaults fabric.Defaults) (*Cluster, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Wrapf(diags, "parsing %s", filename)
	}
	var root clusterFile
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return nil, errors.Wrapf(diags, "decoding %s", filename)
	}

	b := &builder{sender: sender, defaults: defaults}
	cluster, err := b.build(&root)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", filename)
	}
	if cluster.Name == "" {
		cluster.Name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	log.WithFields(log.Fields{
		"cluster":   cluster.Name,
		"nodes":     len(cluster.Topology.Nodes()),
		"compounds": cluster.Tree.Len(),
	}).Info("Loaded cluster description")
	return cluster, nil
}

// builder turns decoded blocks into the resource and compound forests.
type builder struct {
	sender   resources.Sender
	defaults fabric.Defaults
	topo     *resources.Topology
	tree     *compound.Tree
	session  *frames.Registry
}

func (b *builder) build(root *clusterFile) (*Cluster, error) {
	if root.Latency != nil {
		if *root.Latency < 0 {
			return nil, errors.Errorf("negative latency %d", *root.Latency)
		}
		b.defaults.Latency = uint32(*root.Latency)
	}
	if root.Robustness != "" {
		robustness, err := parseIAttr(root.Robustness)
		if err != nil {
			return nil, errors.Wrap(err, "robustness")
		}
		b.defaults.Robustness = robustness
	}
	b.topo = resources.NewTopology(b.sender, b.defaults.Latency)
	b.tree = compound.NewTree(b.defaults)
	b.session = frames.NewRegistry()

	names := map[string]bool{}
	for _, nb := range root.Nodes {
		if names[nb.Name] {
			return nil, errors.Errorf("duplicate node %s", nb.Name)
		}
		names[nb.Name] = true
		if err := b.buildNode(nb); err != nil {
			return nil, errors.Wrapf(err, "node %s", nb.Name)
		}
	}
	for _, ob := range root.Observers {
		eyeBase := b.defaults.EyeBase
		if ob.EyeBase != nil {
			eyeBase = float32(*ob.EyeBase)
		}
		b.topo.AddObserver(ob.Name, eyeBase)
	}
	for _, lb := range root.Layouts {
		if err := b.buildLayout(lb); err != nil {
			return nil, errors.Wrapf(err, "layout %s", lb.Name)
		}
	}
	for _, cb := range root.Canvases {
		if err := b.buildCanvas(cb); err != nil {
			return nil, errors.Wrapf(err, "canvas %s", cb.Name)
		}
	}
	for _, cb := range root.Compounds {
		c := b.tree.AddRoot(cb.Name)
		if err := b.buildCompound(c, cb); err != nil {
			return nil, errors.Wrapf(err, "compound %s", describe(c))
		}
	}

	return &Cluster{
		Name:     root.Name,
		Defaults: b.defaults,
		Topology: b.topo,
		Tree:     b.tree,
		Session:  b.session,
	}, nil
}

func describe(c *compound.Compound) string {
	if c.Name() != "" {
		return c.Name()
	}
	return fmt.Sprintf("#%d", c.ID())
}

func (b *builder) buildNode(nb *nodeBlock) error {
	node, err := b.topo.AddNode(nb.Name)
	if err != nil {
		return err
	}
	tm, err := parseThreadModel(nb.ThreadModel)
	if err != nil {
		return err
	}
	node.SetThreadModel(tm)

	for _, pb := range nb.Pipes {
		pipe := node.AddPipe(pb.Name)
		if pb.Device != nil {
			pipe.SetDevice(uint32(*pb.Device))
		}
		if pb.Threaded != nil {
			pipe.SetThreaded(*pb.Threaded)
		}
		for _, wb := range pb.Windows {
			if err := b.buildWindow(pipe, wb); err != nil {
				return errors.Wrapf(err, "window %s", wb.Name)
			}
		}
	}
	return nil
}

func (b *builder) buildWindow(pipe *resources.Pipe, wb *windowBlock) error {
	var pvp fabric.PixelViewport
	if wb.Viewport != nil {
		var err error
		if pvp, err = pixelViewport(wb.Viewport); err != nil {
			return err
		}
	}
	window := pipe.AddWindow(wb.Name, pvp)

	stereo, err := parseIAttr(wb.Stereo)
	if err != nil {
		return errors.Wrap(err, "stereo")
	}
	double, err := parseIAttr(wb.Doublebuffer)
	if err != nil {
		return errors.Wrap(err, "doublebuffer")
	}
	if stereo == fabric.Undefined {
		stereo = b.defaults.HintStereo
	}
	if double == fabric.Undefined {
		double = b.defaults.HintDoublebuffer
	}
	window.SetHints(resources.WindowHints{Stereo: stereo, Doublebuffer: double, FBO: wb.FBO})

	for _, chb := range wb.Channels {
		vp := fabric.FullViewport
		if chb.Viewport != nil {
			if vp, err = viewport(chb.Viewport); err != nil {
				return errors.Wrapf(err, "channel %s", chb.Name)
			}
		}
		if b.topo.FindChannelByName(chb.Name) != nil {
			return errors.Errorf("duplicate channel %s", chb.Name)
		}
		ch := window.AddChannel(chb.Name, vp)
		if chb.MaxSize != nil {
			size, err := vector2i("max_size", chb.MaxSize)
			if err != nil {
				return errors.Wrapf(err, "channel %s", chb.Name)
			}
			ch.SetMaxSize(size)
		}
		if chb.Overdraw != nil {
			o, err := floats("overdraw", chb.Overdraw, 4)
			if err != nil {
				return errors.Wrapf(err, "channel %s", chb.Name)
			}
			ch.SetOverdraw(fabric.Vector4i{X: int32(o[0]), Y: int32(o[1]), Z: int32(o[2]), W: int32(o[3])})
		}
	}
	return nil
}

func (b *builder) buildLayout(lb *layoutBlock) error {
	layout := b.topo.AddLayout(lb.Name)
	for _, vb := range lb.Views {
		vp := fabric.FullViewport
		if vb.Viewport != nil {
			var err error
			if vp, err = viewport(vb.Viewport); err != nil {
				return errors.Wrapf(err, "view %s", vb.Name)
			}
		}
		view := layout.AddView(vb.Name, vp)
		if vb.Observer != "" {
			obs := b.topo.FindObserver(vb.Observer)
			if obs == nil {
				return errors.Errorf("view %s: unknown observer %s", vb.Name, vb.Observer)
			}
			view.SetObserver(obs)
		}
		mode, err := parseViewMode(vb.Mode)
		if err != nil {
			return errors.Wrapf(err, "view %s", vb.Name)
		}
		view.SetMode(mode)
		if vb.Overdraw != nil {
			o, err := vector2i("overdraw", vb.Overdraw)
			if err != nil {
				return errors.Wrapf(err, "view %s", vb.Name)
			}
			view.SetOverdraw(o)
		}
		if vb.ModelUnit != nil {
			view.SetModelUnit(float32(*vb.ModelUnit))
		}
		if err := applyFrustum(view, vb.Wall, vb.Projection); err != nil {
			return errors.Wrapf(err, "view %s", vb.Name)
		}
	}
	return nil
}

func (b *builder) findLayout(name string) *resources.Layout {
	for _, l := range b.topo.Layouts() {
		if l.Name() == name {
			return l
		}
	}
	return nil
}

func (b *builder) buildCanvas(cb *canvasBlock) error {
	canvas := b.topo.AddCanvas(cb.Name)
	for _, name := range cb.Layouts {
		layout := b.findLayout(name)
		if layout == nil {
			return errors.Errorf("unknown layout %s", name)
		}
		canvas.AddLayout(layout)
	}
	if cb.SwapBarrier != "" {
		canvas.SetSwapBarrier(cb.SwapBarrier)
	}
	if err := applyFrustum(canvas, cb.Wall, cb.Projection); err != nil {
		return err
	}

	for _, sb := range cb.Segments {
		ch := b.topo.FindChannelByName(sb.Channel)
		if ch == nil {
			return errors.Errorf("segment %s: unknown channel %s", sb.Name, sb.Channel)
		}
		vp := fabric.FullViewport
		if sb.Viewport != nil {
			var err error
			if vp, err = viewport(sb.Viewport); err != nil {
				return errors.Wrapf(err, "segment %s", sb.Name)
			}
		}
		segment := canvas.AddSegment(sb.Name, vp, ch)
		if sb.Eyes != nil {
			eyes, err := parseEyes(sb.Eyes)
			if err != nil {
				return errors.Wrapf(err, "segment %s", sb.Name)
			}
			segment.SetEyes(eyes)
		}
		if sb.SwapBarrier != "" {
			segment.SetSwapBarrier(sb.SwapBarrier)
		}
		if err := applyFrustum(segment, sb.Wall, sb.Projection); err != nil {
			return errors.Wrapf(err, "segment %s", sb.Name)
		}
		for _, db := range sb.Destinations {
			dest := b.topo.FindChannelByName(db.Channel)
			if dest == nil {
				return errors.Errorf("segment %s: unknown destination channel %s", sb.Name, db.Channel)
			}
			if dest.View() != nil {
				return errors.Errorf("segment %s: channel %s already shows view %s", sb.Name, db.Channel, dest.View().Name())
			}
			view := b.topo.FindViewByName(db.View)
			if view == nil {
				return errors.Errorf("segment %s: unknown view %s", sb.Name, db.View)
			}
			if !b.canvasHasLayout(canvas, view.Layout()) {
				return errors.Errorf("segment %s: layout %s of view %s is not on the canvas", sb.Name, view.Layout().Name(), db.View)
			}
			segment.AddDestination(dest, view)
		}
	}
	return nil
}

func (b *builder) canvasHasLayout(canvas *resources.Canvas, layout *resources.Layout) bool {
	for _, l := range canvas.Layouts() {
		if l == layout {
			return true
		}
	}
	return false
}
