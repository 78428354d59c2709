package compound

import (
	"os"
	"testing"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/frames"
	"github.com/twitter/equalizer/server/resources"
)

func init() {
	if level, err := log.ParseLevel(os.Getenv("EQ_LOGLEVEL")); err == nil {
		log.SetLevel(level)
	}
}

func makeChannel(t *testing.T, w, h int32) *resources.Channel {
	topo := resources.NewTopology(nil, 1)
	node, err := topo.AddNode("node")
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	window := node.AddPipe("pipe").AddWindow("window", fabric.PixelViewport{W: w, H: h})
	return window.AddChannel("channel", fabric.FullViewport)
}

func update(c *Compound, frame uint32) {
	c.Accept(VisitorFunc(func(c *Compound) fabric.VisitorResult {
		c.UpdateInheritData(frame)
		return fabric.Continue
	}))
}

func TestInherit_ChildViewport(t *testing.T) {
	tree := NewTree(fabric.NewDefaults())
	root := tree.AddRoot("root")
	root.SetChannel(makeChannel(t, 800, 600))
	child := root.AddChild("left")
	child.SetViewport(fabric.Viewport{X: 0, Y: 0, W: .5, H: 1})
	plain := root.AddChild("plain")

	update(root, 1)

	assert.Equal(t, fabric.PixelViewport{X: 0, Y: 0, W: 800, H: 600}, root.InheritPVP())
	assert.Equal(t, fabric.PixelViewport{X: 0, Y: 0, W: 400, H: 600}, child.InheritPVP())
	assert.Equal(t, fabric.Viewport{X: 0, Y: 0, W: .5, H: 1}, child.InheritViewport())

	assert.Equal(t, root.InheritPVP(), plain.InheritPVP())
	assert.Equal(t, root.InheritViewport(), plain.InheritViewport())
	assert.Equal(t, root.InheritRange(), plain.InheritRange())
	assert.Equal(t, root.InheritEyes(), plain.InheritEyes())
	assert.Equal(t, root.InheritPeriod(), plain.InheritPeriod())
	assert.Equal(t, root.InheritBuffers(), plain.InheritBuffers())
}

func TestInherit_EyesWithoutView(t *testing.T) {
	tree := NewTree(fabric.NewDefaults())
	root := tree.AddRoot("root")
	root.SetChannel(makeChannel(t, 800, 600))
	child := root.AddChild("child")
	stereo := root.AddChild("stereo")
	stereo.SetEyes(fabric.EyeLeft | fabric.EyeRight)

	update(root, 1)

	assert.Equal(t, fabric.EyeCyclop, root.InheritEyes())
	assert.Equal(t, root.InheritEyes(), child.InheritEyes())
	assert.Equal(t, fabric.EyeLeft|fabric.EyeRight, stereo.InheritEyes())
}

func TestInherit_EyesWithoutChannel(t *testing.T) {
	tree := NewTree(fabric.NewDefaults())
	root := tree.AddRoot("root")
	child := root.AddChild("child")

	update(root, 1)

	assert.Equal(t, fabric.EyesAll, root.InheritEyes())
	assert.Equal(t, fabric.EyesAll, child.InheritEyes())
}

func TestInherit_LeafSharingChannelSkipsClear(t *testing.T) {
	tree := NewTree(fabric.NewDefaults())
	root := tree.AddRoot("root")
	root.SetChannel(makeChannel(t, 800, 600))
	leaf := root.AddChild("leaf")

	update(root, 1)

	assert.Equal(t, fabric.TaskClear|fabric.TaskAssemble|fabric.TaskReadback, root.InheritTasks())
	assert.True(t, leaf.TestInheritTask(fabric.TaskDraw))
	assert.False(t, leaf.TestInheritTask(fabric.TaskClear))
	assert.False(t, leaf.TestInheritTask(fabric.TaskView))
}

func TestInherit_EmptyRangeSchedulesNothing(t *testing.T) {
	tree := NewTree(fabric.NewDefaults())
	root := tree.AddRoot("root")
	root.SetChannel(makeChannel(t, 800, 600))
	leaf := root.AddChild("leaf")
	leaf.SetRange(fabric.Range{Start: .5, End: .5})

	update(root, 1)
	assert.Equal(t, fabric.TaskNone, leaf.InheritTasks())
}

type recordingVisitor struct {
	visited []string
	pruneAt string
}

func (v *recordingVisitor) VisitPre(c *Compound) fabric.VisitorResult {
	v.visited = append(v.visited, "pre "+c.Name())
	if c.Name() == v.pruneAt {
		return fabric.Prune
	}
	return fabric.Continue
}

func (v *recordingVisitor) VisitLeaf(c *Compound) fabric.VisitorResult {
	v.visited = append(v.visited, "leaf "+c.Name())
	return fabric.Continue
}

func (v *recordingVisitor) VisitPost(c *Compound) fabric.VisitorResult {
	v.visited = append(v.visited, "post "+c.Name())
	return fabric.Continue
}

func makeABTree() (*Tree, *Compound) {
	tree := NewTree(fabric.NewDefaults())
	root := tree.AddRoot("root")
	a := root.AddChild("A")
	a.AddChild("A1")
	a.AddChild("A2")
	b := root.AddChild("B")
	b.AddChild("B1")
	return tree, root
}

func TestAccept_PruneSkipsSubtree(t *testing.T) {
	_, root := makeABTree()
	v := &recordingVisitor{pruneAt: "A"}

	assert.Equal(t, fabric.Prune, root.Accept(v))
	assert.Equal(t, []string{"pre root", "pre A", "pre B", "leaf B1", "post B", "post root"}, v.visited)
}

func TestAccept_FullOrder(t *testing.T) {
	tree, _ := makeABTree()
	v := &recordingVisitor{}

	assert.Equal(t, fabric.Continue, tree.Accept(v))
	assert.Equal(t, []string{
		"pre root", "pre A", "leaf A1", "leaf A2", "post A",
		"pre B", "leaf B1", "post B", "post root",
	}, v.visited)
}

func TestAccept_Terminate(t *testing.T) {
	_, root := makeABTree()
	var visited []string
	result := root.Accept(VisitorFunc(func(c *Compound) fabric.VisitorResult {
		visited = append(visited, c.Name())
		if c.Name() == "A1" {
			return fabric.Terminate
		}
		return fabric.Continue
	}))
	assert.Equal(t, fabric.Terminate, result)
	assert.Equal(t, []string{"root", "A", "A1"}, visited)
}

type nopEqualizer struct {
	Base
	updates int
}

func (e *nopEqualizer) Type() string                              { return "nop" }
func (e *nopEqualizer) NotifyUpdatePre(c *Compound, frame uint32) { e.updates++ }

func TestAddEqualizer_DoubleAttach(t *testing.T) {
	tree := NewTree(fabric.NewDefaults())
	root := tree.AddRoot("root")
	other := tree.AddRoot("other")
	eq := &nopEqualizer{Base: NewBase(DefaultParams(tree.Defaults()))}

	assert.NoError(t, root.AddEqualizer(eq))
	err := root.AddEqualizer(eq)
	assert.Equal(t, ErrDoubleAttach, errors.Cause(err))
	assert.Len(t, root.Equalizers(), 1)

	assert.NoError(t, other.AddEqualizer(eq))
	assert.Empty(t, root.Equalizers())
	assert.Equal(t, other, eq.Compound())

	other.FireUpdatePre(1)
	root.FireUpdatePre(1)
	assert.Equal(t, 1, eq.updates)
}

func TestRemove_ReleasesEqualizersAndPayloads(t *testing.T) {
	tree := NewTree(fabric.NewDefaults())
	root := tree.AddRoot("root")
	child := root.AddChild("child")
	session := frames.NewRegistry()
	child.AddOutputFrame(frames.NewFrame("out", frames.Output, session, 1))
	eq := &nopEqualizer{Base: NewBase(DefaultParams(tree.Defaults()))}
	assert.NoError(t, child.AddEqualizer(eq))

	tree.Remove(child)
	assert.Nil(t, eq.Compound())
	assert.Equal(t, 0, session.Live())
	assert.Equal(t, 1, tree.Len())
	assert.True(t, root.IsLeaf())
	assert.Nil(t, tree.Get(child.ID()))
}

func TestDefaultNames(t *testing.T) {
	tree := NewTree(fabric.NewDefaults())
	root := tree.AddRoot("wall")
	child := root.AddChild("")
	session := frames.NewRegistry()

	f := frames.NewFrame("", frames.Output, session, 1)
	child.AddOutputFrame(f)
	assert.Equal(t, "frame.wall", f.Name())

	q := frames.NewTileQueue("", frames.Output, session, 1)
	child.AddOutputQueue(q)
	assert.Equal(t, "queue.wall", q.Name())

	child.SetSwapBarrier("")
	assert.Equal(t, "barrier.wall", child.SwapBarrier())

	unnamed := tree.AddRoot("")
	unnamed.SetSwapBarrier("")
	assert.Equal(t, "barrier", unnamed.SwapBarrier())
}

func TestRenderContext_DefaultWall(t *testing.T) {
	tree := NewTree(fabric.NewDefaults())
	root := tree.AddRoot("root")
	root.SetChannel(makeChannel(t, 800, 600))
	update(root, 1)

	ctx := root.SetupRenderContext(fabric.EyeCyclop)
	assert.Equal(t, fabric.PixelViewport{W: 800, H: 600}, ctx.PVP)
	assert.InDelta(t, -.08, ctx.Frustum.Left, 1e-5)
	assert.InDelta(t, .08, ctx.Frustum.Right, 1e-5)
	assert.InDelta(t, -.05, ctx.Frustum.Bottom, 1e-5)
	assert.InDelta(t, .05, ctx.Frustum.Top, 1e-5)

	left := root.SetupRenderContext(fabric.EyeLeft)
	right := root.SetupRenderContext(fabric.EyeRight)
	assert.True(t, left.Frustum.Left > ctx.Frustum.Left)
	assert.True(t, right.Frustum.Right < ctx.Frustum.Right)
	assert.Equal(t, left.Ortho, right.Ortho)
}

func TestShareOverdraw(t *testing.T) {
	near, far := shareOverdraw(100, 100, 800, 900)
	assert.Equal(t, int32(50), near)
	assert.Equal(t, int32(50), far)

	near, far = shareOverdraw(30, 10, 800, 820)
	assert.Equal(t, int32(15), near)
	assert.Equal(t, int32(5), far)

	near, far = shareOverdraw(30, 10, 800, 1000)
	assert.Equal(t, int32(30), near)
	assert.Equal(t, int32(10), far)
}
