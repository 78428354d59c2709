package loader

import (
	"os"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/server/equalizers"
	"github.com/twitter/equalizer/server/resources"
	"github.com/twitter/equalizer/transport/inmemory"
)

func init() {
	if level, err := log.ParseLevel(os.Getenv("EQ_LOGLEVEL")); err == nil {
		log.SetLevel(level)
	}
}

func load(t *testing.T, src string) (*Cluster, error) {
	tr := inmemory.NewTransport()
	t.Cleanup(tr.Close)
	return Load([]byte(src), "test.hcl", tr, fabric.NewDefaults())
}

const minimal = `
node "n0" {
  pipe "p0" {
    window "w0" {
      viewport = [0, 0, 640, 480]
      channel "c0" {}
    }
  }
}
`

func TestLoadFile(t *testing.T) {
	tr := inmemory.NewTransport()
	defer tr.Close()
	cluster, err := LoadFile("testdata/two_node.hcl", tr, fabric.NewDefaults())
	require.NoError(t, err)

	assert.Equal(t, "two-node", cluster.Name)
	assert.Equal(t, uint32(2), cluster.Defaults.Latency)
	assert.Equal(t, uint32(2), cluster.Topology.Latency())
	require.Len(t, cluster.Topology.Nodes(), 2)

	render0 := cluster.Topology.FindNode("render0")
	require.NotNil(t, render0)
	assert.Equal(t, resources.ThreadModelDrawSync, render0.ThreadModel())
	window := render0.Pipes()[0].Windows()[0]
	assert.Equal(t, fabric.PixelViewport{W: 1280, H: 800}, window.PixelViewport())
	assert.Equal(t, fabric.On, window.Hints().Doublebuffer)

	helper := cluster.Topology.FindChannelByName("helper")
	require.NotNil(t, helper)
	assert.Equal(t, fabric.Vector2i{X: 1024, Y: 768}, helper.MaxSize())
	assert.True(t, helper.Window().Hints().FBO)

	obs := cluster.Topology.FindObserver("head")
	require.NotNil(t, obs)
	assert.InDelta(t, 0.07, obs.EyeBase(), 1e-6)
	view := cluster.Topology.FindViewByName("main")
	require.NotNil(t, view)
	assert.Equal(t, obs, view.Observer())
	assert.Equal(t, resources.FrustumWall, view.Frustum().Type)

	require.Len(t, cluster.Topology.Canvases(), 1)
	segments := cluster.Topology.Canvases()[0].Segments()
	require.Len(t, segments, 1)
	assert.Equal(t, "display", segments[0].Channel().Name())

	roots := cluster.Tree.Roots()
	require.Len(t, roots, 1)
	root := roots[0]
	assert.Equal(t, "root", root.Name())
	assert.Equal(t, "display", root.Channel().Name())
	require.Len(t, root.Children(), 2)
	assert.Equal(t, "display", root.Children()[0].Channel().Name())
	assert.Equal(t, helper, root.Children()[1].Channel())
	assert.Equal(t, fabric.TaskClear|fabric.TaskDraw|fabric.TaskReadback, root.Children()[1].Tasks())

	require.Len(t, root.Equalizers(), 1)
	lb, ok := root.Equalizers()[0].(*equalizers.LoadEqualizer)
	require.True(t, ok)
	assert.Equal(t, fabric.ModeVertical, lb.Params.Mode)
	assert.InDelta(t, 0.5, lb.Params.Damping, 1e-6)
	assert.Equal(t, fabric.Vector2i{X: 16, Y: 16}, lb.Params.Boundary2i)

	require.Len(t, root.InputFrames(), 1)
	out := root.Children()[1].OutputFrames()
	require.Len(t, out, 1)
	assert.Equal(t, "helper.frame", out[0].Name())
	assert.Equal(t, fabric.BufferColor, out[0].Buffers())
	assert.Equal(t, cluster.Defaults.FrameStorage, out[0].Storage())
}

func TestLoad_DefaultName(t *testing.T) {
	cluster, err := load(t, minimal)
	require.NoError(t, err)
	assert.Equal(t, "test", cluster.Name)
	assert.Empty(t, cluster.Tree.Roots())
}

func TestLoad_Equalizers(t *testing.T) {
	cluster, err := load(t, minimal+`
compound {
  channel = "c0"

  equalizer "tile" {
    name      = "queue"
    tile_size = [32, 32]
  }
  equalizer "framerate" {}
  equalizer "load" {
    mode       = "db"
    boundary   = 0.25
    resistance = 0.1
  }
}
`)
	require.NoError(t, err)
	eqs := cluster.Tree.Roots()[0].Equalizers()
	require.Len(t, eqs, 3)

	tile, ok := eqs[0].(*equalizers.TileEqualizer)
	require.True(t, ok)
	assert.Equal(t, fabric.Vector2i{X: 32, Y: 32}, tile.Params.TileSize)
	_, ok = eqs[1].(*equalizers.FramerateEqualizer)
	assert.True(t, ok)
	lb := eqs[2].(*equalizers.LoadEqualizer)
	assert.Equal(t, fabric.ModeDB, lb.Params.Mode)
	assert.InDelta(t, 0.25, lb.Params.Boundaryf, 1e-6)
	assert.InDelta(t, 0.1, lb.Params.Resistancef, 1e-6)
}

func TestLoad_Errors(t *testing.T) {
	for name, src := range map[string]string{
		"syntax":         `node "n0" {`,
		"unknown block":  `frobnicate {}`,
		"duplicate node": minimal + minimal,
		"unknown channel": minimal + `
compound {
  channel = "nope"
}`,
		"bad viewport": minimal + `
compound {
  channel  = "c0"
  viewport = [-0.5, 0, 1, 1]
}`,
		"bad range": minimal + `
compound {
  channel = "c0"
  range   = [0.5, 0.2]
}`,
		"unknown task": minimal + `
compound {
  channel = "c0"
  tasks   = ["paint"]
}`,
		"unknown equalizer": minimal + `
compound {
  channel = "c0"
  equalizer "magic" {}
}`,
		"unknown equalizer attribute": minimal + `
compound {
  channel = "c0"
  equalizer "load" {
    speed = 3
  }
}`,
		"unknown mode": minimal + `
compound {
  channel = "c0"
  equalizer "load" {
    mode = "diagonal"
  }
}`,
		"wall and projection": minimal + `
compound {
  channel = "c0"
  wall {
    bottom_left  = [-1, -1, -1]
    bottom_right = [1, -1, -1]
    top_left     = [-1, 1, -1]
  }
  projection {
    distance = 1
    fov      = [60, 40]
  }
}`,
		"unknown observer": `
layout "l" {
  view "v" {
    observer = "ghost"
  }
}`,
		"unknown layout": `
canvas "c" {
  layouts = ["missing"]
}`,
		"negative latency": `latency = -1`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := load(t, src)
			assert.Error(t, err)
		})
	}
}

func TestLoad_Destination(t *testing.T) {
	src := minimal + `
node "n1" {
  pipe "p0" {
    window "w0" {
      viewport = [0, 0, 640, 480]
      channel "c1" {}
    }
  }
}

layout "l" {
  view "v" {}
}

canvas "c" {
  layouts = ["l"]
  segment "s" {
    channel = "c0"
    destination {
      channel = "c1"
      view    = "v"
    }
  }
}
`
	cluster, err := load(t, src)
	require.NoError(t, err)
	c1 := cluster.Topology.FindChannelByName("c1")
	require.NotNil(t, c1)
	assert.Equal(t, "v", c1.View().Name())
	assert.Equal(t, "s", c1.Segment().Name())

	_, err = load(t, src+`
canvas "d" {
  segment "t" {
    channel = "c0"
    destination {
      channel = "c1"
      view    = "v"
    }
  }
}
`)
	assert.Error(t, err, "view of another canvas")
}
