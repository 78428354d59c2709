// Package eqconfig holds the settings implementations a server's JSON
// configuration chooses between. Each installs its providers into an ice
// MagicBag.
package eqconfig

import (
	"time"

	"github.com/pkg/errors"

	"github.com/twitter/equalizer/common/endpoints"
	"github.com/twitter/equalizer/common/grpchelpers"
	"github.com/twitter/equalizer/common/stats"
	"github.com/twitter/equalizer/config/loader"
	"github.com/twitter/equalizer/fabric"
	"github.com/twitter/equalizer/ice"
	"github.com/twitter/equalizer/server"
	"github.com/twitter/equalizer/transport"
	"github.com/twitter/equalizer/transport/inmemory"
)

const (
	DefaultStatScope  = "equalizer"
	DefaultStatsLatch = 15 * time.Second
	DefaultHTTPAddr   = "localhost:9091"
	DefaultGRPCAddr   = "localhost:9092"
)

// FinagleStatsConfig exports stats in the finagle JSON format, latched
// for LatchMs.
type FinagleStatsConfig struct {
	Type    string
	Scope   string
	LatchMs int
}

func (c *FinagleStatsConfig) Install(bag *ice.MagicBag) {
	bag.Put(c.Create)
}

func (c *FinagleStatsConfig) Create() stats.StatsReceiver {
	latch := DefaultStatsLatch
	if c.LatchMs > 0 {
		latch = time.Duration(c.LatchMs) * time.Millisecond
	}
	scope := c.Scope
	if scope == "" {
		scope = DefaultStatScope
	}
	return endpoints.MakeStatsReceiver(endpoints.StatScope(scope), latch)
}

type NilStatsConfig struct {
	Type string
}

func (c *NilStatsConfig) Install(bag *ice.MagicBag) {
	bag.Put(func() stats.StatsReceiver { return stats.NilStatsReceiver() })
}

// DrawCost is the simulated full-viewport draw time of one channel.
type DrawCost struct {
	Node    string
	Channel string
	Ms      float32
}

// InMemoryTransportConfig runs the render clients as simulations inside
// the server process.
type InMemoryTransportConfig struct {
	Type        string
	DrawCosts   []DrawCost
	Unreachable []string
}

func (c *InMemoryTransportConfig) Install(bag *ice.MagicBag) {
	bag.Put(c.Create)
}

func (c *InMemoryTransportConfig) Create() transport.Transport {
	tr := inmemory.NewTransport()
	for _, cost := range c.DrawCosts {
		tr.SetDrawCost(cost.Node, cost.Channel, cost.Ms)
	}
	for _, node := range c.Unreachable {
		tr.SetUnreachable(node)
	}
	return tr
}

// DefaultsConfig overrides the stock attribute defaults. Zero values keep
// the stock setting.
type DefaultsConfig struct {
	Type            string
	Latency         *uint32
	Robustness      string
	FrameTimeoutMs  int
	LaunchTimeoutMs int
	EyeBase         float32
}

func (c *DefaultsConfig) Install(bag *ice.MagicBag) {
	bag.Put(c.Create)
}

func (c *DefaultsConfig) Create() (fabric.Defaults, error) {
	d := fabric.NewDefaults()
	if c.Latency != nil {
		d.Latency = *c.Latency
	}
	switch c.Robustness {
	case "":
	case "on":
		d.Robustness = fabric.On
	case "off":
		d.Robustness = fabric.Off
	default:
		return d, errors.Errorf("robustness must be on or off, was %q", c.Robustness)
	}
	if c.FrameTimeoutMs > 0 {
		d.FrameTimeout = time.Duration(c.FrameTimeoutMs) * time.Millisecond
	}
	if c.LaunchTimeoutMs > 0 {
		d.LaunchTimeout = time.Duration(c.LaunchTimeoutMs) * time.Millisecond
	}
	if c.EyeBase > 0 {
		d.EyeBase = c.EyeBase
	}
	return d, nil
}

// ClusterFileConfig loads the cluster description from an HCL file.
type ClusterFileConfig struct {
	Type string
	Path string
}

func (c *ClusterFileConfig) Install(bag *ice.MagicBag) {
	bag.Put(c.Create)
}

func (c *ClusterFileConfig) Create(tr transport.Transport, defaults fabric.Defaults) (*loader.Cluster, error) {
	if c.Path == "" {
		return nil, errors.New("no cluster description path configured")
	}
	return loader.LoadFile(c.Path, tr, defaults)
}

// LoopConfig tunes the server's control loop.
type LoopConfig struct {
	Type       string
	MaxFPS     float64
	TickRateMs int
}

func (c *LoopConfig) Install(bag *ice.MagicBag) {
	bag.Put(c.Create)
}

func (c *LoopConfig) Create() (server.Settings, error) {
	if c.MaxFPS < 0 {
		return server.Settings{}, errors.Errorf("negative MaxFPS %g", c.MaxFPS)
	}
	return server.Settings{
		MaxFPS:   c.MaxFPS,
		TickRate: time.Duration(c.TickRateMs) * time.Millisecond,
	}, nil
}

// AdminConfig places the admin HTTP and grpc health servers.
type AdminConfig struct {
	Type     string
	HTTPAddr string
	GRPCAddr string
}

func (c *AdminConfig) Install(bag *ice.MagicBag) {
	bag.PutMany(
		func() endpoints.Addr {
			if c.HTTPAddr == "" {
				return DefaultHTTPAddr
			}
			return endpoints.Addr(c.HTTPAddr)
		},
		func() grpchelpers.Addr {
			if c.GRPCAddr == "" {
				return DefaultGRPCAddr
			}
			return grpchelpers.Addr(c.GRPCAddr)
		},
	)
}
