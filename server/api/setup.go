// Package api wires a server from its JSON settings and runs it next to
// its admin endpoints.
package api

import (
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/context"

	"github.com/twitter/equalizer/common/endpoints"
	eqerrors "github.com/twitter/equalizer/common/errors"
	"github.com/twitter/equalizer/common/grpchelpers"
	"github.com/twitter/equalizer/common/stats"
	"github.com/twitter/equalizer/config/eqconfig"
	"github.com/twitter/equalizer/config/jsonconfig"
	"github.com/twitter/equalizer/config/loader"
	"github.com/twitter/equalizer/ice"
	"github.com/twitter/equalizer/server"
	"github.com/twitter/equalizer/server/config"
	"github.com/twitter/equalizer/transport"
)

// HealthService is the grpc health service name of the server.
const HealthService = "equalizer.Server"

// exitTimeout bounds the final exit of the config once driving stopped.
const exitTimeout = 30 * time.Second

type servers struct {
	server *server.Server
	http   *endpoints.TwitterServer
	grpc   *grpchelpers.HealthServer
}

// Defaults creates a MagicBag and a settings Schema for the server.
func Defaults() (*ice.MagicBag, jsonconfig.Schema) {
	bag := ice.NewMagicBag()
	bag.PutMany(
		func(cl *loader.Cluster, tr transport.Transport, stat stats.StatsReceiver) *config.Config {
			return config.New(cl.Name, cl.Defaults, cl.Tree, cl.Topology, tr, stat)
		},

		server.NewServer,

		func(addr endpoints.Addr, s *server.Server, stat stats.StatsReceiver) *endpoints.TwitterServer {
			return endpoints.NewTwitterServer(addr, stat, s)
		},

		func(addr grpchelpers.Addr, s *server.Server) *grpchelpers.HealthServer {
			return grpchelpers.NewHealthServer(addr, HealthService, s)
		},

		func(s *server.Server, h *endpoints.TwitterServer, g *grpchelpers.HealthServer) servers {
			return servers{server: s, http: h, grpc: g}
		},
	)

	schema := jsonconfig.Schema{
		"Stats": {
			"finagle": &eqconfig.FinagleStatsConfig{},
			"nil":     &eqconfig.NilStatsConfig{},
			"":        &eqconfig.FinagleStatsConfig{Type: "finagle"},
		},
		"Transport": {
			"inmemory": &eqconfig.InMemoryTransportConfig{},
			"":         &eqconfig.InMemoryTransportConfig{Type: "inmemory"},
		},
		"Defaults": {
			"stock": &eqconfig.DefaultsConfig{},
			"":      &eqconfig.DefaultsConfig{Type: "stock"},
		},
		"Cluster": {
			"file": &eqconfig.ClusterFileConfig{},
			"":     &eqconfig.ClusterFileConfig{Type: "file"},
		},
		"Loop": {
			"default": &eqconfig.LoopConfig{},
			"":        &eqconfig.LoopConfig{Type: "default"},
		},
		"Admin": {
			"default": &eqconfig.AdminConfig{},
			"":        &eqconfig.AdminConfig{Type: "default"},
		},
	}
	return bag, schema
}

// Install parses settings and installs them into bag.
func Install(bag *ice.MagicBag, schema jsonconfig.Schema, settings []byte) error {
	mod, err := schema.Parse(settings)
	if err != nil {
		return eqerrors.NewError(errors.Wrap(err, "parsing settings"), eqerrors.SettingsFailureExitCode)
	}
	bag.InstallModule(mod)
	return nil
}

// Validate builds the cluster the settings describe without serving it.
func Validate(bag *ice.MagicBag) (*loader.Cluster, error) {
	var cluster *loader.Cluster
	if err := bag.Extract(&cluster); err != nil {
		return nil, eqerrors.NewError(err, eqerrors.ClusterLoadFailureExitCode)
	}
	return cluster, nil
}

// RunServer serves the configured cluster and renders frames until ctx is
// done or frames frames were rendered, 0 meaning no limit. The config is
// exited before returning.
func RunServer(ctx context.Context, bag *ice.MagicBag, frames uint32) error {
	var s servers
	if err := bag.Extract(&s); err != nil {
		return eqerrors.NewError(errors.Wrap(err, "injecting servers"), eqerrors.ClusterLoadFailureExitCode)
	}

	adminCtx, stopAdmin := context.WithCancel(context.Background())
	defer stopAdmin()
	errCh := make(chan error, 2)
	go func() { errCh <- errors.Wrap(s.http.Serve(adminCtx), "http") }()
	go func() { errCh <- errors.Wrap(s.grpc.Serve(adminCtx), "grpc") }()

	s.server.Start(adminCtx)
	defer s.server.Stop()

	driveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	adminErrCh := make(chan error, 1)
	go func() {
		select {
		case err := <-errCh:
			adminErrCh <- err
			cancel()
		case <-driveCtx.Done():
		}
	}()

	result := Drive(driveCtx, s.server, frames)
	select {
	case err := <-adminErrCh:
		if err != nil {
			return eqerrors.NewError(multierror.Append(err, result), eqerrors.GenericFailureExitCode)
		}
	default:
	}
	return result
}

// Drive initializes the server's config, requests frames until ctx is
// done or frames were started, then finishes them and exits the config.
func Drive(ctx context.Context, s *server.Server, frames uint32) error {
	if err := s.RequestInit(ctx, ""); err != nil {
		return eqerrors.NewError(errors.Wrap(err, "initializing config"), eqerrors.InitFailureExitCode)
	}
	log.WithFields(log.Fields{"config": s.Config().Name()}).Info("Config running")

	var result *multierror.Error
	var last uint32
	for (frames == 0 || last < frames) && ctx.Err() == nil {
		frame, err := s.RequestFrame(ctx)
		if err != nil {
			if ctx.Err() == nil {
				result = multierror.Append(result, errors.Wrap(err, "starting frame"))
			}
			break
		}
		last = frame
	}

	exitCtx, cancel := context.WithTimeout(context.Background(), exitTimeout)
	defer cancel()
	if err := s.RequestFinishAll(exitCtx); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "finishing frames"))
	}
	if err := s.RequestExit(exitCtx); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "exiting config"))
	}
	log.WithFields(log.Fields{
		"config": s.Config().Name(),
		"frames": last,
	}).Info("Config exited")
	return eqerrors.NewError(result.ErrorOrNil(), eqerrors.FrameFailureExitCode)
}
