package main

import (
	"embed"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/net/context"

	eqerrors "github.com/twitter/equalizer/common/errors"
	"github.com/twitter/equalizer/common/log/hooks"
	"github.com/twitter/equalizer/config/eqconfig"
	"github.com/twitter/equalizer/config/jsonconfig"
	"github.com/twitter/equalizer/ice"
	"github.com/twitter/equalizer/server/api"
)

// Equalizer control server
//	Commands: (see "-h" for all options)
//		run       serve a cluster and render frames on it
//		validate  load a cluster description and report what it holds
//	Global flags:
//		--log_level [<error|info|debug|trace> level and above should be logged]

//go:embed config
var assets embed.FS

type cli struct {
	logLevel    string
	settings    string
	clusterPath string
	frames      uint32
}

func main() {
	log.AddHook(hooks.NewContextHook())
	if err := newRootCmd().Execute(); err != nil {
		log.WithFields(log.Fields{"err": err}).Error("eqserver failed")
		os.Exit(int(eqerrors.ExitCodeOf(err)))
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "eqserver",
		SilenceUsage: true,
		Short:        "eqserver drives parallel rendering on a cluster of render clients",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			level, err := log.ParseLevel(c.logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(level)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.logLevel, "log_level", "info", "log everything at this level and above")
	root.PersistentFlags().StringVar(&c.settings, "settings", "local.json", "settings file name under config/, or literal JSON")
	root.PersistentFlags().StringVar(&c.clusterPath, "cluster", "", "cluster description, overrides the settings' Cluster")

	run := &cobra.Command{
		Use:   "run",
		Short: "Serve the cluster and render frames until interrupted",
		RunE:  c.run,
	}
	run.Flags().Uint32Var(&c.frames, "frames", 0, "stop after this many frames, 0 for no limit")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load the cluster description and print a summary",
		RunE:  c.validate,
	}
	root.AddCommand(run, validate)
	return root
}

func (c *cli) bag() (*ice.MagicBag, error) {
	text, err := jsonconfig.GetConfigText(c.settings, assets.ReadFile)
	if err != nil {
		return nil, eqerrors.NewError(err, eqerrors.SettingsFailureExitCode)
	}
	bag, schema := api.Defaults()
	if err := api.Install(bag, schema, text); err != nil {
		return nil, err
	}
	if c.clusterPath != "" {
		bag.InstallModule(&eqconfig.ClusterFileConfig{Type: "file", Path: c.clusterPath})
	}
	return bag, nil
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	bag, err := c.bag()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.WithFields(log.Fields{"signal": sig}).Info("Stopping")
			cancel()
		case <-ctx.Done():
		}
	}()
	return api.RunServer(ctx, bag, c.frames)
}

func (c *cli) validate(cmd *cobra.Command, args []string) error {
	bag, err := c.bag()
	if err != nil {
		return err
	}
	cluster, err := api.Validate(bag)
	if err != nil {
		return err
	}
	topo := cluster.Topology
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d nodes, %d layouts, %d canvases, %d compounds, latency %d\n",
		cluster.Name, len(topo.Nodes()), len(topo.Layouts()), len(topo.Canvases()), cluster.Tree.Len(), topo.Latency())
	return nil
}
