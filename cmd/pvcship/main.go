package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pvcship/pvcship/pkg/clock"
	"github.com/pvcship/pvcship/pkg/config"
	"github.com/pvcship/pvcship/pkg/kubectl"
	"github.com/pvcship/pvcship/pkg/log"
	"github.com/pvcship/pvcship/pkg/metrics"
	"github.com/pvcship/pvcship/pkg/prompt"
	"github.com/pvcship/pvcship/pkg/sequencer"
	"github.com/pvcship/pvcship/pkg/storage"
	"github.com/pvcship/pvcship/pkg/stream"
	"github.com/pvcship/pvcship/pkg/worker"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagConfig      string
	flagNamespace   string
	flagContext     string
	flagVerbose     bool
	flagYes         bool
	flagMetricsAddr string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pvcship",
	Short: "pvcship - bulk data export and import for Kubernetes volumes",
	Long: `pvcship moves data in and out of Kubernetes persistent volume claims.

It attaches a short-lived worker pod to each volume and streams the bytes
through it: whole volumes out as tar archives or plain directories, and
archives or directories back in, onto existing or freshly provisioned
volumes. Transfers run strictly one volume at a time and every worker pod
is cleaned up, interrupted runs included.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"pvcship version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (default ~/.pvcship/config.yaml)")
	pf.StringVarP(&flagNamespace, "namespace", "n", "", "default namespace for volume references")
	pf.StringVar(&flagContext, "context", "", "kubeconfig context")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&flagYes, "yes", false, "assume yes, never prompt")
	pf.StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadConfig layers flag overrides on top of the file/env configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagNamespace != "" {
		cfg.Namespace = flagNamespace
	}
	if flagContext != "" {
		cfg.Context = flagContext
	}
	if flagMetricsAddr != "" {
		cfg.MetricsAddr = flagMetricsAddr
	}
	if flagVerbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func initLogging(cfg *config.Config) {
	logCfg := log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	}
	if cfg.LogDir != "" {
		logCfg.FilePath = cfg.LogDir + "/pvcship.log"
	}
	log.Init(logCfg)
}

// newPrompter answers interactively only on a terminal; --yes forces the
// non-interactive path with confirmations pre-accepted.
func newPrompter() prompt.Prompter {
	if flagYes || !isatty.IsTerminal(os.Stdin.Fd()) {
		return prompt.NonInteractive{AssumeYes: flagYes}
	}
	return prompt.Survey{}
}

// runContext cancels on the first SIGINT/SIGTERM so the active job is
// torn down; a second signal hard-exits.
func runContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 2)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Warn("interrupt received, finishing cleanup (press again to force quit)")
		cancel()
		<-sig
		os.Exit(130)
	}()
	return ctx, cancel
}

// newSequencer assembles the run pipeline against the real cluster.
func newSequencer(cfg *config.Config, prompter prompt.Prompter) (*sequencer.Sequencer, func()) {
	gw := kubectl.NewCLI(cfg.Kubectl, cfg.Context)

	workerCfg := worker.DefaultConfig()
	workerCfg.Image = cfg.Image
	workerCfg.PollInterval = cfg.PollInterval
	workerCfg.ReadyTimeout = cfg.ReadyTimeout
	workerCfg.FreshVolumeReadyTimeout = cfg.FreshReadyTimeout

	streamCfg := stream.DefaultConfig()
	streamCfg.SampleInterval = cfg.SampleInterval

	var (
		store   storage.Store
		cleanup = func() {}
	)
	if cfg.HistoryPath != "" {
		if s, err := storage.NewBoltStore(cfg.HistoryPath); err != nil {
			log.Errorf("history store unavailable", err)
		} else {
			store = s
			cleanup = func() { s.Close() }
		}
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cfg.MetricsAddr); err != nil {
				log.Errorf("metrics endpoint failed", err)
			}
		}()
	}

	seq := sequencer.New(gw, clock.Real{}, prompter, sequencer.Options{
		Worker: workerCfg,
		Stream: streamCfg,
		Store:  store,
	})
	return seq, cleanup
}
