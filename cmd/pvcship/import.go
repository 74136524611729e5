package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pvcship/pvcship/pkg/deps"
	"github.com/pvcship/pvcship/pkg/resolve"
	"github.com/pvcship/pvcship/pkg/types"
)

var (
	flagMerge bool
	flagClear bool
)

var importCmd = &cobra.Command{
	Use:   "import SOURCE...",
	Short: "Import archives or directories onto cluster volumes",
	Long: `Import streams local archives (.tgz, .tar.gz, .tar) or plain
directories onto volumes, one source at a time. Targets are suggested from
the artifact name (volume@namespace); missing volumes and namespaces can
be created on the way, with storage class and capacity confirmed or taken
from the suggestion. Importing onto a volume that already holds data
requires an explicit merge or clear decision.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		initLogging(cfg)

		if flagMerge && flagClear {
			return fmt.Errorf("--merge and --clear are mutually exclusive")
		}
		opts := resolve.Options{DefaultNamespace: cfg.Namespace}
		switch {
		case flagMerge:
			opts.Merge = types.MergePolicyMerge
		case flagClear:
			opts.Merge = types.MergePolicyClear
		}

		for _, src := range args {
			if _, err := os.Stat(src); err != nil {
				return fmt.Errorf("source %s: %w", src, err)
			}
		}

		prompter := newPrompter()
		ctx, cancel := runContext()
		defer cancel()

		req := deps.Requirements{Kubectl: cfg.Kubectl, Context: cfg.Context}
		if err := deps.Check(ctx, req, prompter); err != nil {
			return err
		}

		seq, cleanup := newSequencer(cfg, prompter)
		jobs, skipped := seq.ResolveImports(ctx, args, opts)
		report := seq.Run(ctx, jobs, skipped...)
		cleanup()
		os.Exit(report.ExitCode())
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&flagMerge, "merge", false, "merge into existing volume data")
	importCmd.Flags().BoolVar(&flagClear, "clear", false, "clear existing volume data before import")
}
