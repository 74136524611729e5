package main

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pvcship/pvcship/pkg/deps"
	"github.com/pvcship/pvcship/pkg/types"
)

var (
	flagOutputDir string
	flagFormat    string
)

var exportCmd = &cobra.Command{
	Use:   "export VOLUME[@NAMESPACE]...",
	Short: "Export volume contents to local archives or directories",
	Long: `Export streams the full contents of each named volume out of the
cluster, one volume at a time. Artifacts are named volume@namespace plus
the format extension, so an exported archive can later be imported without
spelling out its target.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		initLogging(cfg)

		format, err := types.ParseFormat(flagFormat)
		if err != nil {
			return err
		}

		outDir := flagOutputDir
		if outDir == "" {
			if outDir, err = os.Getwd(); err != nil {
				return err
			}
		}

		var jobs []*types.TransferJob
		for _, arg := range args {
			ref, err := types.ParseVolumeRef(arg, cfg.Namespace)
			if err != nil {
				return err
			}
			jobs = append(jobs, &types.TransferJob{
				ID:        uuid.New().String(),
				Direction: types.DirectionExport,
				Format:    format,
				Volume:    ref,
				DestPath:  filepath.Join(outDir, ref.ArtifactName(format)),
			})
		}

		prompter := newPrompter()
		ctx, cancel := runContext()
		defer cancel()

		if err := deps.Check(ctx, deps.Requirements{Kubectl: cfg.Kubectl, Context: cfg.Context}, prompter); err != nil {
			return err
		}

		seq, cleanup := newSequencer(cfg, prompter)
		report := seq.Run(ctx, jobs)
		cleanup()
		os.Exit(report.ExitCode())
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&flagOutputDir, "output", "o", "", "output directory (default current directory)")
	exportCmd.Flags().StringVar(&flagFormat, "format", "tgz", "artifact format: tgz, tar or dir")
}
