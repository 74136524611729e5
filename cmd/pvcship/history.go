package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pvcship/pvcship/pkg/storage"
	"github.com/pvcship/pvcship/pkg/types"
)

var historyCmd = &cobra.Command{
	Use:   "history [RUN_ID]",
	Short: "Show past transfer runs",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		initLogging(cfg)

		store, err := storage.NewBoltStore(cfg.HistoryPath)
		if err != nil {
			return fmt.Errorf("opening history store: %w", err)
		}
		defer store.Close()

		if len(args) == 1 {
			return showRun(store, args[0])
		}
		return listRuns(store)
	},
}

func listRuns(store storage.Store) error {
	runs, err := store.ListRuns()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tDIRECTION\tSTARTED\tJOBS\tRESULT")
	for _, r := range runs {
		result := "ok"
		if r.Interrupted {
			result = "interrupted"
		} else {
			for _, o := range r.Outcomes {
				if o.Result == types.JobFailed {
					result = "failed"
					break
				}
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.Direction, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			len(r.Outcomes), result)
	}
	return w.Flush()
}

func showRun(store storage.Store, id string) error {
	rec, err := store.GetRun(id)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s (%s), %s to %s\n", rec.ID, rec.Direction,
		rec.StartedAt.Local().Format("2006-01-02 15:04:05"),
		rec.FinishedAt.Local().Format("15:04:05"))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VOLUME\tRESULT\tBYTES\tFILES\tREASON")
	for _, o := range rec.Outcomes {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			o.Volume, o.Result, o.Bytes, o.Files, o.Reason)
	}
	return w.Flush()
}
