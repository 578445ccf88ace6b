package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/mrlokans/shelfscan/internal/entities"
)

// HistoryCommand prints recent scans.
type HistoryCommand struct {
	env   Env
	Limit int
	JSON  bool
}

func NewHistoryCommand(env Env) *HistoryCommand {
	return &HistoryCommand{env: env}
}

func (cmd *HistoryCommand) ParseFlags(args []string) error {
	fs := newFlagSet("history", "[options]", "Show recent scans and what became of them.",
		"history -limit 10",
	)
	fs.IntVar(&cmd.Limit, "limit", 20, "Number of scans to show")
	fs.BoolVar(&cmd.JSON, "json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if cmd.Limit <= 0 {
		return fmt.Errorf("-limit must be positive")
	}
	return nil
}

func (cmd *HistoryCommand) Run(ctx context.Context) error {
	return cmd.env.with(ctx, func(svc Service) error {
		records, err := svc.History(ctx, cmd.Limit)
		if err != nil {
			return err
		}
		out := cmd.env.stdout()
		if cmd.JSON {
			if records == nil {
				records = []entities.ScanRecord{}
			}
			return writeJSON(out, records)
		}

		tw := newTable(out)
		fmt.Fprintln(tw, "WHEN\tBARCODE\tOUTCOME\tDETAIL")
		for _, r := range records {
			detail := r.Title
			if r.Error != "" {
				detail = r.Error
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ScannedAt.Local().Format(time.DateTime), r.Barcode, r.Outcome, detail)
		}
		if err := tw.Flush(); err != nil {
			return err
		}

		summary, err := svc.HistorySummary(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\nall time: added %d, duplicate %d, invalid %d, failed %d\n",
			summary[entities.ScanOutcomeAdded],
			summary[entities.ScanOutcomeDuplicate],
			summary[entities.ScanOutcomeInvalid],
			summary[entities.ScanOutcomeFailed])
		return nil
	})
}
