package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/library"
)

// ScanCommand reads decoded barcodes, one per line, and feeds them through
// the scan pipeline until input ends.
type ScanCommand struct {
	env  Env
	JSON bool
}

func NewScanCommand(env Env) *ScanCommand {
	return &ScanCommand{env: env}
}

func (cmd *ScanCommand) ParseFlags(args []string) error {
	fs := newFlagSet("scan", "[options]",
		"Read decoded barcodes from stdin, one per line, and add new books.\n"+
			"Invalid and repeated barcodes are skipped.",
		"scan < barcodes.txt",
		"zbarcam --raw | shelfscan scan",
	)
	fs.BoolVar(&cmd.JSON, "json", false, "Print one JSON object per scan")
	return fs.Parse(args)
}

func (cmd *ScanCommand) Run(ctx context.Context) error {
	return cmd.env.with(ctx, func(svc Service) error {
		out := cmd.env.stdout()
		counts := make(map[entities.ScanOutcome]int)

		scanner := bufio.NewScanner(cmd.env.stdin())
		for scanner.Scan() {
			if ctx.Err() != nil {
				break
			}
			raw := strings.TrimSpace(scanner.Text())
			if raw == "" {
				continue
			}

			res, err := svc.Scan(ctx, raw)
			counts[res.Outcome]++
			if cmd.JSON {
				if err := writeJSON(out, res); err != nil {
					return err
				}
				continue
			}
			printScan(out, res, err)
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("failed to read barcodes: %w", err)
		}

		if !cmd.JSON {
			fmt.Fprintf(out, "\nadded %d, duplicate %d, invalid %d, failed %d\n",
				counts[entities.ScanOutcomeAdded],
				counts[entities.ScanOutcomeDuplicate],
				counts[entities.ScanOutcomeInvalid],
				counts[entities.ScanOutcomeFailed])
		}
		if ctx.Err() != nil && !errors.Is(ctx.Err(), context.Canceled) {
			return ctx.Err()
		}
		return nil
	})
}

func printScan(w io.Writer, res library.ScanResult, err error) {
	switch res.Outcome {
	case entities.ScanOutcomeAdded:
		fmt.Fprintf(w, "✅ %s: %s\n", res.Barcode, describeBook(*res.Book))
		if res.Tagging != nil && len(res.Tagging.Created) > 0 {
			fmt.Fprintf(w, "   🏷️  created %d tags\n", len(res.Tagging.Created))
		}
	case entities.ScanOutcomeDuplicate:
		fmt.Fprintf(w, "⏭️  %s: already scanned\n", res.Barcode)
	case entities.ScanOutcomeInvalid:
		fmt.Fprintf(w, "⚠️  %s: not a valid ISBN-13\n", res.Barcode)
	case entities.ScanOutcomeAdmitted:
		fmt.Fprintf(w, "⏳ %s: still being added\n", res.Barcode)
	default:
		fmt.Fprintf(w, "❌ %s: %v\n", res.Barcode, err)
	}
}
