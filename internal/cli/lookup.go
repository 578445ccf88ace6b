package cli

import (
	"context"
	"fmt"
)

// LookupCommand prints public metadata for an ISBN.
type LookupCommand struct {
	env  Env
	JSON bool
	ISBN string
}

func NewLookupCommand(env Env) *LookupCommand {
	return &LookupCommand{env: env}
}

func (cmd *LookupCommand) ParseFlags(args []string) error {
	fs := newFlagSet("lookup", "[options] <isbn>",
		"Look a book up in public catalogues without adding it.",
		"lookup 9780134190440",
	)
	fs.BoolVar(&cmd.JSON, "json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("exactly one ISBN is required")
	}
	cmd.ISBN = fs.Arg(0)
	return nil
}

func (cmd *LookupCommand) Run(ctx context.Context) error {
	return cmd.env.with(ctx, func(svc Service) error {
		meta, err := svc.Lookup(ctx, cmd.ISBN)
		if err != nil {
			return err
		}
		out := cmd.env.stdout()
		if cmd.JSON {
			return writeJSON(out, meta)
		}
		fmt.Fprintf(out, "Title:     %s\n", meta.Title)
		if meta.Author != "" {
			fmt.Fprintf(out, "Author:    %s\n", meta.Author)
		}
		fmt.Fprintf(out, "ISBN-13:   %s\n", meta.ISBN13)
		if meta.Publisher != "" {
			fmt.Fprintf(out, "Publisher: %s\n", meta.Publisher)
		}
		if meta.PublicationYear > 0 {
			fmt.Fprintf(out, "Year:      %d\n", meta.PublicationYear)
		}
		if meta.PageCount > 0 {
			fmt.Fprintf(out, "Pages:     %d\n", meta.PageCount)
		}
		if meta.Thumbnail != "" {
			fmt.Fprintf(out, "Cover:     %s\n", meta.Thumbnail)
		}
		fmt.Fprintf(out, "Source:    %s\n", meta.Source)
		return nil
	})
}
