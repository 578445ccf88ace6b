package cli

import (
	"context"
	"fmt"
	"strings"
)

// TagsCommand lists tags.
type TagsCommand struct {
	env  Env
	JSON bool
}

func NewTagsCommand(env Env) *TagsCommand {
	return &TagsCommand{env: env}
}

func (cmd *TagsCommand) ParseFlags(args []string) error {
	fs := newFlagSet("tags", "[options]", "List your tags.")
	fs.BoolVar(&cmd.JSON, "json", false, "Print JSON")
	return fs.Parse(args)
}

func (cmd *TagsCommand) Run(ctx context.Context) error {
	return cmd.env.with(ctx, func(svc Service) error {
		tags := svc.Tags()
		if cmd.JSON {
			return writeJSON(cmd.env.stdout(), tags)
		}
		tw := newTable(cmd.env.stdout())
		fmt.Fprintln(tw, "ID\tNAME")
		for _, t := range tags {
			fmt.Fprintf(tw, "%s\t%s\n", t.ID, t.Name)
		}
		return tw.Flush()
	})
}

// TagCommand sets the tags of one or more books, or shows the tags they
// share.
type TagCommand struct {
	env    Env
	Names  string
	Common bool
	Keys   []string
}

func NewTagCommand(env Env) *TagCommand {
	return &TagCommand{env: env}
}

func (cmd *TagCommand) ParseFlags(args []string) error {
	fs := newFlagSet("tag", "[options] <key>...",
		"Give books exactly the named tags. Unknown tags are created.\n"+
			"An empty -names removes every tag.",
		"tag -names fiction,to-read 9780134190440 id:42",
		"tag -common id:41 id:42",
	)
	fs.StringVar(&cmd.Names, "names", "", "Comma-separated tag names")
	fs.BoolVar(&cmd.Common, "common", false, "Only show the tags every book shares")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cmd.Keys = fs.Args()
	if len(cmd.Keys) == 0 {
		fs.Usage()
		return fmt.Errorf("at least one book key is required")
	}
	return nil
}

func (cmd *TagCommand) Run(ctx context.Context) error {
	return cmd.env.with(ctx, func(svc Service) error {
		out := cmd.env.stdout()

		if cmd.Common {
			names, err := svc.CommonTags(cmd.Keys)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, strings.Join(names, ", "))
			return nil
		}

		report, err := svc.TagBooks(ctx, cmd.Keys, splitList(cmd.Names))
		if err != nil {
			return err
		}
		for _, t := range report.Created {
			fmt.Fprintf(out, "🏷️  Created tag %s\n", t.Name)
		}
		fmt.Fprintf(out, "✅ Updated %d of %d books\n", report.Updated, report.Requested)
		if report.Failed > 0 {
			return fmt.Errorf("%d books were not updated: %w", report.Failed, report.Errors)
		}
		if report.Errors != nil {
			fmt.Fprintf(out, "⚠️  %v\n", report.Errors)
		}
		return nil
	})
}
