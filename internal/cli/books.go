package cli

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/mrlokans/shelfscan/internal/entities"
)

// BooksCommand lists the collection.
type BooksCommand struct {
	env  Env
	Tags string
	JSON bool
}

func NewBooksCommand(env Env) *BooksCommand {
	return &BooksCommand{env: env}
}

func (cmd *BooksCommand) ParseFlags(args []string) error {
	fs := newFlagSet("books", "[options]", "List the books in the collection.",
		"books",
		"books -tags 12,34",
		"books -json",
	)
	fs.StringVar(&cmd.Tags, "tags", "", "Only books carrying all of these comma-separated tag ids")
	fs.BoolVar(&cmd.JSON, "json", false, "Print JSON")
	return fs.Parse(args)
}

func (cmd *BooksCommand) Run(ctx context.Context) error {
	return cmd.env.with(ctx, func(svc Service) error {
		books := svc.Books()
		if ids := splitList(cmd.Tags); len(ids) > 0 {
			var err error
			if books, err = svc.FilterByTags(ctx, ids); err != nil {
				return err
			}
		}

		out := cmd.env.stdout()
		if cmd.JSON {
			if books == nil {
				books = []entities.Book{}
			}
			return writeJSON(out, books)
		}

		tw := newTable(out)
		fmt.Fprintln(tw, "KEY\tTITLE\tISBN\tTAGS")
		for _, b := range books {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Key(), describeBook(b), b.ISBN13, strings.Join(b.TagNames(), ", "))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%d books\n", len(books))
		return nil
	})
}

// AddCommand adds books by ISBN, or one book by title.
type AddCommand struct {
	env    Env
	Title  string
	Author string
	ISBNs  []string
}

func NewAddCommand(env Env) *AddCommand {
	return &AddCommand{env: env}
}

func (cmd *AddCommand) ParseFlags(args []string) error {
	fs := newFlagSet("add", "[options] <isbn>...",
		"Add books by ISBN-13 or ISBN-10. With -title a book is created by hand.",
		"add 9780134190440 0-306-40615-2",
		"add -title \"Club zine #4\" -author \"Various\"",
	)
	fs.StringVar(&cmd.Title, "title", "", "Create a book with this title instead of looking one up")
	fs.StringVar(&cmd.Author, "author", "", "Author for -title")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cmd.ISBNs = fs.Args()
	if cmd.Title == "" && len(cmd.ISBNs) == 0 {
		fs.Usage()
		return fmt.Errorf("at least one ISBN or -title is required")
	}
	return nil
}

func (cmd *AddCommand) Run(ctx context.Context) error {
	return cmd.env.with(ctx, func(svc Service) error {
		out := cmd.env.stdout()

		if cmd.Title != "" {
			nb := entities.NewBook{Title: cmd.Title, Author: cmd.Author}
			if len(cmd.ISBNs) > 0 {
				nb.ISBN = cmd.ISBNs[0]
			}
			book, err := svc.CreateBook(ctx, nb)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "✅ Created %s (%s)\n", describeBook(book), book.Key())
			return nil
		}

		var errs error
		for _, raw := range cmd.ISBNs {
			book, err := svc.AddBook(ctx, raw)
			if err != nil {
				fmt.Fprintf(out, "❌ %s: %v\n", raw, err)
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", raw, err))
				continue
			}
			fmt.Fprintf(out, "✅ Added %s (%s)\n", describeBook(book), book.Key())
		}
		return errs
	})
}

// RemoveCommand deletes books.
type RemoveCommand struct {
	env  Env
	Keys []string
}

func NewRemoveCommand(env Env) *RemoveCommand {
	return &RemoveCommand{env: env}
}

func (cmd *RemoveCommand) ParseFlags(args []string) error {
	fs := newFlagSet("remove", "<key>...",
		"Remove books. A key is id:<id>, isbn:<isbn13> or a bare id or ISBN.",
		"remove 9780134190440",
		"remove id:42 id:43",
	)
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

func (cmd *RemoveCommand) Run(ctx context.Context) error {
	return cmd.env.with(ctx, func(svc Service) error {
		var errs error
		for _, key := range cmd.Keys {
			if err := svc.RemoveBook(ctx, key); err != nil {
				fmt.Fprintf(cmd.env.stdout(), "❌ %s: %v\n", key, err)
				errs = multierr.Append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			fmt.Fprintf(cmd.env.stdout(), "🗑️  Removed %s\n", key)
		}
		return errs
	})
}
