// Package cli implements the shelfscan sub-commands other than serve.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/library"
	"github.com/mrlokans/shelfscan/internal/metadata"
	"github.com/mrlokans/shelfscan/internal/tagging"
)

// Service is the part of *library.Library the commands use.
type Service interface {
	SignIn(ctx context.Context, assertion string) (entities.Session, error)
	SignInSilently(ctx context.Context) (entities.Session, error)
	SignOut(ctx context.Context) error
	Profile(ctx context.Context) (entities.Session, bool)

	Books() []entities.Book
	FilterByTags(ctx context.Context, tagIDs []string) ([]entities.Book, error)
	AddBook(ctx context.Context, raw string) (entities.Book, error)
	CreateBook(ctx context.Context, nb entities.NewBook) (entities.Book, error)
	RemoveBook(ctx context.Context, key string) error

	Scan(ctx context.Context, raw string) (library.ScanResult, error)
	History(ctx context.Context, limit int) ([]entities.ScanRecord, error)
	HistorySummary(ctx context.Context) (map[entities.ScanOutcome]int64, error)

	Tags() []entities.Tag
	TagBooks(ctx context.Context, keys, names []string) (tagging.Report, error)
	CommonTags(keys []string) ([]string, error)

	Preferences(ctx context.Context) (entities.UserPreference, error)
	UpdatePreferences(ctx context.Context, tagIDs []string) (entities.UserPreference, error)

	Lookup(ctx context.Context, raw string) (*metadata.BookMetadata, error)
}

var _ Service = (*library.Library)(nil)

// Opener builds a started Service for one command. The returned func
// releases it.
type Opener func(ctx context.Context) (Service, func(), error)

// Env is what every command runs against.
type Env struct {
	Open Opener
	In   io.Reader
	Out  io.Writer
}

// Command is one sub-command.
type Command interface {
	ParseFlags(args []string) error
	Run(ctx context.Context) error
}

func (e Env) stdout() io.Writer {
	if e.Out == nil {
		return os.Stdout
	}
	return e.Out
}

func (e Env) stdin() io.Reader {
	if e.In == nil {
		return os.Stdin
	}
	return e.In
}

// with opens the service, runs fn and releases the service.
func (e Env) with(ctx context.Context, fn func(svc Service) error) error {
	svc, release, err := e.Open(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(svc)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// splitList splits comma-separated flag values, dropping blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func describeBook(b entities.Book) string {
	title := b.Title
	if title == "" {
		title = "(untitled)"
	}
	if b.Author != "" {
		return fmt.Sprintf("%s by %s", title, b.Author)
	}
	return title
}

// newFlagSet creates a flag set whose usage text follows the shared layout.
func newFlagSet(name, args, summary string, examples ...string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s %s %s\n\n", os.Args[0], name, args)
		fmt.Fprintf(os.Stderr, "%s\n\n", summary)
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		if len(examples) > 0 {
			fmt.Fprintf(os.Stderr, "\nExamples:\n")
			for _, ex := range examples {
				fmt.Fprintf(os.Stderr, "  %s %s\n", os.Args[0], ex)
			}
		}
	}
	return fs
}
