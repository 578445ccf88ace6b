package library

import (
	"context"
	"errors"

	"github.com/mrlokans/shelfscan/internal/entities"
	"github.com/mrlokans/shelfscan/internal/metadata"
	"github.com/mrlokans/shelfscan/internal/tagging"
	"github.com/mrlokans/shelfscan/internal/workers"
)

// ScanResult is what became of one decoded barcode.
type ScanResult struct {
	Barcode string               `json:"barcode"`
	Outcome entities.ScanOutcome `json:"outcome"`
	Book    *entities.Book       `json:"book,omitempty"`
	Tagging *tagging.Report      `json:"tagging,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// Scan feeds one decoded barcode through the pipeline: checksum and
// duplicate filtering, adding the book on the server, optional auto-tagging
// and display metadata. Rejected barcodes are an outcome, not an error; the
// returned error is the add failure, if any.
//
// If ctx ends while the add is in flight the scan is reported as admitted;
// the book still lands in the mirror when the server answers.
func (l *Library) Scan(ctx context.Context, raw string) (ScanResult, error) {
	res := ScanResult{Barcode: raw}

	if !l.dedup.Admit(raw) {
		res.Outcome = entities.ScanOutcomeInvalid
		if l.dedup.Seen(raw) {
			res.Outcome = entities.ScanOutcomeDuplicate
		}
		l.record(ctx, res)
		return res, nil
	}

	book, err := workers.Await(ctx, l.collection.Add(ctx, raw))
	switch {
	case err != nil && ctx.Err() != nil:
		res.Outcome = entities.ScanOutcomeAdmitted
		l.record(context.WithoutCancel(ctx), res)
		return res, err
	case err != nil:
		res.Outcome = entities.ScanOutcomeFailed
		res.Error = err.Error()
		l.logger.Warn("scanned book could not be added", "isbn", raw, "error", err)
		l.record(ctx, res)
		return res, err
	}

	res.Outcome = entities.ScanOutcomeAdded
	if len(l.autoTags) > 0 {
		report, err := l.tagger.Apply(ctx, []entities.Book{book}, mergeNames(book.TagNames(), l.autoTags))
		if err != nil {
			l.logger.Warn("auto-tagging failed", "isbn", raw, "error", err)
		} else {
			res.Tagging = &report
			if updated, ok := l.collection.Find(book.Key()); ok {
				book = updated
			}
		}
	}

	book = l.decorate(ctx, book)
	res.Book = &book
	l.record(ctx, res)
	l.logger.Info("book added from scan", "isbn", raw, "book_id", book.ID, "title", book.Title)
	return res, nil
}

// ResetScans starts a new scanning session. Books already in the collection
// keep counting as duplicates.
func (l *Library) ResetScans() {
	l.dedup.Reset()
	l.seedScanner()
}

// decorate fills a missing title or cover from public metadata. The server
// copy is left alone.
func (l *Library) decorate(ctx context.Context, book entities.Book) entities.Book {
	if l.lookup == nil || (book.Title != "" && book.Thumbnail != "") {
		return book
	}
	meta, err := l.lookup.LookupISBN(ctx, book.ISBN13)
	if err != nil {
		if !errors.Is(err, metadata.ErrNotFound) {
			l.logger.Debug("metadata lookup failed", "isbn", book.ISBN13, "error", err)
		}
		return book
	}
	return metadata.Fill(book, meta)
}

func (l *Library) record(ctx context.Context, res ScanResult) {
	if l.history == nil {
		return
	}
	rec := entities.ScanRecord{
		Barcode: res.Barcode,
		Outcome: res.Outcome,
		Error:   res.Error,
	}
	if res.Book != nil {
		rec.BookID = res.Book.ID
		rec.Title = res.Book.Title
	}
	if err := l.history.Record(ctx, rec); err != nil {
		l.logger.Warn("failed to record scan", "barcode", res.Barcode, "error", err)
	}
}

// mergeNames appends extra to names, skipping names already present
// ignoring case.
func mergeNames(names, extra []string) []string {
	out := append([]string(nil), names...)
	for _, name := range extra {
		dup := false
		for _, have := range out {
			if entities.SameTagName(have, name) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, name)
		}
	}
	return out
}
