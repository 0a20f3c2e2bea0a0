package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"
)

// A runner is the execution context an import attempt parses in. The primary
// attempt uses inlineRunner; after a stall the import restarts once on
// isolatedRunner, whose parser runs decoupled from the write path with its
// own read state.
type runner interface {
	// run parses r as delimited text, invoking header once and then row for
	// each data record, in order. It returns ctx's error when cancelled and
	// a *ParseError for malformed input.
	run(ctx context.Context, r io.Reader, opts Options, header, row func([]string) error) error
}

func newCSVReader(r io.Reader, opts Options) *csv.Reader {
	cr := csv.NewReader(bufio.NewReaderSize(r, opts.ChunkSizeBytes))
	cr.Comma = opts.Comma
	cr.FieldsPerRecord = -1 // ragged rows are padded by the batcher
	cr.ReuseRecord = false
	return cr
}

// inlineRunner parses and writes on the calling goroutine. Batch writes
// block the parser directly, which is the backpressure protocol: the source
// is not read further until the store acknowledged the batch.
type inlineRunner struct{}

func (inlineRunner) run(ctx context.Context, r io.Reader, opts Options, header, row func([]string) error) error {
	cr := newCSVReader(r, opts)

	first := true
	for {
		if err := context.Cause(ctx); err != nil {
			return err
		}

		record, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &ParseError{cause: err}
		}

		cb := row
		if first {
			cb, first = header, false
		}
		if err := cb(record); err != nil {
			return err
		}
	}
}

// isolatedRunner parses on a dedicated goroutine with its own read buffer,
// handing records to the write path over an unbuffered channel. The handoff
// is credit-based backpressure: the parser cannot outrun the writer by more
// than one record, and the parser's state is fully isolated from the attempt
// that stalled.
type isolatedRunner struct{}

func (isolatedRunner) run(ctx context.Context, r io.Reader, opts Options, header, row func([]string) error) error {
	records := make(chan []string)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(records)
		cr := newCSVReader(r, opts)
		for {
			record, err := cr.Read()
			if err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				return &ParseError{cause: err}
			}
			select {
			case records <- record:
			case <-gctx.Done():
				return context.Cause(ctx)
			}
		}
	})

	g.Go(func() error {
		first := true
		for record := range records {
			if err := context.Cause(ctx); err != nil {
				return err
			}
			cb := row
			if first {
				cb, first = header, false
			}
			if err := cb(record); err != nil {
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return context.Cause(ctx)
}
