// Package rowgrid provides an embedded row store for browsing large
// delimited text files through a virtualized grid.
//
// Rowgrid streams a delimited file into a durable local store in bounded
// batches, then serves a scrollable viewport from a windowed row cache that
// fetches only the rows the grid currently needs.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := rowgrid.Open("./data")
//	defer db.Close()
//
//	// Import replaces the store's contents with the file's rows.
//	err := db.Import(ctx, ingest.FileSource("huge.csv"),
//	    ingest.WithProgress(func(rows uint64) { fmt.Println(rows) }),
//	)
//
//	// A Window serves a virtualized grid over the imported rows.
//	w, _ := db.Window(ctx)
//	_ = w.SetViewport(ctx, 0, 40)
//	row, ok := w.Get(3)
//
// # Key Features
//
//   - Chunked streaming parse with bounded batch writes and backpressure
//   - Cooperative cancellation and a one-shot stall fallback
//   - Write-ahead log plus compressed snapshots for durability
//   - Windowed cache with prefetch, capped retention, and last-request-wins
//     fetch supersession
//   - Optimistic row edits with exact-snapshot rollback on write failure
//   - Pluggable row sources: local files, in-memory buffers, S3 and MinIO
//     blob stores
package rowgrid
