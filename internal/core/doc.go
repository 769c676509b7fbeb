// Package core provides the business logic of the CSV sharing service.
//
// This package holds all domain logic independent of the transport layer.
// The HTTP handlers in internal/web use it, and so do tests, without
// modification.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Service: the entry point for every operation (accounts, uploads,
//     table reads, grants). Each call runs in its own store transaction.
//   - Access control: [Service] checks the caller owns the file, or for
//     reads holds a grant, before touching its cells.
//   - Ingest: uploads are streamed, sniffed for a ',' or ';' delimiter,
//     parsed with encoding/csv and written as cells in batches.
//   - Queries: "filter,direction" pairs keyed by column name become a
//     [TableQuery] of substring filters and a composite sort.
//
// # Streaming Upload
//
// Uploads use O(batch_size) memory regardless of file size. The flow is:
//
//  1. Client calls [Service.UploadFile] with an io.Reader
//  2. The reader is wrapped with size limiting, UTF-8 sanitization and BOM skipping
//  3. The first bytes are sampled to pick the delimiter
//  4. One goroutine parses rows into cell batches, another writes them
//  5. Any failure rolls the transaction back, leaving no partial file
//
// Concurrent uploads are bounded by an [UploadLimiter].
//
// # Error Handling
//
// Domain errors are sentinels matched with errors.Is. Technical errors are
// mapped to user-friendly messages using [MapError]. Each category has a
// code for support reference:
//
//   - AUTH001-AUTH005: account and token errors
//   - FILE001-FILE005: upload and lookup errors
//   - ACC001-ACC003: access control errors
//   - UPL002-UPL005: upload capacity, cancellation and timeouts
package core
