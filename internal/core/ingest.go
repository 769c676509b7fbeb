package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/csvshare/internal/metrics"
	"github.com/JonMunkholm/csvshare/internal/store"
)

// DefaultBatchSize is the number of cells written per CreateCells call.
const DefaultBatchSize = 1000

// minReadBuffer is the smallest buffer handed to the upload reader.
const minReadBuffer = 4096

// ingester turns a CSV stream into a stored file.
type ingester struct {
	batchSize  int
	sniffBytes int
	maxSize    int64
}

type ingestResult struct {
	FileID  uuid.UUID
	Columns []string
	Rows    int
	Cells   int
	Bytes   int64
}

// ingest parses r and writes the file and its cells through tx. The parser
// and the cell writer run as two goroutines joined by an errgroup; the
// first failure stops both. The caller owns tx and must roll it back when
// an error is returned.
func (in ingester) ingest(ctx context.Context, tx store.Tx, ownerID uuid.UUID, filename string, r io.Reader) (ingestResult, error) {
	sniffBytes := in.sniffBytes
	if sniffBytes <= 0 {
		sniffBytes = DefaultSniffBytes
	}
	batchSize := in.batchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	ur, err := newUploadReader(r, in.maxSize, max(sniffBytes, minReadBuffer))
	if err != nil {
		return ingestResult{}, err
	}

	sample, err := ur.Peek(sniffBytes)
	complete := errors.Is(err, io.EOF)
	if err != nil && !complete {
		return ingestResult{}, err
	}
	delim, err := sniffDelimiter(sample, complete)
	if err != nil {
		return ingestResult{}, err
	}

	cr := csv.NewReader(ur)
	cr.Comma = delim
	cr.FieldsPerRecord = 0

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return ingestResult{}, &FormatError{Reason: "empty file"}
	}
	if err != nil {
		return ingestResult{}, csvError(err)
	}
	if err := validateHeader(header); err != nil {
		return ingestResult{}, err
	}
	columns := append([]string(nil), header...)

	file, err := tx.CreateFile(ctx, filename, ownerID, strings.Join(columns, ","))
	if err != nil {
		return ingestResult{}, fmt.Errorf("create file: %w", err)
	}

	res := ingestResult{FileID: file.ID, Columns: columns}
	batches := make(chan []store.Cell, 2)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(batches)
		batch := make([]store.Cell, 0, batchSize)
		for row := 0; ; row++ {
			rec, err := cr.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return csvError(err)
			}
			for i, col := range columns {
				batch = append(batch, store.Cell{FileID: file.ID, ColumnName: col, RowNumber: row, Value: rec[i]})
			}
			res.Rows++

			if len(batch) >= batchSize {
				select {
				case batches <- batch:
				case <-gctx.Done():
					return gctx.Err()
				}
				batch = make([]store.Cell, 0, batchSize)
			}
		}
		if len(batch) > 0 {
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for batch := range batches {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := tx.CreateCells(gctx, batch); err != nil {
				return fmt.Errorf("write cells: %w", err)
			}
			res.Cells += len(batch)
			metrics.UploadCells.Add(float64(len(batch)))
		}
		return nil
	})

	err = g.Wait()
	res.Bytes = ur.BytesRead()
	if err != nil {
		return res, err
	}
	return res, nil
}

// validateHeader enforces a usable schema: at least one column and unique,
// non-empty names without commas, since names are stored comma-joined.
func validateHeader(header []string) error {
	if len(header) == 0 {
		return &FormatError{Line: 1, Reason: "header has no columns"}
	}
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		switch {
		case name == "":
			return formatErrorf(1, "column %d has an empty name", i+1)
		case strings.Contains(name, ","):
			return formatErrorf(1, "column name %q contains a comma", name)
		case seen[name]:
			return formatErrorf(1, "duplicate column name %q", name)
		}
		seen[name] = true
	}
	return nil
}

// csvError turns encoding/csv parse errors into FormatErrors. Read errors
// from the source, such as ErrFileTooLarge, pass through unchanged.
func csvError(err error) error {
	var pe *csv.ParseError
	if !errors.As(err, &pe) {
		return err
	}
	if errors.Is(pe.Err, csv.ErrFieldCount) {
		return formatErrorf(pe.StartLine, "wrong number of fields")
	}
	return formatErrorf(pe.StartLine, "%v", pe.Err)
}
