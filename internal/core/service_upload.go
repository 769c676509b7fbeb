package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvshare/internal/logging"
	"github.com/JonMunkholm/csvshare/internal/metrics"
	"github.com/JonMunkholm/csvshare/internal/store"
)

// Upload outcomes recorded in metrics.UploadsTotal.
const (
	uploadOK       = "ok"
	uploadInvalid  = "invalid"
	uploadTooLarge = "too_large"
	uploadBusy     = "busy"
	uploadFailed   = "failed"
)

// UploadFile parses r as a CSV table owned by ownerID and stores it in a
// single transaction. size is the declared length, or -1 when unknown;
// a declared size over the limit fails before anything is read.
//
// Returns ErrTooManyUploads if the concurrent upload limit is reached and
// no slot becomes available within the wait period.
func (s *Service) UploadFile(ctx context.Context, ownerID uuid.UUID, filename string, r io.Reader, size int64) (uuid.UUID, error) {
	if limit := s.ingest.maxSize; limit > 0 && size > limit {
		metrics.UploadsTotal.WithLabelValues(uploadTooLarge).Inc()
		return uuid.Nil, fmt.Errorf("%w: %d bytes exceeds maximum of %d bytes", ErrFileTooLarge, size, limit)
	}

	if err := s.uploadLimiter.Acquire(ctx); err != nil {
		if errors.Is(err, ErrTooManyUploads) {
			metrics.UploadsTotal.WithLabelValues(uploadBusy).Inc()
		}
		return uuid.Nil, err
	}
	defer s.uploadLimiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.uploadTimeout)
	defer cancel()

	logger := logging.WithFields(ctx, "owner_id", ownerID, "filename", filename)
	start := time.Now()

	var res ingestResult
	err := s.inTx(ctx, func(tx store.Tx) error {
		var err error
		res, err = s.ingest.ingest(ctx, tx, ownerID, filename, r)
		return err
	})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(uploadOutcome(err)).Inc()
		logger.Warn("upload failed", "error", err, "bytes", res.Bytes, "duration", time.Since(start))
		if errors.Is(err, ErrFormatValidation) || errors.Is(err, ErrFileTooLarge) {
			return uuid.Nil, err
		}
		return uuid.Nil, storeError("upload", err)
	}

	metrics.UploadsTotal.WithLabelValues(uploadOK).Inc()
	metrics.UploadRows.Add(float64(res.Rows))
	metrics.UploadBytes.Add(float64(res.Bytes))
	logger.Info("upload completed",
		"file_id", res.FileID,
		"columns", len(res.Columns),
		"rows", res.Rows,
		"cells", res.Cells,
		"bytes", res.Bytes,
		"duration", time.Since(start),
	)
	return res.FileID, nil
}

func uploadOutcome(err error) string {
	switch {
	case errors.Is(err, ErrFormatValidation):
		return uploadInvalid
	case errors.Is(err, ErrFileTooLarge):
		return uploadTooLarge
	default:
		return uploadFailed
	}
}
