package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/gyeh/hdprod/internal/normalize"
	"github.com/gyeh/hdprod/internal/parquetread"
	embedsql "github.com/gyeh/hdprod/internal/sql"
)

// Import kinds, as stored in ingest.imports.kind.
const (
	KindTariff = "tariff"
	KindLegacy = "legacy"
)

// Import statuses.
const (
	StatusPending      = "pending"
	StatusStaging      = "staging"
	StatusStaged       = "staged"
	StatusTransforming = "transforming"
	StatusDone         = "done"
	StatusFailed       = "failed"
)

// PreflightResult holds all context resolved during the preflight phase.
type PreflightResult struct {
	Kind string
	// FilePath is the original path passed to Preflight, stored as-is.
	FilePath string
	// FileSHA256 is the hex-encoded SHA-256 digest of the file, computed by normalize.FileHash.
	FileSHA256 string
	FileSize   int64
	// ImportID is the ingest.imports row of this file, inserted or looked up
	// via (kind, sha256).
	ImportID int64
	// ImportBatchID tags the staged rows of this run for transform and cleanup.
	ImportBatchID uuid.UUID
	// NumRows is the total row count reported by the Parquet file metadata.
	NumRows int64
	// AlreadyLoaded is true when the same file already finished importing and
	// force mode is off.
	AlreadyLoaded bool
}

// Preflight hashes the file, checks that it is a Parquet file carrying the
// required columns of T and registers it as an import of kind.
func Preflight[T any](ctx context.Context, pool *pgxpool.Pool, log zerolog.Logger, kind, filePath string, required []string, force bool) (*PreflightResult, error) {
	start := time.Now()

	sha, err := normalize.FileHash(filePath)
	if err != nil {
		return nil, fmt.Errorf("preflight hash: %w", err)
	}

	stat, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("preflight stat: %w", err)
	}

	reader, err := parquetread.Open[T](filePath)
	if err != nil {
		return nil, fmt.Errorf("preflight open: %w", err)
	}
	defer reader.Close()

	if err := parquetread.ValidateSchema(reader.Schema(), required); err != nil {
		return nil, fmt.Errorf("preflight validate: %w", err)
	}
	numRows := reader.NumRows()

	importID, alreadyLoaded, err := registerImport(ctx, pool, kind, filePath, sha, stat.Size(), force)
	if err != nil {
		return nil, fmt.Errorf("preflight register file: %w", err)
	}

	log.Info().
		Str("kind", kind).
		Str("file", filepath.Base(filePath)).
		Str("sha256", sha).
		Int64("rows", numRows).
		Int64("import_id", importID).
		Dur("duration", time.Since(start)).
		Msg("preflight complete")

	return &PreflightResult{
		Kind:          kind,
		FilePath:      filePath,
		FileSHA256:    sha,
		FileSize:      stat.Size(),
		ImportID:      importID,
		ImportBatchID: uuid.New(),
		NumRows:       numRows,
		AlreadyLoaded: alreadyLoaded,
	}, nil
}

func registerImport(ctx context.Context, pool *pgxpool.Pool, kind, filePath, sha string, size int64, force bool) (int64, bool, error) {
	var id int64
	err := pool.QueryRow(ctx, embedsql.RegisterImport, kind, filepath.Base(filePath), sha, size).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("register import: %w", err)
	}

	// Already registered (ON CONFLICT DO NOTHING returned no rows).
	var status string
	if err := pool.QueryRow(ctx, embedsql.LookupImport, kind, sha).Scan(&id, &status); err != nil {
		return 0, false, fmt.Errorf("lookup existing import: %w", err)
	}
	if !force && status == StatusDone {
		return id, true, nil
	}

	// Reset status for re-import
	if err := UpdateStatus(ctx, pool, id, StatusPending); err != nil {
		return 0, false, fmt.Errorf("reset import status: %w", err)
	}
	return id, false, nil
}

// UpdateStatus sets the status of an import.
func UpdateStatus(ctx context.Context, pool *pgxpool.Pool, importID int64, status string) error {
	_, err := pool.Exec(ctx, embedsql.UpdateImportStatus, importID, status)
	return err
}
