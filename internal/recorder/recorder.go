// Package recorder persists logo metadata through the data API. Three tables
// are involved: logos keyed by content hash, logo_files keyed by object key,
// and the read-only logo_master mapping from ticker codes to canonical
// hashes.
package recorder

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/finbrand/logo-crawler/internal/logo"
	"github.com/finbrand/logo-crawler/internal/metaapi"
)

const (
	tableLogos      = "logos"
	tableLogoFiles  = "logo_files"
	tableLogoMaster = "logo_master"
)

type dataAPI interface {
	Query(ctx context.Context, table string, params map[string]string) (metaapi.Envelope, error)
	Upsert(ctx context.Context, table string, data metaapi.Row, conflictColumns ...string) (metaapi.Row, error)
}

// LogoRecord is the logos row subset the service cares about.
type LogoRecord struct {
	ID      int64
	Hash    string
	Deleted bool
}

// Recorder implements logo.Recorder on top of the data API.
type Recorder struct {
	api    dataAPI
	logger *zap.Logger
}

// New builds a Recorder.
func New(api dataAPI, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{api: api, logger: logger}
}

// UpsertLogo ensures a logos row exists for the hash and returns its id. The
// upsert also clears the soft-delete flag, so re-acquiring or manually
// re-uploading a removed logo reactivates it.
func (r *Recorder) UpsertLogo(ctx context.Context, logoHash string) (int64, error) {
	row, err := r.api.Upsert(ctx, tableLogos, metaapi.Row{
		"logo_hash":  logoHash,
		"is_deleted": false,
	}, "logo_hash")
	if err != nil {
		return 0, fmt.Errorf("upsert logo %s: %w", logoHash, err)
	}
	id, ok := row.Int("logo_id")
	if !ok {
		return 0, fmt.Errorf("upsert logo %s: response has no logo_id", logoHash)
	}
	return id, nil
}

// UpsertArtifact writes one logo_files row. The object key is the unique
// key, so repeated acquisitions of the same ticker update in place.
func (r *Recorder) UpsertArtifact(ctx context.Context, logoID int64, artifact logo.Artifact) error {
	uploadType := "crawled"
	if artifact.Source == logo.SourceManual {
		uploadType = "manual"
	}
	data := metaapi.Row{
		"logo_id":          logoID,
		"minio_object_key": artifact.ObjectKey,
		"file_format":      artifact.Format,
		"file_size":        artifact.SizeBytes,
		"is_original":      artifact.IsOriginal,
		"data_source":      string(artifact.Source),
		"upload_type":      uploadType,
	}
	if artifact.Width != nil {
		data["dimension_width"] = *artifact.Width
	}
	if artifact.Height != nil {
		data["dimension_height"] = *artifact.Height
	}
	if _, err := r.api.Upsert(ctx, tableLogoFiles, data, "minio_object_key"); err != nil {
		return fmt.Errorf("upsert artifact %s: %w", artifact.ObjectKey, err)
	}
	return nil
}

// MasterHash resolves the canonical hash for an infomax code from
// logo_master. Returns logo.ErrNotFound when no master row exists.
func (r *Recorder) MasterHash(ctx context.Context, infomaxCode string) (string, error) {
	env, err := r.api.Query(ctx, tableLogoMaster, map[string]string{
		"search_column": "infomax_code",
		"search":        infomaxCode,
		"limit":         "1",
	})
	if err != nil {
		return "", fmt.Errorf("query logo_master for %s: %w", infomaxCode, err)
	}
	if len(env.Data) == 0 {
		return "", logo.ErrNotFound
	}
	hash, ok := env.Data[0].String("logo_hash")
	if !ok || hash == "" {
		return "", logo.ErrNotFound
	}
	return hash, nil
}

// Logo looks up one logos row by hash. Returns logo.ErrNotFound when the
// hash is unknown.
func (r *Recorder) Logo(ctx context.Context, logoHash string) (LogoRecord, error) {
	env, err := r.api.Query(ctx, tableLogos, map[string]string{
		"search_column": "logo_hash",
		"search":        logoHash,
		"limit":         "1",
	})
	if err != nil {
		return LogoRecord{}, fmt.Errorf("query logo %s: %w", logoHash, err)
	}
	if len(env.Data) == 0 {
		return LogoRecord{}, logo.ErrNotFound
	}
	row := env.Data[0]
	id, _ := row.Int("logo_id")
	deleted, _ := row.Bool("is_deleted")
	return LogoRecord{ID: id, Hash: logoHash, Deleted: deleted}, nil
}

// Artifacts lists the logo_files rows for a logo id.
func (r *Recorder) Artifacts(ctx context.Context, logoID int64) ([]logo.Artifact, error) {
	env, err := r.api.Query(ctx, tableLogoFiles, map[string]string{
		"search_column": "logo_id",
		"search":        strconv.FormatInt(logoID, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("query artifacts for logo %d: %w", logoID, err)
	}
	artifacts := make([]logo.Artifact, 0, len(env.Data))
	for _, row := range env.Data {
		artifact := logo.Artifact{}
		artifact.ObjectKey, _ = row.String("minio_object_key")
		artifact.Format, _ = row.String("file_format")
		if w, ok := row.Int("dimension_width"); ok {
			width := int(w)
			artifact.Width = &width
		}
		if h, ok := row.Int("dimension_height"); ok {
			height := int(h)
			artifact.Height = &height
		}
		if size, ok := row.Int("file_size"); ok {
			artifact.SizeBytes = int(size)
		}
		artifact.IsOriginal, _ = row.Bool("is_original")
		if src, ok := row.String("data_source"); ok {
			artifact.Source = logo.Source(src)
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

// SoftDelete marks a logos row deleted without touching its files.
func (r *Recorder) SoftDelete(ctx context.Context, logoHash string) error {
	record, err := r.Logo(ctx, logoHash)
	if err != nil {
		return err
	}
	if _, err := r.api.Upsert(ctx, tableLogos, metaapi.Row{
		"logo_id":    record.ID,
		"logo_hash":  logoHash,
		"is_deleted": true,
	}, "logo_hash"); err != nil {
		return fmt.Errorf("soft delete logo %s: %w", logoHash, err)
	}
	return nil
}

var _ logo.Recorder = (*Recorder)(nil)
