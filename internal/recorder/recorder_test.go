package recorder

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/finbrand/logo-crawler/internal/logo"
	"github.com/finbrand/logo-crawler/internal/metaapi"
)

type upsertCall struct {
	table    string
	data     metaapi.Row
	conflict []string
}

type fakeAPI struct {
	queryEnv  map[string]metaapi.Envelope
	queryErr  error
	upsertRow metaapi.Row
	upsertErr error

	queries []map[string]string
	upserts []upsertCall
}

func (f *fakeAPI) Query(_ context.Context, table string, params map[string]string) (metaapi.Envelope, error) {
	f.queries = append(f.queries, params)
	if f.queryErr != nil {
		return metaapi.Envelope{}, f.queryErr
	}
	return f.queryEnv[table], nil
}

func (f *fakeAPI) Upsert(_ context.Context, table string, data metaapi.Row, conflictColumns ...string) (metaapi.Row, error) {
	f.upserts = append(f.upserts, upsertCall{table: table, data: data, conflict: conflictColumns})
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	return f.upsertRow, nil
}

func TestUpsertLogo(t *testing.T) {
	t.Parallel()

	// The data API names the logos primary key logo_id, not id.
	api := &fakeAPI{upsertRow: metaapi.Row{"logo_id": float64(42), "logo_hash": "abc123"}}
	rec := New(api, nil)

	id, err := rec.UpsertLogo(context.Background(), "abc123")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)

	require.Len(t, api.upserts, 1)
	call := api.upserts[0]
	require.Equal(t, "logos", call.table)
	require.Equal(t, "abc123", call.data["logo_hash"])
	require.Equal(t, false, call.data["is_deleted"], "upsert reactivates soft-deleted logos")
	require.Equal(t, []string{"logo_hash"}, call.conflict)
}

func TestUpsertLogo_MissingID(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{upsertRow: metaapi.Row{"id": float64(42)}}
	_, err := New(api, nil).UpsertLogo(context.Background(), "abc123")
	require.ErrorContains(t, err, "no logo_id")
}

func TestUpsertLogo_DataAPIEnvelope(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/schemas/raw_data/tables/logos/upsert", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"logo_id":42,"logo_hash":"abc123","is_deleted":false}}`))
	}))
	defer srv.Close()

	client := metaapi.New(metaapi.Config{BaseURL: srv.URL}, nil)
	id, err := New(client, nil).UpsertLogo(context.Background(), "abc123")
	require.NoError(t, err)
	require.Equal(t, int64(42), id)
}

func TestUpsertArtifact(t *testing.T) {
	t.Parallel()

	width, height := 240, 240
	api := &fakeAPI{upsertRow: metaapi.Row{}}
	rec := New(api, nil)

	err := rec.UpsertArtifact(context.Background(), 7, logo.Artifact{
		ObjectKey:  "abc123_240.png",
		Format:     "png",
		Width:      &width,
		Height:     &height,
		SizeBytes:  1024,
		IsOriginal: false,
		Source:     logo.SourceWebsite,
	})
	require.NoError(t, err)

	call := api.upserts[0]
	require.Equal(t, "logo_files", call.table)
	require.Equal(t, []string{"minio_object_key"}, call.conflict)
	require.Equal(t, "abc123_240.png", call.data["minio_object_key"])
	require.Equal(t, 240, call.data["dimension_width"])
	require.Equal(t, "website", call.data["data_source"])
	require.Equal(t, "crawled", call.data["upload_type"])
}

func TestUpsertArtifact_ManualUploadType(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{upsertRow: metaapi.Row{}}
	err := New(api, nil).UpsertArtifact(context.Background(), 7, logo.Artifact{
		ObjectKey: "abc123_original.svg",
		Format:    "svg",
		Source:    logo.SourceManual,
	})
	require.NoError(t, err)

	call := api.upserts[0]
	require.Equal(t, "manual", call.data["upload_type"])
	require.NotContains(t, call.data, "dimension_width", "vector originals carry no dimensions")
}

func TestMasterHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		env      metaapi.Envelope
		queryErr error
		want     string
		wantErr  error
	}{
		{
			name: "resolved",
			env:  metaapi.Envelope{Data: []metaapi.Row{{"logo_hash": "deadbeef"}}},
			want: "deadbeef",
		},
		{
			name:    "no master row",
			env:     metaapi.Envelope{},
			wantErr: logo.ErrNotFound,
		},
		{
			name:    "empty hash column",
			env:     metaapi.Envelope{Data: []metaapi.Row{{"logo_hash": ""}}},
			wantErr: logo.ErrNotFound,
		},
		{
			name:     "api unreachable",
			queryErr: errors.New("connection refused"),
			wantErr:  nil,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			api := &fakeAPI{
				queryEnv: map[string]metaapi.Envelope{"logo_master": tc.env},
				queryErr: tc.queryErr,
			}
			hash, err := New(api, nil).MasterHash(context.Background(), "ACME")
			if tc.queryErr == nil {
				require.Len(t, api.queries, 1)
				require.Equal(t, "infomax_code", api.queries[0]["search_column"])
				require.Equal(t, "ACME", api.queries[0]["search"])
			}
			if tc.queryErr != nil {
				require.Error(t, err)
				require.NotErrorIs(t, err, logo.ErrNotFound)
				return
			}
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, hash)
		})
	}
}

func TestLogoAndSoftDelete(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		queryEnv: map[string]metaapi.Envelope{
			"logos": {Data: []metaapi.Row{{"logo_id": float64(9), "is_deleted": false}}},
		},
		upsertRow: metaapi.Row{},
	}
	rec := New(api, nil)

	record, err := rec.Logo(context.Background(), "abc123")
	require.NoError(t, err)
	require.Equal(t, LogoRecord{ID: 9, Hash: "abc123"}, record)

	require.Len(t, api.queries, 1)
	require.Equal(t, "logo_hash", api.queries[0]["search_column"])
	require.Equal(t, "abc123", api.queries[0]["search"])

	require.NoError(t, rec.SoftDelete(context.Background(), "abc123"))
	require.Len(t, api.upserts, 1)
	require.Equal(t, true, api.upserts[0].data["is_deleted"])
	require.Equal(t, int64(9), api.upserts[0].data["logo_id"])
}

func TestLogo_NotFound(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{queryEnv: map[string]metaapi.Envelope{}}
	_, err := New(api, nil).Logo(context.Background(), "missing")
	require.ErrorIs(t, err, logo.ErrNotFound)
}

func TestArtifacts(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		queryEnv: map[string]metaapi.Envelope{
			"logo_files": {Data: []metaapi.Row{
				{
					"minio_object_key": "abc_240.png",
					"file_format":      "png",
					"dimension_width":  float64(240),
					"dimension_height": float64(240),
					"file_size":        float64(2048),
					"is_original":      false,
					"data_source":      "website",
				},
				{
					"minio_object_key": "abc_original.svg",
					"file_format":      "svg",
					"is_original":      true,
					"data_source":      "website",
				},
			}},
		},
	}
	artifacts, err := New(api, nil).Artifacts(context.Background(), 9)
	require.NoError(t, err)
	require.Len(t, api.queries, 1)
	require.Equal(t, "logo_id", api.queries[0]["search_column"])
	require.Equal(t, "9", api.queries[0]["search"])
	require.Len(t, artifacts, 2)
	require.Equal(t, "abc_240.png", artifacts[0].ObjectKey)
	require.NotNil(t, artifacts[0].Width)
	require.Equal(t, 240, *artifacts[0].Width)
	require.True(t, artifacts[1].IsOriginal)
	require.Nil(t, artifacts[1].Width)
}
