package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/finbrand/logo-crawler/internal/logo"
	"github.com/finbrand/logo-crawler/internal/queue"
	"github.com/finbrand/logo-crawler/internal/recorder"
)

const maxUploadBytes = 10 << 20

type acquireRequest struct {
	InfomaxCode string `json:"infomax_code"`
	Ticker      string `json:"ticker"`
	APIDomain   string `json:"api_domain"`
}

type batchRequest struct {
	JobID   string           `json:"job_id"`
	Targets []acquireRequest `json:"targets"`
}

type acquireResponse struct {
	Succeeded bool            `json:"succeeded"`
	Source    logo.Source     `json:"source,omitempty"`
	LogoHash  string          `json:"logo_hash,omitempty"`
	Artifacts []logo.Artifact `json:"artifacts,omitempty"`
	Error     string          `json:"error,omitempty"`
}

func (req acquireRequest) target() logo.Target {
	return logo.Target{
		InfomaxCode: req.InfomaxCode,
		Ticker:      req.Ticker,
		APIDomain:   req.APIDomain,
	}
}

func (s *Server) acquireLogo(w http.ResponseWriter, r *http.Request) {
	var req acquireRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.InfomaxCode == "" {
		s.writeError(w, http.StatusBadRequest, "infomax_code is required")
		return
	}

	res := s.acquirer.AcquireOne(r.Context(), req.target())
	resp := acquireResponse{
		Succeeded: res.Succeeded,
		Source:    res.Source,
		LogoHash:  res.LogoHash,
		Artifacts: res.Artifacts,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	if !res.Succeeded {
		status := http.StatusBadGateway
		if errors.Is(res.Err, logo.ErrAllSourcesFailed) {
			status = http.StatusNotFound
		}
		s.writeJSON(w, status, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) submitBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(req.Targets) == 0 {
		s.writeError(w, http.StatusBadRequest, "at least one target required")
		return
	}
	targets := make([]logo.Target, 0, len(req.Targets))
	for _, t := range req.Targets {
		if t.InfomaxCode == "" {
			s.writeError(w, http.StatusBadRequest, "every target needs an infomax_code")
			return
		}
		targets = append(targets, t.target())
	}

	jobID := req.JobID
	if jobID == "" {
		var err error
		jobID, err = s.idGen.NewID()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("generate job id: %v", err))
			return
		}
	}

	// Seed the record so status polls resolve before a worker picks the
	// batch up; the worker overwrites it as soon as it starts.
	job := logo.Job{
		ID:      jobID,
		Status:  logo.JobStatusRunning,
		Total:   len(targets),
		Errors:  []string{},
		Started: s.clock.Now(),
	}
	if err := s.jobs.CreateJob(r.Context(), job); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("create job: %v", err))
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.dispatcher.Enqueue(queueCtx, queue.Item{JobID: jobID, Targets: targets}); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("enqueue batch: %v", err))
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

func (s *Server) getLogo(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "infomax_code")
	record, err := s.findLogo(r.Context(), code)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "logo not found")
		return
	}
	artifacts, err := s.directory.Artifacts(r.Context(), record.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "artifact lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"infomax_code": code,
		"logo_hash":    record.Hash,
		"artifacts":    artifacts,
	})
}

func (s *Server) uploadLogo(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "infomax_code")
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read upload failed")
		return
	}
	if len(data) == 0 {
		s.writeError(w, http.StatusBadRequest, "empty upload")
		return
	}
	if len(data) > maxUploadBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
		return
	}

	renditions := s.converter.Convert(data)
	if len(renditions) == 0 {
		s.writeError(w, http.StatusUnprocessableEntity, "could not derive any renditions")
		return
	}

	hash := s.resolveHash(r.Context(), code)
	artifacts, err := s.acquirer.Persist(r.Context(), hash, logo.SourceManual, renditions)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("persist upload: %v", err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"infomax_code": code,
		"logo_hash":    hash,
		"artifacts":    artifacts,
	})
}

func (s *Server) deleteLogo(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "infomax_code")
	record, err := s.findLogo(r.Context(), code)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "logo not found")
		return
	}
	if err := s.directory.SoftDelete(r.Context(), record.Hash); err != nil {
		s.writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"infomax_code": code,
		"logo_hash":    record.Hash,
		"status":       "deleted",
	})
}

// findLogo resolves a ticker code to its active logos row: the master hash
// when one exists, otherwise the derived hash of each source in fetch order.
func (s *Server) findLogo(ctx context.Context, code string) (recorder.LogoRecord, error) {
	var hashes []string
	if master, err := s.directory.MasterHash(ctx, code); err == nil && master != "" {
		hashes = append(hashes, master)
	}
	for _, source := range []logo.Source{logo.SourceWebsite, logo.SourceLogoDev, logo.SourceManual} {
		hashes = append(hashes, logo.DeriveHash(source, code))
	}
	for _, hash := range hashes {
		record, err := s.directory.Logo(ctx, hash)
		if err != nil || record.Deleted {
			continue
		}
		return record, nil
	}
	return recorder.LogoRecord{}, logo.ErrNotFound
}

// resolveHash picks the hash a manual upload lands on: canonical when the
// master table knows the code, derived otherwise.
func (s *Server) resolveHash(ctx context.Context, code string) string {
	if master, err := s.directory.MasterHash(ctx, code); err == nil && master != "" {
		return master
	}
	return logo.DeriveHash(logo.SourceManual, code)
}

func decodeJSON(r *http.Request, dst any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	return json.NewDecoder(r.Body).Decode(dst)
}
