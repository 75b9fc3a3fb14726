package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/vyuha/orbit/internal/ai"
	"github.com/vyuha/orbit/internal/extract"
)

const maxUploadMemory = 32 << 20

// ---------------------------------------------------------------------------
// POST /api/analyze (multipart "file" / "files")
// ---------------------------------------------------------------------------

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if s.jobQueue == nil {
		writeError(w, http.StatusServiceUnavailable, "AI_NOT_CONFIGURED",
			"AI job queue is not configured (no AI provider set)")
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM",
			"expected multipart/form-data: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	var headers []*multipart.FileHeader
	headers = append(headers, r.MultipartForm.File["file"]...)
	headers = append(headers, r.MultipartForm.File["files"]...)
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "NO_FILES", "No files provided")
		return
	}

	params := ai.AnalyzeFilesParams{Files: make([]ai.FileText, 0, len(headers))}
	for _, fh := range headers {
		text, err := readUpload(fh)
		if err != nil {
			if errors.Is(err, extract.ErrUnsupported) {
				writeError(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_FILE", err.Error())
				return
			}
			writeError(w, http.StatusBadRequest, "UNREADABLE_FILE", err.Error())
			return
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		params.Files = append(params.Files, ai.FileText{Name: fh.Filename, Text: text})
	}
	if len(params.Files) == 0 {
		writeError(w, http.StatusBadRequest, "NO_FILES", "No readable text in the uploaded files")
		return
	}

	raw, err := json.Marshal(params)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	jobID, err := s.jobQueue.Enqueue(ai.JobAnalyzeFiles, raw)
	if err != nil {
		if errors.Is(err, ai.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "QUEUE_FULL",
				"analysis queue is full, try again later")
			return
		}
		writeError(w, http.StatusInternalServerError, "ENQUEUE_FAILED", err.Error())
		return
	}

	writeData(w, http.StatusAccepted, map[string]interface{}{
		"job_id": jobID,
		"files":  len(params.Files),
	})
}

func readUpload(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return extract.Text(fh.Filename, data)
}

// ---------------------------------------------------------------------------
// GET /api/analyze/jobs
// ---------------------------------------------------------------------------

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if s.jobQueue == nil {
		writeError(w, http.StatusServiceUnavailable, "AI_NOT_CONFIGURED",
			"AI job queue is not configured (no AI provider set)")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeData(w, http.StatusOK, s.jobQueue.ListJobs(limit))
}

// ---------------------------------------------------------------------------
// GET /api/analyze/jobs/{id}
// ---------------------------------------------------------------------------

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if s.jobQueue == nil {
		writeError(w, http.StatusServiceUnavailable, "AI_NOT_CONFIGURED",
			"AI job queue is not configured (no AI provider set)")
		return
	}

	job, ok := s.jobQueue.GetJob(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "JOB_NOT_FOUND",
			"no AI job with that ID")
		return
	}
	writeData(w, http.StatusOK, job)
}

// ---------------------------------------------------------------------------
// Completed analyses
// ---------------------------------------------------------------------------

// applyAnalysis merges the combined hierarchy of a finished job into the
// live graph.
func (s *Server) applyAnalysis(job *ai.AIJob, res *ai.AnalyzeFilesResult) {
	if res == nil || res.Merged.Len() == 0 {
		return
	}
	title := strings.Join(res.Files, ", ")
	renamed := s.session.MergeGraph(ai.HierarchyGraph(title, res.Merged), nil)
	slog.Info("analysis merged into graph",
		"job_id", job.ID,
		"items", res.Merged.Len(),
		"renamed", len(renamed),
	)
}
