package api

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyuha/orbit/internal/ai"
)

// fixedModel answers every prompt with the same hierarchy.
type fixedModel struct{}

func (fixedModel) Name() string { return "fixed" }
func (fixedModel) Close() error { return nil }

func (fixedModel) Generate(ctx context.Context, msgs []ai.Message, opts ai.GenerateOptions) (*ai.Message, error) {
	return &ai.Message{
		Role:    ai.RoleAssistant,
		Content: `{"layer1":["Orbits"],"layer2":["Kepler laws"],"layer3":["Ellipses"]}`,
	}, nil
}

func newTestQueue(t *testing.T) *ai.JobQueue {
	t.Helper()
	q := ai.NewJobQueue(ai.NewAnalyzer(fixedModel{}), nil, nil, 1)
	t.Cleanup(q.Close)
	return q
}

type upload struct {
	field, name, body string
}

func postUploads(t *testing.T, s *Server, files ...upload) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(f.body))
		require.NoError(t, err)
	}
	require.NoError(t, mw.WriteField("note", "x"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func hasLabel(s *Server, label string) bool {
	for _, n := range s.session.Graph().Nodes {
		if n.Label == label {
			return true
		}
	}
	return false
}

func TestAnalyzeRoute(t *testing.T) {
	t.Run("completed job merges its hierarchy", func(t *testing.T) {
		q := newTestQueue(t)
		s := newTestServer(t, nil, q)

		rec := postUploads(t, s,
			upload{"file", "notes.txt", "Planets move on ellipses."},
			upload{"files", "more.md", "Kepler found three laws."},
		)

		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		var out struct {
			JobID string `json:"job_id"`
			Files int    `json:"files"`
		}
		decodeData(t, rec, &out)
		assert.Equal(t, 2, out.Files)
		require.NotEmpty(t, out.JobID)

		require.Eventually(t, func() bool {
			return hasLabel(s, "Kepler laws")
		}, 2*time.Second, 5*time.Millisecond)
		assert.True(t, hasLabel(s, "notes.txt, more.md"))
		_, kept := s.session.Node("root")
		assert.True(t, kept, "existing nodes survive the merge")

		var job ai.AIJob
		decodeData(t, do(t, s, http.MethodGet, "/api/analyze/jobs/"+out.JobID, nil), &job)
		assert.Equal(t, ai.JobStatusCompleted, job.Status)

		var jobs []ai.AIJob
		decodeData(t, do(t, s, http.MethodGet, "/api/analyze/jobs?limit=5", nil), &jobs)
		assert.Len(t, jobs, 1)
	})

	t.Run("pdf is unsupported", func(t *testing.T) {
		s := newTestServer(t, nil, newTestQueue(t))

		rec := postUploads(t, s, upload{"file", "paper.pdf", "%PDF-1.4"})

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		assert.Equal(t, "UNSUPPORTED_FILE", errorCode(t, rec))
	})

	t.Run("no files", func(t *testing.T) {
		s := newTestServer(t, nil, newTestQueue(t))

		rec := postUploads(t, s)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "NO_FILES", errorCode(t, rec))
	})

	t.Run("blank files count as none", func(t *testing.T) {
		s := newTestServer(t, nil, newTestQueue(t))

		rec := postUploads(t, s, upload{"file", "empty.txt", "  \n "})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "NO_FILES", errorCode(t, rec))
	})

	t.Run("not a multipart body", func(t *testing.T) {
		s := newTestServer(t, nil, newTestQueue(t))

		rec := do(t, s, http.MethodPost, "/api/analyze", map[string]string{"text": "hi"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_FORM", errorCode(t, rec))
	})

	t.Run("no analyzer configured", func(t *testing.T) {
		s := newTestServer(t, nil, nil)

		rec := postUploads(t, s, upload{"file", "notes.txt", "text"})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "AI_NOT_CONFIGURED", errorCode(t, rec))

		rec = do(t, s, http.MethodGet, "/api/analyze/jobs/abc", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("unknown job", func(t *testing.T) {
		s := newTestServer(t, nil, newTestQueue(t))

		rec := do(t, s, http.MethodGet, "/api/analyze/jobs/nope", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "JOB_NOT_FOUND", errorCode(t, rec))
	})
}
