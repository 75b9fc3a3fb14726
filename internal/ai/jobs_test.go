package ai

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyuha/orbit/internal/storage"
)

type memAnalyses struct {
	mu   sync.Mutex
	rows map[string]*storage.Analysis
}

func (m *memAnalyses) GetAnalysis(ctx context.Context, checksum string) (*storage.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[checksum]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return a, nil
}

func (m *memAnalyses) SaveAnalysis(ctx context.Context, a *storage.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows == nil {
		m.rows = map[string]*storage.Analysis{}
	}
	m.rows[a.Checksum] = a
	return nil
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (e *eventLog) Broadcast(ev BroadcastEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev.Event)
}

func (e *eventLog) names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.events...)
}

func analyzeParams(t *testing.T, files ...FileText) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(AnalyzeFilesParams{Files: files})
	require.NoError(t, err)
	return b
}

func waitForJob(t *testing.T, q *JobQueue, id string) *AIJob {
	t.Helper()
	var job *AIJob
	require.Eventually(t, func() bool {
		j, ok := q.GetJob(id)
		if !ok {
			return false
		}
		job = j
		return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestJobQueueAnalyzeFiles(t *testing.T) {
	t.Run("per-file and merged hierarchies", func(t *testing.T) {
		p := &scriptedProvider{replies: []string{
			`{"layer1":["One"],"layer2":[],"layer3":[]}`,
			`{"layer1":["Two"],"layer2":[],"layer3":[]}`,
			`{"layer1":["One","Two"],"layer2":[],"layer3":[]}`,
		}}
		events := &eventLog{}
		q := NewJobQueue(NewAnalyzer(p), nil, events, 1)
		defer q.Close()

		var (
			mu     sync.Mutex
			hooked *AnalyzeFilesResult
		)
		q.OnComplete(func(job *AIJob, res *AnalyzeFilesResult) {
			mu.Lock()
			defer mu.Unlock()
			hooked = res
		})

		id, err := q.Enqueue(JobAnalyzeFiles, analyzeParams(t,
			FileText{Name: "a.txt", Text: "alpha"},
			FileText{Name: "b.txt", Text: "beta"},
		))
		require.NoError(t, err)

		job := waitForJob(t, q, id)
		require.Equal(t, JobStatusCompleted, job.Status, job.Error)

		var res AnalyzeFilesResult
		require.NoError(t, json.Unmarshal(job.Result, &res))
		assert.Equal(t, []string{"a.txt", "b.txt"}, res.Files)
		assert.Equal(t, []string{"One"}, res.Results["a.txt"].Layer1)
		assert.Equal(t, []string{"One", "Two"}, res.Merged.Layer1)
		p.mu.Lock()
		assert.Contains(t, p.calls[2][1].Content, "alpha\n\nbeta")
		p.mu.Unlock()

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return hooked != nil
		}, time.Second, 5*time.Millisecond)
		mu.Lock()
		assert.Equal(t, res.Merged, hooked.Merged)
		mu.Unlock()

		require.Eventually(t, func() bool { return len(events.names()) == 2 }, time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"ai:job_started", "ai:job_completed"}, events.names())
	})

	t.Run("repeat uploads are served from the store", func(t *testing.T) {
		p := &scriptedProvider{}
		store := &memAnalyses{}
		q := NewJobQueue(NewAnalyzer(p), store, nil, 1)
		defer q.Close()
		params := analyzeParams(t, FileText{Name: "a.txt", Text: "same text"})

		first, err := q.Enqueue(JobAnalyzeFiles, params)
		require.NoError(t, err)
		waitForJob(t, q, first)
		calls := p.callCount()

		second, err := q.Enqueue(JobAnalyzeFiles, params)
		require.NoError(t, err)
		job := waitForJob(t, q, second)

		assert.Equal(t, JobStatusCompleted, job.Status)
		assert.Equal(t, calls, p.callCount())
		assert.NotEmpty(t, store.rows)
	})

	t.Run("failures are recorded and skip hooks", func(t *testing.T) {
		p := &scriptedProvider{replies: []string{"not json"}}
		q := NewJobQueue(NewAnalyzer(p), nil, nil, 1)
		defer q.Close()
		called := false
		q.OnComplete(func(*AIJob, *AnalyzeFilesResult) { called = true })

		id, err := q.Enqueue(JobAnalyzeFiles, analyzeParams(t, FileText{Name: "a", Text: "x"}))
		require.NoError(t, err)
		job := waitForJob(t, q, id)

		assert.Equal(t, JobStatusFailed, job.Status)
		assert.Contains(t, job.Error, "non-JSON response")
		assert.False(t, called)
	})

	t.Run("empty upload fails", func(t *testing.T) {
		q := NewJobQueue(NewAnalyzer(&scriptedProvider{}), nil, nil, 1)
		defer q.Close()

		id, err := q.Enqueue(JobAnalyzeFiles, analyzeParams(t))
		require.NoError(t, err)

		assert.Equal(t, "no files provided", waitForJob(t, q, id).Error)
	})
}

func TestListJobs(t *testing.T) {
	q := NewJobQueue(NewAnalyzer(&scriptedProvider{}), nil, nil, 1)
	defer q.Close()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(JobAnalyzeFiles, analyzeParams(t))
		require.NoError(t, err)
	}

	assert.Len(t, q.ListJobs(0), 3)
	assert.Len(t, q.ListJobs(2), 2)
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, Checksum("abc"), Checksum("  abc\n"))
	assert.NotEqual(t, Checksum("abc"), Checksum("abd"))
	assert.Len(t, Checksum(""), 64)
}
