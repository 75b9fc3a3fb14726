package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vyuha/orbit/internal/storage"
)

// ---------------------------------------------------------------------------
// Broadcaster interface (keeps ai free of the api package)
// ---------------------------------------------------------------------------

// Broadcaster is a minimal interface for pushing events to connected clients.
// The api.SSEBroadcaster satisfies this interface.
type Broadcaster interface {
	Broadcast(event BroadcastEvent)
}

// BroadcastEvent mirrors api.SSEEvent without importing the api package.
type BroadcastEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// ---------------------------------------------------------------------------
// Job types
// ---------------------------------------------------------------------------

// JobKind identifies the type of AI work to perform.
type JobKind string

const (
	JobAnalyzeFiles JobKind = "analyze_files"
)

// JobStatus tracks the lifecycle of an AI job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// AIJob represents a queued or completed AI task.
type AIJob struct {
	ID        string          `json:"id"`
	Kind      JobKind         `json:"kind"`
	Status    JobStatus       `json:"status"`
	Params    json.RawMessage `json:"params"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	DoneAt    *time.Time      `json:"done_at,omitempty"`
}

// ---------------------------------------------------------------------------
// JobQueue
// ---------------------------------------------------------------------------

const defaultQueueSize = 256

// ErrQueueFull is returned by Enqueue when no worker can take the job.
var ErrQueueFull = errors.New("ai/jobs: queue full")

// JobQueue manages asynchronous AI jobs with a background worker pool.
type JobQueue struct {
	mu   sync.RWMutex
	jobs map[string]*AIJob

	queue       chan string
	analyzer    *Analyzer
	store       AnalysisStore
	broadcaster Broadcaster
	onComplete  []func(job *AIJob, result *AnalyzeFilesResult)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewJobQueue creates a job queue with the given number of workers.
// Pass nil for store to disable the analysis cache, and nil for
// broadcaster if SSE notifications are not needed.
func NewJobQueue(
	analyzer *Analyzer,
	store AnalysisStore,
	broadcaster Broadcaster,
	workers int,
) *JobQueue {
	if workers <= 0 {
		workers = 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &JobQueue{
		jobs:        make(map[string]*AIJob),
		queue:       make(chan string, defaultQueueSize),
		analyzer:    analyzer,
		store:       store,
		broadcaster: broadcaster,
		ctx:         ctx,
		cancel:      cancel,
	}

	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}

	// Background eviction of completed/failed jobs older than 1 hour.
	q.wg.Add(1)
	go q.evictExpiredJobs()

	slog.Info("ai job queue started", "workers", workers)
	return q
}

// OnComplete registers fn to run after every successful analyze_files job.
// Register hooks before enqueueing work.
func (q *JobQueue) OnComplete(fn func(job *AIJob, result *AnalyzeFilesResult)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.onComplete = append(q.onComplete, fn)
}

// Enqueue creates a new job and puts it on the processing queue.
// It returns the job ID immediately.
func (q *JobQueue) Enqueue(kind JobKind, params json.RawMessage) (string, error) {
	job := &AIJob{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    JobStatusPending,
		Params:    params,
		CreatedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.mu.Unlock()

	select {
	case q.queue <- job.ID:
		slog.Debug("ai job enqueued", "job_id", job.ID, "kind", string(kind))
	default:
		q.mu.Lock()
		job.Status = JobStatusFailed
		job.Error = "queue full"
		now := time.Now().UTC()
		job.DoneAt = &now
		q.mu.Unlock()
		return job.ID, ErrQueueFull
	}

	return job.ID, nil
}

// GetJob returns the current state of a job.
func (q *JobQueue) GetJob(id string) (*AIJob, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil, false
	}
	// Return a copy.
	cp := *j
	return &cp, true
}

// ListJobs returns all jobs, ordered by creation time descending.
func (q *JobQueue) ListJobs(limit int) []*AIJob {
	q.mu.RLock()
	defer q.mu.RUnlock()

	all := make([]*AIJob, 0, len(q.jobs))
	for _, j := range q.jobs {
		cp := *j
		all = append(all, &cp)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Close signals workers to stop and waits for them to finish.
// Safe to call multiple times.
func (q *JobQueue) Close() {
	q.closeOnce.Do(func() {
		q.cancel()
		close(q.queue)
		q.wg.Wait()
		slog.Info("ai job queue shut down")
	})
}

// evictExpiredJobs removes completed/failed jobs older than 1 hour
// every 15 minutes. Runs as a background goroutine until ctx is cancelled.
func (q *JobQueue) evictExpiredJobs() {
	defer q.wg.Done()
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-1 * time.Hour)
			var evicted int

			q.mu.Lock()
			for id, job := range q.jobs {
				if (job.Status == JobStatusCompleted || job.Status == JobStatusFailed) &&
					job.DoneAt != nil && job.DoneAt.Before(cutoff) {
					delete(q.jobs, id)
					evicted++
				}
			}
			q.mu.Unlock()

			if evicted > 0 {
				slog.Debug("job eviction",
					"evicted", evicted,
					"remaining", q.jobCount(),
				)
			}
		}
	}
}

// jobCount returns the number of jobs in the map (lock-safe).
func (q *JobQueue) jobCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.jobs)
}

// ---------------------------------------------------------------------------
// Worker loop
// ---------------------------------------------------------------------------

func (q *JobQueue) worker(id int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case jobID, ok := <-q.queue:
			if !ok {
				return
			}
			q.processJob(jobID, id)
		}
	}
}

func (q *JobQueue) processJob(jobID string, workerID int) {
	q.mu.Lock()
	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()
		return
	}
	job.Status = JobStatusRunning
	now := time.Now().UTC()
	job.StartedAt = &now
	q.mu.Unlock()

	slog.Debug("ai job processing", "worker", workerID, "job_id", jobID, "kind", string(job.Kind))
	q.broadcast("ai:job_started", map[string]interface{}{
		"job_id": jobID,
		"kind":   job.Kind,
	})

	result, hookResult, err := q.executeJob(q.ctx, job)

	q.mu.Lock()
	doneAt := time.Now().UTC()
	job.DoneAt = &doneAt
	if err != nil {
		job.Status = JobStatusFailed
		job.Error = err.Error()
		slog.Error("ai job failed", "worker", workerID, "job_id", jobID, "error", err)
	} else {
		job.Status = JobStatusCompleted
		job.Result = result
		slog.Info("ai job complete", "worker", workerID, "job_id", jobID, "kind", string(job.Kind))
	}
	snapshot := *job
	hooks := append([]func(*AIJob, *AnalyzeFilesResult){}, q.onComplete...)
	q.mu.Unlock()

	if err == nil && hookResult != nil {
		for _, fn := range hooks {
			fn(&snapshot, hookResult)
		}
	}

	q.broadcast("ai:job_completed", map[string]interface{}{
		"job_id": jobID,
		"kind":   job.Kind,
		"status": snapshot.Status,
		"error":  snapshot.Error,
	})
}

// ---------------------------------------------------------------------------
// Job execution dispatch
// ---------------------------------------------------------------------------

func (q *JobQueue) executeJob(ctx context.Context, job *AIJob) (json.RawMessage, *AnalyzeFilesResult, error) {
	switch job.Kind {
	case JobAnalyzeFiles:
		res, err := q.executeAnalyzeJob(ctx, job)
		if err != nil {
			return nil, nil, err
		}
		encoded, err := json.Marshal(res)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal result: %w", err)
		}
		return encoded, res, nil
	default:
		return nil, nil, fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

// ---------------------------------------------------------------------------
// Analyze jobs
// ---------------------------------------------------------------------------

// AnalysisStore caches hierarchies by content checksum.
// *storage.Storage satisfies it.
type AnalysisStore interface {
	GetAnalysis(ctx context.Context, checksum string) (*storage.Analysis, error)
	SaveAnalysis(ctx context.Context, a *storage.Analysis) error
}

// FileText is one uploaded document after text extraction.
type FileText struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// AnalyzeFilesParams is the payload of an analyze_files job.
type AnalyzeFilesParams struct {
	Files []FileText `json:"files"`
}

// AnalyzeFilesResult holds one hierarchy per file plus the hierarchy of all
// files read together.
type AnalyzeFilesResult struct {
	Files   []string             `json:"files"`
	Results map[string]Hierarchy `json:"results"`
	Merged  Hierarchy            `json:"merged"`
}

func (q *JobQueue) executeAnalyzeJob(ctx context.Context, job *AIJob) (*AnalyzeFilesResult, error) {
	var params AnalyzeFilesParams
	if err := json.Unmarshal(job.Params, &params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if len(params.Files) == 0 {
		return nil, fmt.Errorf("no files provided")
	}

	res := &AnalyzeFilesResult{Results: make(map[string]Hierarchy, len(params.Files))}
	texts := make([]string, 0, len(params.Files))
	for _, f := range params.Files {
		name := f.Name
		if name == "" {
			name = "file"
		}
		h, err := q.analyze(ctx, name, f.Text)
		if err != nil {
			return nil, fmt.Errorf("analyze %s: %w", name, err)
		}
		if _, seen := res.Results[name]; !seen {
			res.Files = append(res.Files, name)
		}
		res.Results[name] = h
		texts = append(texts, f.Text)
	}

	merged, err := q.analyze(ctx, "merged", strings.Join(texts, "\n\n"))
	if err != nil {
		return nil, fmt.Errorf("analyze merged: %w", err)
	}
	res.Merged = merged
	return res, nil
}

// analyze consults the store before calling the model. Store failures are
// logged and otherwise ignored.
func (q *JobQueue) analyze(ctx context.Context, name, text string) (Hierarchy, error) {
	sum := Checksum(text)
	if q.store != nil {
		a, err := q.store.GetAnalysis(ctx, sum)
		switch {
		case err == nil:
			var h Hierarchy
			if err := json.Unmarshal(a.Hierarchy, &h); err == nil {
				slog.Debug("analysis cache hit", "name", name)
				return h, nil
			}
		case !errors.Is(err, storage.ErrNotFound):
			slog.Warn("analysis cache lookup failed", "name", name, "error", err)
		}
	}

	h, err := q.analyzer.Build(ctx, text)
	if err != nil {
		return Hierarchy{}, err
	}

	if q.store != nil {
		encoded, err := json.Marshal(h)
		if err == nil {
			err = q.store.SaveAnalysis(ctx, &storage.Analysis{Checksum: sum, Name: name, Hierarchy: encoded})
		}
		if err != nil {
			slog.Warn("analysis cache store failed", "name", name, "error", err)
		}
	}
	return h, nil
}

// Checksum is the cache key for a document's text.
func Checksum(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// ---------------------------------------------------------------------------
// Broadcast helper
// ---------------------------------------------------------------------------

func (q *JobQueue) broadcast(event string, data interface{}) {
	if q.broadcaster == nil {
		return
	}
	q.broadcaster.Broadcast(BroadcastEvent{
		Event: event,
		Data:  data,
	})
}
