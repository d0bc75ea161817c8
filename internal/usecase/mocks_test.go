// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"voiceforge/internal/domain"
	"voiceforge/internal/domain/model"
	"voiceforge/internal/domain/ports/adapter"
	"voiceforge/internal/domain/ports/repository"
)

// memJobRepo is a small in-memory implementation used by unit tests. It
// mirrors the SQL repo's semantics: copies in and out, ownership-scoped
// reads, queue rank by (created_at, id).
type memJobRepo struct {
	mu        sync.RWMutex
	store     map[string]*model.Job
	createErr error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{store: make(map[string]*model.Job)}
}

func (m *memJobRepo) Create(ctx context.Context, job *model.Job) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.store[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, id, ownerID string) (*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.store[id]
	if !ok || (ownerID != "" && j.OwnerID != ownerID) {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) matches(j *model.Job, f repository.JobFilter) bool {
	if f.OwnerID != "" && j.OwnerID != f.OwnerID {
		return false
	}
	if f.Status != nil && j.Status != *f.Status {
		return false
	}
	return true
}

func (m *memJobRepo) List(ctx context.Context, f repository.JobFilter, page, pageSize int) ([]*model.Job, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var all []*model.Job
	for _, j := range m.store {
		if m.matches(j, f) {
			cp := *j
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(a, b int) bool {
		if !all[a].CreatedAt.Equal(all[b].CreatedAt) {
			return all[a].CreatedAt.After(all[b].CreatedAt)
		}
		return all[a].ID > all[b].ID
	})
	total := len(all)
	start := (page - 1) * pageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *memJobRepo) Update(ctx context.Context, id string, upd repository.JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	if upd.Status != nil {
		j.Status = *upd.Status
	}
	if upd.Progress != nil {
		j.Progress = *upd.Progress
	}
	if upd.Message != nil {
		j.Message = *upd.Message
	}
	if upd.ResultRef != nil {
		j.ResultRef = *upd.ResultRef
	}
	if upd.Error != nil {
		j.Error = *upd.Error
	}
	if upd.CompletedAt != nil {
		t := *upd.CompletedAt
		j.CompletedAt = &t
	}
	return nil
}

func (m *memJobRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *memJobRepo) Count(ctx context.Context, f repository.JobFilter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, j := range m.store {
		if m.matches(j, f) {
			n++
		}
	}
	return n, nil
}

func (m *memJobRepo) QueuePosition(ctx context.Context, id string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	me, ok := m.store[id]
	if !ok {
		return 0, domain.ErrNotFound
	}
	pos := 0
	for _, j := range m.store {
		if j.Status != model.JobStatusPending {
			continue
		}
		if j.CreatedAt.Before(me.CreatedAt) || (j.CreatedAt.Equal(me.CreatedAt) && j.ID < me.ID) {
			pos++
		}
	}
	return pos, nil
}

func (m *memJobRepo) FindOlderThan(ctx context.Context, cutoff time.Time) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, j := range m.store {
		if j.CreatedAt.Before(cutoff) {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memJobRepo) FindByStatus(ctx context.Context, status model.JobStatus) ([]*model.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Job
	for _, j := range m.store {
		if j.Status == status {
			cp := *j
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

// memUserRepo keys users by id with a unique-email constraint.
type memUserRepo struct {
	mu    sync.RWMutex
	store map[string]*model.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{store: make(map[string]*model.User)}
}

func (m *memUserRepo) Create(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.store {
		if other.Email == u.Email {
			return domain.ErrAlreadyExists
		}
	}
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *memUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.store {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUserRepo) UpdateLastLogin(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now().UTC()
	u.LastLoginAt = &now
	return nil
}

func (m *memUserRepo) IncrementGenerations(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	u.TotalGenerations++
	return nil
}

func (m *memUserRepo) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store), nil
}

// memArtifacts stores blobs by ref; Save uses the given name as the ref
// so tests can predict where audio lands.
type memArtifacts struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func newMemArtifacts() *memArtifacts { return &memArtifacts{blobs: map[string][]byte{}} }

func (m *memArtifacts) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[name] = b
	return name, nil
}

func (m *memArtifacts) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(b))), nil
}

func (m *memArtifacts) Delete(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[ref]; !ok {
		return domain.ErrNotFound
	}
	delete(m.blobs, ref)
	return nil
}

func (m *memArtifacts) Exists(ctx context.Context, ref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[ref]
	return ok
}

// fakeSynth simulates the engine. A non-nil block channel parks every run
// until closed, so tests can observe admission behavior; err forces
// failure; progress fractions are replayed through the callback.
type fakeSynth struct {
	store adapter.ArtifactStore

	mu       sync.Mutex
	err      error
	block    chan struct{}
	progress []float64
	runs     int
	active   int
	peak     int
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Run(ctx context.Context, req adapter.SynthesisRequest, onProgress adapter.ProgressFunc) (string, error) {
	f.mu.Lock()
	f.runs++
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	block := f.block
	errv := f.err
	progress := f.progress
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if errv != nil {
		return "", errv
	}
	for _, p := range progress {
		onProgress(p, "step")
	}
	return f.store.Save(ctx, req.JobID+".mp3", strings.NewReader("audio"))
}

func (f *fakeSynth) activeRuns() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// syncDispatcher executes the task inline, so Submit drives a job to its
// terminal state before returning.
type syncDispatcher struct{}

func (syncDispatcher) Go(task func(ctx context.Context)) { task(context.Background()) }

type asyncDispatcher struct{ wg sync.WaitGroup }

func (d *asyncDispatcher) Go(task func(ctx context.Context)) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		task(context.Background())
	}()
}
