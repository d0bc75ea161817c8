package web

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voiceforge/internal/config"
	"voiceforge/internal/domain"
	"voiceforge/internal/domain/model"
	"voiceforge/internal/usecase"
)

// ===== In-memory fakes for handler tests =====

type fakeJobUC struct {
	mu        sync.Mutex
	seq       int
	jobs      map[string]*model.Job
	submitErr error
}

func newFakeJobUC() *fakeJobUC {
	return &fakeJobUC{jobs: map[string]*model.Job{}}
}

var _ usecase.JobUseCase = (*fakeJobUC)(nil)

func (f *fakeJobUC) Submit(_ context.Context, ownerID string, params model.SynthesisParams) (*model.Job, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	job := &model.Job{
		ID:        fmt.Sprintf("job-%d", f.seq),
		OwnerID:   ownerID,
		Status:    model.JobStatusPending,
		Message:   "queued",
		Params:    params,
		CreatedAt: time.Now().UTC(),
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeJobUC) Execute(context.Context, string) {}

func (f *fakeJobUC) find(id, ownerID string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok || (ownerID != "" && job.OwnerID != ownerID) {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (f *fakeJobUC) GetStatus(_ context.Context, id, ownerID string) (*usecase.JobStatusView, error) {
	job, err := f.find(id, ownerID)
	if err != nil {
		return nil, err
	}
	view := &usecase.JobStatusView{Job: job}
	if job.Status == model.JobStatusPending {
		pos := 0
		view.QueuePosition = &pos
	}
	return view, nil
}

func (f *fakeJobUC) GetResult(_ context.Context, id, ownerID string) (io.ReadCloser, *model.Job, error) {
	job, err := f.find(id, ownerID)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, job, domain.ErrNotReady
	}
	return io.NopCloser(strings.NewReader("audio-bytes")), job, nil
}

func (f *fakeJobUC) List(_ context.Context, ownerID string, status *model.JobStatus, page, pageSize int) ([]*usecase.JobStatusView, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var views []*usecase.JobStatusView
	for _, job := range f.jobs {
		if job.OwnerID != ownerID {
			continue
		}
		if status != nil && job.Status != *status {
			continue
		}
		views = append(views, &usecase.JobStatusView{Job: job})
	}
	return views, len(views), nil
}

func (f *fakeJobUC) Delete(_ context.Context, id, ownerID string) error {
	if _, err := f.find(id, ownerID); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	return nil
}

func (f *fakeJobUC) RecoverInterrupted(context.Context) (int, int, error) { return 0, 0, nil }

func (f *fakeJobUC) CountsByStatus(context.Context) (map[model.JobStatus]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[model.JobStatus]int{}
	for _, job := range f.jobs {
		out[job.Status]++
	}
	return out, nil
}

type fakeUserUC struct {
	mu    sync.Mutex
	seq   int
	users map[string]*model.User // by id
}

func newFakeUserUC() *fakeUserUC { return &fakeUserUC{users: map[string]*model.User{}} }

var _ usecase.UserUseCase = (*fakeUserUC)(nil)

func (f *fakeUserUC) Register(_ context.Context, email, password, displayName string) (*model.User, error) {
	if !strings.Contains(email, "@") || len(password) < 8 {
		return nil, domain.ErrInvalidArgument
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return nil, domain.ErrAlreadyExists
		}
	}
	f.seq++
	u := &model.User{
		ID:           fmt.Sprintf("user-%d", f.seq),
		Email:        email,
		PasswordHash: password,
		DisplayName:  displayName,
		IsActive:     true,
		CreatedAt:    time.Now().UTC(),
	}
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUserUC) Authenticate(_ context.Context, email, password string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email && u.PasswordHash == password {
			if !u.IsActive {
				return nil, domain.ErrAccountDisabled
			}
			return u, nil
		}
	}
	return nil, domain.ErrUnauthorized
}

func (f *fakeUserUC) GetByID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return u, nil
}

type memArtifacts struct {
	mu    sync.Mutex
	seq   int
	blobs map[string][]byte
}

func newMemArtifacts() *memArtifacts { return &memArtifacts{blobs: map[string][]byte{}} }

func (m *memArtifacts) Save(_ context.Context, name string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	ref := fmt.Sprintf("blob-%d%s", m.seq, strings.ToLower(filepath.Ext(name)))
	m.blobs[ref] = b
	return ref, nil
}

func (m *memArtifacts) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[ref]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(b))), nil
}

func (m *memArtifacts) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[ref]; !ok {
		return domain.ErrNotFound
	}
	delete(m.blobs, ref)
	return nil
}

func (m *memArtifacts) Exists(_ context.Context, ref string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.blobs[ref]
	return ok
}

// fakeUserRepo backs the stats usecase; only Count matters here.
type fakeUserRepo struct {
	users *fakeUserUC
}

func (f *fakeUserRepo) Create(context.Context, *model.User) error { return nil }
func (f *fakeUserRepo) FindByID(context.Context, string) (*model.User, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeUserRepo) FindByEmail(context.Context, string) (*model.User, error) {
	return nil, domain.ErrNotFound
}
func (f *fakeUserRepo) UpdateLastLogin(context.Context, string) error      { return nil }
func (f *fakeUserRepo) IncrementGenerations(context.Context, string) error { return nil }
func (f *fakeUserRepo) Count(context.Context) (int, error) {
	f.users.mu.Lock()
	defer f.users.mu.Unlock()
	return len(f.users.users), nil
}

// testServer wires a Server with fakes and a real AuthManager.
func testServer() (*Server, *fakeJobUC, *fakeUserUC) {
	jobUC := newFakeJobUC()
	userUC := newFakeUserUC()
	statsUC := usecase.NewStatsUseCase(&fakeUserRepo{users: userUC}, jobUC)
	log := zerolog.Nop()
	limits := config.LimitsConfig{
		MaxTextLength:   500,
		MaxAudioBytes:   10 << 20,
		AudioExtensions: []string{".wav", ".mp3"},
	}
	srv := NewServer(jobUC, userUC, statsUC,
		NewAuthManager("test-secret", time.Hour),
		newMemArtifacts(), nil, limits, &log)
	return srv, jobUC, userUC
}
