package synth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voiceforge/internal/domain/model"
	"voiceforge/internal/domain/ports/adapter"
)

type memStore struct {
	saved map[string][]byte
}

func newMemStore() *memStore { return &memStore{saved: map[string][]byte{}} }

func (m *memStore) Save(_ context.Context, name string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.saved[name] = b
	return name, nil
}
func (m *memStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(m.saved[ref]))), nil
}
func (m *memStore) Delete(_ context.Context, ref string) error { delete(m.saved, ref); return nil }
func (m *memStore) Exists(_ context.Context, ref string) bool  { _, ok := m.saved[ref]; return ok }

func TestOpenAISpeechRunSegmentsAndConcatenates(t *testing.T) {
	var calls int
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Input string `json:"input"`
			Voice string `json:"voice"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Voice != "alloy" {
			t.Errorf("unexpected voice %q", body.Voice)
		}
		w.Write([]byte("chunk;"))
	}))
	defer srv.Close()

	store := newMemStore()
	a, err := NewOpenAISpeechAdapter("test-key", "", srv.URL, store, NewSegmenter())
	if err != nil {
		t.Fatalf("failed to build adapter: %v", err)
	}

	params := model.DefaultSynthesisParams()
	params.Text = strings.Repeat("A full sentence for the speech engine to read aloud. ", 10)
	params.MaxTextTokensPerSegment = 20

	var progress []float64
	ref, err := a.Run(context.Background(), adapter.SynthesisRequest{JobID: "job1", Params: params},
		func(f float64, _ string) { progress = append(progress, f) })
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("unexpected auth header %q", gotAuth)
	}
	if calls < 2 {
		t.Errorf("expected multiple segment calls, got %d", calls)
	}
	if got := store.saved[ref]; strings.Count(string(got), "chunk;") != calls {
		t.Errorf("expected %d concatenated chunks, got %q", calls, got)
	}
	if len(progress) == 0 || progress[len(progress)-1] != 1.0 {
		t.Errorf("expected final progress 1.0, got %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("progress went backwards at %d: %v", i, progress)
		}
	}
}

func TestOpenAISpeechRunSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a, _ := NewOpenAISpeechAdapter("k", "", srv.URL, newMemStore(), NewSegmenter())
	params := model.DefaultSynthesisParams()
	params.Text = "Short text."

	if _, err := a.Run(context.Background(), adapter.SynthesisRequest{JobID: "job2", Params: params}, nil); err == nil {
		t.Fatal("expected an error from HTTP 429")
	}
}
