package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"voiceforge/internal/domain"
	"voiceforge/internal/domain/model"
	"voiceforge/internal/infra/redis"
)

// ===== Response shapes =====

type jobResponse struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"`
	Progress      float64    `json:"progress"`
	Message       string     `json:"message,omitempty"`
	QueuePosition *int       `json:"queue_position,omitempty"`
	Error         string     `json:"error,omitempty"`
	DownloadURL   string     `json:"download_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

func toJobResponse(job *model.Job, queuePos *int) jobResponse {
	resp := jobResponse{
		ID:            job.ID,
		Status:        string(job.Status),
		Progress:      job.Progress,
		Message:       job.Message,
		QueuePosition: queuePos,
		Error:         job.Error,
		CreatedAt:     job.CreatedAt,
		CompletedAt:   job.CompletedAt,
	}
	if job.Status == model.JobStatusCompleted {
		resp.DownloadURL = fmt.Sprintf("/v1/tts/jobs/%s/audio", job.ID)
	}
	return resp
}

type userResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	DisplayName      string     `json:"display_name,omitempty"`
	IsAdmin          bool       `json:"is_admin"`
	TotalGenerations int        `json:"total_generations"`
	CreatedAt        time.Time  `json:"created_at"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Email:            u.Email,
		DisplayName:      u.DisplayName,
		IsAdmin:          u.IsAdmin,
		TotalGenerations: u.TotalGenerations,
		CreatedAt:        u.CreatedAt,
		LastLoginAt:      u.LastLoginAt,
	}
}

// ===== Auth handlers =====

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := s.userUC.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := s.userUC.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	token, exp, err := s.auth.Mint(user.ID, user.IsAdmin)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": exp.UTC(),
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	user, err := s.userUC.GetByID(r.Context(), p.UserID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ===== Job handlers =====

// handleSubmit accepts a multipart form: synthesis fields plus optional
// prompt_audio and emo_audio reference clips. Accepted jobs come back as
// 202 with a Location to poll.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, _ := principalFrom(ctx)

	allowed, err := s.limiter.Allow(ctx, redis.SubmitKey(p.UserID), s.limits.SubmitPerMinute, time.Minute)
	if err != nil {
		// Rate limiting fails open: an unreachable redis must not block
		// submissions.
		s.log.Warn().Err(err).Msg("rate limiter unavailable")
	} else if !allowed {
		s.writeErr(w, r, domain.ErrRateLimited)
		return
	}

	if err := r.ParseMultipartForm(s.limits.MaxAudioBytes + (1 << 20)); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	text := strings.TrimSpace(r.FormValue("text"))
	if text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}
	if utf8.RuneCountInString(text) > s.limits.MaxTextLength {
		http.Error(w, fmt.Sprintf("text exceeds %d characters", s.limits.MaxTextLength), http.StatusBadRequest)
		return
	}

	params := model.DefaultSynthesisParams()
	params.Text = text
	if err := s.fillParams(r, &params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var savedRefs []string
	discard := func() {
		for _, ref := range savedRefs {
			s.artifacts.Delete(ctx, ref)
		}
	}

	for _, upload := range []struct {
		field string
		dst   *string
	}{
		{"prompt_audio", &params.PromptAudioRef},
		{"emo_audio", &params.EmoAudioRef},
	} {
		ref, err := s.saveUpload(r, upload.field)
		if err != nil {
			discard()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if ref != "" {
			*upload.dst = ref
			savedRefs = append(savedRefs, ref)
		}
	}

	job, err := s.jobUC.Submit(ctx, p.UserID, params)
	if err != nil {
		discard()
		s.writeErr(w, r, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/v1/tts/jobs/%s", job.ID))
	w.Header().Set("Retry-After", "2")
	writeJSON(w, http.StatusAccepted, toJobResponse(job, nil))
}

func (s *Server) fillParams(r *http.Request, params *model.SynthesisParams) error {
	if v := r.FormValue("voice"); v != "" {
		params.Voice = v
	}
	if v := r.FormValue("emo_mode"); v != "" {
		params.EmoMode = v
	}
	params.EmoText = r.FormValue("emo_text")

	for _, f := range []struct {
		field string
		dst   *float64
	}{
		{"temperature", &params.Temperature},
		{"top_p", &params.TopP},
		{"emo_weight", &params.EmoWeight},
	} {
		if v := r.FormValue(f.field); v != "" {
			x, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid %s", f.field)
			}
			*f.dst = x
		}
	}
	for _, f := range []struct {
		field string
		dst   *int
	}{
		{"top_k", &params.TopK},
		{"max_text_tokens_per_segment", &params.MaxTextTokensPerSegment},
		{"speech_length_ms", &params.SpeechLengthMS},
	} {
		if v := r.FormValue(f.field); v != "" {
			x, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s", f.field)
			}
			*f.dst = x
		}
	}
	return nil
}

// saveUpload stores one optional audio file and returns its ref, or ""
// when the field is absent.
func (s *Server) saveUpload(r *http.Request, field string) (string, error) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", fmt.Errorf("invalid %s upload", field)
	}
	defer f.Close()

	if hdr.Size > s.limits.MaxAudioBytes {
		return "", fmt.Errorf("%s exceeds %d bytes", field, s.limits.MaxAudioBytes)
	}
	if !s.allowedExtension(hdr) {
		return "", fmt.Errorf("%s has an unsupported audio format", field)
	}

	ref, err := s.artifacts.Save(r.Context(), hdr.Filename, io.LimitReader(f, s.limits.MaxAudioBytes))
	if err != nil {
		return "", fmt.Errorf("failed to store %s", field)
	}
	return ref, nil
}

func (s *Server) allowedExtension(hdr *multipart.FileHeader) bool {
	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	for _, allowed := range s.limits.AudioExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	view, err := s.jobUC.GetStatus(r.Context(), chi.URLParam(r, "jobID"), p.UserID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(view.Job, view.QueuePosition))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var status *model.JobStatus
	if sv := r.URL.Query().Get("status"); sv != "" {
		st := model.JobStatus(sv)
		if !st.Valid() {
			http.Error(w, "invalid status filter", http.StatusBadRequest)
			return
		}
		status = &st
	}

	views, total, err := s.jobUC.List(r.Context(), p.UserID, status, page, pageSize)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	data := make([]jobResponse, 0, len(views))
	for _, v := range views {
		data = append(data, toJobResponse(v.Job, v.QueuePosition))
	}
	writeJSON(w, http.StatusOK, struct {
		Data       []jobResponse `json:"data"`
		Page       int           `json:"page"`
		PageSize   int           `json:"page_size"`
		Total      int           `json:"total"`
		TotalPages int           `json:"total_pages"`
	}{
		Data:       data,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: (total + pageSize - 1) / pageSize,
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	if err := s.jobUC.Delete(r.Context(), chi.URLParam(r, "jobID"), p.UserID); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFrom(r.Context())
	rc, job, err := s.jobUC.GetResult(r.Context(), chi.URLParam(r, "jobID"), p.UserID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	defer rc.Close()

	ext := strings.ToLower(filepath.Ext(job.ResultRef))
	switch ext {
	case ".mp3":
		w.Header().Set("Content-Type", "audio/mpeg")
	case ".wav":
		w.Header().Set("Content-Type", "audio/wav")
	default:
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+ext))
	io.Copy(w, rc)
}

// ===== Admin handlers =====

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.statsUC.Totals(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ===== Helpers =====

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, "Invalid request", http.StatusBadRequest)
	case errors.Is(err, domain.ErrUnauthorized):
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, domain.ErrAccountDisabled):
		http.Error(w, "Account disabled", http.StatusForbidden)
	case errors.Is(err, domain.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, domain.ErrAlreadyExists):
		http.Error(w, "Already exists", http.StatusConflict)
	case errors.Is(err, domain.ErrNotReady):
		w.Header().Set("Retry-After", "2")
		http.Error(w, "Result not ready", http.StatusConflict)
	case errors.Is(err, domain.ErrRateLimited):
		w.Header().Set("Retry-After", "60")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
