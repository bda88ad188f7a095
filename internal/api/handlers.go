package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/hotlist-radar/internal/radar"
)

const (
	defaultUserMaxNotes = 20
	defaultUserPriority = 10
	defaultPeek         = 20

	maxRequestBytes = 1 << 20
	maxIngestBytes  = 8 << 20
)

// decodeJSON reads at most limit bytes of r's body into v. It writes the
// error response itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

type createTaskRequest struct {
	TopicTitle     string   `json:"topic_title"`
	SearchKeywords []string `json:"search_keywords"`
	Platform       string   `json:"platform"`
	MaxNotes       int      `json:"max_notes"`
	Priority       int      `json:"priority"`
	CandidateID    string   `json:"candidate_id"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if !decodeJSON(w, r, maxRequestBytes, &req) {
		return
	}
	req.TopicTitle = strings.TrimSpace(req.TopicTitle)
	if req.TopicTitle == "" {
		writeError(w, http.StatusBadRequest, "topic_title required")
		return
	}
	if _, ok := s.platforms[req.Platform]; !ok {
		writeError(w, http.StatusBadRequest, "unsupported platform")
		return
	}
	req.SearchKeywords = capKeywords(req.SearchKeywords)
	if len(req.SearchKeywords) == 0 {
		req.SearchKeywords = []string{req.TopicTitle}
	}
	if req.MaxNotes <= 0 {
		req.MaxNotes = defaultUserMaxNotes
	}
	if req.Priority <= 0 {
		req.Priority = defaultUserPriority
	}

	id, err := s.deps.IDs.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate task id failed")
		return
	}
	now := s.deps.Clock.Now().Unix()
	task := radar.Task{
		TaskID:         id,
		CandidateID:    req.CandidateID,
		TopicTitle:     req.TopicTitle,
		SearchKeywords: req.SearchKeywords,
		Platform:       req.Platform,
		MaxNotes:       req.MaxNotes,
		Priority:       req.Priority,
		Origin:         radar.OriginUser,
		Status:         radar.TaskPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	ctx := r.Context()
	if err := s.deps.Tasks.Create(ctx, task); err != nil {
		writeError(w, http.StatusInternalServerError, "create task failed")
		return
	}
	if err := s.deps.Tasks.AppendStatus(ctx, radar.TaskStatusEntry{
		TaskID:    id,
		Status:    radar.TaskPending,
		UpdatedAt: now,
	}); err != nil {
		s.logger.Warn("append task status failed", zap.String("task_id", id), zap.Error(err))
	}
	// The task store is authoritative; the dispatcher finds the task even
	// when the push fails.
	if s.deps.Queue != nil {
		if err := s.deps.Queue.PushUser(ctx, task); err != nil {
			s.logger.Warn("push user task failed", zap.String("task_id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"task_id": id, "status": string(task.Status)})
}

// capKeywords trims, drops blanks and duplicates, and keeps the first
// radar.MaxSearchKeywords entries in request order.
func capKeywords(in []string) []string {
	out := make([]string, 0, radar.MaxSearchKeywords)
	seen := make(map[string]struct{}, len(in))
	for _, kw := range in {
		if len(out) == radar.MaxSearchKeywords {
			break
		}
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	task, err := s.deps.Tasks.Get(r.Context(), id)
	if errors.Is(err, radar.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load task failed")
		return
	}
	history, err := s.deps.Tasks.StatusHistory(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load task history failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task": task, "history": history})
}

func (s *Server) getTaskPosts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Posts == nil {
		writeError(w, http.StatusNotImplemented, "post store not configured")
		return
	}
	posts, err := s.deps.Posts.PostsByTask(r.Context(), chi.URLParam(r, "task_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load posts failed")
		return
	}
	if posts == nil {
		posts = []radar.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) getQueue(w http.ResponseWriter, r *http.Request) {
	n := defaultPeek
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = v
	}
	if s.deps.Queue == nil {
		writeJSON(w, http.StatusOK, map[string]any{"size": 0, "entries": []radar.QueueEntry{}})
		return
	}
	size, err := s.deps.Queue.Size(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "queue size failed")
		return
	}
	entries, err := s.deps.Queue.Peek(r.Context(), n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "queue peek failed")
		return
	}
	if entries == nil {
		entries = []radar.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"size": size, "entries": entries})
}

func (s *Server) listCandidates(w http.ResponseWriter, r *http.Request) {
	statuses := radar.ActiveStatuses
	if raw := r.URL.Query().Get("status"); raw != "" {
		statuses = nil
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				statuses = append(statuses, radar.CandidateStatus(part))
			}
		}
	}
	cands, err := s.deps.Candidates.ListByStatus(r.Context(), statuses)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list candidates failed")
		return
	}
	if cands == nil {
		cands = []radar.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": cands})
}

// cookieSummary never carries cookie values.
type cookieSummary struct {
	Platform    string             `json:"platform"`
	Status      radar.CookieStatus `json:"status"`
	SavedAt     int64              `json:"saved_at"`
	ExpiresHint int64              `json:"expires_hint,omitempty"`
	Names       []string           `json:"names"`
}

func summarize(c radar.PlatformCookie) cookieSummary {
	names := make([]string, 0, len(c.Cookies))
	for k := range c.Cookies {
		names = append(names, k)
	}
	sort.Strings(names)
	return cookieSummary{
		Platform:    c.Platform,
		Status:      c.Status,
		SavedAt:     c.SavedAt,
		ExpiresHint: c.ExpiresHint,
		Names:       names,
	}
}

func (s *Server) listCookies(w http.ResponseWriter, r *http.Request) {
	cookies, err := s.deps.Cookies.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list cookies failed")
		return
	}
	out := make([]cookieSummary, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, summarize(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"cookies": out})
}

type putCookieRequest struct {
	Cookies      map[string]string `json:"cookies"`
	CookieHeader string            `json:"cookie_header"`
	ExpiresHint  int64             `json:"expires_hint"`
}

func (s *Server) putCookie(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	if _, ok := s.platforms[platform]; !ok {
		writeError(w, http.StatusBadRequest, "unsupported platform")
		return
	}
	var req putCookieRequest
	if !decodeJSON(w, r, maxRequestBytes, &req) {
		return
	}
	bag := radar.ParseCookieHeader(req.CookieHeader)
	for k, v := range req.Cookies {
		bag[k] = v
	}
	if len(bag) == 0 {
		writeError(w, http.StatusBadRequest, "cookies required")
		return
	}
	rec := radar.PlatformCookie{
		Platform:    platform,
		Cookies:     bag,
		SavedAt:     s.deps.Clock.Now().Unix(),
		ExpiresHint: req.ExpiresHint,
		Status:      radar.CookieActive,
	}
	if err := s.deps.Cookies.Save(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "save cookie failed")
		return
	}
	s.logger.Info("cookie stored", zap.String("platform", platform), zap.Int("count", len(bag)))
	writeJSON(w, http.StatusOK, summarize(rec))
}

func (s *Server) ingestBatch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ingest == nil {
		writeError(w, http.StatusNotImplemented, "ingestion not configured")
		return
	}
	var items []radar.Item
	if !decodeJSON(w, r, maxIngestBytes, &items) {
		return
	}
	res, err := s.deps.Ingest.IngestBatch(r.Context(), items, chi.URLParam(r, "source"))
	if errors.Is(err, radar.ErrUnknownSource) {
		writeError(w, http.StatusNotFound, "unknown source")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ingest failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
