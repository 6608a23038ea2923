package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"unicode/utf8"

	"github.com/gorilla/mux"

	"soyle/internal/catalog"
	"soyle/internal/exercise"
	"soyle/internal/logger"
	"soyle/internal/models"
	"soyle/internal/progress"
	"soyle/internal/session"
	"soyle/internal/speech"
)

// ApiHandler держит каталог, сессии прогресса и озвучку.
type ApiHandler struct {
	Catalog  *catalog.Catalog
	Sessions *session.Manager
	Speech   speech.Synthesizer
	Log      *logger.Logger
	opts     Options
}

func NewApiHandler(cat *catalog.Catalog, sessions *session.Manager, synth speech.Synthesizer, opts Options, log *logger.Logger) *ApiHandler {
	if synth == nil {
		synth = speech.Disabled{}
	}
	return &ApiHandler{
		Catalog:  cat,
		Sessions: sessions,
		Speech:   synth,
		Log:      log.With("component", "ApiHandler"),
		opts:     opts,
	}
}

type LessonView struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Points   int             `json:"points"`
	Status   progress.Status `json:"status"`
	Playable bool            `json:"playable"`
}

type SectionView struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	TotalPoints  int          `json:"totalPoints"`
	EarnedPoints int          `json:"earnedPoints"`
	Lessons      []LessonView `json:"lessons"`
}

type SectionsResponse struct {
	State    string          `json:"state"`
	Progress models.Progress `json:"progress"`
	Sections []SectionView   `json:"sections"`
}

// loadSession загружает прогресс текущей Identity. ok == false - ответ уже отправлен.
func (h *ApiHandler) loadSession(w http.ResponseWriter, r *http.Request) (session.Snapshot, bool) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "Identity required")
		return session.Snapshot{}, false
	}
	// новому устройству читать нечего; сессия появится при первой записи
	if id.Anonymous() && NewDevice(r.Context()) {
		return session.Snapshot{State: session.Ready, Progress: models.Progress{CompletedLessons: []string{}}}, true
	}
	sess, err := h.Sessions.Get(id)
	if err != nil {
		h.respondWithProgressError(w, err)
		return session.Snapshot{}, false
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.LoadWait)
	defer cancel()
	snap, err := sess.Load(ctx)
	if errors.Is(err, context.DeadlineExceeded) && r.Context().Err() == nil {
		// загрузка продолжается в очереди сессии, клиент повторит запрос
		respondWithJSON(w, http.StatusAccepted, map[string]string{"state": session.Loading.String()})
		return session.Snapshot{}, false
	}
	if err != nil {
		h.respondWithProgressError(w, err)
		return session.Snapshot{}, false
	}
	return snap, true
}

func (h *ApiHandler) GetSections(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	completed := snap.Progress.CompletedSet()
	resp := SectionsResponse{State: snap.State.String(), Progress: snap.Progress, Sections: []SectionView{}}
	for _, s := range h.Catalog.Sections() {
		sv := SectionView{ID: s.ID, Title: s.Title, TotalPoints: s.TotalPoints, Lessons: []LessonView{}}
		for i, st := range progress.Unlock(s.Lessons, completed) {
			l := s.Lessons[i]
			if st.Status == progress.StatusCompleted {
				sv.EarnedPoints += l.Points
			}
			sv.Lessons = append(sv.Lessons, LessonView{
				ID:       l.ID,
				Title:    l.Title,
				Points:   l.Points,
				Status:   st.Status,
				Playable: st.Playable() && l.Playable(),
			})
		}
		resp.Sections = append(resp.Sections, sv)
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// PublicTask - задание без правильного ответа.
type PublicTask struct {
	ID       string      `json:"id"`
	Type     models.Kind `json:"type"`
	Question string      `json:"question"`
	Options  []string    `json:"options,omitempty"`
	Words    []string    `json:"words,omitempty"`
	// Prompts и Answers - две колонки MATCH_PAIRS; Answers отсортированы.
	Prompts []string `json:"prompts,omitempty"`
	Answers []string `json:"answers,omitempty"`
}

type LessonResponse struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	SectionID string       `json:"sectionId"`
	Points    int          `json:"points"`
	Tasks     []PublicTask `json:"tasks"`
}

func publicTask(ex models.Exercise) PublicTask {
	t := models.TaskOf(ex)
	pt := PublicTask{ID: t.ID, Type: t.Type, Question: t.Question, Options: t.Options, Words: t.Words}
	for _, p := range t.Pairs {
		pt.Prompts = append(pt.Prompts, p.Prompt)
		pt.Answers = append(pt.Answers, p.Answer)
	}
	sort.Strings(pt.Answers)
	return pt
}

func (h *ApiHandler) GetLesson(w http.ResponseWriter, r *http.Request) {
	lesson, ok := h.Catalog.Lesson(mux.Vars(r)["lesson_id"])
	if !ok {
		respondWithError(w, http.StatusNotFound, "Lesson not found")
		return
	}

	resp := LessonResponse{ID: lesson.ID, Title: lesson.Title, SectionID: lesson.SectionID, Points: lesson.Points, Tasks: []PublicTask{}}
	for _, ex := range lesson.Tasks {
		resp.Tasks = append(resp.Tasks, publicTask(ex))
	}
	respondWithJSON(w, http.StatusOK, resp)
}

type CheckRequest struct {
	Answer json.RawMessage `json:"answer"`
}

type CheckResponse struct {
	Correct     bool   `json:"correct"`
	Explanation string `json:"explanation,omitempty"`
}

func (h *ApiHandler) CheckAnswer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	lesson, ok := h.Catalog.Lesson(vars["lesson_id"])
	if !ok {
		respondWithError(w, http.StatusNotFound, "Lesson not found")
		return
	}
	ex, ok := lesson.Task(vars["task_id"])
	if !ok {
		respondWithError(w, http.StatusNotFound, "Task not found")
		return
	}

	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Answer) == 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	answer, err := exercise.DecodeAnswer(ex, req.Answer)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid answer")
		return
	}

	respondWithJSON(w, http.StatusOK, CheckResponse{
		Correct:     exercise.Validate(ex, answer),
		Explanation: models.Explanation(ex),
	})
}

type CompleteResponse struct {
	Progress         models.Progress `json:"progress"`
	AlreadyCompleted bool            `json:"alreadyCompleted"`
	StreakChanged    bool            `json:"streakChanged"`
}

func (h *ApiHandler) CompleteLesson(w http.ResponseWriter, r *http.Request) {
	lesson, ok := h.Catalog.Lesson(mux.Vars(r)["lesson_id"])
	if !ok {
		respondWithError(w, http.StatusNotFound, "Lesson not found")
		return
	}
	if !lesson.Playable() {
		respondWithError(w, http.StatusBadRequest, "Lesson has no tasks")
		return
	}

	id, _ := IdentityFrom(r.Context())
	sess, err := h.Sessions.Get(id)
	if err != nil {
		h.respondWithProgressError(w, err)
		return
	}

	out, err := sess.CompleteLesson(r.Context(), lesson.ID, lesson.Points)
	if err != nil {
		h.respondWithProgressError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, CompleteResponse{
		Progress:         out.Progress,
		AlreadyCompleted: out.AlreadyCompleted,
		StreakChanged:    out.Streak != nil,
	})
}

type ProgressResponse struct {
	State    string          `json:"state"`
	Progress models.Progress `json:"progress"`
}

func (h *ApiHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, ProgressResponse{State: snap.State.String(), Progress: snap.Progress})
}

type MergeResponse struct {
	Imported []string        `json:"imported"`
	Progress models.Progress `json:"progress"`
}

// MergeProgress переносит анонимный прогресс текущего устройства в запись пользователя.
func (h *ApiHandler) MergeProgress(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	if id.Anonymous() {
		respondWithError(w, http.StatusUnauthorized, "Sign in to keep your progress")
		return
	}

	res, err := h.Sessions.MergeAnonymous(r.Context(), id, id.DeviceID, h.Catalog.Points)
	if err != nil {
		h.respondWithProgressError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, MergeResponse{Imported: res.Imported, Progress: res.Progress})
}

func (h *ApiHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	var req speech.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if utf8.RuneCountInString(req.Text) > h.opts.MaxTTSChars {
		respondWithError(w, http.StatusBadRequest, "Text is too long")
		return
	}

	audio, err := h.Speech.Synthesize(r.Context(), req)
	var statusErr *speech.StatusError
	switch {
	case err == nil:
	case errors.Is(err, speech.ErrEmptyText):
		respondWithError(w, http.StatusBadRequest, "Text is required")
		return
	case errors.Is(err, speech.ErrUnsupported):
		respondWithError(w, http.StatusNotImplemented, "Speech synthesis is not available")
		return
	case errors.As(err, &statusErr):
		h.Log.Warn("speech backend rejected request", "backend", statusErr.Backend, "status", statusErr.Status, "body", statusErr.Body)
		respondWithError(w, http.StatusBadGateway, "Speech synthesis failed")
		return
	default:
		h.Log.Error("speech synthesis failed", "error", err)
		respondWithError(w, http.StatusBadGateway, "Speech synthesis failed")
		return
	}

	w.Header().Set("Content-Type", audio.ContentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	w.Write(audio.Data)
}

func (h *ApiHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Вспомогательные функции ---

func (h *ApiHandler) respondWithProgressError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, progress.ErrPermissionDenied):
		h.Log.Warn("progress store denied access", "error", err)
		respondWithError(w, http.StatusForbidden, "Progress was not saved: permission denied")
	case errors.Is(err, progress.ErrStoreUnavailable), errors.Is(err, session.ErrClosed):
		h.Log.Warn("progress store unavailable", "error", err)
		respondWithError(w, http.StatusServiceUnavailable, "Progress is temporarily unavailable, try again later")
	case errors.Is(err, session.ErrInvalidLesson):
		respondWithError(w, http.StatusBadRequest, "Invalid lesson")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusGatewayTimeout, "Request cancelled")
	default:
		h.Log.Error("progress operation failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to process progress")
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
