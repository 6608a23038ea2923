package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/golang-jwt/jwt/v5"

	"soyle/internal/catalog"
	"soyle/internal/logger"
	"soyle/internal/models"
	"soyle/internal/progress"
	"soyle/internal/session"
	"soyle/internal/speech"
	"soyle/internal/store/local"
)

var (
	testSecret = []byte("test-secret")
	today      = civil.Date{Year: 2025, Month: time.March, Day: 1}
)

type testServer struct {
	router http.Handler
	remote progress.Store
	mgr    *session.Manager
}

func newTestServer(t *testing.T, remote progress.Store, synth speech.Synthesizer) *testServer {
	t.Helper()
	cat, err := catalog.Default()
	if err != nil {
		t.Fatal(err)
	}
	if remote == nil {
		remote = progress.NewMemoryStore()
	}
	localStore := local.NewStore(local.NewMemoryNamespaces(), logger.Nop())
	mgr := session.NewManager(remote, localStore, progress.FixedClock(today), logger.Nop())
	t.Cleanup(mgr.Close)

	opts := DefaultOptions()
	opts.JWTSecret = testSecret
	opts.LoadWait = 200 * time.Millisecond
	opts.MaxTTSChars = 20
	h := NewApiHandler(cat, mgr, synth, opts, logger.Nop())
	return &testServer{router: NewRouter(h), remote: remote, mgr: mgr}
}

type requestOpt func(*http.Request)

func asDevice(id string) requestOpt {
	return func(r *http.Request) { r.Header.Set(DeviceHeader, id) }
}

func asUser(t *testing.T, userID string) requestOpt {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:           userID,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	signed, err := token.SignedString(testSecret)
	if err != nil {
		t.Fatal(err)
	}
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+signed) }
}

func (s *testServer) do(method, path, body string, opts ...requestOpt) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	for _, o := range opts {
		o(r)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func lessonStatuses(resp SectionsResponse, sectionID string) map[string]progress.Status {
	out := map[string]progress.Status{}
	for _, s := range resp.Sections {
		if s.ID != sectionID {
			continue
		}
		for _, l := range s.Lessons {
			out[l.ID] = l.Status
		}
	}
	return out
}

func TestSections_AnonymousFlow(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := srv.do("GET", "/api/sections", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	issued := w.Header().Get(DeviceHeader)
	if issued == "" || !strings.Contains(w.Header().Get("Set-Cookie"), "device_id="+issued) {
		t.Fatalf("device id not issued: header %q, cookie %q", issued, w.Header().Get("Set-Cookie"))
	}
	resp := decode[SectionsResponse](t, w)
	st := lessonStatuses(resp, "section-1")
	if st["s1-l1"] != progress.StatusCurrent || st["s1-l2"] != progress.StatusLocked {
		t.Errorf("initial statuses = %v", st)
	}

	w = srv.do("POST", "/api/lessons/s1-l1/complete", "", asDevice(issued))
	if w.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body = %s", w.Code, w.Body)
	}
	done := decode[CompleteResponse](t, w)
	if done.Progress.XP != 5 || !done.StreakChanged || done.Progress.CurrentStreak != 1 {
		t.Errorf("complete = %+v", done)
	}

	w = srv.do("POST", "/api/lessons/s1-l1/complete", "", asDevice(issued))
	again := decode[CompleteResponse](t, w)
	if !again.AlreadyCompleted || again.Progress.XP != 5 {
		t.Errorf("second complete = %+v", again)
	}

	resp = decode[SectionsResponse](t, srv.do("GET", "/api/sections", "", asDevice(issued)))
	st = lessonStatuses(resp, "section-1")
	if st["s1-l1"] != progress.StatusCompleted || st["s1-l2"] != progress.StatusCurrent || st["s1-l3"] != progress.StatusLocked {
		t.Errorf("statuses after completion = %v", st)
	}
	if resp.Sections[0].EarnedPoints != 5 {
		t.Errorf("earned points = %d, want 5", resp.Sections[0].EarnedPoints)
	}

	// другое устройство прогресс не видит
	other := decode[ProgressResponse](t, srv.do("GET", "/api/progress", "", asDevice("other-device")))
	if other.Progress.XP != 0 || other.State != "ready" {
		t.Errorf("other device progress = %+v", other)
	}
}

func TestCompleteLesson_Errors(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	if w := srv.do("POST", "/api/lessons/nope/complete", "", asDevice("d1")); w.Code != http.StatusNotFound {
		t.Errorf("unknown lesson status = %d", w.Code)
	}
	if w := srv.do("POST", "/api/lessons/s2-l1/complete", "", asDevice("d1")); w.Code != http.StatusBadRequest {
		t.Errorf("task-less lesson status = %d", w.Code)
	}
}

func TestGetLesson_HidesAnswers(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := srv.do("GET", "/api/lessons/s1-l2", "", asDevice("d1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if strings.Contains(body, "correctAnswer") || strings.Contains(body, "explanation") {
		t.Errorf("lesson leaks answers: %s", body)
	}
	lesson := decode[LessonResponse](t, w)
	if len(lesson.Tasks) == 0 {
		t.Fatal("no tasks")
	}

	if w := srv.do("GET", "/api/lessons/missing", "", asDevice("d1")); w.Code != http.StatusNotFound {
		t.Errorf("missing lesson status = %d", w.Code)
	}
}

func TestCheckAnswer(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	tests := []struct {
		name        string
		path        string
		body        string
		wantCode    int
		wantCorrect bool
	}{
		{"true false correct", "/api/lessons/s1-l1/tasks/s1-l1-t4/check", `{"answer": false}`, http.StatusOK, true},
		{"true false wrong", "/api/lessons/s1-l1/tasks/s1-l1-t4/check", `{"answer": true}`, http.StatusOK, false},
		{"wrong shape", "/api/lessons/s1-l1/tasks/s1-l1-t4/check", `{"answer": "false"}`, http.StatusOK, false},
		{"malformed body", "/api/lessons/s1-l1/tasks/s1-l1-t4/check", `{"answer":`, http.StatusBadRequest, false},
		{"missing answer", "/api/lessons/s1-l1/tasks/s1-l1-t4/check", `{}`, http.StatusBadRequest, false},
		{"unknown task", "/api/lessons/s1-l1/tasks/nope/check", `{"answer": true}`, http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do("POST", tt.path, tt.body, asDevice("d1"))
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body = %s", w.Code, tt.wantCode, w.Body)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			if got := decode[CheckResponse](t, w); got.Correct != tt.wantCorrect {
				t.Errorf("correct = %v, want %v", got.Correct, tt.wantCorrect)
			}
		})
	}
}

func TestIdentity_Tokens(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	w := srv.do("POST", "/api/lessons/s1-l1/complete", "", asUser(t, "u1"), asDevice("d1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}
	p, err := srv.remote.GetProgress(context.Background(), models.Identity{UserID: "u1"})
	if err != nil || p.XP != 5 {
		t.Errorf("remote progress = %+v, %v", p, err)
	}

	bad := func(r *http.Request) { r.Header.Set("Authorization", "Bearer not-a-token") }
	if w := srv.do("GET", "/api/progress", "", bad); w.Code != http.StatusUnauthorized {
		t.Errorf("invalid token status = %d", w.Code)
	}
	basic := func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") }
	if w := srv.do("GET", "/api/progress", "", basic); w.Code != http.StatusUnauthorized {
		t.Errorf("basic auth status = %d", w.Code)
	}

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:           "u1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
	})
	signed, _ := expired.SignedString(testSecret)
	w = srv.do("GET", "/api/progress", "", func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+signed) })
	if w.Code != http.StatusUnauthorized || !strings.Contains(w.Body.String(), "expired") {
		t.Errorf("expired token = %d %s", w.Code, w.Body)
	}
}

func TestMergeProgress(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	for _, id := range []string{"s1-l1", "s1-l2"} {
		if w := srv.do("POST", "/api/lessons/"+id+"/complete", "", asDevice("d1")); w.Code != http.StatusOK {
			t.Fatalf("complete %s = %d", id, w.Code)
		}
	}

	if w := srv.do("POST", "/api/progress/merge", "", asDevice("d1")); w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous merge status = %d", w.Code)
	}

	w := srv.do("POST", "/api/progress/merge", "", asUser(t, "u1"), asDevice("d1"))
	if w.Code != http.StatusOK {
		t.Fatalf("merge status = %d, body = %s", w.Code, w.Body)
	}
	res := decode[MergeResponse](t, w)
	if len(res.Imported) != 2 || res.Progress.XP != 10 {
		t.Errorf("merge = %+v", res)
	}

	res = decode[MergeResponse](t, srv.do("POST", "/api/progress/merge", "", asUser(t, "u1"), asDevice("d1")))
	if len(res.Imported) != 0 || res.Progress.XP != 10 {
		t.Errorf("second merge = %+v", res)
	}
}

type failingStore struct {
	*progress.MemoryStore
	getErr, applyErr error
	gate             chan struct{}
}

func (f *failingStore) GetProgress(ctx context.Context, id models.Identity) (models.Progress, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.getErr != nil {
		return models.Progress{}, f.getErr
	}
	return f.MemoryStore.GetProgress(ctx, id)
}

func (f *failingStore) ApplyCompletion(ctx context.Context, id models.Identity, d progress.Delta) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	return f.MemoryStore.ApplyCompletion(ctx, id, d)
}

func TestProgressErrors(t *testing.T) {
	tests := []struct {
		name     string
		store    *failingStore
		method   string
		path     string
		wantCode int
	}{
		{"permission denied", &failingStore{applyErr: progress.ErrPermissionDenied}, "POST", "/api/lessons/s1-l1/complete", http.StatusForbidden},
		{"unavailable write", &failingStore{applyErr: progress.ErrStoreUnavailable}, "POST", "/api/lessons/s1-l1/complete", http.StatusServiceUnavailable},
		{"unavailable load", &failingStore{getErr: progress.ErrStoreUnavailable}, "GET", "/api/progress", http.StatusServiceUnavailable},
		{"unexpected", &failingStore{getErr: errors.New("boom")}, "GET", "/api/sections", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.store.MemoryStore = progress.NewMemoryStore()
			srv := newTestServer(t, tt.store, nil)
			w := srv.do(tt.method, tt.path, "", asUser(t, "u1"))
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d; body = %s", w.Code, tt.wantCode, w.Body)
			}
		})
	}
}

func TestSections_Loading(t *testing.T) {
	store := &failingStore{MemoryStore: progress.NewMemoryStore(), gate: make(chan struct{})}
	srv := newTestServer(t, store, nil)

	w := srv.do("GET", "/api/sections", "", asUser(t, "u1"))
	if w.Code != http.StatusAccepted || !strings.Contains(w.Body.String(), `"loading"`) {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}

	close(store.gate)
	w = srv.do("GET", "/api/sections", "", asUser(t, "u1"))
	if w.Code != http.StatusOK {
		t.Errorf("status after load = %d", w.Code)
	}
}

type fakeSynth struct{}

func (fakeSynth) Name() string { return "fake" }

func (fakeSynth) Synthesize(_ context.Context, req speech.Request) (speech.Audio, error) {
	if strings.TrimSpace(req.Text) == "" {
		return speech.Audio{}, speech.ErrEmptyText
	}
	return speech.Audio{Data: []byte("mp3:" + req.Text), ContentType: "audio/mpeg"}, nil
}

func TestSynthesize(t *testing.T) {
	srv := newTestServer(t, nil, fakeSynth{})

	w := srv.do("POST", "/api/tts", `{"text":"Сәлем","lang":"kk-KZ"}`, asDevice("d1"))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "audio/mpeg" {
		t.Fatalf("status = %d, type = %q", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.Equal(w.Body.Bytes(), []byte("mp3:Сәлем")) {
		t.Errorf("body = %q", w.Body.Bytes())
	}

	if w := srv.do("POST", "/api/tts", `{"text":"`+strings.Repeat("ә", 21)+`"}`, asDevice("d1")); w.Code != http.StatusBadRequest {
		t.Errorf("long text status = %d", w.Code)
	}
	if w := srv.do("POST", "/api/tts", `{"text":"  "}`, asDevice("d1")); w.Code != http.StatusBadRequest {
		t.Errorf("empty text status = %d", w.Code)
	}

	disabled := newTestServer(t, nil, nil)
	if w := disabled.do("POST", "/api/tts", `{"text":"x"}`, asDevice("d1")); w.Code != http.StatusNotImplemented {
		t.Errorf("disabled status = %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	if w := srv.do("GET", "/healthz", ""); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestNewDevice_ReadsDoNotOpenSessions(t *testing.T) {
	srv := newTestServer(t, nil, nil)

	for i := 0; i < 200; i++ {
		path := "/api/progress"
		if i%2 == 1 {
			path = "/api/sections"
		}
		w := srv.do(http.MethodGet, path, "")
		if w.Code != http.StatusOK {
			t.Fatalf("GET %s: status = %d, body %s", path, w.Code, w.Body.String())
		}
	}
	if n := srv.mgr.Len(); n != 0 {
		t.Errorf("open sessions = %d, want 0", n)
	}

	w := srv.do(http.MethodGet, "/api/progress", "")
	resp := decode[ProgressResponse](t, w)
	if resp.State != "ready" || resp.Progress.XP != 0 {
		t.Errorf("new device progress = %+v", resp)
	}

	// запись с выданным id открывает сессию, дальше устройство читает свой прогресс
	deviceID := w.Header().Get(DeviceHeader)
	if w := srv.do(http.MethodPost, "/api/lessons/s1-l1/complete", "", asDevice(deviceID)); w.Code != http.StatusOK {
		t.Fatalf("complete: status = %d, body %s", w.Code, w.Body.String())
	}
	if n := srv.mgr.Len(); n != 1 {
		t.Errorf("open sessions = %d, want 1", n)
	}
	got := decode[ProgressResponse](t, srv.do(http.MethodGet, "/api/progress", "", asDevice(deviceID)))
	if got.Progress.XP == 0 {
		t.Errorf("device progress after completion = %+v", got.Progress)
	}
}
