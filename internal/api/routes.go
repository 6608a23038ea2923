package api

import "github.com/gorilla/mux"

// NewRouter регистрирует все эндпоинты сервиса.
func NewRouter(h *ApiHandler) *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(h.Log))
	r.HandleFunc("/healthz", h.Healthz).Methods("GET")

	s := r.PathPrefix("/api").Subrouter()
	s.Use(IdentityMiddleware(h.opts))
	s.HandleFunc("/sections", h.GetSections).Methods("GET")
	s.HandleFunc("/lessons/{lesson_id}", h.GetLesson).Methods("GET")
	s.HandleFunc("/lessons/{lesson_id}/tasks/{task_id}/check", h.CheckAnswer).Methods("POST")
	s.HandleFunc("/lessons/{lesson_id}/complete", h.CompleteLesson).Methods("POST")
	s.HandleFunc("/progress", h.GetProgress).Methods("GET")
	s.HandleFunc("/progress/merge", h.MergeProgress).Methods("POST")
	s.HandleFunc("/tts", h.Synthesize).Methods("POST")
	return r
}
