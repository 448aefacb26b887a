package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)

	mux.HandleFunc("GET /v1/scheduler/status", h.SchedulerStatus)
	mux.HandleFunc("POST /v1/scheduler/start", h.SchedulerStart)
	mux.HandleFunc("POST /v1/scheduler/stop", h.SchedulerStop)
	mux.HandleFunc("POST /v1/scheduler/run", h.RunNow)

	mux.HandleFunc("POST /v1/medications", h.CreateMedication)
	mux.HandleFunc("GET /v1/medications", h.ListMedications)

	mux.HandleFunc("POST /v1/provider/callback", h.ProviderCallback)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("callsched"))
	})

	return mux
}
