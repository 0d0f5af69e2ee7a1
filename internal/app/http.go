package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relayq/pkg/logger"
	"relayq/pkg/session"
)

// router builds the inspection/administration surface. The daemon is a
// local sidecar; this surface is for the embedding application and
// operators, not for the public network.
func (a *App) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/v1/queue/{actor}", a.handleQueueList).Methods(http.MethodGet)
	r.HandleFunc("/v1/queue/{actor}/due", a.handleQueueDue).Methods(http.MethodGet)
	r.HandleFunc("/v1/queue/{actor}/drain", a.handleQueueDrain).Methods(http.MethodPost)

	r.HandleFunc("/v1/deadletters/{actor}", a.handleDeadLetters).Methods(http.MethodGet)
	r.HandleFunc("/v1/deadletters/{actor}/{op}/requeue", a.handleRequeue).Methods(http.MethodPost)

	r.HandleFunc("/v1/sessions/{actor}/{session}", a.handleSessionGet).Methods(http.MethodGet)
	r.HandleFunc("/v1/sessions/{actor}/{session}", a.handleSessionRemove).Methods(http.MethodDelete)

	r.HandleFunc("/v1/signal/online", a.handleSignalOnline).Methods(http.MethodPost)

	return r
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": a.version})
}

func (a *App) handleQueueList(w http.ResponseWriter, r *http.Request) {
	actor := mux.Vars(r)["actor"]
	ops, err := a.queue.List(actor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actor_id": actor, "operations": ops})
}

func (a *App) handleQueueDue(w http.ResponseWriter, r *http.Request) {
	actor := mux.Vars(r)["actor"]
	ops, err := a.queue.ListDue(actor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actor_id": actor, "operations": ops})
}

// handleQueueDrain is the explicit user-action connectivity signal: it
// asks the coordinator to start a drain pass for the actor. The response
// is 202 since the pass runs (and may coalesce) asynchronously.
func (a *App) handleQueueDrain(w http.ResponseWriter, r *http.Request) {
	actor := mux.Vars(r)["actor"]
	a.coord.Signal(actor)
	writeJSON(w, http.StatusAccepted, map[string]string{"actor_id": actor, "status": "drain_requested"})
}

func (a *App) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	actor := mux.Vars(r)["actor"]
	dls, err := a.queue.DeadLetters(actor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actor_id": actor, "dead_letters": dls})
}

func (a *App) handleRequeue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	op, err := a.queue.Requeue(vars["actor"], vars["op"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	a.coord.Signal(vars["actor"])
	writeJSON(w, http.StatusOK, op)
}

func (a *App) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	cp, ok, err := a.sessions.Load(vars["session"], vars["actor"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, cp)
}

func (a *App) handleSessionRemove(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := a.sessions.Remove(vars["session"], vars["actor"]); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) handleSignalOnline(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ActorID string `json:"actor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ActorID == "" {
		writeError(w, http.StatusBadRequest, errors.New("actor_id required"))
		return
	}
	a.coord.Signal(body.ActorID)
	writeJSON(w, http.StatusAccepted, map[string]string{"actor_id": body.ActorID, "status": "signaled"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("write_response_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
