// internal/webhook/server.go
package webhook

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/user/telerpg/internal/game"
	"github.com/user/telerpg/internal/observability"
	"github.com/user/telerpg/internal/scheduler"
	"github.com/user/telerpg/internal/types"
)

// Server is the ops HTTP surface: health, metrics, and a read-mostly
// JSON API over players and scheduled actions.
type Server struct {
	players types.PlayerStore
	actions types.ActionStore
	journal types.JournalStore
	sched   *scheduler.Scheduler
	mux     *http.ServeMux
}

// NewServer creates the ops server. sched may be nil, which disables
// the cancel endpoint.
func NewServer(players types.PlayerStore, actions types.ActionStore, journal types.JournalStore, sched *scheduler.Scheduler) *Server {
	s := &Server{
		players: players,
		actions: actions,
		journal: journal,
		sched:   sched,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", observability.MetricsHandler())
	s.mux.HandleFunc("GET /api/players", s.handlePlayers)
	s.mux.HandleFunc("GET /api/players/", s.handlePlayerJournal)
	s.mux.HandleFunc("GET /api/actions", s.handleActions)
	s.mux.HandleFunc("POST /api/actions/", s.handleActionCancel)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type playerResponse struct {
	ID            string `json:"id"`
	SubjectID     string `json:"subject_id"`
	Name          string `json:"name"`
	Class         string `json:"class"`
	Level         int    `json:"level"`
	Status        string `json:"status"`
	CurrentAreaID int    `json:"current_area_id"`
	CreatedAt     string `json:"created_at"`
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	players, err := s.players.List(r.Context())
	if err != nil {
		slog.Error("list players failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	result := make([]playerResponse, 0, len(players))
	for _, p := range players {
		result = append(result, playerResponse{
			ID:            string(p.ID),
			SubjectID:     string(p.SubjectID),
			Name:          p.Name,
			Class:         p.Class,
			Level:         p.Level,
			Status:        string(p.Status),
			CurrentAreaID: p.CurrentAreaID,
			CreatedAt:     p.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// handlePlayerJournal serves /api/players/{subject}/journal.
func (s *Server) handlePlayerJournal(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/players/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 || parts[1] != "journal" {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	subject := types.SubjectID(parts[0])

	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.journal.Tail(r.Context(), subject, limit)
	if err != nil {
		slog.Error("tail journal failed", "subject", subject, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*types.JournalEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	// Only pending actions are listed; terminal rows are history, not
	// operational state.
	actions, err := s.actions.ListPending(r.Context())
	if err != nil {
		slog.Error("list actions failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if actions == nil {
		actions = []*types.ScheduledAction{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(actions)
}

// handleActionCancel serves POST /api/actions/{id}/cancel.
func (s *Server) handleActionCancel(w http.ResponseWriter, r *http.Request) {
	if s.sched == nil {
		http.Error(w, `{"error":"cancel not configured"}`, http.StatusServiceUnavailable)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/actions/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) < 2 || parts[1] != "cancel" || parts[0] == "" {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
		return
	}
	id := types.ActionID(parts[0])

	// Load first: the cancel must also release the owning player.
	action, err := s.actions.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			http.Error(w, `{"error":"action not found or not pending"}`, http.StatusNotFound)
			return
		}
		slog.Error("load action failed", "action_id", id, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	if err := s.sched.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			http.Error(w, `{"error":"action not found or not pending"}`, http.StatusNotFound)
			return
		}
		slog.Error("cancel action failed", "action_id", id, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	if err := game.ReleaseIdle(r.Context(), s.players, action.SubjectID); err != nil {
		slog.Error("release player after cancel", "subject", action.SubjectID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "cancelled"})
}
