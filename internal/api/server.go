// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/user/boxwatch/internal/history"
	"github.com/user/boxwatch/internal/state"
	"github.com/user/boxwatch/internal/types"
)

// HistoryReader reads recorded status transitions.
type HistoryReader interface {
	Tail(ctx context.Context, peerID types.PeerID, limit int) ([]*history.Entry, error)
}

// Server exposes the state container over HTTP.
type Server struct {
	store   *state.Store
	history HistoryReader
	mux     *http.ServeMux
}

// NewServer creates a Server. history and metrics may be nil; the matching
// endpoints then answer 503 and 404 respectively.
func NewServer(store *state.Store, hist HistoryReader, metrics http.Handler) *Server {
	s := &Server{
		store:   store,
		history: hist,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("POST /api/reset", s.handleReset)
	s.mux.HandleFunc("GET /api/devices", s.handleListDevices)
	s.mux.HandleFunc("POST /api/devices", s.handleAddDevice)
	s.mux.HandleFunc("GET /api/devices/{peerID}", s.handleGetDevice)
	s.mux.HandleFunc("PATCH /api/devices/{peerID}", s.handleUpdateDevice)
	s.mux.HandleFunc("DELETE /api/devices/{peerID}", s.handleRemoveDevice)
	s.mux.HandleFunc("POST /api/devices/{peerID}/select", s.handleSelectDevice)
	s.mux.HandleFunc("POST /api/devices/{peerID}/check", s.handleCheck)
	s.mux.HandleFunc("POST /api/devices/{peerID}/space", s.handleSpace)
	s.mux.HandleFunc("GET /api/devices/{peerID}/history", s.handleHistory)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// DeviceView is a device together with its runtime status.
type DeviceView struct {
	types.Device
	Status  types.ConnectionStatus `json:"status,omitempty"`
	Current bool                   `json:"current"`
}

// CheckResult is the response of POST /api/devices/{peerID}/check.
type CheckResult struct {
	PeerID    types.PeerID           `json:"peerId"`
	Connected bool                   `json:"connected"`
	Status    types.ConnectionStatus `json:"status"`
	Error     string                 `json:"error,omitempty"`
}

// Health is the body of GET /health.
type Health struct {
	Status        string `json:"status"`
	Hydrated      bool   `json:"hydrated"`
	PendingWrites int64  `json:"pending_writes"`
}

// UpdateRequest is the body of PATCH /api/devices/{peerID}.
type UpdateRequest struct {
	Name      *string          `json:"name,omitempty"`
	FreeSpace *types.FreeSpace `json:"freeSpace,omitempty"`
	Attrs     map[string]any   `json:"attrs,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func peerID(r *http.Request) types.PeerID {
	return types.PeerID(r.PathValue("peerID"))
}

func (s *Server) view(snap state.Snapshot, id types.PeerID) DeviceView {
	return DeviceView{
		Device:  snap.Devices[id],
		Status:  snap.ConnectionStatus[id],
		Current: id == snap.CurrentPeerID,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Health{
		Status:        "ok",
		Hydrated:      s.store.Hydrated(),
		PendingWrites: s.store.PendingWrites(),
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.store.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	ids := make([]types.PeerID, 0, len(snap.Devices))
	for id := range snap.Devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	result := make([]DeviceView, 0, len(ids))
	for _, id := range ids {
		result = append(result, s.view(snap, id))
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	var d types.Device
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.store.AddDevice(d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s.view(s.store.Snapshot(), d.PeerID))
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := peerID(r)
	snap := s.store.Snapshot()
	if _, ok := snap.Devices[id]; !ok {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, s.view(snap, id))
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	id := peerID(r)
	patch := types.DevicePatch{PeerID: id, Name: req.Name, FreeSpace: req.FreeSpace, Attrs: req.Attrs}
	if err := s.store.UpdateDevice(patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.view(s.store.Snapshot(), id))
}

func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	s.store.RemoveDevice(peerID(r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSelectDevice(w http.ResponseWriter, r *http.Request) {
	id := peerID(r)
	if _, ok := s.store.Device(id); !ok {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	s.store.SelectDevice(id)
	writeJSON(w, http.StatusOK, s.view(s.store.Snapshot(), id))
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	id := peerID(r)
	connected, err := s.store.CheckConnection(r.Context(), id)
	status, _ := s.store.Status(id)
	res := CheckResult{PeerID: id, Connected: connected, Status: status}
	if err != nil {
		slog.Warn("connection check failed", "peer_id", id, "error", err)
		res.Error = err.Error()
		writeJSON(w, http.StatusBadGateway, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSpace(w http.ResponseWriter, r *http.Request) {
	id := peerID(r)
	var opts []state.FreeSpaceOption
	if store, err := strconv.ParseBool(r.URL.Query().Get("store")); err == nil && !store {
		opts = append(opts, state.WithoutStoreUpdate())
	}
	fs, err := s.store.GetFreeSpace(r.Context(), id, opts...)
	if err != nil {
		slog.Warn("free space fetch failed", "peer_id", id, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fs)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history not configured")
		return
	}
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			limit = n
		}
	}

	id := peerID(r)
	entries, err := s.history.Tail(r.Context(), id, limit)
	if err != nil {
		slog.Error("tail history failed", "peer_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if entries == nil {
		entries = []*history.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
