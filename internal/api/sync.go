package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"insp/internal/models"
)

// syncRequest is the body of POST /v1/sync.
type syncRequest struct {
	UserID   string             `json:"user_id"`
	DeviceID string             `json:"device_id"`
	Changes  []models.Change    `json:"changes"`
	Options  models.SyncOptions `json:"options"`
}

// handleSync runs a full sync session with the supplied client changes.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "user_id and device_id are required")
		return
	}
	if req.Options.Strategy != "" && !models.ValidStrategy(req.Options.Strategy) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "unknown strategy "+strconv.Quote(string(req.Options.Strategy)))
		return
	}

	s.metrics.RecordSyncStarted()
	result, err := s.engine.Synchronize(r.Context(), req.UserID, req.DeviceID, req.Changes, req.Options)
	if err != nil {
		s.metrics.RecordSyncFailed()
		logFor(r.Context()).Error("sync", "user", req.UserID, "device", req.DeviceID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeSyncFailed, err.Error())
		return
	}
	s.metrics.RecordSyncCompleted(result.AppliedCount, result.ConflictCount)
	writeJSON(w, http.StatusOK, result)
}

// forceSyncRequest is the body of POST /v1/sync/force.
type forceSyncRequest struct {
	UserID   string             `json:"user_id"`
	DeviceID string             `json:"device_id"`
	Options  models.SyncOptions `json:"options"`
}

// handleForceSync drains the offline queue for a (user, device) pair.
func (s *Server) handleForceSync(w http.ResponseWriter, r *http.Request) {
	var req forceSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "user_id and device_id are required")
		return
	}

	s.metrics.RecordSyncStarted()
	result, err := s.engine.ForceSync(r.Context(), req.UserID, req.DeviceID, req.Options)
	if err != nil {
		s.metrics.RecordSyncFailed()
		logFor(r.Context()).Error("force sync", "user", req.UserID, "device", req.DeviceID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeSyncFailed, err.Error())
		return
	}
	s.metrics.RecordSyncCompleted(result.AppliedCount, result.ConflictCount)
	writeJSON(w, http.StatusOK, result)
}

// pairParams pulls the user_id and device_id query parameters.
func pairParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	userID := r.URL.Query().Get("user_id")
	deviceID := r.URL.Query().Get("device_id")
	if userID == "" || deviceID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "user_id and device_id query parameters are required")
		return "", "", false
	}
	return userID, deviceID, true
}

// handleSyncStatus reports the sync state of one (user, device) pair.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	userID, deviceID, ok := pairParams(w, r)
	if !ok {
		return
	}
	status, err := s.engine.GetStatus(r.Context(), userID, deviceID)
	if err != nil {
		logFor(r.Context()).Error("sync status", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to read sync status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleListBatches returns the most recent sync batches for a user.
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "user_id query parameter is required")
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	batches, err := s.store.ListRecentBatches(r.Context(), userID, limit)
	if err != nil {
		logFor(r.Context()).Error("list batches", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list batches")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

// queueRequest is the body of POST /v1/sync/queue.
type queueRequest struct {
	UserID   string        `json:"user_id"`
	DeviceID string        `json:"device_id"`
	Change   models.Change `json:"change"`
}

// handleQueueOperation appends a change to the offline queue.
func (s *Server) handleQueueOperation(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "user_id and device_id are required")
		return
	}

	if err := s.engine.QueueOperation(r.Context(), req.UserID, req.DeviceID, req.Change); err != nil {
		if strings.Contains(err.Error(), "unknown") {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		logFor(r.Context()).Error("queue operation", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to queue operation")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// handleGetQueue returns the pending offline queue for a pair.
func (s *Server) handleGetQueue(w http.ResponseWriter, r *http.Request) {
	userID, deviceID, ok := pairParams(w, r)
	if !ok {
		return
	}
	ops, err := s.engine.GetPendingOperations(r.Context(), userID, deviceID)
	if err != nil {
		logFor(r.Context()).Error("get queue", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to read queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": ops, "depth": len(ops)})
}

// handleListConflicts returns a user's pending conflicts.
func (s *Server) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "user_id query parameter is required")
		return
	}
	conflicts, err := s.engine.ListPendingConflicts(r.Context(), userID)
	if err != nil {
		logFor(r.Context()).Error("list conflicts", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to list conflicts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": conflicts})
}

// resolveRequest is the body of POST /v1/conflicts/{id}/resolve.
type resolveRequest struct {
	Strategy   models.Strategy `json:"strategy"`
	MergedData json.RawMessage `json:"merged_data,omitempty"`
	ResolvedBy string          `json:"resolved_by"`
}

// handleResolveConflict resolves one pending conflict out-of-band.
func (s *Server) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	conflictID := r.PathValue("id")
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	if !models.ValidStrategy(req.Strategy) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "unknown strategy "+strconv.Quote(string(req.Strategy)))
		return
	}

	res, err := s.engine.ResolveConflict(r.Context(), conflictID, req.Strategy, req.MergedData, req.ResolvedBy)
	if err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, "not found"):
			writeError(w, http.StatusNotFound, ErrCodeNotFound, msg)
		case strings.Contains(msg, "already resolved"):
			writeError(w, http.StatusConflict, ErrCodeConflict, msg)
		default:
			logFor(r.Context()).Error("resolve conflict", "id", conflictID, "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to resolve conflict")
		}
		return
	}
	if res.Resolved {
		s.metrics.RecordConflictResolved()
	}
	writeJSON(w, http.StatusOK, res)
}
