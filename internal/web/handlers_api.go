package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"dyson-go-home/internal/dyson"
	"dyson-go-home/internal/integration"
	"dyson-go-home/internal/store"
)

func (s *Server) handleAPIListEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListEntries()
	if err != nil {
		s.logger.Error("list entries", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	views := make([]EntryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, s.entryView(entry))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIGetEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := s.store.GetEntry(id)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "entry not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, s.entryView(entry))
}

type createEntryRequest struct {
	Serial     string `json:"serial"`
	Credential string `json:"credential"`
	DeviceType string `json:"device_type"`
	Host       string `json:"host"`
	Name       string `json:"name"`
}

// handleAPICreateEntry is the config flow: validate, persist, set up. A
// transient connect failure still creates the entry (the daemon retries in
// the background) and reports 202; a permanent failure creates nothing.
func (s *Server) handleAPICreateEntry(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Serial == "" || req.Credential == "" || req.DeviceType == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "serial, credential and device_type are required"})
		return
	}
	if !dyson.Supported(dyson.DeviceType(req.DeviceType)) {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported device type"})
		return
	}

	entries, err := s.store.ListEntries()
	if err == nil {
		for _, existing := range entries {
			if existing.Serial == req.Serial {
				s.writeJSON(w, http.StatusConflict, map[string]string{"error": "serial already configured"})
				return
			}
		}
	}

	now := time.Now().UTC()
	entry := &store.Entry{
		ID:         store.NewEntryID(),
		Serial:     req.Serial,
		Credential: req.Credential,
		DeviceType: req.DeviceType,
		Host:       req.Host,
		Name:       req.Name,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	setupErr := s.manager.SetUpEntry(r.Context(), entry)
	if setupErr != nil && !errors.Is(setupErr, integration.ErrNotReady) {
		s.logger.Error("entry setup", "serial", entry.Serial, "err", setupErr)
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": setupErr.Error()})
		return
	}

	if err := s.store.SaveEntry(entry); err != nil {
		s.logger.Error("save entry", "err", err)
		if uerr := s.manager.UnloadEntry(r.Context(), entry); uerr != nil && !errors.Is(uerr, integration.ErrEntryNotActive) {
			s.logger.Error("unload after failed save", "err", uerr)
		}
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if errors.Is(setupErr, integration.ErrNotReady) {
		// Entry saved; device unreachable right now. Hand it to the
		// background retry loop so it connects without operator action.
		if s.retrySetup != nil {
			s.retrySetup(entry)
		}
		s.writeJSON(w, http.StatusAccepted, s.entryView(entry))
		return
	}
	s.writeJSON(w, http.StatusCreated, s.entryView(entry))
}

func (s *Server) handleAPIDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := s.store.GetEntry(id)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "entry not found"})
		return
	}

	if err := s.manager.UnloadEntry(r.Context(), entry); err != nil && !errors.Is(err, integration.ErrEntryNotActive) {
		// Unload failed as a whole; the entry stays live so the caller can
		// retry.
		s.logger.Error("unload entry", "id", id, "err", err)
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}

	if err := s.store.DeleteEntry(id); err != nil {
		s.logger.Error("delete entry", "id", id, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleAPIRetryEntry re-runs setup for an entry that is not currently
// active (e.g. its device was unreachable at startup).
func (s *Server) handleAPIRetryEntry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := s.store.GetEntry(id)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "entry not found"})
		return
	}

	err = s.manager.SetUpEntry(r.Context(), entry)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, s.entryView(entry))
	case errors.Is(err, integration.ErrNotReady):
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "device not reachable, try again later"})
	case errors.Is(err, integration.ErrEntryActive):
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "entry already set up"})
	default:
		s.logger.Error("retry entry", "id", id, "err", err)
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
}

func (s *Server) handleAPIDeviceTypes(w http.ResponseWriter, r *http.Request) {
	types := dyson.SupportedTypes()
	out := make([]map[string]string, 0, len(types))
	for _, t := range types {
		out = append(out, map[string]string{
			"type": string(t),
			"name": dyson.TypeName(t),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListEntries()
	if err != nil {
		s.logger.Error("list entries", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	connected := 0
	for _, entry := range entries {
		if s.manager.Status(entry.ID) == "connected" {
			connected++
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"version":   s.version,
		"entries":   len(entries),
		"connected": connected,
	})
}
