package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/voxq/internal/domain"
	"github.com/you/voxq/internal/scheduler"
)

type handler struct {
	sched *scheduler.Scheduler
	log   *zap.Logger
}

func (h *handler) submit(w http.ResponseWriter, r *http.Request) {
	var req domain.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.WrapInvalid(err))
		return
	}
	handle, err := h.sched.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	code := http.StatusAccepted
	if handle.Cached {
		code = http.StatusOK
	}
	h.writeJSON(w, code, handle)
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	view, err := h.sched.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	ok := h.sched.Cancel(r.Context(), chi.URLParam(r, "id"))
	h.writeJSON(w, http.StatusOK, map[string]bool{"cancelled": ok})
}

func (h *handler) queueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sched.QueueStats(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	snap := h.sched.Health(r.Context())
	code := http.StatusOK
	if snap.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, snap)
}

func (h *handler) cacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.sched.CacheStats())
}

func (h *handler) cacheCleanup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MaxAgeDays int `json:"max_age_days"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, domain.WrapInvalid(err))
		return
	}
	removed, err := h.sched.CacheCleanup(body.MaxAgeDays)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *handler) cacheClear(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Confirm bool `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, domain.WrapInvalid(err))
		return
	}
	removed, err := h.sched.CacheClear(body.Confirm)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("response encode failed", zap.Error(err))
	}
}

func (h *handler) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalid):
		code = http.StatusBadRequest
	case errors.Is(err, scheduler.ErrThrottled):
		code = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrJobNotFound):
		code = http.StatusNotFound
	default:
		h.log.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, code, map[string]string{"error": err.Error()})
}
