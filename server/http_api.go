package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"thermavip/protocol"
	"thermavip/vip/device"
	"thermavip/vip/pool"
)

// HTTPAPI exposes the playback controls of a pool as a REST API
type HTTPAPI struct {
	pool   *pool.Pool
	logger *slog.Logger
}

// NewHTTPAPI creates the REST API of p. A nil logger uses slog.Default.
func NewHTTPAPI(p *pool.Pool, logger *slog.Logger) *HTTPAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAPI{pool: p, logger: logger}
}

// Router returns a standalone router serving /healthz and /api/v1
func (h *HTTPAPI) Router() http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

// Mount registers the API routes on router, next to the routes it already serves
func (h *HTTPAPI) Mount(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequestID)
		r.Use(middleware.RealIP)
		r.Use(middleware.Recoverer)
		r.Use(logMiddleware(h.logger))

		r.Get("/healthz", h.handleHealth)

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.Timeout(10 * time.Second))

			r.Get("/pool", h.GetPool)
			r.Post("/pool/play", h.Play)
			r.Post("/pool/stop", h.StopPlayback)
			r.Post("/pool/seek", h.SeekTime)
			r.Post("/pool/next", h.step(h.pool.Next))
			r.Post("/pool/previous", h.step(h.pool.Previous))
			r.Post("/pool/first", h.step(h.pool.First))
			r.Post("/pool/last", h.step(h.pool.Last))
			r.Post("/pool/speed", h.SetSpeed)

			r.Get("/devices", h.ListDevices)
			r.Get("/devices/{name}", h.GetDevice)
			r.Post("/devices/{name}/enable", h.EnableDevice)
		})
	})
}

// logMiddleware logs every request with its status and duration
func logMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				status := ww.Status()
				logFn := logger.Debug
				if status >= 500 {
					logFn = logger.Error
				}
				logFn("http request",
					"requestId", middleware.GetReqID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"status", status,
					"duration", time.Since(startTime),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (h *HTTPAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (h *HTTPAPI) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *HTTPAPI) writeError(w http.ResponseWriter, status int, code protocol.ErrorCode, err error) {
	h.writeJSON(w, status, protocol.Error{Code: code, Message: err.Error()})
}

// writePoolError maps a pool error to a status code
func (h *HTTPAPI) writePoolError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pool.ErrNoTemporalDevice):
		h.writeError(w, http.StatusConflict, protocol.ErrorCodePlaybackError, err)
	case errors.Is(err, device.ErrOutOfWindow), errors.Is(err, device.ErrInvalidTime):
		h.writeError(w, http.StatusUnprocessableEntity, protocol.ErrorCodePlaybackError, err)
	default:
		h.writeError(w, http.StatusInternalServerError, protocol.ErrorCodeInternalServerError, err)
	}
}

// decode reads an optional JSON body into v
func (h *HTTPAPI) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	h.writeError(w, http.StatusBadRequest, protocol.ErrorCodeInvalidRequestFormat, err)
	return false
}

func (h *HTTPAPI) GetPool(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, protocol.PoolToProtocol(h.pool))
}

// Play starts the playback. ?backward=true or {"backward":true} plays backward.
func (h *HTTPAPI) Play(w http.ResponseWriter, r *http.Request) {
	var payload protocol.PlayPayload
	if !h.decode(w, r, &payload) {
		return
	}
	if v := r.URL.Query().Get("backward"); v != "" {
		backward, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, protocol.ErrorCodeInvalidParameters, err)
			return
		}
		payload.Backward = backward
	}

	play := h.pool.PlayForward
	if payload.Backward {
		play = h.pool.PlayBackward
	}
	if err := play(); err != nil {
		h.writePoolError(w, err)
		return
	}
	h.GetPool(w, r)
}

func (h *HTTPAPI) StopPlayback(w http.ResponseWriter, r *http.Request) {
	h.pool.Stop()
	h.GetPool(w, r)
}

func (h *HTTPAPI) SeekTime(w http.ResponseWriter, r *http.Request) {
	var payload protocol.SeekPayload
	if !h.decode(w, r, &payload) {
		return
	}
	if err := h.pool.SeekTime(payload.Time); err != nil {
		h.writePoolError(w, err)
		return
	}
	h.GetPool(w, r)
}

func (h *HTTPAPI) step(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(); err != nil {
			h.writePoolError(w, err)
			return
		}
		h.GetPool(w, r)
	}
}

func (h *HTTPAPI) SetSpeed(w http.ResponseWriter, r *http.Request) {
	var payload protocol.SetSpeedPayload
	if !h.decode(w, r, &payload) {
		return
	}
	if err := h.pool.SetPlaySpeed(payload.Speed); err != nil {
		h.writeError(w, http.StatusBadRequest, protocol.ErrorCodeInvalidParameters, err)
		return
	}
	h.GetPool(w, r)
}

func (h *HTTPAPI) ListDevices(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, protocol.DevicesToProtocol(h.pool))
}

func (h *HTTPAPI) member(w http.ResponseWriter, r *http.Request) (*device.Device, bool) {
	name := chi.URLParam(r, "name")
	d, ok := h.pool.Device(name)
	if !ok {
		h.writeError(w, http.StatusNotFound, protocol.ErrorCodeTargetNotFound, errors.New("no device named "+name))
	}
	return d, ok
}

func (h *HTTPAPI) GetDevice(w http.ResponseWriter, r *http.Request) {
	if d, ok := h.member(w, r); ok {
		h.writeJSON(w, http.StatusOK, protocol.DeviceToProtocol(d))
	}
}

// EnableDevice sets the enabled flag of a member. The body defaults to {"enabled":true}.
func (h *HTTPAPI) EnableDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := h.member(w, r)
	if !ok {
		return
	}
	payload := protocol.EnableDevicePayload{Enabled: true}
	if !h.decode(w, r, &payload) {
		return
	}
	d.SetEnabled(payload.Enabled)
	h.writeJSON(w, http.StatusOK, protocol.DeviceToProtocol(d))
}
