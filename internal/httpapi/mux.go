// Package httpapi exposes the session's commands and status over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"pawprint-gateway/internal/protocol"
	"pawprint-gateway/internal/session"
	"pawprint-gateway/internal/utils"
)

// Controller is the part of *session.Session the API drives.
type Controller interface {
	Connect(ctx context.Context, address string) error
	Disconnect(ctx context.Context) error
	SetInternalColor(ctx context.Context, color protocol.Color) error
	SetExternalColor(ctx context.Context, color protocol.Color) error
	StartData(ctx context.Context) error
	StopData(ctx context.Context) error
	BlinkExternal(ctx context.Context, color1, color2 protocol.Color, hz float64) error
	StopBlink(ctx context.Context) error
	Status(ctx context.Context) (session.Status, error)
	Tilt(ctx context.Context) (protocol.Tilt, error)
}

// Resolver picks the device address when a connect request names none.
type Resolver func(ctx context.Context) (string, error)

func NewMux(ctrl Controller, resolve Resolver, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	h := &handlers{ctrl: ctrl, resolve: resolve, logger: logger}
	mux.HandleFunc("GET /v1/status", h.handleStatus)
	mux.HandleFunc("GET /v1/tilt", h.handleTilt)
	mux.HandleFunc("POST /v1/connect", h.handleConnect)
	mux.HandleFunc("POST /v1/disconnect", h.handleDisconnect)
	mux.HandleFunc("PUT /v1/led/internal", h.handleInternalLED)
	mux.HandleFunc("PUT /v1/led/external", h.handleExternalLED)
	mux.HandleFunc("POST /v1/data/start", h.handleDataStart)
	mux.HandleFunc("POST /v1/data/stop", h.handleDataStop)
	mux.HandleFunc("POST /v1/blink", h.handleBlinkStart)
	mux.HandleFunc("DELETE /v1/blink", h.handleBlinkStop)
	return mux
}
