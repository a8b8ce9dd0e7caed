package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"pawprint-gateway/internal/protocol"
	"pawprint-gateway/internal/session"
	"pawprint-gateway/internal/utils"
)

type handlers struct {
	ctrl    Controller
	resolve Resolver
	logger  *slog.Logger
}

type connectRequest struct {
	Address string `json:"address"`
}

type colorRequest struct {
	Color *protocol.Color `json:"color"`
}

type blinkRequest struct {
	Color1 *protocol.Color `json:"color1"`
	Color2 *protocol.Color `json:"color2"`
	Hz     float64         `json:"hz"`
}

func (h *handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctrl.Status(r.Context())
	if err != nil {
		h.fail(w, r, "status", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, st)
}

func (h *handlers) handleTilt(w http.ResponseWriter, r *http.Request) {
	t, err := h.ctrl.Tilt(r.Context())
	if err != nil {
		h.fail(w, r, "tilt", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, t)
}

func (h *handlers) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := utils.ReadJSON(w, r, &req, true); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	address := req.Address
	if address == "" && h.resolve != nil {
		var err error
		if address, err = h.resolve(r.Context()); err != nil {
			h.fail(w, r, "resolve device", err)
			return
		}
	}
	if err := h.ctrl.Connect(r.Context(), address); err != nil {
		h.fail(w, r, "connect", err)
		return
	}
	h.writeStatus(w, r)
}

func (h *handlers) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "disconnect", h.ctrl.Disconnect)
}

func (h *handlers) handleInternalLED(w http.ResponseWriter, r *http.Request) {
	color, ok := h.readColor(w, r)
	if !ok {
		return
	}
	h.command(w, r, "set internal color", func(ctx context.Context) error {
		return h.ctrl.SetInternalColor(ctx, color)
	})
}

func (h *handlers) handleExternalLED(w http.ResponseWriter, r *http.Request) {
	color, ok := h.readColor(w, r)
	if !ok {
		return
	}
	h.command(w, r, "set external color", func(ctx context.Context) error {
		return h.ctrl.SetExternalColor(ctx, color)
	})
}

func (h *handlers) handleDataStart(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "start data", h.ctrl.StartData)
}

func (h *handlers) handleDataStop(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "stop data", h.ctrl.StopData)
}

func (h *handlers) handleBlinkStart(w http.ResponseWriter, r *http.Request) {
	var req blinkRequest
	if err := utils.ReadJSON(w, r, &req, false); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Color1 == nil || req.Color2 == nil {
		utils.WriteError(w, http.StatusBadRequest, "color1 and color2 are required")
		return
	}
	h.command(w, r, "blink", func(ctx context.Context) error {
		return h.ctrl.BlinkExternal(ctx, *req.Color1, *req.Color2, req.Hz)
	})
}

func (h *handlers) handleBlinkStop(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, "stop blink", h.ctrl.StopBlink)
}

func (h *handlers) readColor(w http.ResponseWriter, r *http.Request) (protocol.Color, bool) {
	var req colorRequest
	if err := utils.ReadJSON(w, r, &req, false); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if req.Color == nil {
		utils.WriteError(w, http.StatusBadRequest, fmt.Sprintf("color is required (one of %v)", protocol.Colors()))
		return 0, false
	}
	return *req.Color, true
}

// command runs fn and answers with the resulting status.
func (h *handlers) command(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context) error) {
	if err := fn(r.Context()); err != nil {
		h.fail(w, r, op, err)
		return
	}
	h.writeStatus(w, r)
}

func (h *handlers) writeStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctrl.Status(r.Context())
	if err != nil {
		h.fail(w, r, "status", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, st)
}

var _ Controller = (*session.Session)(nil)
