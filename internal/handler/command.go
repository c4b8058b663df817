package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/dispatch"
	"github.com/keygate/keygate/internal/middleware"
)

// Dispatcher runs one decoded command.
type Dispatcher interface {
	Dispatch(ctx context.Context, req dispatch.Request) dispatch.Result
}

// CommandHandler serves the single command endpoint.
type CommandHandler struct {
	dispatcher      Dispatcher
	operatorKeyHash string
	logger          *slog.Logger
}

// NewCommandHandler creates a CommandHandler. When operatorKeyHash is set,
// exempt commands (enable/disable) also require a matching X-Operator-Key.
func NewCommandHandler(d Dispatcher, operatorKeyHash string, logger *slog.Logger) *CommandHandler {
	return &CommandHandler{
		dispatcher:      d,
		operatorKeyHash: operatorKeyHash,
		logger:          logger.With("component", "command_handler"),
	}
}

type commandEnvelope struct {
	Action  json.RawMessage `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// Handle handles ANY /api. The method is ignored; the body carries the
// command.
func (h *CommandHandler) Handle(w http.ResponseWriter, r *http.Request) {
	req, status := decodeCommand(r.Body)
	switch status {
	case http.StatusOK:
	case http.StatusRequestEntityTooLarge:
		writeJSON(w, status, dispatch.Envelope{Success: false, Message: "Request body too large."})
		return
	default:
		res := dispatch.BadRequest()
		writeJSON(w, res.Status, res.Envelope)
		return
	}

	ctx := r.Context()
	if dispatch.IsExempt(req.Action) && h.operatorKeyHash != "" {
		if !h.verifyOperator(r) {
			h.logger.Warn("operator key rejected",
				"action", dispatch.Canonical(req.Action),
				"request_id", middleware.GetRequestID(ctx),
			)
			writeJSON(w, http.StatusForbidden, dispatch.Envelope{Success: false, Message: dispatch.MsgForbidden})
			return
		}
		ctx = auth.ContextWithOperator(ctx)
	}

	res := h.dispatcher.Dispatch(ctx, req)
	writeJSON(w, res.Status, res.Envelope)
}

func (h *CommandHandler) verifyOperator(r *http.Request) bool {
	key := r.Header.Get(middleware.OperatorKeyHeader)
	if key == "" {
		return false
	}
	ok, err := auth.VerifyOperatorKey(key, h.operatorKeyHash)
	if err != nil {
		h.logger.Error("operator key hash unusable", "error", err)
		return false
	}
	return ok
}

// decodeCommand reads {action, payload}. An absent action decodes to the
// empty string and is later reported as an unknown command; a non-string
// action is a malformed request.
func decodeCommand(body io.Reader) (dispatch.Request, int) {
	var env commandEnvelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return dispatch.Request{}, http.StatusRequestEntityTooLarge
		}
		return dispatch.Request{}, http.StatusBadRequest
	}

	var action string
	if len(env.Action) > 0 && string(env.Action) != "null" {
		if err := json.Unmarshal(env.Action, &action); err != nil {
			return dispatch.Request{}, http.StatusBadRequest
		}
	}
	return dispatch.Request{Action: action, Payload: env.Payload}, http.StatusOK
}
