// Package dispatch routes commands to the key manager and access gate and
// turns every outcome into a response envelope.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/keygate/keygate/internal/auth"
	"github.com/keygate/keygate/internal/metrics"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
)

// Gate is the entitlement check consulted before gated commands.
type Gate interface {
	IsAuthorized(ctx context.Context, requesterID string) (bool, error)
	SetEnabled(ctx context.Context, targetID string, enabled bool) (*model.User, error)
}

// KeyService is the key lifecycle surface the dispatcher drives.
type KeyService interface {
	Issue(ctx context.Context, appID string, days *int) (*model.Key, error)
	IssueBulk(ctx context.Context, appID string, quantity int, days *int) ([]*model.Key, error)
	Check(ctx context.Context, token string) (*model.Key, error)
	DeleteOne(ctx context.Context, token string) (int64, error)
	DeleteExpired(ctx context.Context, appID string) (int64, error)
	ListAll(ctx context.Context, appID string) ([]*model.Key, error)
	Stats(ctx context.Context, appID string) (*model.KeyStats, error)
	MarkUsed(ctx context.Context, token, userID string) (*model.Key, error)
}

// Request is one decoded command.
type Request struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// Config tunes the dispatcher.
type Config struct {
	// Timeout bounds every dispatch, store calls included. Zero disables it.
	Timeout time.Duration
	// MaxBulkQuantity caps issueBulk.
	MaxBulkQuantity int
}

const defaultMaxBulkQuantity = 1000

// Dispatcher is stateless and safe for concurrent use.
type Dispatcher struct {
	gate    Gate
	keys    KeyService
	metrics metrics.Recorder
	logger  *slog.Logger
	timeout time.Duration
	maxBulk int
}

// New creates a Dispatcher.
func New(gate Gate, keys KeyService, recorder metrics.Recorder, logger *slog.Logger, cfg Config) *Dispatcher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBulkQuantity <= 0 {
		cfg.MaxBulkQuantity = defaultMaxBulkQuantity
	}
	return &Dispatcher{
		gate:    gate,
		keys:    keys,
		metrics: recorder,
		logger:  logger.With("component", "dispatcher"),
		timeout: cfg.Timeout,
		maxBulk: cfg.MaxBulkQuantity,
	}
}

// Dispatch authorizes, routes and runs req. It never panics and never
// returns internal error text to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (res Result) {
	cmd, known := lookup(req.Action)
	label := "unknown"
	if known {
		label = cmd.name
	}

	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("panic in command",
				"action", label,
				"panic", rec,
			)
			res = fail(http.StatusInternalServerError, MsgServerError)
		}
		d.metrics.IncCommand(label, outcomeOf(res))
	}()

	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	var who requesterPayload
	if err := decodePayload(req.Payload, &who); err != nil {
		d.logger.Debug("malformed payload", "action", label, "error", err)
		return BadRequest()
	}
	ctx = auth.ContextWithRequester(ctx, who.RequesterID)

	if !known || !cmd.exempt {
		allowed, err := d.gate.IsAuthorized(ctx, who.RequesterID)
		if err != nil {
			return d.failure(label, err)
		}
		if !allowed {
			return fail(http.StatusForbidden, MsgForbidden)
		}
	}

	if !known {
		d.logger.Debug("unknown action", "action", req.Action)
		return Result{Status: http.StatusOK, Envelope: Envelope{Success: false, Message: MsgInvalidCommand}}
	}

	result, err := cmd.run(d, ctx, req.Payload)
	if err != nil {
		return d.failure(label, err)
	}
	return result
}

// failure maps a component error to its response category.
func (d *Dispatcher) failure(action string, err error) Result {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, service.ErrInvalidInput):
		d.logger.Debug("invalid request", "action", action, "error", err)
		return BadRequest()
	case errors.Is(err, service.ErrAppNotFound):
		return fail(http.StatusNotFound, MsgAppNotFound)
	case errors.Is(err, service.ErrKeyNotFound):
		return fail(http.StatusNotFound, MsgKeyNotFound)
	case errors.Is(err, service.ErrConflict):
		d.logger.Warn("key generation conflict", "action", action)
		return fail(http.StatusConflict, MsgConflict)
	case errors.Is(err, service.ErrInvalidTransition):
		return fail(http.StatusConflict, MsgKeyNotUnused)
	case errors.Is(err, service.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		d.logger.Error("store failure", "action", action, "error", err)
		return fail(http.StatusInternalServerError, MsgDatabaseError)
	default:
		d.logger.Error("command failed", "action", action, "error", err)
		return fail(http.StatusInternalServerError, MsgServerError)
	}
}

func outcomeOf(res Result) string {
	switch res.Status {
	case http.StatusOK:
		if res.Envelope.Success {
			return outcomeSuccess
		}
		return outcomeInvalidCommand
	case http.StatusBadRequest:
		return outcomeBadRequest
	case http.StatusForbidden:
		return outcomeForbidden
	case http.StatusNotFound:
		return outcomeNotFound
	case http.StatusConflict:
		return outcomeConflict
	default:
		if res.Envelope.Message == MsgDatabaseError {
			return outcomeUnavailable
		}
		return outcomeError
	}
}
