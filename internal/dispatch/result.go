package dispatch

import (
	"net/http"

	"github.com/keygate/keygate/internal/model"
)

// User-visible messages.
const (
	MsgKeyCreated        = "Successfully created key."
	MsgKeyDeleted        = "Key successfully deleted."
	MsgKeyMarkedUsed     = "Key marked as used."
	MsgForbidden         = "You do not have permission to use this bot."
	MsgAppNotFound       = "Application does not exist."
	MsgKeyNotFound       = "Key does not exist."
	MsgInvalidCommand    = "Invalid command."
	MsgInvalidRequest    = "Invalid request."
	MsgConflict          = "Key generation conflict, please retry."
	MsgKeyNotUnused      = "Key is not unused."
	MsgDatabaseError     = "Database connection error."
	MsgServerError       = "Server error occurred."
	msgKeysCreatedFmt    = "Successfully created %d keys."
	msgExpiredDeletedFmt = "Successfully deleted %d expired keys."
	msgEnabledFmt        = "Successfully enabled user <@%s>."
	msgDisabledFmt       = "Successfully disabled user <@%s>."
)

// Envelope is the single response shape for every reachable outcome.
type Envelope struct {
	Success      bool            `json:"success"`
	Message      string          `json:"message,omitempty"`
	Keys         any             `json:"keys,omitempty"`
	KeyData      *model.Key      `json:"keyData,omitempty"`
	Stats        *model.KeyStats `json:"stats,omitempty"`
	DeletedCount *int64          `json:"deletedCount,omitempty"`
}

// Result pairs an envelope with its transport status.
type Result struct {
	Status   int
	Envelope Envelope
}

// Outcome labels used for metrics.
const (
	outcomeSuccess        = "success"
	outcomeInvalidCommand = "invalid_command"
	outcomeBadRequest     = "bad_request"
	outcomeForbidden      = "forbidden"
	outcomeNotFound       = "not_found"
	outcomeConflict       = "conflict"
	outcomeUnavailable    = "unavailable"
	outcomeError          = "error"
)

func succeed(env Envelope) Result {
	env.Success = true
	return Result{Status: http.StatusOK, Envelope: env}
}

func fail(status int, message string) Result {
	return Result{Status: status, Envelope: Envelope{Success: false, Message: message}}
}

// BadRequest builds the result for a malformed command envelope.
func BadRequest() Result {
	return fail(http.StatusBadRequest, MsgInvalidRequest)
}
