package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// errBadRequest marks payloads that never reach a component.
var errBadRequest = errors.New("bad request")

var validate = validator.New()

const maxIdentifierLen = 128

func init() {
	validate.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if strings.TrimSpace(s) == "" || len(s) > maxIdentifierLen {
			return false
		}
		return strings.IndexFunc(s, unicode.IsControl) < 0
	})
}

// flexInt accepts a JSON integer or a string holding one.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return fmt.Errorf("not an integer: %q", data)
	}
	*f = flexInt(n)
	return nil
}

// days converts an optional duration to the form the key manager expects.
func days(f *flexInt) *int {
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

// requesterPayload is the part of every payload the gate reads.
type requesterPayload struct {
	RequesterID string `json:"requesterId"`
}

type appPayload struct {
	AppID string `json:"appId" validate:"ident"`
}

// Durations are whole days; the max tag mirrors model.MaxLifetimeDays.
type issuePayload struct {
	AppID    string   `json:"appId" validate:"ident"`
	Duration *flexInt `json:"duration" validate:"omitempty,min=0,max=36500"`
}

type issueBulkPayload struct {
	AppID    string   `json:"appId" validate:"ident"`
	Quantity flexInt  `json:"quantity" validate:"min=1"`
	Duration *flexInt `json:"duration" validate:"omitempty,min=0,max=36500"`
}

type keyPayload struct {
	Key string `json:"key" validate:"ident"`
}

type markUsedPayload struct {
	Key    string `json:"key" validate:"ident"`
	UserID string `json:"userId" validate:"omitempty,ident"`
}

type targetPayload struct {
	TargetID string `json:"targetId" validate:"ident"`
}

// decodePayload unmarshals raw into dst and validates it. An absent or
// null payload decodes as an empty object.
func decodePayload(raw json.RawMessage, dst any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	if raw[0] != '{' {
		return fmt.Errorf("%w: payload must be an object", errBadRequest)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", errBadRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: validation error: %v", errBadRequest, err)
	}
	return nil
}
