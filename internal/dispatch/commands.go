package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// handlerFunc runs one command against its decoded payload.
type handlerFunc func(d *Dispatcher, ctx context.Context, payload json.RawMessage) (Result, error)

type command struct {
	name    string
	aliases []string
	// exempt commands skip the entitlement gate.
	exempt bool
	run    handlerFunc
}

// commands is the only place actions and their spellings are defined.
var commands = []command{
	{name: "issue", aliases: []string{"createkey", "gen"}, run: (*Dispatcher).issue},
	{name: "issueBulk", aliases: []string{"bulkgen", "bulkcreatekey"}, run: (*Dispatcher).issueBulk},
	{name: "check", aliases: []string{"checkkey"}, run: (*Dispatcher).check},
	{name: "deleteExpired", aliases: []string{"deleteexpiredkeys", "deleteexpired"}, run: (*Dispatcher).deleteExpired},
	{name: "deleteOne", aliases: []string{"deletekey"}, run: (*Dispatcher).deleteOne},
	{name: "listAll", aliases: []string{"allkeys"}, run: (*Dispatcher).listAll},
	{name: "stats", run: (*Dispatcher).stats},
	{name: "markUsed", aliases: []string{"usekey"}, run: (*Dispatcher).markUsed},
	{name: "enable", exempt: true, run: (*Dispatcher).enable},
	{name: "disable", exempt: true, run: (*Dispatcher).disable},
}

var commandIndex = buildIndex(commands)

func buildIndex(cmds []command) map[string]*command {
	index := make(map[string]*command)
	for i := range cmds {
		cmd := &cmds[i]
		for _, spelling := range append([]string{cmd.name}, cmd.aliases...) {
			key := normalizeAction(spelling)
			if existing, ok := index[key]; ok && existing != cmd {
				panic(fmt.Sprintf("dispatch: action %q registered twice", spelling))
			}
			index[key] = cmd
		}
	}
	return index
}

func normalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}

func lookup(action string) (*command, bool) {
	cmd, ok := commandIndex[normalizeAction(action)]
	return cmd, ok
}

// IsExempt reports whether action resolves to a command that bypasses the
// entitlement gate.
func IsExempt(action string) bool {
	cmd, ok := lookup(action)
	return ok && cmd.exempt
}

// Canonical returns the canonical name for action, or "" if unknown.
func Canonical(action string) string {
	if cmd, ok := lookup(action); ok {
		return cmd.name
	}
	return ""
}

func (d *Dispatcher) issue(ctx context.Context, raw json.RawMessage) (Result, error) {
	var p issuePayload
	if err := decodePayload(raw, &p); err != nil {
		return Result{}, err
	}

	key, err := d.keys.Issue(ctx, p.AppID, days(p.Duration))
	if err != nil {
		return Result{}, err
	}

	return succeed(Envelope{Message: MsgKeyCreated, Keys: []string{key.Key}}), nil
}

func (d *Dispatcher) issueBulk(ctx context.Context, raw json.RawMessage) (Result, error) {
	var p issueBulkPayload
	if err := decodePayload(raw, &p); err != nil {
		return Result{}, err
	}
	if int(p.Quantity) > d.maxBulk {
		return Result{}, fmt.Errorf("%w: quantity %d exceeds limit %d", errBadRequest, p.Quantity, d.maxBulk)
	}

	keys, err := d.keys.IssueBulk(ctx, p.AppID, int(p.Quantity), days(p.Duration))
	if err != nil {
		return Result{}, err
	}

	tokens := make([]string, len(keys))
	for i, k := range keys {
		tokens[i] = k.Key
	}

	return succeed(Envelope{
		Message: fmt.Sprintf(msgKeysCreatedFmt, len(keys)),
		Keys:    tokens,
	}), nil
}

func (d *Dispatcher) check(ctx context.Context, raw json.RawMessage) (Result, error) {
	var p keyPayload
	if err := decodePayload(raw, &p); err != nil {
		return Result{}, err
	}

	key, err := d.keys.Check(ctx, p.Key)
	if err != nil {
		return Result{}, err
	}

	return succeed(Envelope{KeyData: key}), nil
}

func (d *Dispatcher) deleteExpired(ctx context.Context, raw json.RawMessage) (Result, error) {
	var p appPayload
	if err := decodePayload(raw, &p); err != nil {
		return Result{}, err
	}

	deleted, err := d.keys.DeleteExpired(ctx, p.AppID)
	if err != nil {
		return Result{}, err
	}

	return succeed(Envelope{
		Message:      fmt.Sprintf(msgExpiredDeletedFmt, deleted),
		DeletedCount: &deleted,
	}), nil
}

func (d *Dispatcher) deleteOne(ctx context.Context, raw json.RawMessage) (Result, error) {
	var p keyPayload
	if err := decodePayload(raw, &p); err != nil {
		return Result{}, err
	}

	if _, err := d.keys.DeleteOne(ctx, p.Key); err != nil {
		return Result{}, err
	}

	return succeed(Envelope{Message: MsgKeyDeleted}), nil
}

func (d *Dispatcher) listAll(ctx context.Context, raw json.RawMessage) (Result, error) {
	var p appPayload
	if err := decodePayload(raw, &p); err != nil {
		return Result{}, err
	}

	keys, err := d.keys.ListAll(ctx, p.AppID)
	if err != nil {
		return Result{}, err
	}

	return succeed(Envelope{Keys: keys}), nil
}

func (d *Dispatcher) stats(ctx context.Context, raw json.RawMessage) (Result, error) {
	var p appPayload
	if err := decodePayload(raw, &p); err != nil {
		return Result{}, err
	}

	stats, err := d.keys.Stats(ctx, p.AppID)
	if err != nil {
		return Result{}, err
	}

	return succeed(Envelope{Stats: stats}), nil
}

func (d *Dispatcher) markUsed(ctx context.Context, raw json.RawMessage) (Result, error) {
	var p markUsedPayload
	if err := decodePayload(raw, &p); err != nil {
		return Result{}, err
	}

	key, err := d.keys.MarkUsed(ctx, p.Key, p.UserID)
	if err != nil {
		return Result{}, err
	}

	return succeed(Envelope{Message: MsgKeyMarkedUsed, KeyData: key}), nil
}

func (d *Dispatcher) enable(ctx context.Context, raw json.RawMessage) (Result, error) {
	return d.setEnabled(ctx, raw, true)
}

func (d *Dispatcher) disable(ctx context.Context, raw json.RawMessage) (Result, error) {
	return d.setEnabled(ctx, raw, false)
}

func (d *Dispatcher) setEnabled(ctx context.Context, raw json.RawMessage, enabled bool) (Result, error) {
	var p targetPayload
	if err := decodePayload(raw, &p); err != nil {
		return Result{}, err
	}

	if _, err := d.gate.SetEnabled(ctx, p.TargetID, enabled); err != nil {
		return Result{}, err
	}

	format := msgDisabledFmt
	if enabled {
		format = msgEnabledFmt
	}
	return succeed(Envelope{Message: fmt.Sprintf(format, p.TargetID)}), nil
}

