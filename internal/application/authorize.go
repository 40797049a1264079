package application

import (
	"github.com/ericfisherdev/relayhub/internal/domain/model"
	"github.com/ericfisherdev/relayhub/internal/domain/port/driven"
)

// Action is a management or node-facing operation subject to authorization.
type Action string

const (
	ActionCreateKey     Action = "create_key"
	ActionListKeys      Action = "list_keys"
	ActionInspectKey    Action = "inspect_key"
	ActionActivateKey   Action = "activate_key"
	ActionDeactivateKey Action = "deactivate_key"
	ActionDeleteKey     Action = "delete_key"
	ActionManageNodes   Action = "manage_nodes"
	ActionSubmitEvent   Action = "submit_event"
	ActionReadEvents    Action = "read_events"
	ActionReadSelf      Action = "read_self"
)

// tierGrants is the static permission table for actions that are not scoped
// to a specific target key. Admin rows are omitted: admins pass every check
// unconditionally before the table is consulted.
var tierGrants = map[model.KeyKind]map[Action]bool{
	model.KeyKindRegular: {
		ActionSubmitEvent: true,
		ActionReadSelf:    true,
	},
	model.KeyKindServer: {
		ActionSubmitEvent: true,
		ActionReadSelf:    true,
	},
}

// ownedKeyActions are the per-key operations a regular key may perform on
// server keys it owns.
var ownedKeyActions = map[Action]bool{
	ActionInspectKey:    true,
	ActionActivateKey:   true,
	ActionDeactivateKey: true,
	ActionDeleteKey:     true,
}

// Authorize decides whether actor may perform action. For per-key operations
// target carries the key being acted upon; for everything else it is nil.
// The self-modification guard applies first and regardless of tier, then
// rules evaluate in tier order (admin, regular, server).
func Authorize(actor *model.APIKeyView, action Action, target *model.APIKey) error {
	if actor == nil {
		return driven.ErrUnauthenticated
	}

	// An actor never deactivates or deletes the key it is authenticated as,
	// admins included.
	if target != nil && target.ID == actor.ID && (action == ActionDeactivateKey || action == ActionDeleteKey) {
		return driven.ErrSelfModification
	}

	permitted := false
	switch actor.Kind {
	case model.KeyKindAdmin:
		permitted = true
	case model.KeyKindRegular:
		if target != nil && ownedKeyActions[action] {
			permitted = target.Kind == model.KeyKindServer && target.RegularKeyID == actor.ID
		} else {
			permitted = tierGrants[model.KeyKindRegular][action]
		}
	case model.KeyKindServer:
		permitted = tierGrants[model.KeyKindServer][action]
	}

	if !permitted {
		return driven.ErrUnauthorized
	}

	return nil
}
