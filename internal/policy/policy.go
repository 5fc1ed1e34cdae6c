// Package policy is the role-based authorization matrix gating who may open
// or forward direct messages. Decisions are pure functions over an assembled
// ActorContext so the matrix is exhaustively unit-testable; no storage access
// happens here.
package policy

import "opsdeck.app/chat/internal/model"

type Operation string

const (
	OperationOpenDM  Operation = "open_dm"
	OperationForward Operation = "forward"
)

type Decision int

const (
	// Forbidden is the zero value so an unhandled path never allows.
	Forbidden Decision = iota
	Allow
	// InvalidTarget covers self-targeting and missing linkage (e.g. a client
	// actor with no client record or no assigned AM).
	InvalidTarget
)

// ActorContext is the actor plus the relational facts the matrix needs,
// loaded once per request by the caller.
type ActorContext struct {
	User model.User

	// AssignedAMID is the am_id of the client record referenced by
	// User.ClientID. Only meaningful for client actors; nil when the client
	// record is missing or has no AM assigned.
	AssignedAMID *int64

	// ManagedClientIDs is the set of client IDs whose am_id equals User.ID.
	// Only meaningful for am actors.
	ManagedClientIDs map[int64]struct{}
}

// rule reports whether the actor may address the target at all. Self-target
// handling is operation-specific and applied outside the table.
type rule func(actor ActorContext, target model.User) Decision

// matrix is the declarative role table. Roles without an entry fall through
// to allowAll (admin, manager, qc, and any future role).
var matrix = map[model.UserRole]rule{
	model.RoleClient: clientRule,
	model.RoleAM:     amRule,
	model.RoleAgent:  agentRule,
}

// clientRule: a client may only reach the single user who is the AM of their
// own client record.
func clientRule(actor ActorContext, target model.User) Decision {
	if actor.User.ClientID == nil || actor.AssignedAMID == nil {
		return InvalidTarget
	}
	if target.ID == *actor.AssignedAMID {
		return Allow
	}
	return Forbidden
}

// amRule: an AM may reach admins, managers, and the client users belonging to
// clients they manage.
func amRule(actor ActorContext, target model.User) Decision {
	switch target.Role {
	case model.RoleAdmin, model.RoleManager:
		return Allow
	}
	if target.ClientID != nil {
		if _, ok := actor.ManagedClientIDs[*target.ClientID]; ok {
			return Allow
		}
	}
	return Forbidden
}

// agentRule: an agent may reach anyone who is not a client or an AM.
func agentRule(_ ActorContext, target model.User) Decision {
	if target.Role == model.RoleClient || target.Role == model.RoleAM {
		return Forbidden
	}
	return Allow
}

func allowAll(_ ActorContext, _ model.User) Decision {
	return Allow
}

// Decide evaluates the matrix for a single target. Callers must check the
// decision before any write.
func Decide(actor ActorContext, op Operation, target model.User) Decision {
	if op == OperationOpenDM && target.ID == actor.User.ID {
		return InvalidTarget
	}

	r, ok := matrix[actor.User.Role]
	if !ok {
		r = allowAll
	}
	return r(actor, target)
}
