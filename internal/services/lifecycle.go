package services

import (
	"context"
	"errors"
	"fmt"

	"school_resources_backend/internal/models"
	"school_resources_backend/internal/repositories"
	"school_resources_backend/pkg/utils"
)

// Gate resolves the role of the acting principal. It is consulted before every
// mutating operation and must be free of side effects.
type Gate interface {
	RoleOf(ctx context.Context, principal models.Principal) (models.Role, error)
}

// ClaimsGate trusts the role carried by the principal, which the auth middleware
// copies from verified token claims.
type ClaimsGate struct{}

func (ClaimsGate) RoleOf(_ context.Context, p models.Principal) (models.Role, error) {
	role, ok := models.ParseRole(string(p.Role))
	if !ok {
		return "", fmt.Errorf("%w: unknown role %q", ErrForbidden, p.Role)
	}
	return role, nil
}

// authorize checks that the principal's role is in allowed.
func authorize(ctx context.Context, gate Gate, p models.Principal, allowed models.RoleSet, what string) (models.Role, error) {
	role, err := gate.RoleOf(ctx, p)
	if err != nil {
		return "", err
	}
	if !allowed.Has(role) {
		return "", fmt.Errorf("%w: %s may not %s", ErrForbidden, role, what)
	}
	return role, nil
}

// Subject is an entity the lifecycle machine can drive.
type Subject interface {
	LifecycleStatus() models.Status
	OwnerID() int64
}

// Rule binds an action on one kind to its terminal state and the roles allowed to apply it.
type Rule struct {
	To      models.Status
	Allowed models.RoleSet
}

// MachineConfig describes one entity kind.
type MachineConfig[T Subject] struct {
	Kind  models.Kind
	Rules map[models.Action]Rule
	// Cancellable kinds accept Cancel from the owner or from an Override role.
	Cancellable bool
	Override    models.RoleSet

	Get func(ctx context.Context, id int64) (T, error)
	// Commit re-checks the state and applies the transition with its ledger side effect
	// as one atomic unit. The bool reports whether anything changed.
	Commit func(ctx context.Context, id int64, t repositories.Transition) (T, bool, error)
}

// Machine drives pending -> terminal transitions for one kind.
type Machine[T Subject] struct {
	cfg     MachineConfig[T]
	gate    Gate
	metrics *Metrics
}

// NewMachine creates a lifecycle machine for one kind.
func NewMachine[T Subject](cfg MachineConfig[T], gate Gate, metrics *Metrics) *Machine[T] {
	return &Machine[T]{cfg: cfg, gate: gate, metrics: metrics}
}

// Transition applies action to the entity. Re-applying the action that produced the
// current terminal state succeeds without a second side effect.
// Checks run in order: action belongs to the kind, role is allowed, entity exists,
// entity is pending.
func (m *Machine[T]) Transition(ctx context.Context, id int64, action models.Action, p models.Principal) (T, error) {
	var zero T

	rule, ok := m.cfg.Rules[action]
	if !ok {
		m.refused(action, OutcomeRefused)
		return zero, fmt.Errorf("%w: %s does not apply to a %s", ErrInvalidState, action, m.cfg.Kind)
	}
	if _, err := authorize(ctx, m.gate, p, rule.Allowed, fmt.Sprintf("%s a %s", action, m.cfg.Kind)); err != nil {
		m.refused(action, OutcomeForbidden)
		return zero, err
	}

	return m.apply(ctx, id, action, rule.To, p)
}

// Cancel withdraws a pending entity on behalf of its owner or an override role.
func (m *Machine[T]) Cancel(ctx context.Context, id int64, p models.Principal) (T, error) {
	var zero T

	if !m.cfg.Cancellable {
		m.refused(models.ActionCancel, OutcomeRefused)
		return zero, fmt.Errorf("%w: a %s cannot be cancelled", ErrInvalidState, m.cfg.Kind)
	}
	role, err := m.gate.RoleOf(ctx, p)
	if err != nil {
		m.refused(models.ActionCancel, OutcomeForbidden)
		return zero, err
	}

	entity, err := m.cfg.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	if entity.OwnerID() != p.ID && !m.cfg.Override.Has(role) {
		m.refused(models.ActionCancel, OutcomeForbidden)
		return zero, fmt.Errorf("%w: only the requester may cancel %s %d", ErrForbidden, m.cfg.Kind, id)
	}

	return m.apply(ctx, id, models.ActionCancel, models.StatusCancelled, p)
}

func (m *Machine[T]) apply(ctx context.Context, id int64, action models.Action, to models.Status, p models.Principal) (T, error) {
	var zero T

	entity, err := m.cfg.Get(ctx, id)
	if err != nil {
		return zero, err
	}
	switch status := entity.LifecycleStatus(); {
	case status == to:
		m.metrics.observeTransition(string(m.cfg.Kind), string(action), OutcomeNoop)
		return entity, nil
	case status != models.StatusPending:
		m.refused(action, OutcomeRefused)
		return zero, fmt.Errorf("%w: %s %d is already %s", ErrInvalidState, m.cfg.Kind, id, status)
	}

	updated, applied, err := m.cfg.Commit(ctx, id, repositories.Transition{Action: action, To: to, PrincipalID: p.ID})
	switch {
	case errors.Is(err, repositories.ErrAlreadyReturned):
		applied = false
	case errors.Is(err, ErrNegativeStock), errors.Is(err, ErrOutOfStock):
		m.metrics.observeTransition(string(m.cfg.Kind), string(action), OutcomeError)
		return zero, fmt.Errorf("%w: %s %d stays pending: %w", ErrConflict, m.cfg.Kind, id, err)
	case err != nil:
		m.metrics.observeTransition(string(m.cfg.Kind), string(action), OutcomeError)
		return zero, err
	}

	if !applied {
		m.metrics.observeTransition(string(m.cfg.Kind), string(action), OutcomeNoop)
		return updated, nil
	}
	m.metrics.observeTransition(string(m.cfg.Kind), string(action), OutcomeApplied)
	utils.LogInfo("Lifecycle transition committed", map[string]interface{}{
		"kind":         m.cfg.Kind,
		"entity_id":    id,
		"action":       action,
		"status":       to,
		"principal_id": p.ID,
	})
	return updated, nil
}

func (m *Machine[T]) refused(action models.Action, outcome string) {
	m.metrics.observeTransition(string(m.cfg.Kind), string(action), outcome)
	utils.LogDebug("Lifecycle transition refused", map[string]interface{}{
		"kind":    m.cfg.Kind,
		"action":  action,
		"outcome": outcome,
	})
}
