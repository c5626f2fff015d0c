// Package lifecycle holds the SOS request state machine. It is pure: every
// function takes the current record, an event, and the caller's identity and
// returns the next record or an error. Nothing here performs I/O.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/rapidaid/internal/models"
)

// Request statuses.
const (
	StatusPending  = "pending"
	StatusAssigned = "assigned"
	StatusResolved = "resolved"
)

// Caller roles.
const (
	RoleDonor     = "donor"
	RoleVolunteer = "volunteer"
	RoleResponder = "responder"
)

// Request categories.
const (
	CategoryMedical  = "Medical"
	CategoryTrapped  = "Trapped"
	CategorySupplies = "Supplies"
	CategoryOther    = "Other"
)

// Categories lists the accepted request categories in display order.
var Categories = []string{CategoryMedical, CategoryTrapped, CategorySupplies, CategoryOther}

// ValidTransitions maps each status to its valid next statuses.
var ValidTransitions = map[string][]string{
	StatusPending:  {StatusAssigned},
	StatusAssigned: {StatusResolved},
}

// Caller is the resolved identity of whoever is invoking an operation.
type Caller struct {
	ID   string
	Role string
}

// IsResponder reports whether the caller may take part in assignment.
func (c Caller) IsResponder() bool {
	return c.Role == RoleResponder || c.Role == RoleVolunteer
}

// ValidRole reports whether role is one of the known caller roles.
func ValidRole(role string) bool {
	switch role {
	case RoleDonor, RoleVolunteer, RoleResponder:
		return true
	}
	return false
}

// ParseCategory returns the canonical spelling of a category, matching
// case-insensitively.
func ParseCategory(s string) (string, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(s, c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("lifecycle: %w: %q (want one of %s)", ErrInvalidCategory, s, strings.Join(Categories, ", "))
}

// EventKind names a state machine event.
type EventKind string

// Events accepted by Apply.
const (
	EventAssign  EventKind = "assign"
	EventResolve EventKind = "resolve"
)

// Event is a requested state change.
type Event struct {
	Kind EventKind
	At   time.Time

	// ResponderID is the responder to bind on assign.
	ResponderID string
	// ResponderActive is the request the responder currently holds, or ""
	// when they hold none. Only consulted on assign.
	ResponderActive string
}

// Assign builds an assign event.
func Assign(responderID, responderActive string, at time.Time) Event {
	return Event{Kind: EventAssign, ResponderID: responderID, ResponderActive: responderActive, At: at}
}

// Resolve builds a resolve event.
func Resolve(at time.Time) Event {
	return Event{Kind: EventResolve, At: at}
}

// CanTransition checks whether a status change is allowed.
func CanTransition(from, to string) bool {
	for _, v := range ValidTransitions[from] {
		if v == to {
			return true
		}
	}
	return false
}

// AuthorizeAssign checks the role rules for binding responderID to a
// request. Responders may assign anyone; volunteers only themselves.
func AuthorizeAssign(caller Caller, responderID string) error {
	if !caller.IsResponder() {
		return fmt.Errorf("lifecycle: %w: role %q cannot claim requests", ErrUnauthorized, caller.Role)
	}
	if caller.Role == RoleVolunteer && responderID != caller.ID {
		return fmt.Errorf("lifecycle: %w: volunteer %s cannot assign %s", ErrUnauthorized, caller.ID, responderID)
	}
	return nil
}

// Apply validates ev against the current record and returns the updated
// record. current is never modified. A nil current yields ErrNotFound.
func Apply(current *models.SOSRequest, ev Event, caller Caller) (*models.SOSRequest, error) {
	if current == nil {
		return nil, fmt.Errorf("lifecycle: %w", ErrNotFound)
	}

	switch ev.Kind {
	case EventAssign:
		return applyAssign(current, ev, caller)
	case EventResolve:
		return applyResolve(current, ev, caller)
	default:
		return nil, fmt.Errorf("lifecycle: %w: unknown event %q", ErrInvalidTransition, ev.Kind)
	}
}

func applyAssign(current *models.SOSRequest, ev Event, caller Caller) (*models.SOSRequest, error) {
	if ev.ResponderID == "" {
		return nil, fmt.Errorf("lifecycle: %w: responder id is required", ErrInvalidResponder)
	}
	if err := AuthorizeAssign(caller, ev.ResponderID); err != nil {
		return nil, err
	}
	if !CanTransition(current.Status, StatusAssigned) {
		return nil, transitionError(current, StatusAssigned)
	}
	if ev.ResponderActive != "" && ev.ResponderActive != current.ID {
		return nil, fmt.Errorf("lifecycle: %w: %s already holds %s", ErrResponderBusy, ev.ResponderID, ev.ResponderActive)
	}

	next := *current
	at := ev.At
	next.Status = StatusAssigned
	next.AssignedResponderID = ev.ResponderID
	next.AssignedAt = &at
	next.UpdatedAt = at
	next.UpdatedBy = caller.ID
	next.Events = nil
	return &next, nil
}

func applyResolve(current *models.SOSRequest, ev Event, caller Caller) (*models.SOSRequest, error) {
	if !caller.IsResponder() {
		return nil, fmt.Errorf("lifecycle: %w: role %q cannot resolve requests", ErrUnauthorized, caller.Role)
	}
	if !CanTransition(current.Status, StatusResolved) {
		return nil, transitionError(current, StatusResolved)
	}
	if caller.Role != RoleResponder && caller.ID != current.AssignedResponderID {
		return nil, fmt.Errorf("lifecycle: %w: %s is not assigned to %s", ErrUnauthorized, caller.ID, current.ID)
	}

	next := *current
	at := ev.At
	next.Status = StatusResolved
	next.ResolvedAt = &at
	next.UpdatedAt = at
	next.UpdatedBy = caller.ID
	next.Events = nil
	return &next, nil
}

func transitionError(current *models.SOSRequest, to string) error {
	return fmt.Errorf("lifecycle: %w: %s from %q to %q; valid transitions: %v",
		ErrInvalidTransition, current.ID, current.Status, to, ValidTransitions[current.Status])
}

// CheckInvariant verifies that a record's assignment matches its status:
// an assigned responder is present exactly when the request is not pending.
func CheckInvariant(r *models.SOSRequest) error {
	switch r.Status {
	case StatusPending:
		if r.AssignedResponderID != "" {
			return fmt.Errorf("lifecycle: pending request %s has responder %s", r.ID, r.AssignedResponderID)
		}
	case StatusAssigned, StatusResolved:
		if r.AssignedResponderID == "" {
			return fmt.Errorf("lifecycle: %s request %s has no responder", r.Status, r.ID)
		}
	default:
		return fmt.Errorf("lifecycle: request %s has unknown status %q", r.ID, r.Status)
	}
	return nil
}
