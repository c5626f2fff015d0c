// Package store persists SOS requests and reads the responder directory.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/rapidaid/internal/lifecycle"
	"github.com/zulandar/rapidaid/internal/models"
)

// Store is the durable keyed storage the coordinator, intake and matcher
// build on. Implementations must make PutRequestIfUnchanged atomic across
// the record, its assignment link and its history entry.
type Store interface {
	GetRequest(ctx context.Context, id string) (*models.SOSRequest, error)
	CreateRequest(ctx context.Context, rec *models.SOSRequest) error
	PutRequestIfUnchanged(ctx context.Context, rec *models.SOSRequest, expectedVersion int) error
	ListPendingRequests(ctx context.Context) ([]models.SOSRequest, error)
	ListRequests(ctx context.Context, f RequestFilter) ([]models.SOSRequest, error)
	ListStalePending(ctx context.Context, olderThan time.Time) ([]models.SOSRequest, error)
	ListEvents(ctx context.Context, requestID string) ([]models.RequestEvent, error)

	GetResponder(ctx context.Context, id string) (*models.Responder, error)
	GetResponderActiveAssignment(ctx context.Context, responderID string) (string, error)
	ListAvailableCandidates(ctx context.Context, category string) ([]models.Responder, error)
}

// RequestFilter narrows ListRequests. Zero fields match everything.
type RequestFilter struct {
	Status      string
	ReporterID  string
	ResponderID string
	Limit       int
}

// History event names written alongside each state change.
const (
	EventSubmitted = "submitted"
	EventAssigned  = "assigned"
	EventResolved  = "resolved"
)

// Gorm implements Store on a GORM connection opened with TranslateError.
type Gorm struct {
	db      *gorm.DB
	timeout time.Duration
}

var _ Store = (*Gorm)(nil)

// New returns a Store over db. Each call runs under timeout when it is
// positive.
func New(db *gorm.DB, timeout time.Duration) *Gorm {
	return &Gorm{db: db, timeout: timeout}
}

func (s *Gorm) conn(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if s.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		return s.db.WithContext(ctx), cancel
	}
	return s.db.WithContext(ctx), func() {}
}

// translate maps backend errors onto the lifecycle taxonomy. Sentinels
// raised inside transactions pass through unchanged.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("store: %s: %w", op, lifecycle.ErrNotFound)
	case errors.Is(err, lifecycle.ErrNotFound),
		errors.Is(err, lifecycle.ErrVersionConflict),
		errors.Is(err, lifecycle.ErrResponderBusy):
		return fmt.Errorf("store: %s: %w", op, err)
	default:
		return fmt.Errorf("store: %s: %w: %w", op, lifecycle.ErrStoreUnavailable, err)
	}
}

// GetRequest loads a request by id.
func (s *Gorm) GetRequest(ctx context.Context, id string) (*models.SOSRequest, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var rec models.SOSRequest
	if err := db.Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, translate("get request "+id, err)
	}
	return &rec, nil
}

// CreateRequest inserts a new request and its "submitted" history entry.
// An id collision reports lifecycle.ErrVersionConflict.
func (s *Gorm) CreateRequest(ctx context.Context, rec *models.SOSRequest) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Events").Create(rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("id %s taken: %w", rec.ID, lifecycle.ErrVersionConflict)
			}
			return err
		}
		return tx.Create(&models.RequestEvent{
			RequestID: rec.ID,
			Event:     EventSubmitted,
			ActorID:   rec.ReporterID,
			ToStatus:  rec.Status,
			CreatedAt: rec.CreatedAt,
		}).Error
	})
	return translate("create request "+rec.ID, err)
}

// PutRequestIfUnchanged writes rec only if the stored version still equals
// expectedVersion, bumping the version by one. In the same transaction it
// creates or releases the responder's active assignment and appends a
// history entry. On success rec.Version holds the new version.
func (s *Gorm) PutRequestIfUnchanged(ctx context.Context, rec *models.SOSRequest, expectedVersion int) error {
	db, cancel := s.conn(ctx)
	defer cancel()

	err := db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.SOSRequest{}).
			Where("id = ? AND version = ?", rec.ID, expectedVersion).
			Updates(map[string]interface{}{
				"status":                rec.Status,
				"assigned_responder_id": rec.AssignedResponderID,
				"updated_by":            rec.UpdatedBy,
				"updated_at":            rec.UpdatedAt,
				"assigned_at":           rec.AssignedAt,
				"resolved_at":           rec.ResolvedAt,
				"version":               expectedVersion + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&models.SOSRequest{}).Where("id = ?", rec.ID).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("request %s: %w", rec.ID, lifecycle.ErrNotFound)
			}
			return fmt.Errorf("request %s at version %d: %w", rec.ID, expectedVersion, lifecycle.ErrVersionConflict)
		}

		var event string
		switch rec.Status {
		case lifecycle.StatusAssigned:
			event = EventAssigned
			link := models.ActiveAssignment{
				ResponderID: rec.AssignedResponderID,
				RequestID:   rec.ID,
				AssignedAt:  rec.UpdatedAt,
			}
			if err := tx.Create(&link).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return fmt.Errorf("responder %s: %w", rec.AssignedResponderID, lifecycle.ErrResponderBusy)
				}
				return err
			}
		case lifecycle.StatusResolved:
			event = EventResolved
			if err := tx.Where("request_id = ?", rec.ID).Delete(&models.ActiveAssignment{}).Error; err != nil {
				return err
			}
		default:
			event = rec.Status
		}

		return tx.Create(&models.RequestEvent{
			RequestID:  rec.ID,
			Event:      event,
			ActorID:    rec.UpdatedBy,
			FromStatus: previousStatus(rec.Status),
			ToStatus:   rec.Status,
			CreatedAt:  rec.UpdatedAt,
		}).Error
	})
	if err != nil {
		return translate("put request "+rec.ID, err)
	}
	rec.Version = expectedVersion + 1
	return nil
}

// previousStatus returns the only status that may precede to.
func previousStatus(to string) string {
	for from, next := range lifecycle.ValidTransitions {
		for _, n := range next {
			if n == to {
				return from
			}
		}
	}
	return ""
}

// ListPendingRequests returns unclaimed requests, oldest first.
func (s *Gorm) ListPendingRequests(ctx context.Context) ([]models.SOSRequest, error) {
	return s.ListRequests(ctx, RequestFilter{Status: lifecycle.StatusPending})
}

// ListRequests returns requests matching f, oldest first.
func (s *Gorm) ListRequests(ctx context.Context, f RequestFilter) ([]models.SOSRequest, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	q := db.Model(&models.SOSRequest{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ReporterID != "" {
		q = q.Where("reporter_id = ?", f.ReporterID)
	}
	if f.ResponderID != "" {
		q = q.Where("assigned_responder_id = ?", f.ResponderID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var recs []models.SOSRequest
	if err := q.Order("created_at ASC, id ASC").Find(&recs).Error; err != nil {
		return nil, translate("list requests", err)
	}
	return recs, nil
}

// ListStalePending returns pending requests created before olderThan,
// oldest first.
func (s *Gorm) ListStalePending(ctx context.Context, olderThan time.Time) ([]models.SOSRequest, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var recs []models.SOSRequest
	err := db.Where("status = ? AND created_at < ?", lifecycle.StatusPending, olderThan.UTC()).
		Order("created_at ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, translate("list stale requests", err)
	}
	return recs, nil
}

// ListEvents returns a request's history in the order it was written.
func (s *Gorm) ListEvents(ctx context.Context, requestID string) ([]models.RequestEvent, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var n int64
	if err := db.Model(&models.SOSRequest{}).Where("id = ?", requestID).Count(&n).Error; err != nil {
		return nil, translate("list events "+requestID, err)
	}
	if n == 0 {
		return nil, translate("list events "+requestID, gorm.ErrRecordNotFound)
	}

	var events []models.RequestEvent
	if err := db.Where("request_id = ?", requestID).Order("id ASC").Find(&events).Error; err != nil {
		return nil, translate("list events "+requestID, err)
	}
	return events, nil
}

// GetResponder loads a directory entry by id.
func (s *Gorm) GetResponder(ctx context.Context, id string) (*models.Responder, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var r models.Responder
	if err := db.Where("id = ?", id).First(&r).Error; err != nil {
		return nil, translate("get responder "+id, err)
	}
	return &r, nil
}

// GetResponderActiveAssignment returns the id of the request the responder
// currently holds, or "" when they hold none.
func (s *Gorm) GetResponderActiveAssignment(ctx context.Context, responderID string) (string, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	var link models.ActiveAssignment
	err := db.Where("responder_id = ?", responderID).Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", translate("get assignment for "+responderID, err)
	}
	return link.RequestID, nil
}

// ListAvailableCandidates returns available responders who accept category
// and hold no active assignment, in directory insertion order. An empty
// category matches every responder.
func (s *Gorm) ListAvailableCandidates(ctx context.Context, category string) ([]models.Responder, error) {
	db, cancel := s.conn(ctx)
	defer cancel()

	busy := db.Model(&models.ActiveAssignment{}).Select("responder_id")
	var all []models.Responder
	err := db.Where("available = ?", true).
		Where("id NOT IN (?)", busy).
		Order("created_at ASC, id ASC").
		Find(&all).Error
	if err != nil {
		return nil, translate("list candidates", err)
	}

	out := all[:0]
	for _, r := range all {
		if r.Accepts(category) {
			out = append(out, r)
		}
	}
	return out, nil
}
