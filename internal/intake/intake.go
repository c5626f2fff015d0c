// Package intake validates and records new SOS requests.
package intake

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zulandar/rapidaid/internal/lifecycle"
	"github.com/zulandar/rapidaid/internal/models"
)

// Field limits applied to free text.
const (
	MaxDescriptionRunes = 2000
	MaxAddressRunes     = 256
)

// Creator persists a new request. lifecycle.ErrVersionConflict signals an
// id collision.
type Creator interface {
	CreateRequest(ctx context.Context, rec *models.SOSRequest) error
}

// SubmitOpts holds parameters for submitting an SOS request.
type SubmitOpts struct {
	ReporterID  string
	Category    string
	Description string
	Longitude   float64
	Latitude    float64
	Address     string
}

// Service creates requests.
type Service struct {
	store Creator
	log   *zap.Logger
	now   func() time.Time
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDFunc overrides request id generation.
func WithIDFunc(f func() string) Option { return func(s *Service) { s.newID = f } }

// New returns a Service writing to store.
func New(store Creator, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   zap.NewNop(),
		now:   func() time.Time { return time.Now().UTC() },
		newID: NewID,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewID returns a request id: "sos-" followed by 12 hex characters taken
// from a random UUID.
func NewID() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "sos-" + hex[:12]
}

// Submit validates opts and stores a new pending request. Nothing is
// written when validation fails. One id collision is retried with a fresh
// id.
func (s *Service) Submit(ctx context.Context, opts SubmitOpts) (*models.SOSRequest, error) {
	rec, err := s.build(opts)
	if err != nil {
		return nil, err
	}

	err = s.store.CreateRequest(ctx, rec)
	if errors.Is(err, lifecycle.ErrVersionConflict) {
		s.log.Warn("request id collision, retrying", zap.String("request", rec.ID))
		rec.ID = s.newID()
		err = s.store.CreateRequest(ctx, rec)
		if errors.Is(err, lifecycle.ErrVersionConflict) {
			err = fmt.Errorf("%w: %w", lifecycle.ErrStoreUnavailable, err)
		}
	}
	if err != nil {
		s.log.Warn("submit failed", zap.String("reporter", opts.ReporterID), zap.Error(err))
		return nil, fmt.Errorf("intake: submit: %w", err)
	}

	s.log.Info("sos submitted",
		zap.String("request", rec.ID),
		zap.String("reporter", rec.ReporterID),
		zap.String("category", rec.Category))
	return rec, nil
}

func (s *Service) build(opts SubmitOpts) (*models.SOSRequest, error) {
	reporter := strings.TrimSpace(opts.ReporterID)
	if reporter == "" {
		return nil, fmt.Errorf("intake: %w: reporter is required", lifecycle.ErrUnauthorized)
	}
	category, err := lifecycle.ParseCategory(opts.Category)
	if err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}
	if err := ValidateLocation(opts.Longitude, opts.Latitude); err != nil {
		return nil, fmt.Errorf("intake: %w", err)
	}

	desc := truncate(strings.TrimSpace(opts.Description), MaxDescriptionRunes)
	if desc == "" {
		desc = category + " emergency"
	}

	now := s.now()
	return &models.SOSRequest{
		ID:          s.newID(),
		ReporterID:  reporter,
		Category:    category,
		Description: desc,
		Location: models.Location{
			Longitude: opts.Longitude,
			Latitude:  opts.Latitude,
			Address:   truncate(strings.TrimSpace(opts.Address), MaxAddressRunes),
		},
		Status:    lifecycle.StatusPending,
		UpdatedBy: reporter,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ValidateLocation rejects non-finite or out-of-range coordinates.
func ValidateLocation(lon, lat float64) error {
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", lifecycle.ErrInvalidLocation, lon)
	}
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", lifecycle.ErrInvalidLocation, lat)
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
