// Package matcher ranks available responders for an SOS request.
package matcher

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"slices"

	"github.com/zulandar/rapidaid/internal/lifecycle"
	"github.com/zulandar/rapidaid/internal/models"
)

// EarthRadiusKm is the mean Earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0088

// CandidateSource lists responders that are available, accept the category
// and hold no active assignment, in directory insertion order.
type CandidateSource interface {
	ListAvailableCandidates(ctx context.Context, category string) ([]models.Responder, error)
}

// Candidate is a responder offered for a request. DistanceKm is nil when the
// responder's location is unknown.
type Candidate struct {
	models.Responder
	DistanceKm *float64
}

// Matcher computes candidate lists. Results are never cached.
type Matcher struct {
	src   CandidateSource
	limit int
}

// New returns a Matcher over src. A positive limit caps the result size.
func New(src CandidateSource, limit int) *Matcher {
	return &Matcher{src: src, limit: limit}
}

// FindCandidates returns responders for req: those with a known location
// nearest first, then the rest in directory order. Ties break by id. An
// empty result is not an error.
func (m *Matcher) FindCandidates(ctx context.Context, req *models.SOSRequest) ([]Candidate, error) {
	if req == nil {
		return nil, fmt.Errorf("matcher: %w", lifecycle.ErrNotFound)
	}
	responders, err := m.src.ListAvailableCandidates(ctx, req.Category)
	if err != nil {
		return nil, fmt.Errorf("matcher: candidates for %s: %w", req.ID, err)
	}

	out := make([]Candidate, 0, len(responders))
	for _, r := range responders {
		if !r.Available || !r.Accepts(req.Category) {
			continue
		}
		c := Candidate{Responder: r}
		if r.HasLocation() {
			d := Haversine(req.Location.Latitude, req.Location.Longitude, *r.Latitude, *r.Longitude)
			c.DistanceKm = &d
		}
		out = append(out, c)
	}

	slices.SortStableFunc(out, compare)
	if m.limit > 0 && len(out) > m.limit {
		out = out[:m.limit]
	}
	return out, nil
}

func compare(a, b Candidate) int {
	switch {
	case a.DistanceKm != nil && b.DistanceKm != nil:
		if c := cmp.Compare(*a.DistanceKm, *b.DistanceKm); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	case a.DistanceKm != nil:
		return -1
	case b.DistanceKm != nil:
		return 1
	default:
		return 0
	}
}

// Haversine returns the great-circle distance in kilometres between two
// points given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	φ1 := lat1 * math.Pi / 180
	φ2 := lat2 * math.Pi / 180
	dφ := (lat2 - lat1) * math.Pi / 180
	dλ := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dφ/2)*math.Sin(dφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(dλ/2)*math.Sin(dλ/2)
	return 2 * EarthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}
