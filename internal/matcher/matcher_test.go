package matcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zulandar/rapidaid/internal/lifecycle"
	"github.com/zulandar/rapidaid/internal/models"
)

type fakeSource struct {
	responders []models.Responder
	err        error
	category   string
}

func (f *fakeSource) ListAvailableCandidates(_ context.Context, category string) ([]models.Responder, error) {
	f.category = category
	return f.responders, f.err
}

func at(lat, lon float64) (*float64, *float64) { return &lat, &lon }

func responder(id string, loc ...float64) models.Responder {
	r := models.Responder{ID: id, DisplayName: id, Role: lifecycle.RoleVolunteer, Available: true}
	if len(loc) == 2 {
		r.Latitude, r.Longitude = at(loc[0], loc[1])
	}
	return r
}

func request() *models.SOSRequest {
	return &models.SOSRequest{
		ID:       "sos-000000000001",
		Category: lifecycle.CategoryMedical,
		Location: models.Location{Latitude: 37.77, Longitude: -122.41},
		Status:   lifecycle.StatusPending,
	}
}

func ids(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestFindCandidates_Ordering(t *testing.T) {
	src := &fakeSource{responders: []models.Responder{
		responder("u-2"),                    // unlocated, inserted first
		responder("far", 34.05, -118.24),    // Los Angeles
		responder("u-1"),                    // unlocated, inserted second
		responder("near-b", 37.78, -122.42), // same point as near-a
		responder("near-a", 37.78, -122.42),
		responder("mid", 37.87, -122.27), // Berkeley
	}}
	got, err := New(src, 0).FindCandidates(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, []string{"near-a", "near-b", "mid", "far", "u-2", "u-1"}, ids(got))
	assert.Equal(t, lifecycle.CategoryMedical, src.category)

	require.NotNil(t, got[0].DistanceKm)
	assert.InDelta(t, 1.41, *got[0].DistanceKm, 0.05)
	require.NotNil(t, got[3].DistanceKm)
	assert.InDelta(t, 559, *got[3].DistanceKm, 5)
	assert.Nil(t, got[4].DistanceKm)
}

func TestFindCandidates_FiltersUnavailableAndCategory(t *testing.T) {
	off := responder("off")
	off.Available = false
	sup := responder("sup")
	sup.Categories = "Supplies"
	med := responder("med")
	med.Categories = "Supplies,Medical"

	src := &fakeSource{responders: []models.Responder{off, sup, med, responder("any")}}
	got, err := New(src, 0).FindCandidates(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, []string{"med", "any"}, ids(got))
}

func TestFindCandidates_Limit(t *testing.T) {
	src := &fakeSource{responders: []models.Responder{
		responder("a", 37.0, -122.0),
		responder("b", 38.0, -122.0),
		responder("c"),
	}}
	got, err := New(src, 2).FindCandidates(context.Background(), request())
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestFindCandidates_Empty(t *testing.T) {
	got, err := New(&fakeSource{}, 0).FindCandidates(context.Background(), request())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFindCandidates_SourceError(t *testing.T) {
	src := &fakeSource{err: lifecycle.ErrStoreUnavailable}
	_, err := New(src, 0).FindCandidates(context.Background(), request())
	assert.True(t, errors.Is(err, lifecycle.ErrStoreUnavailable))
}

func TestFindCandidates_NilRequest(t *testing.T) {
	_, err := New(&fakeSource{}, 0).FindCandidates(context.Background(), nil)
	assert.ErrorIs(t, err, lifecycle.ErrNotFound)
}

func TestHaversine(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want, delta            float64
	}{
		{"same point", 37.77, -122.41, 37.77, -122.41, 0, 1e-9},
		{"SF to LA", 37.7749, -122.4194, 34.0522, -118.2437, 559.1, 1},
		{"quarter meridian", 0, 0, 90, 0, 10007.5, 1},
		{"antipodes", 0, 0, 0, 180, 20015.1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2), tt.delta)
		})
	}
}
