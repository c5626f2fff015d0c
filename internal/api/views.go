package api

import (
	"time"

	"github.com/zulandar/rapidaid/internal/matcher"
	"github.com/zulandar/rapidaid/internal/models"
)

type locationView struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Address   string  `json:"address,omitempty"`
}

type requestView struct {
	ID                  string       `json:"id"`
	ReporterID          string       `json:"reporterId"`
	Category            string       `json:"category"`
	Description         string       `json:"description"`
	Location            locationView `json:"location"`
	Status              string       `json:"status"`
	AssignedResponderID string       `json:"assignedResponderId,omitempty"`
	Version             int          `json:"version"`
	CreatedAt           time.Time    `json:"createdAt"`
	UpdatedAt           time.Time    `json:"updatedAt"`
	AssignedAt          *time.Time   `json:"assignedAt,omitempty"`
	ResolvedAt          *time.Time   `json:"resolvedAt,omitempty"`
}

func newRequestView(r *models.SOSRequest) requestView {
	return requestView{
		ID:                  r.ID,
		ReporterID:          r.ReporterID,
		Category:            r.Category,
		Description:         r.Description,
		Location:            locationView{Longitude: r.Location.Longitude, Latitude: r.Location.Latitude, Address: r.Location.Address},
		Status:              r.Status,
		AssignedResponderID: r.AssignedResponderID,
		Version:             r.Version,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		AssignedAt:          r.AssignedAt,
		ResolvedAt:          r.ResolvedAt,
	}
}

type responderView struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName"`
	Contact     string   `json:"contact,omitempty"`
	Role        string   `json:"role"`
	Available   bool     `json:"availability"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	DistanceKm  *float64 `json:"distanceKm"`
}

func newResponderView(r models.Responder, distance *float64) responderView {
	return responderView{
		ID:          r.ID,
		DisplayName: r.DisplayName,
		Contact:     r.Contact,
		Role:        r.Role,
		Available:   r.Available,
		Latitude:    r.Latitude,
		Longitude:   r.Longitude,
		DistanceKm:  distance,
	}
}

func newCandidateViews(cs []matcher.Candidate) []responderView {
	out := make([]responderView, len(cs))
	for i, c := range cs {
		out[i] = newResponderView(c.Responder, c.DistanceKm)
	}
	return out
}

type eventView struct {
	Event      string    `json:"event"`
	ActorID    string    `json:"actorId,omitempty"`
	FromStatus string    `json:"fromStatus,omitempty"`
	ToStatus   string    `json:"toStatus"`
	CreatedAt  time.Time `json:"createdAt"`
}

func newEventViews(es []models.RequestEvent) []eventView {
	out := make([]eventView, len(es))
	for i, e := range es {
		out[i] = eventView{Event: e.Event, ActorID: e.ActorID, FromStatus: e.FromStatus, ToStatus: e.ToStatus, CreatedAt: e.CreatedAt}
	}
	return out
}
