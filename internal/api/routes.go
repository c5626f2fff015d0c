package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zulandar/rapidaid/internal/intake"
	"github.com/zulandar/rapidaid/internal/lifecycle"
	"github.com/zulandar/rapidaid/internal/store"
)

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, d *Deps) error {
	router.GET("/healthz", handleHealth(d))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api", authenticate(d.Resolver))

	submit := []gin.HandlerFunc{}
	if d.SubmitRate != "" {
		limit, err := rateLimit(d.SubmitRate, d.RateStore)
		if err != nil {
			return err
		}
		submit = append(submit, limit)
	}
	submit = append(submit, idempotent(d.Idempotency, d.IdempotencyTTL), handleSubmit(d))
	api.POST("/sos", submit...)

	api.GET("/sos", handleList(d))
	api.GET("/sos/:id", handleGet(d))
	api.GET("/sos/:id/history", handleHistory(d))
	api.PUT("/sos/:id/assign", requireResponder(), handleAssign(d))
	api.PUT("/sos/:id/resolve", requireResponder(), handleResolve(d))
	api.GET("/sos/:id/candidates", requireResponder(), handleCandidates(d))
	api.GET("/volunteers", requireResponder(), handleVolunteers(d))
	return nil
}

func handleHealth(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health(c.Request.Context()); err != nil {
				c.Error(err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

type submitBody struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Location    *struct {
		Longitude *float64 `json:"longitude"`
		Latitude  *float64 `json:"latitude"`
		Address   string   `json:"address"`
	} `json:"location"`
}

func handleSubmit(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body submitBody
		if err := c.ShouldBindJSON(&body); err != nil {
			abort(c, http.StatusBadRequest, codeBadRequest, "malformed JSON body")
			return
		}
		if body.Location == nil || body.Location.Longitude == nil || body.Location.Latitude == nil {
			writeError(c, fmt.Errorf("api: %w: location.longitude and location.latitude are required", lifecycle.ErrInvalidLocation))
			return
		}

		rec, err := d.Intake.Submit(c.Request.Context(), intake.SubmitOpts{
			ReporterID:  mustCaller(c).ID,
			Category:    body.Category,
			Description: body.Description,
			Longitude:   *body.Location.Longitude,
			Latitude:    *body.Location.Latitude,
			Address:     body.Location.Address,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("Location", "/api/sos/"+rec.ID)
		c.JSON(http.StatusCreated, newRequestView(rec))
	}
}

func handleList(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.DefaultQuery("status", lifecycle.StatusPending)
		switch status {
		case lifecycle.StatusPending:
		case lifecycle.StatusAssigned, lifecycle.StatusResolved, "all":
			if !mustCaller(c).Caller().IsResponder() {
				writeError(c, fmt.Errorf("api: %w: only responders may list %s requests", lifecycle.ErrUnauthorized, status))
				return
			}
			if status == "all" {
				status = ""
			}
		default:
			abort(c, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("unknown status %q", status))
			return
		}

		recs, err := d.Store.ListRequests(c.Request.Context(), store.RequestFilter{
			Status:      status,
			ResponderID: c.Query("responder"),
		})
		if err != nil {
			writeError(c, err)
			return
		}
		views := make([]requestView, len(recs))
		for i := range recs {
			views[i] = newRequestView(&recs[i])
		}
		c.JSON(http.StatusOK, gin.H{"data": views})
	}
}

func handleGet(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := d.Store.GetRequest(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newRequestView(rec))
	}
}

func handleHistory(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := d.Store.ListEvents(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": newEventViews(events)})
	}
}

type assignBody struct {
	ResponderID string `json:"responderId"`
}

func handleAssign(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body assignBody
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			abort(c, http.StatusBadRequest, codeBadRequest, "malformed JSON body")
			return
		}
		caller := mustCaller(c)
		responderID := body.ResponderID
		if responderID == "" {
			responderID = caller.ID
		}

		rec, err := d.Coordinator.Claim(c.Request.Context(), c.Param("id"), responderID, caller.Caller())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newRequestView(rec))
	}
}

func handleResolve(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := d.Coordinator.Resolve(c.Request.Context(), c.Param("id"), mustCaller(c).Caller())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newRequestView(rec))
	}
}

func handleCandidates(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := d.Store.GetRequest(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		cands, err := d.Matcher.FindCandidates(c.Request.Context(), rec)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": newCandidateViews(cands)})
	}
}

func handleVolunteers(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		rs, err := d.Store.ListAvailableCandidates(c.Request.Context(), "")
		if err != nil {
			writeError(c, err)
			return
		}
		views := make([]responderView, len(rs))
		for i, r := range rs {
			views[i] = newResponderView(r, nil)
		}
		c.JSON(http.StatusOK, gin.H{"data": views})
	}
}
