package http

import (
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"go.ngs.io/cyclone-tracker/internal/adapter/store/csv"
	"go.ngs.io/cyclone-tracker/internal/domain"
	"go.ngs.io/cyclone-tracker/internal/usecase"
)

// Handler handles HTTP requests for storm tracks.
type Handler struct {
	trackUC *usecase.TrackUseCase
}

// NewHandler creates a new HTTP handler.
func NewHandler(trackUC *usecase.TrackUseCase) *Handler {
	return &Handler{
		trackUC: trackUC,
	}
}

// writeError maps use case errors to status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, usecase.ErrInvalidRequest), errors.Is(err, csv.ErrInvalidRunName):
		status = http.StatusBadRequest
	case errors.Is(err, os.ErrNotExist):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrVariableNotFound):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// TrackRequestBody is the JSON body of POST /v1/tracks.
type TrackRequestBody struct {
	InputFile        string   `json:"input_file" binding:"required"`
	StartLat         *float64 `json:"start_lat" binding:"required"`
	StartLon         *float64 `json:"start_lon" binding:"required"`
	Run              string   `json:"run"`
	TrackingRadius   float64  `json:"tracking_radius_deg"`
	SearchRadius     float64  `json:"search_radius_deg"`
	CorrectionFactor float64  `json:"correction_factor"`
}

// CreateTrack handles POST /v1/tracks.
func (h *Handler) CreateTrack(c *gin.Context) {
	var body TrackRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	response, err := h.trackUC.Execute(c.Request.Context(), usecase.TrackRequest{
		InputFile:        body.InputFile,
		Run:              body.Run,
		Lat:              body.StartLat,
		Lon:              body.StartLon,
		TrackingRadius:   body.TrackingRadius,
		SearchRadius:     body.SearchRadius,
		CorrectionFactor: body.CorrectionFactor,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ListTracks handles GET /v1/tracks.
func (h *Handler) ListTracks(c *gin.Context) {
	runs, err := h.trackUC.ListRuns()
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  runs,
		"count": len(runs),
	})
}

// GetTrack handles GET /v1/tracks/:run.
func (h *Handler) GetTrack(c *gin.Context) {
	run := c.Param("run")
	points, err := h.trackUC.Load(run)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":    run,
		"points": points,
		"count":  len(points),
	})
}

// GetTrackPlot handles GET /v1/tracks/:run/plot.
func (h *Handler) GetTrackPlot(c *gin.Context) {
	path, err := h.trackUC.PlotPath(c.Param("run"))
	if err != nil {
		writeError(c, err)
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(c, err)
		return
	}
	c.File(path)
}

// CategoryInfo describes one intensity class of the scale.
type CategoryInfo struct {
	Code    string   `json:"code"`
	Label   string   `json:"label"`
	Color   string   `json:"color"`
	MinWind float64  `json:"min_wind_ms"`
	MaxWind *float64 `json:"max_wind_ms,omitempty"` // Exclusive; absent for the top class.
}

// GetCategories handles GET /v1/categories.
func (h *Handler) GetCategories(c *gin.Context) {
	scale := h.trackUC.Scale()
	categories := domain.AllCategories()

	response := make([]CategoryInfo, len(categories))
	for i, cat := range categories {
		response[i] = CategoryInfo{
			Code:    cat.String(),
			Label:   cat.Label(),
			Color:   cat.ColorName(),
			MinWind: scale.LowerBound(cat),
		}
		if i+1 < len(categories) {
			upper := scale.LowerBound(categories[i+1])
			response[i].MaxWind = &upper
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"categories": response,
		"count":      len(response),
	})
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
