package server

import (
	"bytes"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	"github.com/twpayne/go-hgt"
	"github.com/twpayne/go-hgt/internal/render"
)

// Handler handles HTTP requests for elevations.
type Handler struct {
	service       *hgt.ElevationService
	defaultMethod hgt.Method
	logger        *slog.Logger
}

// A Result is the elevation at one location.
type Result struct {
	Elevation float64        `json:"elevation"`
	Location  hgt.Coordinate `json:"location"`
}

type batchRequest struct {
	Locations     [][]float64 `json:"locations" binding:"required"`
	Interpolation string      `json:"interpolation"`
}

// NewHandler creates a new HTTP handler.
func NewHandler(service *hgt.ElevationService, defaultMethod hgt.Method, logger *slog.Logger) *Handler {
	return &Handler{
		service:       service,
		defaultMethod: defaultMethod,
		logger:        logger,
	}
}

// GetElevation handles GET /v1/elevation/json.
func (h *Handler) GetElevation(c *gin.Context) {
	method, err := h.method(c.Query("interpolation"))
	if err != nil {
		h.error(c, err)
		return
	}
	coord, err := parseCoordinate(c)
	if err != nil {
		h.error(c, err)
		return
	}

	elevation, err := h.service.Elevation(c.Request.Context(), coord, method)
	if err != nil {
		h.error(c, err)
		return
	}

	c.JSON(http.StatusOK, Result{
		Elevation: elevation,
		Location:  coord,
	})
}

// PostElevations handles POST /v1/elevation/json.
func (h *Handler) PostElevations(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	method, err := h.method(req.Interpolation)
	if err != nil {
		h.error(c, err)
		return
	}
	coords, err := hgt.ValidateLocations(req.Locations)
	if err != nil {
		h.error(c, err)
		return
	}

	elevations, err := h.service.Elevations(c.Request.Context(), coords, method)
	if err != nil {
		h.error(c, err)
		return
	}

	results := make([]Result, len(coords))
	for i, coord := range coords {
		results[i] = Result{
			Elevation: elevations[i],
			Location:  coord,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
	})
}

// GetViz handles GET /v1/elevation/viz.
func (h *Handler) GetViz(c *gin.Context) {
	colormap := c.DefaultQuery("colormap", "terrain")
	if _, ok := render.LookupColormap(colormap); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("colormap must be one of %v", render.Colormaps())})
		return
	}
	coord, err := parseCoordinate(c)
	if err != nil {
		h.error(c, err)
		return
	}

	ctx := c.Request.Context()
	tileSet := h.service.TileSet()
	ref, ok, err := tileSet.Locate(ctx, coord)
	if err != nil {
		h.error(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no tile covers " + hgt.TileIDFor(coord.Lat, coord.Lon).String()})
		return
	}
	tile, err := tileSet.Tile(ctx, ref)
	if err != nil {
		h.error(c, err)
		return
	}

	fracRow, fracCol := h.service.FractionalPosition(coord)
	var buf bytes.Buffer
	x, y := int(math.Round(fracCol)), int(math.Round(fracRow))
	if err := render.WritePNG(&buf, tile, colormap, x, y, render.DefaultSize); err != nil {
		h.error(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) method(name string) (hgt.Method, error) {
	if name == "" {
		return h.defaultMethod, nil
	}
	return hgt.ParseMethod(name)
}

// error writes err as a JSON error. Errors caused by the request are
// reported with 400, everything else is logged and reported with 500.
func (h *Handler) error(c *gin.Context, err error) {
	var validationError *hgt.ValidationError
	var invalidMethodError *hgt.InvalidMethodError
	if errors.As(err, &validationError) || errors.As(err, &invalidMethodError) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.ErrorContext(c.Request.Context(), "request failed", "path", c.Request.URL.Path, "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func parseCoordinate(c *gin.Context) (hgt.Coordinate, error) {
	lat, err := parseFloatQuery(c, "lat")
	if err != nil {
		return hgt.Coordinate{}, err
	}
	lon, err := parseFloatQuery(c, "lon")
	if err != nil {
		return hgt.Coordinate{}, err
	}
	return hgt.ValidateCoordinate(lat, lon)
}

func parseFloatQuery(c *gin.Context, name string) (float64, error) {
	s, ok := c.GetQuery(name)
	if !ok {
		return 0, &hgt.ValidationError{Field: name, Message: name + " parameter is required"}
	}
	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &hgt.ValidationError{Field: name, Message: fmt.Sprintf("invalid %s: %q", name, s)}
	}
	return value, nil
}
