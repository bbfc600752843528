package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/stay-booking-payments/internal/middleware"
	"github.com/iliyamo/stay-booking-payments/internal/model"
	"github.com/iliyamo/stay-booking-payments/internal/repository"
)

// PropertyHandler serves property listings.  Reads are public and cached in
// Redis; creating a property purges that cache.
type PropertyHandler struct {
	Props       *repository.PropertyRepo
	Cache       *redis.Client // may be nil
	CachePrefix string
}

func NewPropertyHandler(props *repository.PropertyRepo, cache *redis.Client, cachePrefix string) *PropertyHandler {
	if props == nil {
		panic("nil repository passed to NewPropertyHandler")
	}
	return &PropertyHandler{Props: props, Cache: cache, CachePrefix: cachePrefix}
}

type propertyReq struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
	NightlyRate string `json:"nightly_rate"`
}

type propertyView struct {
	ID          string `json:"id"`
	HostID      string `json:"host_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Location    string `json:"location"`
	NightlyRate string `json:"nightly_rate"`
}

func toPropertyView(p model.Property) propertyView {
	return propertyView{
		ID:          p.ID,
		HostID:      p.HostID,
		Name:        p.Name,
		Description: p.Description,
		Location:    p.Location,
		NightlyRate: p.NightlyRate.StringFixed(2),
	}
}

// Create handles POST /v1/properties (hosts only).
func (h *PropertyHandler) Create(c echo.Context) error {
	var req propertyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	rate, err := decimal.NewFromString(strings.TrimSpace(req.NightlyRate))
	if err != nil || !rate.IsPositive() || rate.Exponent() < -2 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "nightly_rate must be a positive amount with at most two decimals"})
	}

	ctx := c.Request().Context()
	p := model.Property{
		HostID:      middleware.ActorFrom(c).UserID,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Location:    strings.TrimSpace(req.Location),
		NightlyRate: rate,
	}
	if err := h.Props.Create(ctx, &p); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("create property")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create property failed"})
	}
	if err := middleware.PurgeCache(ctx, h.Cache, h.CachePrefix); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("purge property cache")
	}
	return c.JSON(http.StatusCreated, toPropertyView(p))
}

// List handles GET /v1/properties?limit=&offset=.
func (h *PropertyHandler) List(c echo.Context) error {
	limit := queryInt(c, "limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	items, err := h.Props.List(c.Request().Context(), limit, offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list properties failed"})
	}
	out := make([]propertyView, 0, len(items))
	for _, p := range items {
		out = append(out, toPropertyView(p))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "limit": limit, "offset": offset})
}

// Get handles GET /v1/properties/:id.
func (h *PropertyHandler) Get(c echo.Context) error {
	p, err := h.Props.GetByID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "property not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "load property failed"})
	}
	return c.JSON(http.StatusOK, toPropertyView(p))
}

func queryInt(c echo.Context, name string, def int) int {
	v := c.QueryParam(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
