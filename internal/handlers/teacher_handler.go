package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/calificaprofe/calificaprofe-api/internal/models"
	"github.com/calificaprofe/calificaprofe-api/internal/services"
	"github.com/calificaprofe/calificaprofe-api/pkg/retry"
	"github.com/gin-gonic/gin"
)

const (
	listingUnavailableMessage = "No se pudieron cargar los profesores. Inténtalo de nuevo más tarde."
	listingExhaustedMessage   = "El servidor no respondió tras varios intentos. Inténtalo de nuevo más tarde."
)

// listingErrorMessage tells a page that failed after every retry apart from one
// that failed outright
func listingErrorMessage(err error) string {
	if retry.IsExhausted(err) {
		return listingExhaustedMessage
	}
	return listingUnavailableMessage
}

// TeacherHandler serves the teacher listing and its filter options
type TeacherHandler struct {
	service         services.ListingServiceInterface
	defaultPageSize int
	now             func() time.Time
}

// NewTeacherHandler creates a new TeacherHandler
func NewTeacherHandler(service services.ListingServiceInterface, defaultPageSize int) *TeacherHandler {
	return &TeacherHandler{
		service:         service,
		defaultPageSize: defaultPageSize,
		now:             time.Now,
	}
}

type listingRequest struct {
	models.ListingQuery
	Refresh bool `form:"refresh"`
}

// bindListing parses the query string; it responds and returns false on failure
func (h *TeacherHandler) bindListing(c *gin.Context) (models.ListingQuery, bool) {
	var req listingRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondErrorWithDetails(c, http.StatusBadRequest, "Validation failed", ParseValidationErrors(err), err)
		return models.ListingQuery{}, false
	}

	q := req.ListingQuery.Normalize(h.defaultPageSize)
	if req.Refresh {
		h.service.Invalidate(c.Request.Context(), q)
	}
	return q, true
}

// GetTeachers handles GET /api/v1/teachers
// Returns the first renderable page; loading is set when a cached page was
// served while the remote query is still running.
func (h *TeacherHandler) GetTeachers(c *gin.Context) {
	q, ok := h.bindListing(c)
	if !ok {
		return
	}

	snap, _, err := h.service.GetListing(c.Request.Context(), q)
	if snap == nil {
		status, message := statusForError(err)
		respondError(c, status, message, err)
		return
	}

	resp := h.toListingResponse(q, *snap)
	if err != nil {
		attachError(c, err)
		resp.Error = listingErrorMessage(err)
	}
	c.JSON(http.StatusOK, resp)
}

// StreamTeachers handles GET /api/v1/teachers/stream
// Sends the first page as a server-sent event, followed by the fresh page
// when the first one came from the cache.
func (h *TeacherHandler) StreamTeachers(c *gin.Context) {
	q, ok := h.bindListing(c)
	if !ok {
		return
	}

	snap, updates, err := h.service.GetListing(c.Request.Context(), q)
	if snap == nil {
		status, message := statusForError(err)
		respondError(c, status, message, err)
		return
	}

	first := h.toListingResponse(q, *snap)
	if err != nil {
		attachError(c, err)
		first.Error = listingErrorMessage(err)
	}

	ctx := c.Request.Context()
	sent := false
	c.Stream(func(w io.Writer) bool {
		if !sent {
			sent = true
			c.SSEvent("listing", first)
			return true
		}
		select {
		case fresh, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("listing", h.toListingResponse(q, fresh))
			return true
		case <-ctx.Done():
			return false
		}
	})
}

// GetFilters handles GET /api/v1/teachers/filters
func (h *TeacherHandler) GetFilters(c *gin.Context) {
	opts, err := h.service.GetDistinctFilters(c.Request.Context())
	if err != nil {
		attachError(c, err)
		c.JSON(http.StatusOK, gin.H{
			"universities": nonNil(opts.Universities),
			"subjects":     nonNil(opts.Subjects),
			"teachers":     nonNil(opts.Teachers),
			"error":        "No se pudieron cargar los filtros",
		})
		return
	}

	c.JSON(http.StatusOK, models.FilterOptions{
		Universities: nonNil(opts.Universities),
		Subjects:     nonNil(opts.Subjects),
		Teachers:     nonNil(opts.Teachers),
	})
}

func (h *TeacherHandler) toListingResponse(q models.ListingQuery, snap models.ListingSnapshot) models.ListingResponse {
	now := h.now()
	cards := make([]models.TeacherCard, 0, len(snap.Rows))
	for _, row := range snap.Rows {
		cards = append(cards, models.TeacherCard{
			TeacherSummary: row,
			UpdatedLabel:   models.RelativeUpdated(row.LastReviewDate, now),
		})
	}

	return models.ListingResponse{
		Rows:       cards,
		TotalCount: snap.TotalCount,
		Page:       q.Page,
		PageSize:   q.PageSize,
		Loading:    snap.Loading,
		Source:     snap.Source,
		Stale:      snap.Stale,
	}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
