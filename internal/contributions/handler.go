package contributions

import (
	"bufio"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"schedule-backend/internal/extraction"
	"schedule-backend/internal/routes"
	"schedule-backend/internal/shared/server/middleware"
	"schedule-backend/internal/shared/server/respond"
)

// multipart framing and the text fields ride on top of the image limit.
const maxRequestSize = extraction.MaxImageBytes + 1<<20

// Handler wires HTTP handlers to the contributions service.
type Handler struct {
	Svc   *Service
	polls *pollLimiter
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc, polls: newPollLimiter(pollLimitWindow, nil)}
}

// RegisterRoutes attaches contribution routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/contributions/images", h.upload)
	rg.GET("/contributions", h.list)
	rg.GET("/contributions/stats", h.stats)
	rg.GET("/contributions/:id", h.get)
	rg.GET("/contributions/:id/candidates", h.candidates)
	rg.POST("/contributions/:id/retry", h.retry)
}

func (h *Handler) upload(c *gin.Context) {
	submitterID := middleware.SubmitterIDFromContext(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestSize)

	fileHeader, err := c.FormFile("image")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "image is required", nil)
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "unable to read image", nil)
		return
	}
	defer file.Close()

	body := bufio.NewReader(file)
	mimeType := strings.TrimSpace(fileHeader.Header.Get("Content-Type"))
	if !strings.HasPrefix(mimeType, "image/") {
		head, _ := body.Peek(512)
		mimeType = http.DetectContentType(head)
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	contribution, err := h.Svc.Submit(ctx, SubmitInput{
		SubmitterID: submitterID,
		FileName:    fileHeader.Filename,
		MimeType:    mimeType,
		Size:        fileHeader.Size,
		Body:        body,
		Description: c.PostForm("description"),
		Location:    c.PostForm("location"),
		RouteName:   c.PostForm("routeName"),
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to submit contribution", nil)
		}
		return
	}

	resp := gin.H{
		"contributionId": contribution.ID,
		"status":         contribution.Status,
	}
	switch contribution.Status {
	case StatusUploadFailed:
		resp["message"] = contribution.ValidationMessage
		respond.JSON(c, http.StatusBadGateway, resp)
	case StatusFailed:
		resp["message"] = contribution.ValidationMessage
		respond.JSON(c, http.StatusServiceUnavailable, resp)
	default:
		respond.Accepted(c, resp)
	}
}

func (h *Handler) get(c *gin.Context) {
	submitterID := middleware.SubmitterIDFromContext(c)
	id := c.Param("id")
	if !h.polls.Allow(submitterID, id) {
		retryAfter := h.polls.RetryAfterSeconds()
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		respond.Error(c, http.StatusTooManyRequests, "rate_limited", "polling too frequently", gin.H{"retryAfterSeconds": retryAfter})
		return
	}

	contribution, ok := h.load(c, submitterID, id)
	if !ok {
		return
	}
	respond.OK(c, toStatusResponse(contribution))
}

func (h *Handler) list(c *gin.Context) {
	submitterID := middleware.SubmitterIDFromContext(c)

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	if offset < 0 {
		offset = 0
	}

	items, err := h.Svc.List(c.Request.Context(), submitterID, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to list contributions", nil)
		return
	}
	resp := make([]statusResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toStatusResponse(item))
	}
	respond.OK(c, resp)
}

func (h *Handler) candidates(c *gin.Context) {
	submitterID := middleware.SubmitterIDFromContext(c)
	contribution, ok := h.load(c, submitterID, c.Param("id"))
	if !ok {
		return
	}
	items, err := h.Svc.ListCandidates(c.Request.Context(), contribution.ID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to list candidates", nil)
		return
	}
	if items == nil {
		items = []routes.Candidate{}
	}
	respond.OK(c, items)
}

func (h *Handler) retry(c *gin.Context) {
	submitterID := middleware.SubmitterIDFromContext(c)
	contribution, ok := h.load(c, submitterID, c.Param("id"))
	if !ok {
		return
	}

	ctx := WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
	accepted, err := h.Svc.Retry(ctx, contribution.ID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to retry contribution", nil)
		return
	}
	if !accepted {
		respond.JSON(c, http.StatusConflict, gin.H{
			"accepted": false,
			"status":   contribution.Status,
			"code":     ErrorCodeNotRetrying,
		})
		return
	}
	respond.Accepted(c, gin.H{
		"accepted": true,
		"status":   StatusProcessing,
	})
}

func (h *Handler) stats(c *gin.Context) {
	st, err := h.Svc.Stats(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to compute statistics", nil)
		return
	}
	respond.OK(c, st)
}

// load fetches a contribution owned by submitterID and writes the error
// response itself when that fails.
func (h *Handler) load(c *gin.Context, submitterID, id string) (Contribution, bool) {
	contribution, err := h.Svc.Get(c.Request.Context(), id)
	if err == nil && contribution.SubmitterID != submitterID {
		err = ErrNotFound
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "contribution not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "contribution id is required", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to fetch contribution", nil)
		}
		return Contribution{}, false
	}
	return contribution, true
}
