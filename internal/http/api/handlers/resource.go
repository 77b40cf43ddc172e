package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"github.com/gin-gonic/gin"
	"github.com/lumenpress/lumenpress/internal/resource"
	log "github.com/sirupsen/logrus"
)

// storeErrors counts requests that failed with a storage error.
var storeErrors = metrics.NewCounter(`lumenpress_store_errors_total`)

// ResourceHandler multiplexes CRUD methods over the allow-listed resources.
type ResourceHandler struct {
	svc          *resource.Service
	maxBodyBytes int64
}

// NewResourceHandler constructs a ResourceHandler. A maxBodyBytes of 0 disables the limit.
func NewResourceHandler(svc *resource.Service, maxBodyBytes int64) *ResourceHandler {
	return &ResourceHandler{svc: svc, maxBodyBytes: maxBodyBytes}
}

// Handle serves /api/:resource.
func (h *ResourceHandler) Handle(c *gin.Context) {
	if c.Request.Method == http.MethodOptions {
		c.Status(http.StatusOK)
		return
	}
	res, ok := h.resolve(c)
	if !ok {
		return
	}

	switch c.Request.Method {
	case http.MethodGet:
		h.get(c, res)
	case http.MethodPost:
		h.create(c, res)
	case http.MethodPut:
		h.update(c, res)
	case http.MethodDelete:
		h.delete(c, res)
	default:
		methodNotAllowed(c)
	}
}

// Batch serves /api/:resource/batch, which only accepts POST.
func (h *ResourceHandler) Batch(c *gin.Context) {
	if c.Request.Method == http.MethodOptions {
		c.Status(http.StatusOK)
		return
	}
	res, ok := h.resolve(c)
	if !ok {
		return
	}
	if c.Request.Method != http.MethodPost {
		methodNotAllowed(c)
		return
	}

	h.limitBody(c)
	payload, err := resource.DecodeBatch(c.Request.Body, res.Kind)
	if err != nil {
		respondError(c, res, err)
		return
	}
	count, err := h.svc.Replace(c.Request.Context(), res, payload)
	if err != nil {
		respondError(c, res, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": count})
}

// resolve validates the resource name before any storage access.
func (h *ResourceHandler) resolve(c *gin.Context) (resource.Resource, bool) {
	res, err := h.svc.Resolve(c.Param("resource"))
	if err != nil {
		respondError(c, res, err)
		return resource.Resource{}, false
	}
	return res, true
}

func (h *ResourceHandler) get(c *gin.Context, res resource.Resource) {
	id := queryID(c)
	if id == "" {
		data, err := h.svc.List(c.Request.Context(), res)
		if err != nil {
			respondError(c, res, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
		return
	}

	item, err := h.svc.Get(c.Request.Context(), res, id)
	if err != nil {
		respondError(c, res, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": item})
}

func (h *ResourceHandler) create(c *gin.Context, res resource.Resource) {
	h.limitBody(c)
	body, err := resource.DecodeObject(c.Request.Body)
	if err != nil {
		respondError(c, res, err)
		return
	}
	item, err := h.svc.Create(c.Request.Context(), res, body)
	if err != nil {
		respondError(c, res, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": item})
}

func (h *ResourceHandler) update(c *gin.Context, res resource.Resource) {
	id := queryID(c)
	if id == "" && res.Kind == resource.KindList {
		respondError(c, res, resource.ErrMissingID)
		return
	}
	h.limitBody(c)
	patch, err := resource.DecodeObject(c.Request.Body)
	if err != nil {
		respondError(c, res, err)
		return
	}
	item, err := h.svc.Update(c.Request.Context(), res, id, patch)
	if err != nil {
		respondError(c, res, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": item})
}

func (h *ResourceHandler) delete(c *gin.Context, res resource.Resource) {
	id := queryID(c)
	if err := h.svc.Delete(c.Request.Context(), res, id); err != nil {
		respondError(c, res, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "deleted"})
}

// limitBody caps the request body when a limit is configured.
func (h *ResourceHandler) limitBody(c *gin.Context) {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
}

// queryID returns the trimmed id query parameter; empty means absent.
func queryID(c *gin.Context) string {
	return strings.TrimSpace(c.Query("id"))
}

func methodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, gin.H{"success": false, "error": "method not allowed"})
}

// respondError maps service errors onto HTTP statuses. Storage failures are
// logged and their message is returned as is.
func respondError(c *gin.Context, res resource.Resource, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "request body too large"})
	case errors.Is(err, resource.ErrUnknownResource),
		errors.Is(err, resource.ErrInvalidBody),
		errors.Is(err, resource.ErrMissingID),
		errors.Is(err, resource.ErrSingletonDelete):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
	case errors.Is(err, resource.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
	default:
		storeErrors.Inc()
		log.WithError(err).Errorf("%s %s failed", c.Request.Method, res.Name)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	}
}
