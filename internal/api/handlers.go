package api

import (
	"errors"
	"log/slog"
	"net/http"

	"vectorstore-go/internal/metrics"
	"vectorstore-go/internal/vecdb"
	"vectorstore-go/pkg/managed"

	"github.com/gin-gonic/gin"
)

// StoreManager serves the managed store operations
type StoreManager interface {
	Init(req managed.InitRequest) (managed.InitResponse, error)
	Summary(path string) (managed.SummaryResponse, error)
	Search(req managed.SearchRequest) (managed.SearchResponse, error)
	Add(req managed.AddRequest) (managed.AddResponse, error)
	OpenStores() int
}

type Handler struct {
	stores StoreManager
}

func NewHandler(stores StoreManager) *Handler {
	return &Handler{stores: stores}
}

// statusFor maps store errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, vecdb.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, vecdb.ErrStoreNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func logFailure(operation string, code int, err error) {
	if code >= http.StatusInternalServerError {
		slog.Error("Request failed", "operation", operation, "status", code, "error", err)
		return
	}
	slog.Warn("Request rejected", "operation", operation, "status", code, "error", err)
}

func (h *Handler) HandleInit(c *gin.Context) {
	var req managed.InitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failInit(c, http.StatusBadRequest, err)
		return
	}

	resp, err := h.stores.Init(req)
	metrics.OpenStores.Set(float64(h.stores.OpenStores()))
	if err != nil {
		h.failInit(c, statusFor(err), err)
		return
	}

	c.JSON(int(resp.StatusCode), resp)
}

func (h *Handler) failInit(c *gin.Context, code int, err error) {
	logFailure(metrics.OpInit, code, err)
	c.JSON(code, managed.InitResponse{
		StatusCode: managed.StatusCode(code),
		Tensors:    []managed.TensorParams{},
	})
}

func (h *Handler) HandleSummary(c *gin.Context) {
	resp, err := h.stores.Summary(c.Query("path"))
	metrics.OpenStores.Set(float64(h.stores.OpenStores()))
	if err != nil {
		code := statusFor(err)
		logFailure(metrics.OpSummary, code, err)
		c.JSON(code, managed.SummaryResponse{
			StatusCode: managed.StatusCode(code),
			Tensors:    []managed.TensorParams{},
		})
		return
	}

	c.JSON(int(resp.StatusCode), resp)
}

func (h *Handler) HandleSearch(c *gin.Context) {
	var req managed.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failSearch(c, http.StatusBadRequest, err)
		return
	}

	resp, err := h.stores.Search(req)
	metrics.OpenStores.Set(float64(h.stores.OpenStores()))
	if err != nil {
		h.failSearch(c, statusFor(err), err)
		return
	}

	c.JSON(int(resp.StatusCode), resp)
}

func (h *Handler) failSearch(c *gin.Context, code int, err error) {
	logFailure(metrics.OpSearch, code, err)
	c.JSON(code, managed.SearchResponse{
		StatusCode: managed.StatusCode(code),
		Data:       map[string][]managed.Value{},
	})
}

func (h *Handler) HandleAdd(c *gin.Context) {
	var req managed.AddRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.failAdd(c, http.StatusBadRequest, err)
		return
	}

	resp, err := h.stores.Add(req)
	metrics.OpenStores.Set(float64(h.stores.OpenStores()))
	if err != nil {
		h.failAdd(c, statusFor(err), err)
		return
	}

	rows, _ := req.Rows()
	metrics.RowsAdded.Add(float64(rows))

	c.JSON(int(resp.StatusCode), resp)
}

func (h *Handler) failAdd(c *gin.Context, code int, err error) {
	logFailure(metrics.OpAdd, code, err)
	c.JSON(code, managed.AddResponse{StatusCode: managed.StatusCode(code)})
}
