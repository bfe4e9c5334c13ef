package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/surveysystem/tax-api/internal/logger"
	"github.com/surveysystem/tax-api/internal/orders"
	"github.com/surveysystem/tax-api/internal/tax"
)

// CommonServices holds the shared dependencies used across handlers.
type CommonServices struct {
	store    orders.OrderStore
	resolver *tax.Resolver
	calc     *tax.Calculator
	logger   *zap.Logger
}

// NewCommonServices creates the shared handler dependencies.
func NewCommonServices(store orders.OrderStore, resolver *tax.Resolver, calc *tax.Calculator) *CommonServices {
	return &CommonServices{
		store:    store,
		resolver: resolver,
		calc:     calc,
		logger:   logger.Log,
	}
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse represents a standard success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// HandleError logs the error and writes a standard error response.
func (s *CommonServices) HandleError(c *gin.Context, err error, message string, statusCode int) {
	if err != nil {
		s.logger.Error(message,
			zap.Error(err),
			zap.String("path", c.Request.URL.Path),
			zap.String("method", c.Request.Method))
	}

	c.JSON(statusCode, ErrorResponse{
		Error: message,
	})
}

// parsePagination reads page/page_size query parameters with defaults.
func parsePagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize
}
