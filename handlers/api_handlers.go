package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type graphqlRequest struct {
	Query         string         `json:"query" binding:"required"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

// GraphQL executes one GraphQL request as the caller resolved by the
// identity middleware. Operation failures travel inside the result unions,
// so anything that reaches the transport is a malformed request.
// POST /graphql
func GraphQL(schema *graphql.Schema, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req graphqlRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": []gin.H{{"message": "Request body must be JSON with a query"}}})
			return
		}
		resp := schema.Exec(c.Request.Context(), req.Query, req.OperationName, req.Variables)
		if len(resp.Errors) > 0 {
			log.Debug("graphql request rejected",
				zap.String("operation", req.OperationName), zap.Int("errors", len(resp.Errors)))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Playground serves a GraphiQL page that talks to endpoint.
// GET /playground
func Playground(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.HTML(http.StatusOK, "playground", gin.H{"Title": "mcsh GraphQL", "Endpoint": endpoint})
	}
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the store answers.
// GET /healthz
func Health(p Pinger, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := p.Ping(c.Request.Context()); err != nil {
			log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// Metrics exposes g in the Prometheus text format.
// GET /metrics
func Metrics(g prometheus.Gatherer) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
}
