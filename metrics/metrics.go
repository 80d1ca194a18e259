// Package metrics exposes prometheus instrumentation for the access core.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AccessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filevault_access_decisions_total",
		Help: "Access decisions by outcome reason.",
	}, []string{"reason"})

	TokenVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filevault_capability_verifications_total",
		Help: "Capability token verifications by result.",
	}, []string{"result"})

	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filevault_capability_tokens_issued_total",
		Help: "Capability tokens minted by action.",
	}, []string{"action"})

	RateLimitDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "filevault_rate_limit_denials_total",
		Help: "Requests rejected by a fixed-window budget, by purpose.",
	}, []string{"purpose"})

	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "filevault_audit_write_failures_total",
		Help: "Access log writes that failed and were swallowed.",
	})
)

// Handler adapts the prometheus scrape handler to gin.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
