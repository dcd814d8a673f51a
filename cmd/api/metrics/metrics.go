package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counters are package variables so tests can swap them for fresh registries.
var (
	TicketsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tickets_created_total",
		Help: "Tickets created through the API.",
	})
	TicketsUpdatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tickets_updated_total",
		Help: "Ticket field updates through the API.",
	})
	TicketsEscalatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tickets_escalated_total",
		Help: "Tickets escalated past their response deadline.",
	})
	CommentsAddedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "comments_added_total",
		Help: "Comments appended to ticket threads.",
	})
	AttachmentsUploadedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attachments_uploaded_total",
		Help: "Attachment objects stored.",
	})
	RateLimitRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter.",
	}, []string{"path"})
)

func init() {
	prometheus.MustRegister(
		TicketsCreatedTotal,
		TicketsUpdatedTotal,
		TicketsEscalatedTotal,
		CommentsAddedTotal,
		AttachmentsUploadedTotal,
		RateLimitRejectionsTotal,
	)
}

// Handler exposes the default registry in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) { h.ServeHTTP(c.Writer, c.Request) }
}
