package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	invoicesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ash_invoices_created_total",
		Help: "Invoices created",
	})
	invoicesMarkedPaid = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ash_invoices_marked_paid_total",
		Help: "Invoices flipped from pending to paid",
	})
	resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ash_resolutions_total",
		Help: "Invoice resolutions by outcome kind",
	}, []string{"kind"})
	resolveDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ash_resolve_duration_seconds",
		Help:    "Time spent in the resolve transaction",
		Buckets: prometheus.DefBuckets,
	})
	referralClaims = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ash_referral_claims_total",
		Help: "Referral rewards claimed",
	})
)
