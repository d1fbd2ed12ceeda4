/*
metrics.go - Operation counters

PURPOSE:
  Prometheus counters for the business operations the fund performs.
  Incremented after the store transaction commits, so the counters only
  ever count work that actually landed. Exposed via /metrics (server.go).
*/
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	selectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lunchfund_selections_total",
		Help: "Buyer selections completed.",
	})
	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lunchfund_settlements_total",
		Help: "Settlements committed, by kind.",
	}, []string{"kind"})
	depositDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lunchfund_deposit_decisions_total",
		Help: "Deposit approvals and rejections.",
	}, []string{"decision"})
)
