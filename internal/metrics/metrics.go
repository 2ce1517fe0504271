package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// LedgerMetrics holds the Prometheus collectors of the reward ledger.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	// Grants
	RewardsGrantedTotal  *prometheus.CounterVec
	RewardsAmountTotal   *prometheus.CounterVec
	RewardsRejectedTotal *prometheus.CounterVec
	CurrentTier          prometheus.Gauge

	// Locks
	LocksReleasedTotal  *prometheus.CounterVec
	UnlockedAmountTotal *prometheus.CounterVec

	// Settlement
	TransfersTotal         *prometheus.CounterVec
	TransferAmountTotal    *prometheus.CounterVec
	TransferQueueSize      *prometheus.GaugeVec
	SettlementCallDuration prometheus.Histogram

	// Jobs
	JobDuration *prometheus.HistogramVec
	JobSkipped  *prometheus.CounterVec
}

// NewLedgerMetrics creates the collectors and registers them on reg
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	factory := promauto.With(reg)
	return &LedgerMetrics{
		RewardsGrantedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rewards_granted_total",
				Help: "Number of completed reward grants",
			},
			[]string{"event_type"},
		),
		RewardsAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rewards_amount_total",
				Help: "Token amount granted, split into immediate and locked parts",
			},
			[]string{"event_type", "part"},
		),
		RewardsRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rewards_rejected_total",
				Help: "Reward requests rejected or failed, by reason",
			},
			[]string{"event_type", "reason"},
		),
		CurrentTier: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "rewards_current_tier",
				Help: "Halving tier threshold used by the latest grant",
			},
		),
		LocksReleasedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locks_released_total",
				Help: "Number of lock records released",
			},
			[]string{"trigger"},
		),
		UnlockedAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "locks_released_amount_total",
				Help: "Token amount moved from locked to available balance",
			},
			[]string{"trigger"},
		),
		TransfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_transfers_total",
				Help: "Settlement attempts by outcome",
			},
			[]string{"transfer_type", "outcome"},
		),
		TransferAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "settlement_transfer_amount_total",
				Help: "Token amount settled on chain",
			},
			[]string{"transfer_type"},
		),
		TransferQueueSize: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "settlement_queue_transfers",
				Help: "Transfers in the settlement queue by status",
			},
			[]string{"status"},
		),
		SettlementCallDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "settlement_call_duration_seconds",
				Help:    "Latency of settlement network transfer calls",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		JobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_job_duration_seconds",
				Help:    "Duration of scheduled ledger jobs",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"job", "status"},
		),
		JobSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_job_skipped_total",
				Help: "Job runs skipped because a previous run was still active",
			},
			[]string{"job"},
		),
	}
}

// RecordGrant records a completed grant
func (m *LedgerMetrics) RecordGrant(eventType string, tier int64, immediate, locked decimal.Decimal) {
	if m == nil {
		return
	}
	m.RewardsGrantedTotal.WithLabelValues(eventType).Inc()
	m.RewardsAmountTotal.WithLabelValues(eventType, "immediate").Add(immediate.InexactFloat64())
	m.RewardsAmountTotal.WithLabelValues(eventType, "locked").Add(locked.InexactFloat64())
	m.CurrentTier.Set(float64(tier))
}

// RecordRejection records a grant that did not complete
func (m *LedgerMetrics) RecordRejection(eventType, reason string) {
	if m == nil {
		return
	}
	m.RewardsRejectedTotal.WithLabelValues(eventType, reason).Inc()
}

// RecordRelease records locks released by the sweep or an admin
func (m *LedgerMetrics) RecordRelease(trigger string, locks int, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.LocksReleasedTotal.WithLabelValues(trigger).Add(float64(locks))
	m.UnlockedAmountTotal.WithLabelValues(trigger).Add(amount.InexactFloat64())
}

// RecordTransfer records one settlement attempt
func (m *LedgerMetrics) RecordTransfer(transferType, outcome string, amount decimal.Decimal, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TransfersTotal.WithLabelValues(transferType, outcome).Inc()
	m.SettlementCallDuration.Observe(durationSeconds)
	if outcome == "completed" {
		m.TransferAmountTotal.WithLabelValues(transferType).Add(amount.InexactFloat64())
	}
}

// SetQueueSize publishes the queue depth of one status
func (m *LedgerMetrics) SetQueueSize(status string, count int64) {
	if m == nil {
		return
	}
	m.TransferQueueSize.WithLabelValues(status).Set(float64(count))
}

// RecordJob records the duration of a scheduled job run
func (m *LedgerMetrics) RecordJob(job, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.JobDuration.WithLabelValues(job, status).Observe(durationSeconds)
}

// RecordJobSkipped records a run dropped by the single-flight guard
func (m *LedgerMetrics) RecordJobSkipped(job string) {
	if m == nil {
		return
	}
	m.JobSkipped.WithLabelValues(job).Inc()
}
