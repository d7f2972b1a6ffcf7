package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpDurationHistogram   *prometheus.HistogramVec
	transactionCounter      *prometheus.CounterVec
	accrualCounter          *prometheus.CounterVec
	pendingWithdrawalsGauge prometheus.Gauge
	negativeBalanceCounter  prometheus.Counter
	escrowShortfallCounter  *prometheus.CounterVec
	idempotencyCounter      *prometheus.CounterVec
	workerRunCounter        *prometheus.CounterVec
	sweepSkippedCounter     prometheus.Counter
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		transactionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Submitted transactions by kind and outcome",
		}, []string{"kind", "outcome"})

		accrualCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accrual_subscriptions_total",
			Help: "Accrual sweep per-subscription outcomes",
		}, []string{"outcome"})

		pendingWithdrawalsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "withdrawals_pending_approval",
			Help: "Current number of withdrawals waiting for manual approval",
		})

		negativeBalanceCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wallet_negative_balance_detected_total",
			Help: "Number of times the integrity sweep found a negative balance",
		})

		escrowShortfallCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "master_escrow_shortfall_total",
			Help: "Number of times master escrow fell below active principal",
		}, []string{"asset"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		sweepSkippedCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accrual_sweeps_skipped_total",
			Help: "Sweeps skipped because another sweep held the lease",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			transactionCounter,
			accrualCounter,
			pendingWithdrawalsGauge,
			negativeBalanceCounter,
			escrowShortfallCounter,
			idempotencyCounter,
			workerRunCounter,
			sweepSkippedCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementTransaction(kind, outcome string) {
	if transactionCounter == nil {
		return
	}
	transactionCounter.WithLabelValues(kind, outcome).Inc()
}

func IncrementAccrual(outcome string) {
	if accrualCounter == nil {
		return
	}
	accrualCounter.WithLabelValues(outcome).Inc()
}

func SetPendingWithdrawals(count int64) {
	if pendingWithdrawalsGauge == nil {
		return
	}
	pendingWithdrawalsGauge.Set(float64(count))
}

func IncrementNegativeBalance() {
	if negativeBalanceCounter == nil {
		return
	}
	negativeBalanceCounter.Inc()
}

func IncrementEscrowShortfall(asset string) {
	if escrowShortfallCounter == nil {
		return
	}
	escrowShortfallCounter.WithLabelValues(asset).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func IncrementSweepSkipped() {
	if sweepSkippedCounter == nil {
		return
	}
	sweepSkippedCounter.Inc()
}
