package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	exchangeCounter        *prometheus.CounterVec
	commissionCounter      *prometheus.CounterVec
	persistFailureCounter  *prometheus.CounterVec
	ledgerImbalanceCounter *prometheus.CounterVec
	balanceGauge           *prometheus.GaugeVec
	idempotencyCounter     *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		exchangeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_operations_total",
			Help: "Exchange operations by outcome",
		}, []string{"outcome"})

		commissionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_commission_collected_total",
			Help: "Commission fees collected, in the source currency",
		}, []string{"currency"})

		persistFailureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_persist_failures_total",
			Help: "Best-effort ledger writes that did not reach durable storage",
		}, []string{"record"})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of times ledger invariants were found violated",
		}, []string{"check"})

		balanceGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_account_balance",
			Help: "Current account balance per currency",
		}, []string{"currency"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			exchangeCounter,
			commissionCounter,
			persistFailureCounter,
			ledgerImbalanceCounter,
			balanceGauge,
			idempotencyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementExchange(outcome string) {
	if exchangeCounter == nil {
		return
	}
	exchangeCounter.WithLabelValues(outcome).Inc()
}

func AddCommission(currency string, amount float64) {
	if commissionCounter == nil || amount <= 0 {
		return
	}
	commissionCounter.WithLabelValues(currency).Add(amount)
}

func IncrementPersistFailure(record string) {
	if persistFailureCounter == nil {
		return
	}
	persistFailureCounter.WithLabelValues(record).Inc()
}

func IncrementLedgerImbalance(check string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(check).Inc()
}

func SetAccountBalance(currency string, amount float64) {
	if balanceGauge == nil {
		return
	}
	balanceGauge.WithLabelValues(currency).Set(amount)
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
