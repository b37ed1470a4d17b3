package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StockMetrics содержит метрики для операций журнала и резервов.
type StockMetrics struct {
	// Счётчики операций журнала по типу движения и результату
	movementsTotal *prometheus.CounterVec

	// Счётчики жизненного цикла резервов
	reservationsCreated   prometheus.Counter
	reservationsFulfilled prometheus.Counter
	reservationsCancelled prometheus.Counter
	reservationsExpired   prometheus.Counter

	// Конфликты версий, разрешённые retry
	versionConflicts prometheus.Counter

	// Гистограмма времени выполнения операций журнала
	operationDuration *prometheus.HistogramVec

	// Счётчики алертов и записей аудита
	alertsTotal  *prometheus.CounterVec
	auditRecords prometheus.Counter
}

// NewStockMetrics создаёт новый экземпляр метрик с default registerer.
func NewStockMetrics() *StockMetrics {
	return newStockMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newStockMetricsWithRegisterer(registerer prometheus.Registerer) *StockMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &StockMetrics{
		movementsTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ims_stock_movements_total",
			Help: "Total number of ledger operations grouped by movement type and result",
		}, []string{"type", "result"}),
		reservationsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ims_reservations_created_total",
			Help: "Total number of reservations created",
		}),
		reservationsFulfilled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ims_reservations_fulfilled_total",
			Help: "Total number of reservations fulfilled",
		}),
		reservationsCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ims_reservations_cancelled_total",
			Help: "Total number of reservations cancelled",
		}),
		reservationsExpired: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ims_reservations_expired_total",
			Help: "Total number of reservations expired by the sweeper",
		}),
		versionConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ims_version_conflicts_total",
			Help: "Total number of optimistic locking conflicts resolved by retry",
		}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "ims_ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		alertsTotal: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "ims_alerts_total",
			Help: "Total number of operator alerts emitted grouped by type",
		}, []string{"type"}),
		auditRecords: registerCounter(registerer, prometheus.CounterOpts{
			Name: "ims_audit_records_total",
			Help: "Total number of audit records written",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordMovement увеличивает счётчик операций журнала.
func (m *StockMetrics) RecordMovement(movementType, result string) {
	m.movementsTotal.WithLabelValues(movementType, result).Inc()
}

// RecordReservationCreated увеличивает счётчик созданных резервов.
func (m *StockMetrics) RecordReservationCreated() {
	m.reservationsCreated.Inc()
}

// RecordReservationFulfilled увеличивает счётчик отгруженных резервов.
func (m *StockMetrics) RecordReservationFulfilled() {
	m.reservationsFulfilled.Inc()
}

// RecordReservationCancelled увеличивает счётчик отменённых резервов.
func (m *StockMetrics) RecordReservationCancelled() {
	m.reservationsCancelled.Inc()
}

// RecordReservationExpired увеличивает счётчик резервов, снятых свипером.
func (m *StockMetrics) RecordReservationExpired() {
	m.reservationsExpired.Inc()
}

// RecordVersionConflict увеличивает счётчик конфликтов optimistic locking.
func (m *StockMetrics) RecordVersionConflict() {
	m.versionConflicts.Inc()
}

// RecordOperationDuration записывает время выполнения операции журнала.
func (m *StockMetrics) RecordOperationDuration(operation string, duration time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAlert увеличивает счётчик отправленных алертов.
func (m *StockMetrics) RecordAlert(alertType string) {
	m.alertsTotal.WithLabelValues(alertType).Inc()
}

// RecordAuditRecord увеличивает счётчик записей аудита.
func (m *StockMetrics) RecordAuditRecord() {
	m.auditRecords.Inc()
}
