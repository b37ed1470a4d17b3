package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/service/reservation"
)

const (
	defaultSweepInterval = 5 * time.Minute
	defaultWarningWindow = 30 * time.Minute
)

var (
	sweepRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ims_sweeper_runs_total",
		Help: "Total number of sweeper runs grouped by result.",
	}, []string{"result"})
	sweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ims_sweeper_expired_reservations_total",
		Help: "Total number of reservations released by the sweeper.",
	})
	sweepLastExpired = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ims_sweeper_last_expired_reservations",
		Help: "Number of reservations released during the last sweep.",
	})
)

// Expirer — операции сервиса резервов, нужные свиперу.
type Expirer interface {
	ExpireDue(now time.Time) ([]reservation.ExpiredReservation, error)
	ExpiringSoon(now time.Time, window time.Duration) ([]domain.Reservation, error)
}

// Options задаёт параметры свипера.
type Options struct {
	Logger        *log.Entry
	Interval      time.Duration
	WarningWindow time.Duration
}

// Option настраивает Worker.
type Option func(*Options)

// WithLogger задаёт logger для воркера.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithInterval задаёт интервал между проходами свипера.
func WithInterval(interval time.Duration) Option {
	return func(opts *Options) {
		opts.Interval = interval
	}
}

// WithWarningWindow задаёт окно предупреждений об истекающих резервах и партиях.
func WithWarningWindow(window time.Duration) Option {
	return func(opts *Options) {
		opts.WarningWindow = window
	}
}

// Worker периодически снимает просроченные резервы и рассылает
// предупреждения об истекающих резервах и партиях с истекающим сроком годности.
type Worker struct {
	expirer       Expirer
	inventory     domain.InventoryRepository
	notifier      domain.NotificationSink
	logger        *log.Entry
	interval      time.Duration
	warningWindow time.Duration
}

// NewWorker создаёт свипер.
func NewWorker(expirer Expirer, inventory domain.InventoryRepository, notifier domain.NotificationSink, options ...Option) *Worker {
	opts := Options{
		Interval:      defaultSweepInterval,
		WarningWindow: defaultWarningWindow,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "expiry-sweeper")
	}

	if opts.Interval <= 0 {
		opts.Interval = defaultSweepInterval
	}
	if opts.WarningWindow <= 0 {
		opts.WarningWindow = defaultWarningWindow
	}

	return &Worker{
		expirer:       expirer,
		inventory:     inventory,
		notifier:      notifier,
		logger:        logger,
		interval:      opts.Interval,
		warningWindow: opts.WarningWindow,
	}
}

// Run запускает периодические проходы до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.expirer == nil {
		w.logger.Warn("expiry sweeper is disabled: expirer is nil")
		return
	}

	w.sweep(ctx, time.Now().UTC())

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx, time.Now().UTC())
		}
	}
}

func (w *Worker) sweep(ctx context.Context, now time.Time) {
	expired, err := w.SweepOnce(ctx, now)
	if err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		w.logger.WithError(err).Warn("sweep run failed")
		return
	}

	sweepRunsTotal.WithLabelValues("ok").Inc()
	sweepLastExpired.Set(float64(expired))
	if expired > 0 {
		w.logger.WithField("expired", expired).Info("sweep released expired reservations")
	}
}

// SweepOnce выполняет один проход и возвращает число снятых резервов.
// Проход идемпотентен: уже терминальные резервы пропускаются.
func (w *Worker) SweepOnce(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	expired, err := w.expirer.ExpireDue(now)
	if err != nil {
		return 0, fmt.Errorf("expire due reservations: %w", err)
	}
	if len(expired) > 0 {
		sweepExpiredTotal.Add(float64(len(expired)))
	}

	for _, e := range expired {
		r := e.Reservation
		w.notify(domain.Alert{
			Type:        domain.AlertReservationExpired,
			VariantID:   r.VariantID,
			WarehouseID: r.WarehouseID,
			Message:     fmt.Sprintf("reservation %s expired, released %s", r.ID, e.Released),
			Metadata:    map[string]string{"reservation_id": r.ID, "reference_number": r.ReferenceNumber},
			OccurredAt:  now,
		})
	}

	w.warnExpiringReservations(now)
	w.warnExpiringStock(now)

	return len(expired), nil
}

func (w *Worker) warnExpiringReservations(now time.Time) {
	soon, err := w.expirer.ExpiringSoon(now, w.warningWindow)
	if err != nil {
		w.logger.WithError(err).Warn("failed to find reservations expiring soon")
		return
	}

	for _, r := range soon {
		w.notify(domain.Alert{
			Type:        domain.AlertReservationExpiring,
			VariantID:   r.VariantID,
			WarehouseID: r.WarehouseID,
			Message:     fmt.Sprintf("reservation %s expires at %s", r.ID, r.ExpiresAt.Format(time.RFC3339)),
			Metadata:    map[string]string{"reservation_id": r.ID, "reference_number": r.ReferenceNumber},
			OccurredAt:  now,
		})
	}
}

func (w *Worker) warnExpiringStock(now time.Time) {
	if w.inventory == nil {
		return
	}

	items, err := w.inventory.FindExpiring(now.Add(w.warningWindow))
	if err != nil {
		w.logger.WithError(err).Warn("failed to find expiring stock")
		return
	}

	for _, item := range items {
		if item.ExpiryDate == nil || !item.ExpiryDate.After(now) {
			continue
		}
		w.notify(domain.Alert{
			Type:        domain.AlertStockExpiring,
			VariantID:   item.VariantID,
			WarehouseID: item.WarehouseID,
			Message:     fmt.Sprintf("stock batch expires at %s, %s on hand", item.ExpiryDate.Format(time.RFC3339), item.TotalStock),
			OccurredAt:  now,
		})
	}
}

func (w *Worker) notify(alert domain.Alert) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Notify(alert); err != nil {
		w.logger.WithError(err).WithField("alert_type", alert.Type).Warn("failed to deliver sweeper alert")
	}
}
