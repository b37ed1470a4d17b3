package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/audit"
	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/ims/internal/notify"
	"github.com/vladislavdragonenkov/ims/internal/service/refund"
	"github.com/vladislavdragonenkov/ims/internal/service/reservation"
	"github.com/vladislavdragonenkov/ims/internal/service/stock"
	"github.com/vladislavdragonenkov/ims/internal/storage/memory"
	"github.com/vladislavdragonenkov/ims/internal/storage/postgres"
)

// Dependencies содержит собранные зависимости приложения.
type Dependencies struct {
	StorageKind string
	// Store не nil только при работе с PostgreSQL.
	Store *postgres.Store

	InventoryRepo   domain.InventoryRepository
	MovementRepo    domain.MovementRepository
	ReservationRepo domain.ReservationRepository
	AuditRepo       domain.AuditRepository
	OutboxRepo      domain.OutboxRepository

	Notifier domain.NotificationSink
	Audit    domain.AuditSink

	KafkaProducer  *kafka.Producer
	AlertPublisher domain.OutboxPublisher
	DLQPublisher   domain.OutboxPublisher

	StockService       *stock.Service
	ReservationService *reservation.Service
	RefundService      *refund.Service
}

// NewDependencies инициализирует хранилище, сервисы и опциональный Kafka.
// Без PostgresDSN репозитории работают в памяти, без KafkaBrokers алерты
// пишутся в лог вместо outbox.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	deps := &Dependencies{}

	if cfg.PostgresDSN != "" {
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		deps.StorageKind = "postgres"
		deps.Store = store
		deps.InventoryRepo = postgres.NewInventoryRepository(store)
		deps.MovementRepo = postgres.NewMovementRepository(store)
		deps.ReservationRepo = postgres.NewReservationRepository(store)
		deps.AuditRepo = postgres.NewAuditRepository(store)
		deps.OutboxRepo = postgres.NewOutboxRepository(store)
	} else {
		logger.Warn("IMS_POSTGRES_DSN не задан, используем in-memory хранилище")
		deps.StorageKind = "memory"
		deps.InventoryRepo = memory.NewInventoryRepository()
		deps.MovementRepo = memory.NewMovementRepository()
		deps.ReservationRepo = memory.NewReservationRepository()
		deps.AuditRepo = memory.NewAuditRepository()
		deps.OutboxRepo = memory.NewOutboxRepository()
	}

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		// Сервис остаётся работоспособным: алерты уйдут в лог.
		logger.WithError(err).Warn("kafka недоступен, продолжаем без публикации событий")
	}
	deps.KafkaProducer = producer

	auditOptions := []audit.Option{audit.WithLogger(logger.WithField("component", "audit"))}
	if producer != nil {
		deps.AlertPublisher = kafka.NewOutboxPublisher(producer, kafka.TopicAlertEvents)
		deps.DLQPublisher = kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
		deps.Notifier = notify.NewOutboxSink(deps.OutboxRepo, logger.WithField("component", "notify"))
		auditOptions = append(auditOptions, audit.WithOutbox(deps.OutboxRepo))
	} else {
		deps.Notifier = notify.NewLogSink(logger.WithField("component", "notify"))
	}
	deps.Audit = audit.NewSink(deps.AuditRepo, auditOptions...)

	deps.StockService = stock.NewService(
		deps.InventoryRepo,
		deps.MovementRepo,
		deps.Audit,
		deps.Notifier,
		logger.WithField("component", "stock"),
	)
	deps.ReservationService = reservation.NewService(
		deps.ReservationRepo,
		deps.StockService,
		logger.WithField("component", "reservation"),
	)
	deps.RefundService = refund.NewService(
		deps.MovementRepo,
		deps.StockService,
		logger.WithField("component", "refund"),
	)

	return deps, nil
}

// Close освобождает внешние ресурсы зависимостей.
func (d *Dependencies) Close(logger *log.Entry) {
	if d == nil {
		return
	}
	closeKafka(d.KafkaProducer, logger)
	if d.Store != nil {
		if err := d.Store.Close(); err != nil {
			logger.WithError(err).Warn("failed to close postgres store")
		}
	}
}
