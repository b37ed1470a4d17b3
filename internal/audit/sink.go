package audit

import (
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
	"github.com/vladislavdragonenkov/ims/internal/messaging/kafka"
)

// Sink пишет записи аудита в хранилище и, если задан outbox, дублирует их
// во внешний поток событий. Сбой публикации не ломает запись в хранилище.
type Sink struct {
	records domain.AuditRepository
	outbox  domain.OutboxRepository
	logger  *log.Entry
}

// Option настраивает Sink.
type Option func(*Sink)

// WithOutbox включает публикацию записей аудита через transactional outbox.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Sink) {
		s.outbox = outbox
	}
}

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

// NewSink создаёт sink аудита поверх хранилища.
func NewSink(records domain.AuditRepository, options ...Option) *Sink {
	sink := &Sink{records: records}
	for _, option := range options {
		option(sink)
	}
	if sink.logger == nil {
		sink.logger = log.WithField("component", "audit-sink")
	}
	return sink
}

// Record сохраняет запись аудита. Хранилище — источник истины; outbox
// пополняется best-effort.
func (s *Sink) Record(record domain.AuditRecord) error {
	if err := s.records.Append(record); err != nil {
		return fmt.Errorf("append audit record: %w", err)
	}

	if s.outbox == nil {
		return nil
	}

	payload, err := json.Marshal(kafka.AuditEvent{
		AuditID:    record.ID,
		Action:     record.Action,
		EntityType: record.EntityType,
		EntityID:   record.EntityID,
		ActorID:    record.ActorID,
		TenantID:   record.TenantID,
		Reason:     record.Reason,
		Timestamp:  record.Occurred,
	})
	if err != nil {
		s.logger.WithError(err).WithField("audit_id", record.ID).Warn("failed to marshal audit event")
		return nil
	}

	if _, err := s.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: record.EntityType,
		AggregateID:   record.EntityID,
		EventType:     "audit." + record.Action,
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("audit_id", record.ID).Warn("failed to enqueue audit event")
	}
	return nil
}

var _ domain.AuditSink = (*Sink)(nil)
