package notify

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ims/internal/domain"
)

// LogSink пишет алерты в лог. Используется, когда брокер не сконфигурирован.
type LogSink struct {
	logger *log.Entry
}

// NewLogSink создаёт логирующий sink.
func NewLogSink(logger *log.Entry) *LogSink {
	if logger == nil {
		logger = log.WithField("component", "notify-log")
	}
	return &LogSink{logger: logger}
}

// Notify пишет алерт в лог и никогда не возвращает ошибку.
func (s *LogSink) Notify(alert domain.Alert) error {
	s.logger.WithFields(log.Fields{
		"alert_type":   alert.Type,
		"variant_id":   alert.VariantID,
		"warehouse_id": alert.WarehouseID,
		"occurred_at":  alert.OccurredAt,
	}).Warn(alert.Message)
	return nil
}

var _ domain.NotificationSink = (*LogSink)(nil)
