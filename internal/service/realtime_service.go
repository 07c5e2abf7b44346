package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/config"
)

type changePublisher interface {
	Publish(ctx context.Context, channel string, payload interface{}) error
}

// ChangeEvent is the payload fanned out to realtime subscribers. The portal
// frontend listens on the configured channels and refreshes the calendar or
// booking list when a matching event arrives.
type ChangeEvent struct {
	Table      string    `json:"table"`
	Action     string    `json:"action"`
	RecordID   string    `json:"record_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// RealtimeService publishes change notifications over Redis pub/sub.
// Publishing is best-effort: a failed notification is logged and dropped,
// never surfaced to the request that triggered it.
type RealtimeService struct {
	publisher changePublisher
	cfg       config.RealtimeConfig
	logger    *zap.Logger
}

// NewRealtimeService constructs a RealtimeService.
func NewRealtimeService(publisher changePublisher, cfg config.RealtimeConfig, logger *zap.Logger) *RealtimeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RealtimeService{publisher: publisher, cfg: cfg, logger: logger}
}

func (s *RealtimeService) enabled() bool {
	return s != nil && s.cfg.Enabled && s.publisher != nil
}

// NotifySessionChange fans out a class_sessions change.
func (s *RealtimeService) NotifySessionChange(ctx context.Context, action, sessionID string) {
	s.publish(ctx, s.cfg.SessionsChannel, "class_sessions", action, sessionID)
}

// NotifyReservationChange fans out a session_reservations change.
func (s *RealtimeService) NotifyReservationChange(ctx context.Context, action, reservationID string) {
	s.publish(ctx, s.cfg.ReservationsChannel, "session_reservations", action, reservationID)
}

// NotifyBookingChange fans out a bookings change (enrollment lifecycle).
func (s *RealtimeService) NotifyBookingChange(ctx context.Context, action, enrollmentID string) {
	s.publish(ctx, s.cfg.BookingsChannel, "bookings", action, enrollmentID)
}

func (s *RealtimeService) publish(ctx context.Context, channel, table, action, recordID string) {
	if !s.enabled() || channel == "" {
		return
	}
	event := ChangeEvent{
		Table:      table,
		Action:     action,
		RecordID:   recordID,
		OccurredAt: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, channel, event); err != nil {
		s.logger.Warn("realtime publish failed",
			zap.String("channel", channel),
			zap.String("record_id", recordID),
			zap.Error(err))
	}
}
