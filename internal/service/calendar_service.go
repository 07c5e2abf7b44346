package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/internal/models"
	"github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/config"
	appErrors "github.com/aquador-web-app/aqua-dor-connect-platform-sub003/pkg/errors"
)

type calendarRepository interface {
	ListActive(ctx context.Context) ([]models.Class, error)
	ListSessions(ctx context.Context, filter models.SessionFilter) ([]models.ClassSessionDetail, int, error)
}

// CalendarPage is one page of calendar sessions.
type CalendarPage struct {
	Sessions []models.ClassSessionDetail `json:"sessions"`
	Total    int                         `json:"total"`
	Page     int                         `json:"page"`
	PageSize int                         `json:"page_size"`
}

// CalendarService serves the public booking calendar. Reads go through the
// cache; realtime subscribers learn about session changes without polling, so
// the TTL only bounds staleness for clients that never connected a socket.
type CalendarService struct {
	repo     calendarRepository
	cache    *CacheService
	realtime *RealtimeService
	cfg      config.CalendarConfig
	logger   *zap.Logger
}

// NewCalendarService constructs a CalendarService.
func NewCalendarService(repo calendarRepository, cache *CacheService, realtime *RealtimeService, cfg config.CalendarConfig, logger *zap.Logger) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{repo: repo, cache: cache, realtime: realtime, cfg: cfg, logger: logger}
}

// ListClasses returns every bookable class.
func (s *CalendarService) ListClasses(ctx context.Context) ([]models.Class, error) {
	cacheKey := "calendar:classes"
	if s.cache.Enabled() {
		var cached []models.Class
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return cached, nil
		}
	}

	classes, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}

	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, cacheKey, classes, s.cfg.CacheTTL)
	}
	return classes, nil
}

// ListSessions returns a page of calendar sessions for the requested range.
func (s *CalendarService) ListSessions(ctx context.Context, filter models.SessionFilter) (*CalendarPage, error) {
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date range end must be after start")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = s.cfg.DefaultPageSize
	}

	cacheKey := sessionsCacheKey(filter)
	if s.cache.Enabled() {
		var cached CalendarPage
		if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
			return &cached, nil
		}
	}

	sessions, total, err := s.repo.ListSessions(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}

	page := &CalendarPage{
		Sessions: sessions,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	if s.cache.Enabled() {
		_ = s.cache.Set(ctx, cacheKey, page, s.cfg.CacheTTL)
	}
	return page, nil
}

// InvalidateSessions drops cached calendar pages and notifies realtime
// subscribers. Called after any write that changes what the calendar shows.
func (s *CalendarService) InvalidateSessions(ctx context.Context, action, sessionID string) {
	if err := s.cache.Invalidate(ctx, "calendar:sessions:*"); err != nil {
		s.logger.Warn("calendar cache invalidation failed", zap.Error(err))
	}
	if s.realtime != nil {
		s.realtime.NotifySessionChange(ctx, action, sessionID)
	}
}

func sessionsCacheKey(filter models.SessionFilter) string {
	from, to := "", ""
	if filter.From != nil {
		from = filter.From.UTC().Format(time.RFC3339)
	}
	if filter.To != nil {
		to = filter.To.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("calendar:sessions:%s:%s:%s:%d:%d", filter.ClassID, from, to, filter.Page, filter.PageSize)
}
