package inbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/momentapp/notifier/internal/domain/notification"
	apperrors "github.com/momentapp/notifier/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page is one page of a user's notifications
type Page struct {
	Items  []*notification.Record
	Total  int64
	Limit  int
	Offset int
}

// Service serves in-app notification reads
type Service struct {
	repo   notification.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates an inbox service
func NewService(repo notification.Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger.Named("inbox"), now: time.Now}
}

// List returns the user's notifications newest first.
func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) (*Page, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		return nil, apperrors.BadRequest("offset must not be negative")
	}

	items, total, err := s.repo.ListForUser(ctx, userID, unreadOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// MarkRead marks one notification as read.
func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	if id == "" {
		return apperrors.BadRequest("notification id is required")
	}
	return s.repo.MarkRead(ctx, userID, id, s.now())
}

// MarkAllRead marks every unread notification as read and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.Debug("notifications marked read", zap.String("user_id", userID), zap.Int64("count", n))
	return n, nil
}

// UnreadCount returns the number of unread notifications.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}
