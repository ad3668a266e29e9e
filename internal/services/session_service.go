// Package services – SessionService
//
// Read-side operations for staff: paginated listing and single lookups.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/consult-booking/internal/domain"
	"github.com/tbourn/consult-booking/internal/repo"
	"github.com/tbourn/consult-booking/internal/utils"
)

// SessionService lists and reads sessions.
type SessionService struct {
	DB *gorm.DB
}

// ListPage returns a page of sessions, newest first, and the total count.
func (s *SessionService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Session, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	total, err := repo.CountSessions(ctx, s.DB)
	if err != nil {
		return nil, 0, persistence("count sessions", err)
	}
	if total == 0 {
		return []domain.Session{}, 0, nil
	}
	items, err := repo.ListSessionsPage(ctx, s.DB, utils.Offset(page, pageSize), pageSize)
	if err != nil {
		return nil, 0, persistence("list sessions", err)
	}
	return items, total, nil
}

// Get returns one session.
func (s *SessionService) Get(ctx context.Context, id string) (*domain.Session, error) {
	sess, err := repo.GetSession(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, persistence("get session", err)
	}
	return sess, nil
}

// Stats returns the count and latest update time, for ETags.
func (s *SessionService) Stats(ctx context.Context) (int64, *time.Time, error) {
	return repo.SessionsStats(ctx, s.DB)
}
