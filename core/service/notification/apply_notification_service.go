// Package notification persists and fans out user notifications.
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"apply_server/core/domain"
	"apply_server/core/port/in"
	"apply_server/core/port/out"
	"apply_server/pkg/logger"
)

// =============================================================================
// Notification Service
// =============================================================================

// Service persists the in-app document first, then delivers the remaining
// channels concurrently. Channel failures never fail the notification.
type Service struct {
	repo    out.NotificationRepository
	users   out.UserRepository
	mailbox out.UserMailbox
	log     *logger.Logger
}

var _ in.NotificationService = (*Service)(nil)

type Deps struct {
	Repo    out.NotificationRepository
	Users   out.UserRepository
	Mailbox out.UserMailbox
}

func NewService(deps *Deps) *Service {
	return &Service{
		repo:    deps.Repo,
		users:   deps.Users,
		mailbox: deps.Mailbox,
		log:     logger.WithComponent("notification"),
	}
}

func (s *Service) Notify(ctx context.Context, userID string, notifType domain.NotificationType, title, message string, data map[string]any, channels []domain.NotificationChannel) (*domain.Notification, error) {
	channels = withInApp(channels)

	notif, err := s.repo.Create(ctx, &domain.Notification{
		UserID:    userID,
		Type:      notifType,
		Title:     title,
		Message:   message,
		Data:      data,
		Channels:  channels,
		CreatedAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	for _, ch := range channels {
		if ch == domain.ChannelInApp {
			continue // persisting the document is the in-app delivery
		}
		wg.Add(1)
		go func(ch domain.NotificationChannel) {
			defer wg.Done()
			if err := s.deliver(ctx, ch, notif); err != nil {
				s.log.Warn("notification delivery failed: user=%s channel=%s type=%s err=%v",
					userID, ch, notifType, err)
			}
		}(ch)
	}
	wg.Wait()

	now := time.Now()
	if err := s.repo.MarkSent(ctx, notif.ID, now); err != nil {
		s.log.Warn("failed to mark notification sent: id=%s err=%v", notif.ID, err)
	}
	notif.SentAt = &now
	return notif, nil
}

func (s *Service) deliver(ctx context.Context, ch domain.NotificationChannel, n *domain.Notification) error {
	switch ch {
	case domain.ChannelEmail:
		return s.deliverEmail(ctx, n)
	default:
		return fmt.Errorf("unknown notification channel %q", ch)
	}
}

// deliverEmail sends through the user's own connected mailbox. Users without
// a mailbox, or with the type muted, are skipped silently.
func (s *Service) deliverEmail(ctx context.Context, n *domain.Notification) error {
	user, err := s.users.FindByID(ctx, n.UserID)
	if err != nil {
		return err
	}
	if !user.HasMailbox() {
		return nil
	}
	if !user.Notifications.AllowsEmail(string(n.Type)) {
		return nil
	}

	_, err = s.mailbox.Send(ctx, n.UserID, &out.OutgoingMessage{
		To:      []out.MailAddress{{Name: user.Profile.FullName(), Email: user.Email}},
		Subject: n.Title,
		Body:    n.Message,
	})
	return err
}

func (s *Service) MarkRead(ctx context.Context, userID, id string) error {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *Service) List(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	return s.repo.ListByUser(ctx, userID, unreadOnly, limit)
}

func (s *Service) CountUnread(ctx context.Context, userID string) (int64, error) {
	return s.repo.CountUnread(ctx, userID)
}

// withInApp guarantees the in_app channel is present exactly once.
func withInApp(channels []domain.NotificationChannel) []domain.NotificationChannel {
	for _, ch := range channels {
		if ch == domain.ChannelInApp {
			return channels
		}
	}
	return append([]domain.NotificationChannel{domain.ChannelInApp}, channels...)
}
