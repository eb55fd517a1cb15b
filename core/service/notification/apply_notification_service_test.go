package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"apply_server/core/domain"
	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
)

// ===== Fakes =====

type fakeNotifRepo struct {
	created []*domain.Notification
	sent    []string
}

func (f *fakeNotifRepo) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	n.ID = "notif-1"
	f.created = append(f.created, n)
	return n, nil
}

func (f *fakeNotifRepo) MarkSent(ctx context.Context, id string, at time.Time) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeNotifRepo) MarkRead(ctx context.Context, userID, id string) error { return nil }

func (f *fakeNotifRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

func (f *fakeNotifRepo) ListByUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*domain.Notification, error) {
	return nil, nil
}

func (f *fakeNotifRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

type fakeUsers struct {
	user *domain.User
}

func (f *fakeUsers) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	return user, nil
}

func (f *fakeUsers) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if f.user == nil {
		return nil, apperr.NotFound("user")
	}
	return f.user, nil
}

func (f *fakeUsers) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return nil, apperr.NotFound("user")
}

func (f *fakeUsers) UpdateProfile(ctx context.Context, id string, profile *domain.UserProfile) error {
	return nil
}

func (f *fakeUsers) SetMailbox(ctx context.Context, id string, creds *domain.MailboxCredentials) error {
	return nil
}

func (f *fakeUsers) UpdateMailboxToken(ctx context.Context, id string, accessToken string, expiry time.Time) error {
	return nil
}

func (f *fakeUsers) ClearMailbox(ctx context.Context, id string) error { return nil }

func (f *fakeUsers) AppendPortalCredential(ctx context.Context, id string, cred *domain.PortalCredential) error {
	return nil
}

type fakeMailbox struct {
	sent    []*out.OutgoingMessage
	sendErr error
}

func (f *fakeMailbox) Send(ctx context.Context, userID string, msg *out.OutgoingMessage) (*out.SendResult, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, msg)
	return &out.SendResult{MessageID: "gm-1"}, nil
}

func (f *fakeMailbox) Search(ctx context.Context, userID, query string, maxResults int) ([]out.MailMessage, error) {
	return nil, nil
}

func (f *fakeMailbox) FetchBody(ctx context.Context, userID, messageID string) (*out.MailBody, error) {
	return nil, apperr.NotFound("body")
}

func (f *fakeMailbox) ListThread(ctx context.Context, userID, threadID string) ([]out.MailMessage, error) {
	return nil, nil
}

func emailUser() *domain.User {
	return &domain.User{
		ID:    "user-1",
		Email: "dana@example.com",
		Mailbox: &domain.MailboxCredentials{
			Provider:     "gmail",
			EmailAddress: "dana@gmail.example",
			RefreshToken: "refresh",
		},
		Notifications: domain.NotificationPreferences{EmailEnabled: true},
	}
}

func newService(users *fakeUsers, mailbox *fakeMailbox) (*Service, *fakeNotifRepo) {
	repo := &fakeNotifRepo{}
	return NewService(&Deps{Repo: repo, Users: users, Mailbox: mailbox}), repo
}

// ===== Tests =====

func TestNotifyAlwaysIncludesInApp(t *testing.T) {
	svc, repo := newService(&fakeUsers{user: emailUser()}, &fakeMailbox{})

	notif, err := svc.Notify(context.Background(), "user-1", domain.NotifStatusUpdate,
		"Status changed", "Your application moved to under review", nil, nil)
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(notif.Channels) != 1 || notif.Channels[0] != domain.ChannelInApp {
		t.Fatalf("channels = %v, want [in_app]", notif.Channels)
	}
	if len(repo.created) != 1 {
		t.Fatalf("created = %d, want 1", len(repo.created))
	}
	if len(repo.sent) != 1 || repo.sent[0] != "notif-1" {
		t.Fatalf("sent = %v, want [notif-1]", repo.sent)
	}
	if notif.SentAt == nil {
		t.Fatal("SentAt not stamped")
	}
}

func TestNotifyDeliversEmail(t *testing.T) {
	mailbox := &fakeMailbox{}
	svc, _ := newService(&fakeUsers{user: emailUser()}, mailbox)

	_, err := svc.Notify(context.Background(), "user-1", domain.NotifInterviewReminder,
		"Interview tomorrow", "Acme at 10am", nil,
		[]domain.NotificationChannel{domain.ChannelEmail})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if len(mailbox.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(mailbox.sent))
	}
	msg := mailbox.sent[0]
	if msg.Subject != "Interview tomorrow" {
		t.Fatalf("subject = %q", msg.Subject)
	}
	if len(msg.To) != 1 || msg.To[0].Email != "dana@example.com" {
		t.Fatalf("to = %v", msg.To)
	}
}

func TestNotifySkipsMutedType(t *testing.T) {
	user := emailUser()
	user.Notifications.MutedTypes = []string{string(domain.NotifWeeklySummary)}
	mailbox := &fakeMailbox{}
	svc, _ := newService(&fakeUsers{user: user}, mailbox)

	_, err := svc.Notify(context.Background(), "user-1", domain.NotifWeeklySummary,
		"Your week", "3 applications sent", nil,
		[]domain.NotificationChannel{domain.ChannelEmail})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(mailbox.sent) != 0 {
		t.Fatalf("muted type delivered: %v", mailbox.sent)
	}
}

func TestNotifySkipsUsersWithoutMailbox(t *testing.T) {
	user := emailUser()
	user.Mailbox = nil
	mailbox := &fakeMailbox{}
	svc, _ := newService(&fakeUsers{user: user}, mailbox)

	notif, err := svc.Notify(context.Background(), "user-1", domain.NotifStatusUpdate,
		"Status changed", "moved on", nil,
		[]domain.NotificationChannel{domain.ChannelEmail})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(mailbox.sent) != 0 {
		t.Fatalf("sent without a mailbox: %v", mailbox.sent)
	}
	if notif.ID != "notif-1" {
		t.Fatal("in-app document not persisted")
	}
}

func TestNotifyChannelFailureDoesNotFail(t *testing.T) {
	mailbox := &fakeMailbox{sendErr: errors.New("smtp down")}
	svc, repo := newService(&fakeUsers{user: emailUser()}, mailbox)

	notif, err := svc.Notify(context.Background(), "user-1", domain.NotifStatusUpdate,
		"Status changed", "moved on", nil,
		[]domain.NotificationChannel{domain.ChannelEmail})
	if err != nil {
		t.Fatalf("Notify must not surface channel failures, got: %v", err)
	}
	if notif == nil || len(repo.sent) != 1 {
		t.Fatal("notification not persisted and marked after channel failure")
	}
}

func TestWithInAppIsIdempotent(t *testing.T) {
	channels := []domain.NotificationChannel{domain.ChannelInApp, domain.ChannelEmail}
	got := withInApp(channels)
	if len(got) != 2 {
		t.Fatalf("channels = %v, want unchanged", got)
	}

	got = withInApp([]domain.NotificationChannel{domain.ChannelEmail})
	if len(got) != 2 || got[0] != domain.ChannelInApp {
		t.Fatalf("channels = %v, want in_app prepended", got)
	}
}
