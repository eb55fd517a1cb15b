package provider

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
	"apply_server/pkg/logger"
)

// =============================================================================
// User Mailbox Facade
// =============================================================================

// UserMailbox loads a user's stored mailbox credential, refreshes it when
// stale and persists the refreshed access token. Refresh is serialized per
// user; a revoked refresh token clears the stored credential and surfaces
// AuthExpired.
type UserMailbox struct {
	provider *GmailAdapter
	users    out.UserRepository
	log      *logger.Logger

	mu     sync.Mutex
	userMu map[string]*sync.Mutex
}

var _ out.UserMailbox = (*UserMailbox)(nil)

func NewUserMailbox(provider *GmailAdapter, users out.UserRepository) *UserMailbox {
	return &UserMailbox{
		provider: provider,
		users:    users,
		log:      logger.WithComponent("mailbox"),
		userMu:   make(map[string]*sync.Mutex),
	}
}

func (m *UserMailbox) lockFor(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mu, ok := m.userMu[userID]; ok {
		return mu
	}
	mu := &sync.Mutex{}
	m.userMu[userID] = mu
	return mu
}

// token returns a live access token for the user, refreshing if needed.
func (m *UserMailbox) token(ctx context.Context, userID string) (*oauth2.Token, error) {
	user, err := m.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasMailbox() {
		return nil, apperr.AuthExpired("gmail", nil)
	}

	creds := user.Mailbox
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.TokenExpiry,
	}
	if token.Valid() {
		return token, nil
	}

	mu := m.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	// Re-read under the lock; another caller may have refreshed already.
	user, err = m.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasMailbox() {
		return nil, apperr.AuthExpired("gmail", nil)
	}
	creds = user.Mailbox
	token = &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		Expiry:       creds.TokenExpiry,
	}
	if token.Valid() {
		return token, nil
	}

	newToken, err := m.provider.RefreshToken(ctx, token)
	if err != nil {
		if apperr.IsAuthExpired(err) {
			m.log.Warn("mailbox token revoked: user=%s", userID)
			if clearErr := m.users.ClearMailbox(ctx, userID); clearErr != nil {
				m.log.Error("failed to clear revoked mailbox: user=%s err=%v", userID, clearErr)
			}
		}
		return nil, err
	}

	expiry := newToken.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(time.Hour)
	}
	if err := m.users.UpdateMailboxToken(ctx, userID, newToken.AccessToken, expiry); err != nil {
		m.log.Error("failed to persist refreshed token: user=%s err=%v", userID, err)
	}
	return newToken, nil
}

func (m *UserMailbox) Send(ctx context.Context, userID string, msg *out.OutgoingMessage) (*out.SendResult, error) {
	token, err := m.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.provider.Send(ctx, token, msg)
}

func (m *UserMailbox) Search(ctx context.Context, userID, query string, maxResults int) ([]out.MailMessage, error) {
	token, err := m.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.provider.Search(ctx, token, query, maxResults)
}

func (m *UserMailbox) FetchBody(ctx context.Context, userID, messageID string) (*out.MailBody, error) {
	token, err := m.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.provider.FetchBody(ctx, token, messageID)
}

func (m *UserMailbox) ListThread(ctx context.Context, userID, threadID string) ([]out.MailMessage, error) {
	token, err := m.token(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.provider.ListThread(ctx, token, threadID)
}
