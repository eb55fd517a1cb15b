// Package provider implements outbound adapters for external providers.
package provider

import (
	"context"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	gmailapi "google.golang.org/api/gmail/v1"

	"apply_server/adapter/out/provider/gmail"
	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
	"apply_server/pkg/logger"
)

// =============================================================================
// Gmail Adapter
// =============================================================================

// GmailAdapter implements out.MailProvider over the raw Gmail service with
// circuit breaker protection.
type GmailAdapter struct {
	config *oauth2.Config
	svc    *gmail.Service
	cb     *gobreaker.CircuitBreaker
	log    *logger.Logger
}

// GmailConfig holds the OAuth application credentials.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

var _ out.MailProvider = (*GmailAdapter)(nil)

func NewGmailAdapter(cfg *GmailConfig) *GmailAdapter {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmailapi.GmailReadonlyScope,
			gmailapi.GmailSendScope,
		},
		Endpoint: google.Endpoint,
	}

	log := logger.WithComponent("gmail")
	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker %s: %s -> %s", name, from.String(), to.String())
		},
	}

	return &GmailAdapter{
		config: config,
		svc:    gmail.NewService(config),
		cb:     gobreaker.NewCircuitBreaker(cbSettings),
		log:    log,
	}
}

// AuthURL returns the OAuth consent URL for connecting a mailbox.
func (a *GmailAdapter) AuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode exchanges an authorization code for a token pair.
func (a *GmailAdapter) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, a.wrapError(err)
	}
	return token, nil
}

func (a *GmailAdapter) RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	newToken, err := a.config.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, a.wrapError(err)
	}
	return newToken, nil
}

func (a *GmailAdapter) Send(ctx context.Context, token *oauth2.Token, msg *out.OutgoingMessage) (*out.SendResult, error) {
	var result *out.SendResult
	err := a.execute(func() error {
		var err error
		result, err = a.svc.Send(ctx, token, msg)
		return err
	})
	if err != nil {
		return nil, a.wrapError(err)
	}
	return result, nil
}

func (a *GmailAdapter) Search(ctx context.Context, token *oauth2.Token, query string, maxResults int) ([]out.MailMessage, error) {
	var messages []out.MailMessage
	err := a.execute(func() error {
		var err error
		messages, err = a.svc.Search(ctx, token, query, maxResults)
		return err
	})
	if err != nil {
		return nil, a.wrapError(err)
	}
	return messages, nil
}

func (a *GmailAdapter) FetchBody(ctx context.Context, token *oauth2.Token, messageID string) (*out.MailBody, error) {
	var body *out.MailBody
	err := a.execute(func() error {
		var err error
		body, err = a.svc.FetchBody(ctx, token, messageID)
		return err
	})
	if err != nil {
		return nil, a.wrapError(err)
	}
	return body, nil
}

func (a *GmailAdapter) ListThread(ctx context.Context, token *oauth2.Token, threadID string) ([]out.MailMessage, error) {
	var messages []out.MailMessage
	err := a.execute(func() error {
		var err error
		messages, err = a.svc.ListThread(ctx, token, threadID)
		return err
	})
	if err != nil {
		return nil, a.wrapError(err)
	}
	return messages, nil
}

func (a *GmailAdapter) GetProfile(ctx context.Context, token *oauth2.Token) (*out.MailboxProfile, error) {
	var profile *out.MailboxProfile
	err := a.execute(func() error {
		var err error
		profile, err = a.svc.GetProfile(ctx, token)
		return err
	})
	if err != nil {
		return nil, a.wrapError(err)
	}
	return profile, nil
}

// nonCircuitError shields client errors from tripping the breaker.
type nonCircuitError struct{ err error }

func (e *nonCircuitError) Error() string { return e.err.Error() }
func (e *nonCircuitError) Unwrap() error { return e.err }

func (a *GmailAdapter) execute(fn func() error) error {
	_, err := a.cb.Execute(func() (any, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 400, 401, 403, 404:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})
	if nce, ok := err.(*nonCircuitError); ok {
		return nce.err
	}
	return err
}

// IsTokenRevoked reports whether the OAuth error means the refresh token is
// dead and the user must reconnect.
func IsTokenRevoked(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "invalid_grant") ||
		strings.Contains(msg, "Token has been expired or revoked")
}

func (a *GmailAdapter) wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsTokenRevoked(err) {
		return apperr.AuthExpired("gmail", err)
	}
	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 401:
			return apperr.AuthExpired("gmail", err)
		case 404:
			return apperr.NotFound("message")
		case 429, 500, 502, 503:
			return apperr.ExternalUnavailable("gmail", err)
		}
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apperr.ExternalUnavailable("gmail", err)
	}
	return apperr.ExternalUnavailable("gmail", err)
}
