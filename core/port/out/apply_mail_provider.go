package out

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// =============================================================================
// Mail Provider Port (Gmail)
// =============================================================================

// MailAddress is a parsed address header.
type MailAddress struct {
	Name  string
	Email string
}

// OutgoingAttachment is one file attached to an outbound message.
type OutgoingAttachment struct {
	Filename string
	MimeType string
	Data     []byte
}

// OutgoingMessage is a message to send through the user's mailbox.
type OutgoingMessage struct {
	To          []MailAddress
	CC          []MailAddress
	Subject     string
	Body        string
	IsHTML      bool
	Attachments []OutgoingAttachment

	// Threading headers for replies
	InReplyTo  string
	References string
	ThreadID   string
}

// SendResult identifies the provider-side message after a send.
type SendResult struct {
	MessageID string
	ThreadID  string
	SentAt    time.Time
}

// MailMessage is an inbound message header set plus snippet.
type MailMessage struct {
	MessageID    string
	ThreadID     string
	Subject      string
	Snippet      string
	From         MailAddress
	To           []MailAddress
	InternalDate time.Time
	HasBody      bool
}

// MailBody is a fetched message body, plain text preferred.
type MailBody struct {
	Text string
	HTML string
}

// MailboxProfile identifies the connected account.
type MailboxProfile struct {
	Email string
}

// MailProvider defines the outbound port for the user's mailbox. The query
// string follows the provider search syntax (from:, after:, subject:).
type MailProvider interface {
	Send(ctx context.Context, token *oauth2.Token, msg *OutgoingMessage) (*SendResult, error)
	Search(ctx context.Context, token *oauth2.Token, query string, maxResults int) ([]MailMessage, error)
	FetchBody(ctx context.Context, token *oauth2.Token, messageID string) (*MailBody, error)
	ListThread(ctx context.Context, token *oauth2.Token, threadID string) ([]MailMessage, error)
	GetProfile(ctx context.Context, token *oauth2.Token) (*MailboxProfile, error)

	RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)
}

// UserMailbox is the per-user facade over MailProvider. Implementations load
// the stored credential, refresh it under the per-user mutex, persist the new
// access token, and surface AuthExpired when the refresh token is revoked.
type UserMailbox interface {
	Send(ctx context.Context, userID string, msg *OutgoingMessage) (*SendResult, error)
	Search(ctx context.Context, userID, query string, maxResults int) ([]MailMessage, error)
	FetchBody(ctx context.Context, userID, messageID string) (*MailBody, error)
	ListThread(ctx context.Context, userID, threadID string) ([]MailMessage, error)
}
