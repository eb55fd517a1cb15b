// Package gmail wraps the Gmail API for the user-mailbox port.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"apply_server/core/port/out"
	"apply_server/pkg/httputil"
)

const fetchConcurrency = 5

// Service performs raw Gmail calls for one token. Callers own token refresh.
type Service struct {
	config *oauth2.Config
}

func NewService(config *oauth2.Config) *Service {
	return &Service{config: config}
}

func (s *Service) client(ctx context.Context, token *oauth2.Token) (*gmailapi.Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}
	return gmailapi.NewService(ctx,
		option.WithTokenSource(oauth2.StaticTokenSource(token)),
		option.WithHTTPClient(httputil.GmailClient()),
	)
}

// Send builds the raw MIME message and sends it through the user's account.
func (s *Service) Send(ctx context.Context, token *oauth2.Token, msg *out.OutgoingMessage) (*out.SendResult, error) {
	svc, err := s.client(ctx, token)
	if err != nil {
		return nil, err
	}

	raw := buildRawMessage(msg)
	req := &gmailapi.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw)),
	}
	if msg.ThreadID != "" {
		req.ThreadId = msg.ThreadID
	}

	sent, err := svc.Users.Messages.Send("me", req).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return &out.SendResult{
		MessageID: sent.Id,
		ThreadID:  sent.ThreadId,
		SentAt:    time.Now(),
	}, nil
}

// Search lists message headers matching a Gmail query string. Headers are
// fetched with bounded concurrency.
func (s *Service) Search(ctx context.Context, token *oauth2.Token, query string, maxResults int) ([]out.MailMessage, error) {
	svc, err := s.client(ctx, token)
	if err != nil {
		return nil, err
	}

	if maxResults <= 0 {
		maxResults = 25
	}
	list, err := svc.Users.Messages.List("me").Q(query).MaxResults(int64(maxResults)).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return s.fetchHeaders(ctx, svc, list.Messages)
}

func (s *Service) fetchHeaders(ctx context.Context, svc *gmailapi.Service, refs []*gmailapi.Message) ([]out.MailMessage, error) {
	results := make([]out.MailMessage, len(refs))
	ok := make([]bool, len(refs))

	var wg sync.WaitGroup
	sem := make(chan struct{}, fetchConcurrency)
	for i, ref := range refs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			msg, err := svc.Users.Messages.Get("me", id).
				Format("metadata").
				MetadataHeaders("Subject", "From", "To", "Date").
				Context(ctx).Do()
			if err != nil {
				return
			}
			results[i] = parseMessage(msg)
			ok[i] = true
		}(i, ref.Id)
	}
	wg.Wait()

	kept := results[:0]
	for i := range results {
		if ok[i] {
			kept = append(kept, results[i])
		}
	}
	return kept, ctx.Err()
}

// FetchBody returns the message body, preferring the text/plain part.
func (s *Service) FetchBody(ctx context.Context, token *oauth2.Token, messageID string) (*out.MailBody, error) {
	svc, err := s.client(ctx, token)
	if err != nil {
		return nil, err
	}

	msg, err := svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	html, text := parseBody(msg.Payload)
	return &out.MailBody{Text: text, HTML: html}, nil
}

// ListThread returns every message header in a thread.
func (s *Service) ListThread(ctx context.Context, token *oauth2.Token, threadID string) ([]out.MailMessage, error) {
	svc, err := s.client(ctx, token)
	if err != nil {
		return nil, err
	}

	thread, err := svc.Users.Threads.Get("me", threadID).Format("metadata").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	messages := make([]out.MailMessage, 0, len(thread.Messages))
	for _, msg := range thread.Messages {
		messages = append(messages, parseMessage(msg))
	}
	return messages, nil
}

// GetProfile returns the connected account address.
func (s *Service) GetProfile(ctx context.Context, token *oauth2.Token) (*out.MailboxProfile, error) {
	svc, err := s.client(ctx, token)
	if err != nil {
		return nil, err
	}
	profile, err := svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return &out.MailboxProfile{Email: profile.EmailAddress}, nil
}

// =============================================================================
// Parsing
// =============================================================================

func parseMessage(msg *gmailapi.Message) out.MailMessage {
	m := out.MailMessage{
		MessageID:    msg.Id,
		ThreadID:     msg.ThreadId,
		Snippet:      msg.Snippet,
		InternalDate: time.UnixMilli(msg.InternalDate),
	}
	if msg.Payload == nil {
		return m
	}
	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "Subject":
			m.Subject = h.Value
		case "From":
			m.From = parseAddress(h.Value)
		case "To":
			for _, part := range strings.Split(h.Value, ",") {
				m.To = append(m.To, parseAddress(part))
			}
		}
	}
	return m
}

// parseAddress splits `Name <addr>` into parts.
func parseAddress(value string) out.MailAddress {
	value = strings.TrimSpace(value)
	if i := strings.Index(value, "<"); i >= 0 {
		name := strings.Trim(strings.TrimSpace(value[:i]), `"`)
		email := strings.TrimSuffix(value[i+1:], ">")
		return out.MailAddress{Name: name, Email: strings.TrimSpace(email)}
	}
	return out.MailAddress{Email: value}
}

func parseBody(payload *gmailapi.MessagePart) (html, text string) {
	if payload == nil {
		return "", ""
	}

	switch payload.MimeType {
	case "text/plain":
		data, _ := base64.URLEncoding.DecodeString(payload.Body.Data)
		return "", string(data)
	case "text/html":
		data, _ := base64.URLEncoding.DecodeString(payload.Body.Data)
		return string(data), ""
	}

	for _, part := range payload.Parts {
		h, t := parseBody(part)
		if html == "" {
			html = h
		}
		if text == "" {
			text = t
		}
		if html != "" && text != "" {
			break
		}
	}
	return html, text
}

// =============================================================================
// MIME building
// =============================================================================

// buildRawMessage assembles the RFC 2822 message. With attachments it emits a
// multipart/mixed body with base64-encoded file parts.
func buildRawMessage(msg *out.OutgoingMessage) string {
	var sb strings.Builder

	sb.WriteString("To: " + formatAddresses(msg.To) + "\r\n")
	if len(msg.CC) > 0 {
		sb.WriteString("Cc: " + formatAddresses(msg.CC) + "\r\n")
	}
	sb.WriteString("Subject: " + mime.QEncoding.Encode("UTF-8", msg.Subject) + "\r\n")
	if msg.InReplyTo != "" {
		sb.WriteString("In-Reply-To: " + msg.InReplyTo + "\r\n")
	}
	if msg.References != "" {
		sb.WriteString("References: " + msg.References + "\r\n")
	}
	sb.WriteString("MIME-Version: 1.0\r\n")

	contentType := "text/plain"
	if msg.IsHTML {
		contentType = "text/html"
	}

	if len(msg.Attachments) == 0 {
		sb.WriteString("Content-Type: " + contentType + "; charset=UTF-8\r\n")
		sb.WriteString("\r\n")
		sb.WriteString(msg.Body)
		return sb.String()
	}

	boundary := fmt.Sprintf("boundary_%d", time.Now().UnixNano())
	sb.WriteString("Content-Type: multipart/mixed; boundary=" + boundary + "\r\n")
	sb.WriteString("\r\n")

	sb.WriteString("--" + boundary + "\r\n")
	sb.WriteString("Content-Type: " + contentType + "; charset=UTF-8\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(msg.Body)
	sb.WriteString("\r\n")

	for _, att := range msg.Attachments {
		mimeType := att.MimeType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		sb.WriteString("--" + boundary + "\r\n")
		sb.WriteString("Content-Type: " + mimeType + "; name=\"" + att.Filename + "\"\r\n")
		sb.WriteString("Content-Disposition: attachment; filename=\"" + att.Filename + "\"\r\n")
		sb.WriteString("Content-Transfer-Encoding: base64\r\n")
		sb.WriteString("\r\n")
		sb.WriteString(wrapBase64(base64.StdEncoding.EncodeToString(att.Data)))
		sb.WriteString("\r\n")
	}
	sb.WriteString("--" + boundary + "--")

	return sb.String()
}

func formatAddresses(addrs []out.MailAddress) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		if a.Name != "" {
			parts[i] = fmt.Sprintf("%s <%s>", a.Name, a.Email)
		} else {
			parts[i] = a.Email
		}
	}
	return strings.Join(parts, ", ")
}

// wrapBase64 folds encoded content at 76 columns per RFC 2045.
func wrapBase64(s string) string {
	const width = 76
	var sb strings.Builder
	for len(s) > width {
		sb.WriteString(s[:width])
		sb.WriteString("\r\n")
		s = s[width:]
	}
	sb.WriteString(s)
	return sb.String()
}
