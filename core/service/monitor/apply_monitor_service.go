// Package monitor runs the hybrid response probes: portal status checks,
// mailbox searches and thread reads, fused into at most one transition.
package monitor

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"apply_server/core/domain"
	"apply_server/core/port/in"
	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
	"apply_server/pkg/httputil"
	"apply_server/pkg/logger"
	"apply_server/pkg/ratelimit"
)

// manualProbeWindow is how far back the mailbox search reaches when the
// application has no recorded applied date.
const manualProbeWindow = 30 * 24 * time.Hour

// =============================================================================
// Monitor Service
// =============================================================================

type Service struct {
	apps       out.ApplicationRepository
	lifecycle  in.ApplicationService
	users      out.UserRepository
	mailbox    out.UserMailbox
	browser    out.BrowserAutomation
	classifier in.ClassificationService
	producer   out.MessageProducer
	limiter    *ratelimit.SlidingWindowLimiter
	debounce   *ratelimit.Debouncer
	httpClient *http.Client
	log        *logger.Logger
}

var _ in.MonitorService = (*Service)(nil)

type Deps struct {
	Apps       out.ApplicationRepository
	Lifecycle  in.ApplicationService
	Users      out.UserRepository
	Mailbox    out.UserMailbox
	Browser    out.BrowserAutomation
	Classifier in.ClassificationService
	Producer   out.MessageProducer
	Limiter    *ratelimit.SlidingWindowLimiter
	Debounce   *ratelimit.Debouncer
}

func NewService(deps *Deps) *Service {
	return &Service{
		apps:       deps.Apps,
		lifecycle:  deps.Lifecycle,
		users:      deps.Users,
		mailbox:    deps.Mailbox,
		browser:    deps.Browser,
		classifier: deps.Classifier,
		producer:   deps.Producer,
		limiter:    deps.Limiter,
		debounce:   deps.Debounce,
		httpClient: httputil.DefaultClient(),
		log:        logger.WithComponent("monitor"),
	}
}

// =============================================================================
// Probe
// =============================================================================

// Probe gathers signals from every available source, fuses them by precedence
// and applies at most one transition. Nothing is committed when the context
// is cancelled mid-run.
func (s *Service) Probe(ctx context.Context, userID, applicationID string) (*in.ProbeResult, error) {
	app, err := s.apps.FindByID(ctx, userID, applicationID)
	if err != nil {
		return nil, err
	}
	result := &in.ProbeResult{ApplicationID: applicationID}
	if app.Status.IsTerminal() {
		return result, nil
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if sig := s.probePortal(ctx, app); sig != nil {
		result.Signals = append(result.Signals, *sig)
	}
	mailSignals, newComms := s.probeMailbox(ctx, user, app)
	result.Signals = append(result.Signals, mailSignals...)
	result.NewMessages = len(newComms)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Commit the discovered communications before any transition so a crash
	// between the two still leaves the evidence recorded.
	for _, comm := range newComms {
		if err := s.lifecycle.AddCommunication(ctx, userID, applicationID, &comm, "comm:"+comm.MessageID); err != nil {
			s.log.Warn("failed to record communication: app=%s message=%s err=%v",
				applicationID, comm.MessageID, err)
		}
	}

	if fused := fuseSignals(result.Signals); fused != nil {
		result.Fused = fused
		if newStatus := s.applyFused(ctx, app, *fused); newStatus != nil {
			result.NewStatus = newStatus
		}
	}

	now := time.Now()
	if _, err := s.apps.Patch(ctx, userID, applicationID, &out.ApplicationPatch{
		LastResponseCheck:     &now,
		IncResponseCheckCount: true,
	}); err != nil {
		s.log.Warn("failed to record probe bookkeeping: app=%s err=%v", applicationID, err)
	}
	return result, nil
}

// probePortal asks the browser worker to read the portal status page.
func (s *Service) probePortal(ctx context.Context, app *domain.Application) *in.ProbeSignal {
	if s.browser == nil || app.ApplicationURL == "" || app.ApplicationDomain == "" {
		return nil
	}
	resp, err := s.browser.CheckStatus(ctx, app.ApplicationURL)
	if err != nil {
		s.log.Warn("portal status check failed: app=%s err=%v", app.ID, err)
		return nil
	}
	if !resp.Success {
		return nil
	}
	kind, ok := portalSignal(resp.Status)
	if !ok {
		return nil
	}
	return &in.ProbeSignal{
		Kind:      kind,
		Source:    "portal",
		Detail:    resp.MatchedKeyword,
		Timestamp: time.Now(),
	}
}

// portalSignal maps the worker's check-status strings onto signal kinds.
func portalSignal(status string) (domain.SignalKind, bool) {
	switch status {
	case out.CheckRejected:
		return domain.SignalRejected, true
	case out.CheckOffer:
		return domain.SignalOffer, true
	case out.CheckInterview:
		return domain.SignalInterview, true
	case out.CheckInReview:
		return domain.SignalInReview, true
	case out.CheckApplied:
		return domain.SignalApplied, true
	default:
		return "", false
	}
}

// probeMailbox searches the user's mailbox for employer messages and reads
// the submission thread when one exists. New messages are classified; the
// resulting signals respect the confidence gate.
func (s *Service) probeMailbox(ctx context.Context, user *domain.User, app *domain.Application) ([]in.ProbeSignal, []domain.Communication) {
	if s.mailbox == nil || !user.HasMailbox() {
		return nil, nil
	}

	var candidates []out.MailMessage
	if fromDomain := searchDomain(app); fromDomain != "" {
		query := fmt.Sprintf("from:(%s) after:%s", fromDomain, probeWindowStart(app).Format("2006/01/02"))
		msgs, err := s.mailbox.Search(ctx, user.ID, query, 20)
		if err != nil {
			if apperr.IsAuthExpired(err) {
				s.notifyAuthExpired(ctx, user)
			}
			s.log.Warn("mailbox search failed: app=%s err=%v", app.ID, err)
		} else {
			candidates = append(candidates, msgs...)
		}
	}
	if app.EmailThreadID != "" {
		msgs, err := s.mailbox.ListThread(ctx, user.ID, app.EmailThreadID)
		if err != nil {
			s.log.Warn("thread read failed: app=%s thread=%s err=%v", app.ID, app.EmailThreadID, err)
		} else {
			for _, m := range msgs {
				// Our own outbound message and anything before it carry no signal.
				if app.LastEmailSentAt != nil && !m.InternalDate.After(*app.LastEmailSentAt) {
					continue
				}
				if strings.EqualFold(m.From.Email, user.Mailbox.EmailAddress) {
					continue
				}
				candidates = append(candidates, m)
			}
		}
	}

	var (
		signals []in.ProbeSignal
		comms   []domain.Communication
	)
	seen := make(map[string]bool)
	for _, msg := range candidates {
		if msg.MessageID == "" || seen[msg.MessageID] || app.HasCommunicationMessage(msg.MessageID) {
			continue
		}
		seen[msg.MessageID] = true

		body := msg.Snippet
		if full, err := s.mailbox.FetchBody(ctx, user.ID, msg.MessageID); err == nil && full.Text != "" {
			body = full.Text
		}

		analysis, err := s.classifier.Analyze(ctx, &in.AnalyzeRequest{
			Subject:       msg.Subject,
			Body:          body,
			Sender:        msg.From.Email,
			ApplicationID: app.ID,
			UseLLM:        true,
		})
		if err != nil {
			s.log.Warn("classification failed: app=%s message=%s err=%v", app.ID, msg.MessageID, err)
			continue
		}

		comms = append(comms, domain.Communication{
			Type:         "email",
			Direction:    domain.DirectionInbound,
			Subject:      msg.Subject,
			Content:      truncate(body, 2000),
			ContactEmail: msg.From.Email,
			Timestamp:    msg.InternalDate,
			MessageID:    msg.MessageID,
			ThreadID:     msg.ThreadID,
		})

		if analysis.Confidence < domain.TransitionConfidenceGate {
			continue
		}
		if kind, ok := categorySignal(analysis.Category); ok {
			source := "mailbox"
			if msg.ThreadID != "" && msg.ThreadID == app.EmailThreadID {
				source = "thread"
			}
			signals = append(signals, in.ProbeSignal{
				Kind:      kind,
				Source:    source,
				MessageID: msg.MessageID,
				Detail:    string(analysis.Category),
				Timestamp: msg.InternalDate,
			})
		}
	}
	return signals, comms
}

// categorySignal maps classifier categories onto monitor signals.
func categorySignal(category domain.EmailCategory) (domain.SignalKind, bool) {
	switch category {
	case domain.CategoryRejection:
		return domain.SignalRejected, true
	case domain.CategoryOffer:
		return domain.SignalOffer, true
	case domain.CategoryInterviewInvitation:
		return domain.SignalInterview, true
	case domain.CategoryAcknowledgment:
		return domain.SignalInReview, true
	default:
		return "", false
	}
}

// searchDomain picks the address domain the employer mails from.
func searchDomain(app *domain.Application) string {
	if app.ApplicationDomain != "" {
		return app.ApplicationDomain
	}
	if app.RecipientEmail != "" {
		if _, d, found := strings.Cut(app.RecipientEmail, "@"); found {
			return d
		}
	}
	return ""
}

// probeWindowStart bounds the mailbox search. Auto-submitted applications
// search from the applied date; manual ones from a fixed window back.
func probeWindowStart(app *domain.Application) time.Time {
	if app.AppliedDate != nil {
		return *app.AppliedDate
	}
	return time.Now().Add(-manualProbeWindow)
}

// fuseSignals returns the highest-precedence signal kind, rejected over
// offer over interview over in_review over applied.
func fuseSignals(signals []in.ProbeSignal) *domain.SignalKind {
	var best *domain.SignalKind
	bestRank := 0
	for i := range signals {
		if rank := signals[i].Kind.Precedence(); rank > bestRank {
			bestRank = rank
			best = &signals[i].Kind
		}
	}
	return best
}

// applyFused performs the single fused transition when the target differs
// from the current status and the move is allowed.
func (s *Service) applyFused(ctx context.Context, app *domain.Application, kind domain.SignalKind) *domain.ApplicationStatus {
	target, ok := kind.TargetStatus()
	if !ok || target == app.Status || app.Status.IsTerminal() {
		return nil
	}
	// An acknowledgment-grade signal only moves early-stage applications.
	if kind == domain.SignalInReview && !domain.AcknowledgmentApplicableFrom[app.Status] {
		return nil
	}
	if kind == domain.SignalApplied && app.Status != domain.StatusProcessing && app.Status != domain.StatusSubmitted {
		return nil
	}

	idemKey := fmt.Sprintf("monitor:%s:%s:%d", app.ID, kind, time.Now().Unix()/600)
	updated, err := s.lifecycle.UpdateStatus(ctx, app.UserID, app.ID, target, "monitor:"+string(kind), idemKey)
	if err != nil {
		s.log.Warn("fused transition failed: app=%s target=%s err=%v", app.ID, target, err)
		return nil
	}
	return &updated.Status
}

// notifyAuthExpired alerts the user that their mailbox credential was
// revoked. The mailbox facade already cleared the stored token.
func (s *Service) notifyAuthExpired(ctx context.Context, user *domain.User) {
	s.log.Warn("mailbox credentials expired: user=%s", user.ID)
	err := s.producer.PublishNotification(ctx, &out.NotificationJob{
		UserID:  user.ID,
		Type:    string(domain.NotifAuthExpired),
		Title:   "Mailbox disconnected",
		Message: "Your mailbox connection expired. Reconnect it to keep response monitoring running.",
	})
	if err != nil {
		s.log.Warn("auth expiry notification failed: user=%s err=%v", user.ID, err)
	}
}

// =============================================================================
// Scheduling
// =============================================================================

// EnqueueDue scans monitored applications and enqueues one probe each,
// rate-capped per user and debounced per application.
func (s *Service) EnqueueDue(ctx context.Context) (int, error) {
	apps, err := s.apps.ListMonitored(ctx, 500)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, app := range apps {
		if err := ctx.Err(); err != nil {
			return enqueued, err
		}
		if s.limiter != nil {
			if allowed, _ := s.limiter.Allow(ctx, "probe:"+app.UserID); !allowed {
				continue
			}
		}
		if s.debounce != nil {
			key := "probe:" + app.ID
			if s.debounce.IsDuplicate(ctx, key) {
				continue
			}
			s.debounce.Mark(ctx, key)
		}

		if err := s.producer.PublishProbe(ctx, &out.ProbeJob{
			IdempotencyKey: fmt.Sprintf("probe:%s:%d", app.ID, time.Now().Unix()/600),
			UserID:         app.UserID,
			ApplicationID:  app.ID,
		}); err != nil {
			s.log.Error("failed to enqueue probe: app=%s err=%v", app.ID, err)
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		s.log.Info("probe sweep enqueued: count=%d scanned=%d", enqueued, len(apps))
	}
	return enqueued, nil
}

// =============================================================================
// Verification sweep
// =============================================================================

var verificationLinkRe = regexp.MustCompile(`https?://[^\s<>"']+`)

// SweepVerifications looks for portal verification emails for applications
// stuck in pending_verification and follows the confirmation link.
func (s *Service) SweepVerifications(ctx context.Context) (int, error) {
	apps, err := s.apps.ListByStatus(ctx, domain.StatusPendingVerification, 200)
	if err != nil {
		return 0, err
	}

	completed := 0
	for _, app := range apps {
		if err := ctx.Err(); err != nil {
			return completed, err
		}
		if app.VerificationPortalDomain == "" {
			continue
		}
		user, err := s.users.FindByID(ctx, app.UserID)
		if err != nil || !user.HasMailbox() {
			continue
		}
		if s.verifyOne(ctx, user, app) {
			completed++
		}
	}
	if completed > 0 {
		s.log.Info("verification sweep completed: count=%d scanned=%d", completed, len(apps))
	}
	return completed, nil
}

// verifyOne finds the newest verification email for the portal, follows its
// first link pointing at the portal domain and settles the application.
func (s *Service) verifyOne(ctx context.Context, user *domain.User, app *domain.Application) bool {
	query := fmt.Sprintf("from:(%s) (verify OR confirm OR activation) after:%s",
		app.VerificationPortalDomain, app.UpdatedAt.Add(-24*time.Hour).Format("2006/01/02"))
	msgs, err := s.mailbox.Search(ctx, user.ID, query, 5)
	if err != nil || len(msgs) == 0 {
		return false
	}

	body, err := s.mailbox.FetchBody(ctx, user.ID, msgs[0].MessageID)
	if err != nil {
		return false
	}
	link := verificationLink(body.Text+" "+body.HTML, app.VerificationPortalDomain)
	if link == "" {
		return false
	}

	if !s.followLink(ctx, link) {
		s.log.Warn("verification link follow failed: app=%s link=%s", app.ID, link)
		return false
	}

	_, err = s.lifecycle.UpdateStatus(ctx, app.UserID, app.ID, domain.StatusApplied,
		"verification link confirmed", "verify:"+msgs[0].MessageID)
	if err != nil {
		s.log.Warn("verification transition failed: app=%s err=%v", app.ID, err)
		return false
	}
	return true
}

// verificationLink picks the first link hosted on the portal domain.
func verificationLink(text, portalDomain string) string {
	for _, link := range verificationLinkRe.FindAllString(text, 20) {
		if strings.Contains(link, portalDomain) {
			return strings.TrimRight(link, ".,)")
		}
	}
	return ""
}

func (s *Service) followLink(ctx context.Context, link string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
