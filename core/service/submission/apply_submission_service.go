// Package submission routes applications to the email or browser channel.
package submission

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"apply_server/core/domain"
	"apply_server/core/port/in"
	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
	"apply_server/pkg/logger"
)

// maxPollAttempts bounds how long a started browser session is chased before
// it is cancelled and handed to the user.
const maxPollAttempts = 40

// =============================================================================
// Submission Service
// =============================================================================

type Service struct {
	apps      out.ApplicationRepository
	jobs      out.JobRepository
	users     out.UserRepository
	cvs       out.CVRepository
	emailLogs out.EmailLogRepository
	quota     in.QuotaService
	mailbox   out.UserMailbox
	browser   out.BrowserAutomation
	llm       out.LLMClient
	producer  out.MessageProducer
	notifier  in.NotificationService
	log       *logger.Logger
}

var _ in.SubmissionService = (*Service)(nil)

type Deps struct {
	Apps      out.ApplicationRepository
	Jobs      out.JobRepository
	Users     out.UserRepository
	CVs       out.CVRepository
	EmailLogs out.EmailLogRepository
	Quota     in.QuotaService
	Mailbox   out.UserMailbox
	Browser   out.BrowserAutomation
	LLM       out.LLMClient
	Producer  out.MessageProducer
	Notifier  in.NotificationService
}

func NewService(deps *Deps) *Service {
	return &Service{
		apps:      deps.Apps,
		jobs:      deps.Jobs,
		users:     deps.Users,
		cvs:       deps.CVs,
		emailLogs: deps.EmailLogs,
		quota:     deps.Quota,
		mailbox:   deps.Mailbox,
		browser:   deps.Browser,
		llm:       deps.LLM,
		producer:  deps.Producer,
		notifier:  deps.Notifier,
		log:       logger.WithComponent("submission"),
	}
}

// Submit reserves quota, picks the channel, runs the submission and settles
// the application. The reservation is committed only when the submission
// lands as applied; every other settled outcome releases it.
func (s *Service) Submit(ctx context.Context, req *in.SubmitRequest) (*in.SubmitResult, error) {
	app, err := s.apps.FindByID(ctx, req.UserID, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if app.Status.IsTerminal() {
		return nil, apperr.Invariant(fmt.Sprintf(
			"application %s is in terminal state %s", app.ID, app.Status))
	}
	if app.Status == domain.StatusApplied || app.Status == domain.StatusProcessing {
		// Already submitted or a session is in flight; a redelivered job must
		// not send twice.
		return nil, apperr.Invariant(fmt.Sprintf(
			"application %s was already submitted (status %s)", app.ID, app.Status))
	}
	job, err := s.jobs.FindByID(ctx, req.UserID, app.JobID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	usageType := req.UsageType
	if usageType == "" {
		usageType = domain.UsageManualApplication
	}
	if err := s.quota.Track(ctx, req.UserID, usageType, 1, req.IdempotencyKey,
		map[string]any{"application_id": req.ApplicationID}); err != nil {
		return nil, err
	}

	result, err := s.dispatch(ctx, user, app, job, req, usageType)
	if err != nil {
		s.releaseReservation(ctx, req.UserID, usageType)
	}
	return result, err
}

// dispatch picks the channel. Email wins when the posting carries a contact
// address and both documents are ready; everything else goes through the
// browser worker.
func (s *Service) dispatch(ctx context.Context, user *domain.User, app *domain.Application, job *domain.Job, req *in.SubmitRequest, usageType domain.UsageEventType) (*in.SubmitResult, error) {
	if job.ContactEmail() != "" && req.CVID != "" && req.CoverLetterID != "" {
		return s.submitByEmail(ctx, user, app, job, req)
	}
	if job.ApplicationURL == "" {
		return nil, apperr.Invariant("job has neither a contact email nor an application URL")
	}
	return s.submitByBrowser(ctx, user, app, job, req, usageType)
}

// releaseReservation undoes a quota increment for a submission that never
// reached the employer. Release failure only logs; the next reset sweep
// clears the counter anyway.
func (s *Service) releaseReservation(ctx context.Context, userID string, usageType domain.UsageEventType) {
	if usageType == "" {
		usageType = domain.UsageManualApplication
	}
	if err := s.quota.Release(ctx, userID, usageType, 1); err != nil {
		s.log.Warn("quota release failed: user=%s event=%s err=%v", userID, usageType, err)
	}
}

// reservedUsageType recovers the usage type of the open reservation for
// settles that arrive asynchronously, after the Submit call returned.
func reservedUsageType(app *domain.Application) domain.UsageEventType {
	if app.ReservedUsageType != "" {
		return domain.UsageEventType(app.ReservedUsageType)
	}
	return domain.UsageManualApplication
}

// =============================================================================
// Email channel
// =============================================================================

func (s *Service) submitByEmail(ctx context.Context, user *domain.User, app *domain.Application, job *domain.Job, req *in.SubmitRequest) (*in.SubmitResult, error) {
	cv, err := s.loadCV(ctx, req.UserID, req.CVID)
	if err != nil {
		return nil, err
	}
	letter, err := s.cvs.FindCoverLetter(ctx, req.UserID, req.CoverLetterID)
	if err != nil {
		return nil, err
	}

	recipient := job.ContactEmail()
	subject := fmt.Sprintf("Application for %s at %s", job.Title, job.CompanyName)
	body := s.emailBody(ctx, user, cv, job, letter)

	msg := &out.OutgoingMessage{
		To:      []out.MailAddress{{Name: job.CompanyName, Email: recipient}},
		Subject: subject,
		Body:    body,
		Attachments: []out.OutgoingAttachment{{
			Filename: cvFilename(cv, user),
			MimeType: "text/plain",
			Data:     []byte(renderCV(cv)),
		}},
	}

	sent, err := s.mailbox.Send(ctx, req.UserID, msg)
	if err != nil {
		s.logEmail(ctx, app, recipient, subject, domain.EmailFailed, "", err.Error())
		return nil, err
	}
	s.logEmail(ctx, app, recipient, subject, domain.EmailSent, sent.MessageID, "")

	now := time.Now()
	applied := domain.StatusApplied
	monitoring := true
	_, err = s.apps.Patch(ctx, req.UserID, app.ID, &out.ApplicationPatch{
		Status:                 &applied,
		AppliedDate:            &now,
		RecipientEmail:         &recipient,
		EmailThreadID:          &sent.ThreadID,
		LastEmailSentAt:        &now,
		EmailMonitoringEnabled: &monitoring,
		PushCommunications: []domain.Communication{{
			Type:         "email",
			Direction:    domain.DirectionOutbound,
			Subject:      subject,
			Content:      body,
			ContactEmail: recipient,
			Timestamp:    now,
			MessageID:    sent.MessageID,
			ThreadID:     sent.ThreadID,
		}},
		PushTimeline: []domain.TimelineEvent{{
			Timestamp:   now,
			Type:        domain.EventStatusChange,
			Description: fmt.Sprintf("Status changed from %s to %s", app.Status, applied),
			Metadata: map[string]any{
				"old_status": string(app.Status),
				"new_status": string(applied),
				"reason":     "email submission sent",
				"thread_id":  sent.ThreadID,
			},
		}},
	})
	if err != nil {
		return nil, err
	}

	s.notifySubmitted(ctx, req.UserID, app, in.ChannelEmailPath)
	return &in.SubmitResult{
		Channel:  in.ChannelEmailPath,
		Status:   applied,
		ThreadID: sent.ThreadID,
	}, nil
}

// loadCV accepts either a customized or an original CV id.
func (s *Service) loadCV(ctx context.Context, userID, cvID string) (*domain.ParsedCV, error) {
	if custom, err := s.cvs.FindCustomizedCV(ctx, userID, cvID); err == nil {
		return &custom.ParsedCV, nil
	} else if !apperr.IsNotFound(err) {
		return nil, err
	}
	return s.cvs.FindCV(ctx, userID, cvID)
}

// emailBody prefers the generated cover letter, then a short model-written
// note, then a static template.
func (s *Service) emailBody(ctx context.Context, user *domain.User, cv *domain.ParsedCV, job *domain.Job, letter *domain.CoverLetter) string {
	if letter.IsSubstantial() {
		return letter.FullText
	}

	if s.llm != nil {
		prompt := fmt.Sprintf(
			"Write a short, professional email (under 150 words) applying for %s at %s. "+
				"Candidate: %s. Key skills: %s. The CV is attached. Plain text only, no subject line.",
			job.Title, job.CompanyName, cv.PersonalInfo.Name,
			strings.Join(firstN(cv.Skills.Normalize(), 5), ", "))
		if body, err := s.llm.Complete(ctx, "submission.email_body", prompt); err == nil && body != "" {
			return strings.TrimSpace(body)
		}
	}

	name := cv.PersonalInfo.Name
	if name == "" {
		name = user.Profile.FullName()
	}
	return fmt.Sprintf(
		"Dear Hiring Team,\n\nPlease find attached my CV for the %s position at %s. "+
			"I would welcome the chance to discuss my fit for the role.\n\nBest regards,\n%s",
		job.Title, job.CompanyName, name)
}

func (s *Service) logEmail(ctx context.Context, app *domain.Application, recipient, subject string, status domain.EmailLogStatus, messageID, errMsg string) {
	now := time.Now()
	_, err := s.emailLogs.Create(ctx, &domain.EmailLog{
		UserID:        app.UserID,
		ApplicationID: app.ID,
		JobID:         app.JobID,
		Direction:     domain.DirectionOutbound,
		Status:        status,
		MessageID:     messageID,
		Recipient:     recipient,
		Subject:       subject,
		Error:         errMsg,
		SentAt:        now,
		CreatedAt:     now,
	})
	if err != nil {
		s.log.Warn("email log write failed: app=%s err=%v", app.ID, err)
	}
}

// =============================================================================
// Browser channel
// =============================================================================

func (s *Service) submitByBrowser(ctx context.Context, user *domain.User, app *domain.Application, job *domain.Job, req *in.SubmitRequest, usageType domain.UsageEventType) (*in.SubmitResult, error) {
	autofill, err := s.buildAutofill(ctx, user, req)
	if err != nil {
		return nil, err
	}

	// The session id embeds the application id so asynchronous callbacks can
	// find their way back without a session store.
	sessionID := app.ID + ":" + uuid.NewString()

	startReq := &out.StartRequest{
		SessionID:         sessionID,
		URL:               job.ApplicationURL,
		AutofillData:      autofill,
		JobSource:         job.Source,
		AutoCreateAccount: true,
	}
	if cred := user.PortalCredentialFor(hostOf(job.ApplicationURL)); cred != nil {
		startReq.Credentials = &out.PortalLogin{
			Username: cred.Username,
			Password: cred.Secret,
		}
	}

	resp, err := s.browser.Start(ctx, startReq)
	if err != nil {
		return nil, err
	}

	if resp.NewCredentials != nil {
		s.storePortalCredentials(ctx, user.ID, resp.NewCredentials)
	}

	return s.settleSession(ctx, user, app, job, sessionID, resp.Status, resp.VerificationDomain, usageType)
}

// settleSession maps a worker status onto the lifecycle and is shared by the
// start, poll and callback paths. The quota reservation follows the outcome:
// applied commits it, a still-running session persists it on the document,
// and every outcome that hands the application back to the user releases it.
func (s *Service) settleSession(ctx context.Context, user *domain.User, app *domain.Application, job *domain.Job, sessionID, status, verificationDomain string, usageType domain.UsageEventType) (*in.SubmitResult, error) {
	reserved := string(usageType)
	cleared := ""

	switch status {
	case out.AutomationStarted:
		extra := &out.ApplicationPatch{ReservedUsageType: &reserved}
		if err := s.setStatus(ctx, app, domain.StatusProcessing, "browser session started", extra); err != nil {
			return nil, err
		}
		if err := s.producer.PublishSubmissionPoll(ctx, &out.SubmissionPollJob{
			IdempotencyKey: sessionID + ":poll:1",
			UserID:         app.UserID,
			ApplicationID:  app.ID,
			SessionID:      sessionID,
			Attempt:        1,
		}); err != nil {
			s.log.Error("failed to schedule session poll: session=%s err=%v", sessionID, err)
		}
		return &in.SubmitResult{
			Channel:   in.ChannelBrowserPath,
			Status:    domain.StatusProcessing,
			SessionID: sessionID,
		}, nil

	case out.AutomationCompleted:
		portalDomain := hostOf(job.ApplicationURL)
		monitoring := user.HasMailbox() || domain.PlanByID(user.PlanID).IsPaid()
		now := time.Now()
		extra := &out.ApplicationPatch{
			AppliedDate:            &now,
			ApplicationDomain:      &portalDomain,
			EmailMonitoringEnabled: &monitoring,
			ReservedUsageType:      &cleared,
		}
		if err := s.setStatus(ctx, app, domain.StatusApplied, "browser submission completed", extra); err != nil {
			return nil, err
		}
		if err := s.producer.PublishProbe(ctx, &out.ProbeJob{
			IdempotencyKey: sessionID + ":probe",
			UserID:         app.UserID,
			ApplicationID:  app.ID,
		}); err != nil {
			s.log.Warn("failed to schedule initial probe: app=%s err=%v", app.ID, err)
		}
		s.notifySubmitted(ctx, app.UserID, app, in.ChannelBrowserPath)
		return &in.SubmitResult{
			Channel:   in.ChannelBrowserPath,
			Status:    domain.StatusApplied,
			SessionID: sessionID,
		}, nil

	case out.AutomationNeedsAuthentication, out.AutomationLoginRequired:
		if job.Source == "remoteok" {
			return s.deleteLoginWalled(ctx, app, job, sessionID, usageType)
		}
		extra := &out.ApplicationPatch{ReservedUsageType: &cleared}
		if err := s.setStatus(ctx, app, domain.StatusNeedsAuthentication, "portal requires a login", extra); err != nil {
			return nil, err
		}
		s.releaseReservation(ctx, app.UserID, usageType)
		return &in.SubmitResult{
			Channel:   in.ChannelBrowserPath,
			Status:    domain.StatusNeedsAuthentication,
			SessionID: sessionID,
		}, nil

	case out.AutomationManualActionRequired:
		extra := &out.ApplicationPatch{ReservedUsageType: &cleared}
		if err := s.setStatus(ctx, app, domain.StatusManualActionRequired, "portal needs manual input", extra); err != nil {
			return nil, err
		}
		s.releaseReservation(ctx, app.UserID, usageType)
		return &in.SubmitResult{
			Channel:   in.ChannelBrowserPath,
			Status:    domain.StatusManualActionRequired,
			SessionID: sessionID,
		}, nil

	case out.AutomationPendingVerification:
		if verificationDomain == "" {
			verificationDomain = hostOf(job.ApplicationURL)
		}
		extra := &out.ApplicationPatch{
			VerificationPortalDomain: &verificationDomain,
			ReservedUsageType:        &cleared,
		}
		if err := s.setStatus(ctx, app, domain.StatusPendingVerification, "portal sent a verification email", extra); err != nil {
			return nil, err
		}
		s.releaseReservation(ctx, app.UserID, usageType)
		return &in.SubmitResult{
			Channel:   in.ChannelBrowserPath,
			Status:    domain.StatusPendingVerification,
			SessionID: sessionID,
		}, nil

	default:
		return nil, apperr.Invariant(fmt.Sprintf("automation worker returned unknown status %q", status))
	}
}

// deleteLoginWalled removes the application and its posting when the source
// board hides postings behind a login wall. Soft delete would leave a dead
// record the user can never act on.
func (s *Service) deleteLoginWalled(ctx context.Context, app *domain.Application, job *domain.Job, sessionID string, usageType domain.UsageEventType) (*in.SubmitResult, error) {
	if err := s.apps.HardDelete(ctx, app.UserID, app.ID); err != nil {
		return nil, err
	}
	if err := s.jobs.HardDelete(ctx, app.UserID, job.ID); err != nil {
		s.log.Warn("failed to delete login-walled job: job=%s err=%v", job.ID, err)
	}
	s.releaseReservation(ctx, app.UserID, usageType)
	s.log.Info("deleted login-walled application: app=%s source=%s", app.ID, job.Source)
	return &in.SubmitResult{
		Channel:    in.ChannelBrowserPath,
		SessionID:  sessionID,
		JobDeleted: true,
	}, nil
}

func (s *Service) setStatus(ctx context.Context, app *domain.Application, status domain.ApplicationStatus, reason string, extra *out.ApplicationPatch) error {
	patch := extra
	if patch == nil {
		patch = &out.ApplicationPatch{}
	}
	patch.Status = &status
	patch.PushTimeline = append(patch.PushTimeline, domain.TimelineEvent{
		Timestamp:   time.Now(),
		Type:        domain.EventStatusChange,
		Description: fmt.Sprintf("Status changed from %s to %s", app.Status, status),
		Metadata: map[string]any{
			"old_status": string(app.Status),
			"new_status": string(status),
			"reason":     reason,
		},
	})
	_, err := s.apps.Patch(ctx, app.UserID, app.ID, patch)
	return err
}

func (s *Service) storePortalCredentials(ctx context.Context, userID string, creds *out.NewPortalCredentials) {
	err := s.users.AppendPortalCredential(ctx, userID, &domain.PortalCredential{
		PortalName: creds.PortalName,
		Domain:     creds.Domain,
		Username:   creds.Username,
		Secret:     creds.Password,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		s.log.Error("failed to store portal credentials: user=%s domain=%s err=%v",
			userID, creds.Domain, err)
	}
}

// =============================================================================
// Session polling and callbacks
// =============================================================================

func (s *Service) PollSession(ctx context.Context, userID, applicationID, sessionID string) (*in.SubmitResult, error) {
	app, err := s.apps.FindByID(ctx, userID, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != domain.StatusProcessing {
		// Already settled by a callback or an earlier poll.
		return &in.SubmitResult{Channel: in.ChannelBrowserPath, Status: app.Status, SessionID: sessionID}, nil
	}
	job, err := s.jobs.FindByID(ctx, userID, app.JobID)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp, err := s.browser.PollStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if resp.Status == out.AutomationStarted {
		return s.repoll(ctx, app, sessionID)
	}
	return s.settleSession(ctx, user, app, job, sessionID, resp.Status, "", reservedUsageType(app))
}

// repoll schedules the next poll or gives up after maxPollAttempts.
func (s *Service) repoll(ctx context.Context, app *domain.Application, sessionID string) (*in.SubmitResult, error) {
	attempt := pollAttempt(ctx)
	if attempt >= maxPollAttempts {
		if err := s.browser.Cancel(ctx, sessionID); err != nil {
			s.log.Warn("failed to cancel stale session: session=%s err=%v", sessionID, err)
		}
		cleared := ""
		extra := &out.ApplicationPatch{ReservedUsageType: &cleared}
		if err := s.setStatus(ctx, app, domain.StatusManualActionRequired, "browser session timed out", extra); err != nil {
			return nil, err
		}
		s.releaseReservation(ctx, app.UserID, reservedUsageType(app))
		return &in.SubmitResult{
			Channel:   in.ChannelBrowserPath,
			Status:    domain.StatusManualActionRequired,
			SessionID: sessionID,
		}, nil
	}

	next := attempt + 1
	if err := s.producer.PublishSubmissionPoll(ctx, &out.SubmissionPollJob{
		IdempotencyKey: fmt.Sprintf("%s:poll:%d", sessionID, next),
		UserID:         app.UserID,
		ApplicationID:  app.ID,
		SessionID:      sessionID,
		Attempt:        next,
	}); err != nil {
		return nil, err
	}
	return &in.SubmitResult{
		Channel:   in.ChannelBrowserPath,
		Status:    domain.StatusProcessing,
		SessionID: sessionID,
	}, nil
}

type pollAttemptKey struct{}

// WithPollAttempt threads the retry count from the queue consumer into
// PollSession without widening the port.
func WithPollAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, pollAttemptKey{}, attempt)
}

func pollAttempt(ctx context.Context) int {
	if v, ok := ctx.Value(pollAttemptKey{}).(int); ok {
		return v
	}
	return 1
}

// HandleWorkerCallback settles a session from an asynchronous worker push.
// The application id is recovered from the session id prefix.
func (s *Service) HandleWorkerCallback(ctx context.Context, sessionID, status string, payload map[string]any) error {
	applicationID, ok := applicationIDFromSession(sessionID)
	if !ok {
		return apperr.Invariant(fmt.Sprintf("malformed session id %q", sessionID))
	}

	app, err := s.apps.FindByIDAny(ctx, applicationID)
	if err != nil {
		return err
	}
	if app.Status != domain.StatusProcessing {
		// A poll or an earlier callback settled the session already; a repeat
		// must not re-patch or release twice.
		s.log.Debug("callback for settled session ignored: session=%s status=%s", sessionID, app.Status)
		return nil
	}
	job, err := s.jobs.FindByID(ctx, app.UserID, app.JobID)
	if err != nil {
		return err
	}
	user, err := s.users.FindByID(ctx, app.UserID)
	if err != nil {
		return err
	}

	if creds := credentialsFromPayload(payload); creds != nil {
		s.storePortalCredentials(ctx, app.UserID, creds)
	}
	verificationDomain, _ := payload["verification_domain"].(string)

	_, err = s.settleSession(ctx, user, app, job, sessionID, status, verificationDomain, reservedUsageType(app))
	return err
}

func applicationIDFromSession(sessionID string) (string, bool) {
	id, _, found := strings.Cut(sessionID, ":")
	return id, found && id != ""
}

func credentialsFromPayload(payload map[string]any) *out.NewPortalCredentials {
	raw, ok := payload["new_credentials"].(map[string]any)
	if !ok {
		return nil
	}
	str := func(key string) string {
		v, _ := raw[key].(string)
		return v
	}
	creds := &out.NewPortalCredentials{
		PortalName: str("portal_name"),
		Domain:     str("domain"),
		Username:   str("username"),
		Password:   str("password"),
	}
	if creds.Username == "" {
		return nil
	}
	return creds
}

// =============================================================================
// Autofill assembly
// =============================================================================

// buildAutofill flattens the user profile and CV into the worker's form
// payload. Missing name parts fall back to the CV, then to the email
// local-part.
func (s *Service) buildAutofill(ctx context.Context, user *domain.User, req *in.SubmitRequest) (*out.AutofillData, error) {
	var cv *domain.ParsedCV
	if req.CVID != "" {
		loaded, err := s.loadCV(ctx, user.ID, req.CVID)
		if err != nil {
			return nil, err
		}
		cv = loaded
	}

	first, last := resolveName(user, cv)
	city, state := splitLocation(firstNonEmpty(user.Profile.Location, personalLocation(cv)))

	info := out.AutofillPersonalInfo{
		FirstName: first,
		LastName:  last,
		FullName:  strings.TrimSpace(first + " " + last),
		Email:     user.Email,
		Phone:     firstNonEmpty(user.Profile.Phone, personalPhone(cv)),
		City:      city,
		State:     state,
		Location:  firstNonEmpty(user.Profile.Location, personalLocation(cv)),
		LinkedIn:  firstNonEmpty(user.Profile.LinkedIn, personalLinkedIn(cv)),
		Website:   user.Profile.Website,
	}

	data := &out.AutofillData{PersonalInfo: info}
	if cv != nil {
		for _, e := range cv.Experience {
			data.Experience = append(data.Experience, out.AutofillExperience{
				Title:       e.Title,
				Company:     e.Company,
				StartDate:   e.StartDate,
				EndDate:     e.EndDate,
				Description: e.Description,
			})
		}
		for _, e := range cv.Education {
			data.Education = append(data.Education, out.AutofillEducation{
				Institution: e.Institution,
				Degree:      e.Degree,
				Field:       e.Field,
				EndDate:     e.EndDate,
			})
		}
		data.Skills = map[string][]string{"all": cv.Skills.Normalize()}
	}
	if req.CoverLetterID != "" {
		if letter, err := s.cvs.FindCoverLetter(ctx, user.ID, req.CoverLetterID); err == nil {
			data.CoverLetter = letter.FullText
		}
	}
	return data, nil
}

// resolveName prefers the profile, then the CV name split on the first space,
// then the email local-part split on dots and underscores.
func resolveName(user *domain.User, cv *domain.ParsedCV) (first, last string) {
	if user.Profile.FirstName != "" || user.Profile.LastName != "" {
		return user.Profile.FirstName, user.Profile.LastName
	}
	if cv != nil && cv.PersonalInfo.Name != "" {
		parts := strings.SplitN(cv.PersonalInfo.Name, " ", 2)
		if len(parts) == 2 {
			return parts[0], parts[1]
		}
		return parts[0], ""
	}
	local, _, _ := strings.Cut(user.Email, "@")
	parts := strings.FieldsFunc(local, func(r rune) bool { return r == '.' || r == '_' })
	if len(parts) >= 2 {
		return titleCase(parts[0]), titleCase(parts[1])
	}
	return titleCase(local), ""
}

// splitLocation interprets "City, State" forms; anything else is city only.
func splitLocation(loc string) (city, state string) {
	if loc == "" {
		return "", ""
	}
	if c, s, found := strings.Cut(loc, ","); found {
		return strings.TrimSpace(c), strings.TrimSpace(s)
	}
	return strings.TrimSpace(loc), ""
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func personalPhone(cv *domain.ParsedCV) string {
	if cv == nil {
		return ""
	}
	return cv.PersonalInfo.Phone
}

func personalLocation(cv *domain.ParsedCV) string {
	if cv == nil {
		return ""
	}
	return cv.PersonalInfo.Location
}

func personalLinkedIn(cv *domain.ParsedCV) string {
	if cv == nil {
		return ""
	}
	return cv.PersonalInfo.LinkedIn
}

// =============================================================================
// Helpers
// =============================================================================

func (s *Service) notifySubmitted(ctx context.Context, userID string, app *domain.Application, channel string) {
	if s.notifier == nil {
		return
	}
	_, err := s.notifier.Notify(ctx, userID, domain.NotifApplicationSubmitted,
		fmt.Sprintf("Application sent: %s at %s", app.JobTitle, app.CompanyName),
		fmt.Sprintf("Your application was submitted via the %s channel.", channel),
		map[string]any{"application_id": app.ID, "channel": channel},
		[]domain.NotificationChannel{domain.ChannelInApp})
	if err != nil {
		s.log.Warn("submission notification failed: app=%s err=%v", app.ID, err)
	}
}

// hostOf extracts the registrable host from a URL, stripping a www prefix.
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

func cvFilename(cv *domain.ParsedCV, user *domain.User) string {
	name := cv.PersonalInfo.Name
	if name == "" {
		name = user.Profile.FullName()
	}
	if name == "" {
		return "cv.txt"
	}
	return name + " - CV.txt"
}

// renderCV produces the plain-text attachment body.
func renderCV(cv *domain.ParsedCV) string {
	var b strings.Builder
	if cv.PersonalInfo.Name != "" {
		b.WriteString(cv.PersonalInfo.Name + "\n")
	}
	if cv.PersonalInfo.Email != "" {
		b.WriteString(cv.PersonalInfo.Email + "\n")
	}
	if cv.PersonalInfo.Phone != "" {
		b.WriteString(cv.PersonalInfo.Phone + "\n")
	}
	if cv.PersonalInfo.Summary != "" {
		b.WriteString("\n" + cv.PersonalInfo.Summary + "\n")
	}

	if len(cv.Experience) > 0 {
		b.WriteString("\nEXPERIENCE\n")
		for _, e := range cv.Experience {
			fmt.Fprintf(&b, "%s, %s (%s - %s)\n", e.Title, e.Company, e.StartDate, e.EndDate)
			if e.Description != "" {
				b.WriteString(e.Description + "\n")
			}
			for _, h := range e.Highlights {
				b.WriteString("  - " + h + "\n")
			}
		}
	}
	if len(cv.Education) > 0 {
		b.WriteString("\nEDUCATION\n")
		for _, e := range cv.Education {
			fmt.Fprintf(&b, "%s, %s %s\n", e.Institution, e.Degree, e.Field)
		}
	}
	if skills := cv.Skills.Normalize(); len(skills) > 0 {
		b.WriteString("\nSKILLS\n" + strings.Join(skills, ", ") + "\n")
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstN(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
