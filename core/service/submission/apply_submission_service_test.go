package submission

import (
	"context"
	"errors"
	"testing"
	"time"

	"apply_server/core/domain"
	"apply_server/core/port/in"
	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
)

// ===== Fakes =====

type memAppRepo struct {
	apps        map[string]*domain.Application
	hardDeleted []string
}

func newMemAppRepo(apps ...*domain.Application) *memAppRepo {
	m := &memAppRepo{apps: map[string]*domain.Application{}}
	for _, a := range apps {
		m.apps[a.ID] = a
	}
	return m
}

func (m *memAppRepo) Create(ctx context.Context, app *domain.Application) (*domain.Application, error) {
	m.apps[app.ID] = app
	return app, nil
}

func (m *memAppRepo) FindByID(ctx context.Context, userID, id string) (*domain.Application, error) {
	app, ok := m.apps[id]
	if !ok || app.UserID != userID {
		return nil, apperr.NotFound("application")
	}
	copied := *app
	return &copied, nil
}

func (m *memAppRepo) FindByIDAny(ctx context.Context, id string) (*domain.Application, error) {
	app, ok := m.apps[id]
	if !ok {
		return nil, apperr.NotFound("application")
	}
	copied := *app
	return &copied, nil
}

func (m *memAppRepo) List(ctx context.Context, userID string, filter *domain.ApplicationFilter, page, pageSize int, sort domain.ApplicationSort) (*domain.ApplicationPage, error) {
	return &domain.ApplicationPage{}, nil
}

func (m *memAppRepo) Patch(ctx context.Context, userID, id string, patch *out.ApplicationPatch) (*domain.Application, error) {
	app, ok := m.apps[id]
	if !ok {
		return nil, apperr.NotFound("application")
	}
	if patch.Status != nil {
		app.Status = *patch.Status
	}
	if patch.AppliedDate != nil {
		app.AppliedDate = patch.AppliedDate
	}
	if patch.RecipientEmail != nil {
		app.RecipientEmail = *patch.RecipientEmail
	}
	if patch.EmailThreadID != nil {
		app.EmailThreadID = *patch.EmailThreadID
	}
	if patch.LastEmailSentAt != nil {
		app.LastEmailSentAt = patch.LastEmailSentAt
	}
	if patch.ApplicationDomain != nil {
		app.ApplicationDomain = *patch.ApplicationDomain
	}
	if patch.EmailMonitoringEnabled != nil {
		app.EmailMonitoringEnabled = *patch.EmailMonitoringEnabled
	}
	if patch.VerificationPortalDomain != nil {
		app.VerificationPortalDomain = *patch.VerificationPortalDomain
	}
	if patch.ReservedUsageType != nil {
		app.ReservedUsageType = *patch.ReservedUsageType
	}
	app.Timeline = append(app.Timeline, patch.PushTimeline...)
	app.Communications = append(app.Communications, patch.PushCommunications...)
	copied := *app
	return &copied, nil
}

func (m *memAppRepo) CompleteTask(ctx context.Context, userID, id string, taskIndex int, at time.Time) error {
	return nil
}

func (m *memAppRepo) SoftDelete(ctx context.Context, userID, id string) error { return nil }

func (m *memAppRepo) HardDelete(ctx context.Context, userID, id string) error {
	delete(m.apps, id)
	m.hardDeleted = append(m.hardDeleted, id)
	return nil
}

func (m *memAppRepo) FollowUpsNeeded(ctx context.Context, userID string, now time.Time) ([]*domain.Application, error) {
	return nil, nil
}

func (m *memAppRepo) UpcomingInterviews(ctx context.Context, userID string, now time.Time, days int) ([]*domain.Application, error) {
	return nil, nil
}

func (m *memAppRepo) ListMonitored(ctx context.Context, limit int) ([]*domain.Application, error) {
	return nil, nil
}

func (m *memAppRepo) ListByStatus(ctx context.Context, status domain.ApplicationStatus, limit int) ([]*domain.Application, error) {
	return nil, nil
}

func (m *memAppRepo) CountsByStatus(ctx context.Context, userID string) (map[domain.ApplicationStatus]int64, error) {
	return nil, nil
}

func (m *memAppRepo) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	return 0, nil
}

func (m *memAppRepo) CountWithResponse(ctx context.Context, userID string) (int64, error) {
	return 0, nil
}

type memJobRepo struct {
	jobs        map[string]*domain.Job
	hardDeleted []string
}

func newMemJobRepo(jobs ...*domain.Job) *memJobRepo {
	m := &memJobRepo{jobs: map[string]*domain.Job{}}
	for _, j := range jobs {
		m.jobs[j.ID] = j
	}
	return m
}

func (m *memJobRepo) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	m.jobs[job.ID] = job
	return job, nil
}

func (m *memJobRepo) FindByID(ctx context.Context, userID, id string) (*domain.Job, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, apperr.NotFound("job")
	}
	return job, nil
}

func (m *memJobRepo) Update(ctx context.Context, job *domain.Job) error { return nil }

func (m *memJobRepo) HardDelete(ctx context.Context, userID, id string) error {
	delete(m.jobs, id)
	m.hardDeleted = append(m.hardDeleted, id)
	return nil
}

func (m *memJobRepo) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type memUserRepo struct {
	user  *domain.User
	creds []*domain.PortalCredential
}

func (m *memUserRepo) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	return user, nil
}

func (m *memUserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	if m.user == nil {
		return nil, apperr.NotFound("user")
	}
	return m.user, nil
}

func (m *memUserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.user, nil
}

func (m *memUserRepo) UpdateProfile(ctx context.Context, id string, profile *domain.UserProfile) error {
	return nil
}

func (m *memUserRepo) SetMailbox(ctx context.Context, id string, creds *domain.MailboxCredentials) error {
	return nil
}

func (m *memUserRepo) UpdateMailboxToken(ctx context.Context, id string, accessToken string, expiry time.Time) error {
	return nil
}

func (m *memUserRepo) ClearMailbox(ctx context.Context, id string) error { return nil }

func (m *memUserRepo) AppendPortalCredential(ctx context.Context, id string, cred *domain.PortalCredential) error {
	m.creds = append(m.creds, cred)
	return nil
}

type memCVRepo struct {
	cv     *domain.ParsedCV
	letter *domain.CoverLetter
}

func (m *memCVRepo) FindCV(ctx context.Context, userID, id string) (*domain.ParsedCV, error) {
	if m.cv == nil {
		return nil, apperr.NotFound("cv")
	}
	return m.cv, nil
}

func (m *memCVRepo) SaveCV(ctx context.Context, cv *domain.ParsedCV) (*domain.ParsedCV, error) {
	return cv, nil
}

func (m *memCVRepo) SaveCustomizedCV(ctx context.Context, cv *domain.CustomizedCV) (*domain.CustomizedCV, error) {
	return cv, nil
}

func (m *memCVRepo) FindCustomizedCV(ctx context.Context, userID, id string) (*domain.CustomizedCV, error) {
	return nil, apperr.NotFound("customized cv")
}

func (m *memCVRepo) SaveCoverLetter(ctx context.Context, letter *domain.CoverLetter) (*domain.CoverLetter, error) {
	return letter, nil
}

func (m *memCVRepo) FindCoverLetter(ctx context.Context, userID, id string) (*domain.CoverLetter, error) {
	if m.letter == nil {
		return nil, apperr.NotFound("cover letter")
	}
	return m.letter, nil
}

type memEmailLogRepo struct {
	logs []*domain.EmailLog
}

func (m *memEmailLogRepo) Create(ctx context.Context, log *domain.EmailLog) (*domain.EmailLog, error) {
	m.logs = append(m.logs, log)
	return log, nil
}

func (m *memEmailLogRepo) ListByApplication(ctx context.Context, userID, applicationID string, limit int) ([]*domain.EmailLog, error) {
	return m.logs, nil
}

func (m *memEmailLogRepo) ExistsByMessageID(ctx context.Context, userID, messageID string) (bool, error) {
	return false, nil
}

type trackingQuota struct {
	tracked  int
	released int
	deny     bool
	keys     []string
}

func (q *trackingQuota) Check(ctx context.Context, userID string, event domain.UsageEventType, qty int) (bool, int, int, error) {
	return !q.deny, 0, 5, nil
}

func (q *trackingQuota) Track(ctx context.Context, userID string, event domain.UsageEventType, qty int, idemKey string, metadata map[string]any) error {
	if q.deny {
		return apperr.QuotaDenied(string(event), 5, 5)
	}
	q.tracked++
	q.keys = append(q.keys, idemKey)
	return nil
}

func (q *trackingQuota) Release(ctx context.Context, userID string, event domain.UsageEventType, qty int) error {
	q.released++
	return nil
}

func (q *trackingQuota) ResetMonthly(ctx context.Context) (int, error) { return 0, nil }

type fakeMailbox struct {
	sendErr error
	sent    []*out.OutgoingMessage
}

func (m *fakeMailbox) Send(ctx context.Context, userID string, msg *out.OutgoingMessage) (*out.SendResult, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, msg)
	return &out.SendResult{MessageID: "gm-1", ThreadID: "thread-1", SentAt: time.Now()}, nil
}

func (m *fakeMailbox) Search(ctx context.Context, userID, query string, maxResults int) ([]out.MailMessage, error) {
	return nil, nil
}

func (m *fakeMailbox) FetchBody(ctx context.Context, userID, messageID string) (*out.MailBody, error) {
	return &out.MailBody{}, nil
}

func (m *fakeMailbox) ListThread(ctx context.Context, userID, threadID string) ([]out.MailMessage, error) {
	return nil, nil
}

type fakeBrowser struct {
	startResp *out.StartResponse
	pollResp  *out.StatusResponse
	cancelled []string
	startReq  *out.StartRequest
}

func (b *fakeBrowser) Start(ctx context.Context, req *out.StartRequest) (*out.StartResponse, error) {
	b.startReq = req
	return b.startResp, nil
}

func (b *fakeBrowser) PollStatus(ctx context.Context, sessionID string) (*out.StatusResponse, error) {
	return b.pollResp, nil
}

func (b *fakeBrowser) CheckStatus(ctx context.Context, url string) (*out.CheckStatusResponse, error) {
	return &out.CheckStatusResponse{Success: false, Status: out.CheckUnknown}, nil
}

func (b *fakeBrowser) Cancel(ctx context.Context, sessionID string) error {
	b.cancelled = append(b.cancelled, sessionID)
	return nil
}

func (b *fakeBrowser) Health(ctx context.Context) error { return nil }

type memProducer struct {
	polls  []*out.SubmissionPollJob
	probes []*out.ProbeJob
}

func (p *memProducer) PublishSubmission(ctx context.Context, job *out.SubmissionJob) error {
	return nil
}

func (p *memProducer) PublishSubmissionPoll(ctx context.Context, job *out.SubmissionPollJob) error {
	p.polls = append(p.polls, job)
	return nil
}

func (p *memProducer) PublishProbe(ctx context.Context, job *out.ProbeJob) error {
	p.probes = append(p.probes, job)
	return nil
}

func (p *memProducer) PublishVerification(ctx context.Context, job *out.VerificationJob) error {
	return nil
}

func (p *memProducer) PublishNotification(ctx context.Context, job *out.NotificationJob) error {
	return nil
}

func (p *memProducer) PublishUsageReset(ctx context.Context, job *out.UsageResetJob) error {
	return nil
}

func (p *memProducer) PublishJobExpiry(ctx context.Context, job *out.JobExpiryJob) error {
	return nil
}

// ===== Fixtures =====

type fixture struct {
	apps     *memAppRepo
	jobs     *memJobRepo
	users    *memUserRepo
	cvs      *memCVRepo
	logs     *memEmailLogRepo
	quota    *trackingQuota
	mailbox  *fakeMailbox
	browser  *fakeBrowser
	producer *memProducer
	svc      *Service
}

func newFixture(app *domain.Application, job *domain.Job, user *domain.User) *fixture {
	f := &fixture{
		apps:     newMemAppRepo(app),
		jobs:     newMemJobRepo(job),
		users:    &memUserRepo{user: user},
		cvs:      &memCVRepo{},
		logs:     &memEmailLogRepo{},
		quota:    &trackingQuota{},
		mailbox:  &fakeMailbox{},
		browser:  &fakeBrowser{},
		producer: &memProducer{},
	}
	f.svc = NewService(&Deps{
		Apps:      f.apps,
		Jobs:      f.jobs,
		Users:     f.users,
		CVs:       f.cvs,
		EmailLogs: f.logs,
		Quota:     f.quota,
		Mailbox:   f.mailbox,
		Browser:   f.browser,
		Producer:  f.producer,
	})
	return f
}

func draftApp() *domain.Application {
	return &domain.Application{
		ID:          "app-1",
		UserID:      "user-1",
		JobID:       "job-1",
		Status:      domain.StatusDraft,
		JobTitle:    "Platform Engineer",
		CompanyName: "Acme",
	}
}

func emailJob() *domain.Job {
	return &domain.Job{
		ID:               "job-1",
		UserID:           "user-1",
		Title:            "Platform Engineer",
		CompanyName:      "Acme",
		ApplicationEmail: "jobs@acme.example",
	}
}

func browserJob(source string) *domain.Job {
	return &domain.Job{
		ID:             "job-1",
		UserID:         "user-1",
		Title:          "Platform Engineer",
		CompanyName:    "Acme",
		ApplicationURL: "https://www.apply.acme.example/jobs/123",
		Source:         source,
	}
}

func testUser() *domain.User {
	return &domain.User{
		ID:    "user-1",
		Email: "dana.smith@example.com",
		Profile: domain.UserProfile{
			FirstName: "Dana",
			LastName:  "Smith",
			Location:  "Berlin, BE",
		},
		PlanID: domain.PlanFree,
	}
}

// ===== Channel routing =====

func TestSubmitEmailChannel(t *testing.T) {
	f := newFixture(draftApp(), emailJob(), testUser())
	f.cvs.cv = &domain.ParsedCV{
		ID:           "cv-1",
		PersonalInfo: domain.PersonalInfo{Name: "Dana Smith", Email: "dana@example.com"},
		Skills:       domain.SkillSet{Flat: []string{"go"}},
	}
	longText := make([]byte, 400)
	for i := range longText {
		longText[i] = 'a'
	}
	f.cvs.letter = &domain.CoverLetter{ID: "letter-1", FullText: string(longText)}

	result, err := f.svc.Submit(context.Background(), &in.SubmitRequest{
		UserID:        "user-1",
		ApplicationID: "app-1",
		CVID:          "cv-1",
		CoverLetterID: "letter-1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Channel != in.ChannelEmailPath {
		t.Fatalf("channel = %s, want email", result.Channel)
	}
	if result.Status != domain.StatusApplied {
		t.Fatalf("status = %s, want applied", result.Status)
	}
	if result.ThreadID != "thread-1" {
		t.Fatalf("thread id = %s", result.ThreadID)
	}

	app := f.apps.apps["app-1"]
	if app.Status != domain.StatusApplied || app.EmailThreadID != "thread-1" {
		t.Fatalf("application not settled: %+v", app)
	}
	if !app.EmailMonitoringEnabled {
		t.Fatal("email monitoring not enabled after email submission")
	}
	if len(app.Communications) != 1 || app.Communications[0].Direction != domain.DirectionOutbound {
		t.Fatalf("outbound communication not recorded: %+v", app.Communications)
	}
	if len(f.logs.logs) != 1 || f.logs.logs[0].Status != domain.EmailSent {
		t.Fatalf("email log = %+v", f.logs.logs)
	}
	if len(f.mailbox.sent) != 1 || len(f.mailbox.sent[0].Attachments) != 1 {
		t.Fatal("cv attachment missing from outbound mail")
	}
	if f.quota.tracked != 1 || f.quota.released != 0 {
		t.Fatalf("quota tracked=%d released=%d", f.quota.tracked, f.quota.released)
	}
}

func TestSubmitEmailFailureReleasesQuota(t *testing.T) {
	f := newFixture(draftApp(), emailJob(), testUser())
	f.cvs.cv = &domain.ParsedCV{ID: "cv-1"}
	f.cvs.letter = &domain.CoverLetter{ID: "letter-1", FullText: "short"}
	f.mailbox.sendErr = errors.New("smtp refused")

	_, err := f.svc.Submit(context.Background(), &in.SubmitRequest{
		UserID:        "user-1",
		ApplicationID: "app-1",
		CVID:          "cv-1",
		CoverLetterID: "letter-1",
	})
	if err == nil {
		t.Fatal("expected send failure")
	}
	if f.quota.released != 1 {
		t.Fatalf("released = %d, want 1", f.quota.released)
	}
	if len(f.logs.logs) != 1 || f.logs.logs[0].Status != domain.EmailFailed {
		t.Fatalf("failure not logged: %+v", f.logs.logs)
	}
}

func TestSubmitBrowserStartedSchedulesPoll(t *testing.T) {
	f := newFixture(draftApp(), browserJob("linkedin"), testUser())
	f.browser.startResp = &out.StartResponse{Status: out.AutomationStarted}

	result, err := f.svc.Submit(context.Background(), &in.SubmitRequest{
		UserID:        "user-1",
		ApplicationID: "app-1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Channel != in.ChannelBrowserPath || result.Status != domain.StatusProcessing {
		t.Fatalf("result = %+v", result)
	}
	if result.SessionID == "" {
		t.Fatal("session id missing")
	}
	if id, ok := applicationIDFromSession(result.SessionID); !ok || id != "app-1" {
		t.Fatalf("session id does not embed application id: %s", result.SessionID)
	}
	if len(f.producer.polls) != 1 || f.producer.polls[0].Attempt != 1 {
		t.Fatalf("polls = %+v", f.producer.polls)
	}
	if f.apps.apps["app-1"].Status != domain.StatusProcessing {
		t.Fatalf("status = %s", f.apps.apps["app-1"].Status)
	}
	if f.apps.apps["app-1"].ReservedUsageType != string(domain.UsageManualApplication) {
		t.Fatalf("reservation marker = %q, want manual_application", f.apps.apps["app-1"].ReservedUsageType)
	}
}

func TestSubmitBrowserCompleted(t *testing.T) {
	user := testUser()
	user.PlanID = domain.PlanPremiumMonthly
	f := newFixture(draftApp(), browserJob("linkedin"), user)
	f.browser.startResp = &out.StartResponse{Status: out.AutomationCompleted}

	result, err := f.svc.Submit(context.Background(), &in.SubmitRequest{
		UserID:        "user-1",
		ApplicationID: "app-1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Status != domain.StatusApplied {
		t.Fatalf("status = %s", result.Status)
	}

	app := f.apps.apps["app-1"]
	if app.ApplicationDomain != "apply.acme.example" {
		t.Fatalf("application domain = %s", app.ApplicationDomain)
	}
	if !app.EmailMonitoringEnabled {
		t.Fatal("monitoring disabled for a paid plan")
	}
	if len(f.producer.probes) != 1 {
		t.Fatalf("probes = %d, want the initial probe", len(f.producer.probes))
	}
	if f.quota.tracked != 1 || f.quota.released != 0 {
		t.Fatalf("quota tracked=%d released=%d", f.quota.tracked, f.quota.released)
	}
	if app.ReservedUsageType != "" {
		t.Fatalf("reservation marker not cleared after completion: %q", app.ReservedUsageType)
	}
}

func TestSubmitLoginWalledSourceDeletesHard(t *testing.T) {
	f := newFixture(draftApp(), browserJob("remoteok"), testUser())
	f.browser.startResp = &out.StartResponse{Status: out.AutomationLoginRequired}

	result, err := f.svc.Submit(context.Background(), &in.SubmitRequest{
		UserID:        "user-1",
		ApplicationID: "app-1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !result.JobDeleted {
		t.Fatal("JobDeleted not reported")
	}
	if len(f.apps.hardDeleted) != 1 || f.apps.hardDeleted[0] != "app-1" {
		t.Fatalf("application not hard deleted: %v", f.apps.hardDeleted)
	}
	if len(f.jobs.hardDeleted) != 1 || f.jobs.hardDeleted[0] != "job-1" {
		t.Fatalf("job not hard deleted: %v", f.jobs.hardDeleted)
	}
	if f.quota.released != 1 {
		t.Fatalf("quota not released after hard delete: released=%d", f.quota.released)
	}
}

func TestSubmitLoginWallOtherSourceKeepsApplication(t *testing.T) {
	f := newFixture(draftApp(), browserJob("linkedin"), testUser())
	f.browser.startResp = &out.StartResponse{Status: out.AutomationNeedsAuthentication}

	result, err := f.svc.Submit(context.Background(), &in.SubmitRequest{
		UserID:        "user-1",
		ApplicationID: "app-1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Status != domain.StatusNeedsAuthentication {
		t.Fatalf("status = %s", result.Status)
	}
	if len(f.apps.hardDeleted) != 0 {
		t.Fatal("application deleted for a non login-walled source")
	}
	if f.quota.tracked != 1 || f.quota.released != 1 {
		t.Fatalf("quota tracked=%d released=%d, want the reservation handed back", f.quota.tracked, f.quota.released)
	}
}

func TestSubmitBrowserHandoffReleasesQuota(t *testing.T) {
	// Sessions that end without an actual submission hand the slot back and
	// clear the reservation marker.
	cases := []struct {
		name   string
		worker string
		want   domain.ApplicationStatus
	}{
		{"needs authentication", out.AutomationNeedsAuthentication, domain.StatusNeedsAuthentication},
		{"manual action required", out.AutomationManualActionRequired, domain.StatusManualActionRequired},
		{"pending verification", out.AutomationPendingVerification, domain.StatusPendingVerification},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(draftApp(), browserJob("linkedin"), testUser())
			f.browser.startResp = &out.StartResponse{Status: tc.worker}

			result, err := f.svc.Submit(context.Background(), &in.SubmitRequest{
				UserID:        "user-1",
				ApplicationID: "app-1",
			})
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if result.Status != tc.want {
				t.Fatalf("status = %s, want %s", result.Status, tc.want)
			}
			if f.quota.tracked != 1 || f.quota.released != 1 {
				t.Fatalf("quota tracked=%d released=%d, want 1/1", f.quota.tracked, f.quota.released)
			}
			if f.apps.apps["app-1"].ReservedUsageType != "" {
				t.Fatalf("reservation marker not cleared: %q", f.apps.apps["app-1"].ReservedUsageType)
			}
		})
	}
}

func TestSubmitPendingVerificationStoresDomain(t *testing.T) {
	f := newFixture(draftApp(), browserJob("linkedin"), testUser())
	f.browser.startResp = &out.StartResponse{
		Status:             out.AutomationPendingVerification,
		VerificationDomain: "portal.acme.example",
	}

	result, err := f.svc.Submit(context.Background(), &in.SubmitRequest{
		UserID:        "user-1",
		ApplicationID: "app-1",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Status != domain.StatusPendingVerification {
		t.Fatalf("status = %s", result.Status)
	}
	if f.apps.apps["app-1"].VerificationPortalDomain != "portal.acme.example" {
		t.Fatalf("portal domain = %s", f.apps.apps["app-1"].VerificationPortalDomain)
	}
}

func TestSubmitTerminalApplicationRejected(t *testing.T) {
	app := draftApp()
	app.Status = domain.StatusRejected
	f := newFixture(app, emailJob(), testUser())

	_, err := f.svc.Submit(context.Background(), &in.SubmitRequest{
		UserID:        "user-1",
		ApplicationID: "app-1",
	})
	if !apperr.IsCode(err, apperr.CodeInvariant) {
		t.Fatalf("err = %v, want invariant violation", err)
	}
	if f.quota.tracked != 0 {
		t.Fatal("quota reserved for a terminal application")
	}
}

func TestSubmitRedeliveredJobRejected(t *testing.T) {
	// A stream entry redelivered after the application already went out must
	// not send a second email or reserve quota again.
	for _, status := range []domain.ApplicationStatus{domain.StatusApplied, domain.StatusProcessing} {
		t.Run(string(status), func(t *testing.T) {
			app := draftApp()
			app.Status = status
			f := newFixture(app, emailJob(), testUser())
			f.cvs.cv = &domain.ParsedCV{ID: "cv-1"}
			f.cvs.letter = &domain.CoverLetter{ID: "letter-1", FullText: "short"}

			_, err := f.svc.Submit(context.Background(), &in.SubmitRequest{
				UserID:        "user-1",
				ApplicationID: "app-1",
				CVID:          "cv-1",
				CoverLetterID: "letter-1",
			})
			if !apperr.IsCode(err, apperr.CodeInvariant) {
				t.Fatalf("err = %v, want invariant violation", err)
			}
			if f.quota.tracked != 0 {
				t.Fatalf("quota tracked %d times on redelivery", f.quota.tracked)
			}
			if len(f.mailbox.sent) != 0 {
				t.Fatal("redelivered job sent mail again")
			}
		})
	}
}

func TestSubmitForwardsIdempotencyKey(t *testing.T) {
	f := newFixture(draftApp(), browserJob("linkedin"), testUser())
	f.browser.startResp = &out.StartResponse{Status: out.AutomationCompleted}

	if _, err := f.svc.Submit(context.Background(), &in.SubmitRequest{
		UserID:         "user-1",
		ApplicationID:  "app-1",
		IdempotencyKey: "req-abc",
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(f.quota.keys) != 1 || f.quota.keys[0] != "req-abc" {
		t.Fatalf("idempotency keys = %v, want [req-abc]", f.quota.keys)
	}
}

func TestSubmitStoresNewPortalCredentials(t *testing.T) {
	f := newFixture(draftApp(), browserJob("linkedin"), testUser())
	f.browser.startResp = &out.StartResponse{
		Status: out.AutomationCompleted,
		NewCredentials: &out.NewPortalCredentials{
			PortalName: "Acme Careers",
			Domain:     "apply.acme.example",
			Username:   "dana.smith@example.com",
			Password:   "generated",
		},
	}

	if _, err := f.svc.Submit(context.Background(), &in.SubmitRequest{
		UserID:        "user-1",
		ApplicationID: "app-1",
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(f.users.creds) != 1 || f.users.creds[0].Domain != "apply.acme.example" {
		t.Fatalf("credentials = %+v", f.users.creds)
	}
}

// ===== Polling =====

func TestPollSessionStillRunningRepolls(t *testing.T) {
	app := draftApp()
	app.Status = domain.StatusProcessing
	f := newFixture(app, browserJob("linkedin"), testUser())
	f.browser.pollResp = &out.StatusResponse{Status: out.AutomationStarted}

	ctx := WithPollAttempt(context.Background(), 3)
	result, err := f.svc.PollSession(ctx, "user-1", "app-1", "app-1:sess")
	if err != nil {
		t.Fatalf("PollSession: %v", err)
	}
	if result.Status != domain.StatusProcessing {
		t.Fatalf("status = %s", result.Status)
	}
	if len(f.producer.polls) != 1 || f.producer.polls[0].Attempt != 4 {
		t.Fatalf("polls = %+v", f.producer.polls)
	}
}

func TestPollSessionGivesUpAfterMaxAttempts(t *testing.T) {
	app := draftApp()
	app.Status = domain.StatusProcessing
	app.ReservedUsageType = string(domain.UsageManualApplication)
	f := newFixture(app, browserJob("linkedin"), testUser())
	f.browser.pollResp = &out.StatusResponse{Status: out.AutomationStarted}

	ctx := WithPollAttempt(context.Background(), maxPollAttempts)
	result, err := f.svc.PollSession(ctx, "user-1", "app-1", "app-1:sess")
	if err != nil {
		t.Fatalf("PollSession: %v", err)
	}
	if result.Status != domain.StatusManualActionRequired {
		t.Fatalf("status = %s, want manual_action_required", result.Status)
	}
	if len(f.browser.cancelled) != 1 {
		t.Fatal("stale session not cancelled")
	}
	if len(f.producer.polls) != 0 {
		t.Fatal("poll republished after giving up")
	}
	if f.quota.released != 1 {
		t.Fatalf("released = %d, want the open reservation handed back", f.quota.released)
	}
	if f.apps.apps["app-1"].ReservedUsageType != "" {
		t.Fatalf("reservation marker not cleared: %q", f.apps.apps["app-1"].ReservedUsageType)
	}
}

func TestPollSessionHandoffReleasesReservation(t *testing.T) {
	// An asynchronous settle carries the reservation recorded at start time
	// and hands it back when the session ends without a submission.
	app := draftApp()
	app.Status = domain.StatusProcessing
	app.ReservedUsageType = string(domain.UsageManualApplication)
	f := newFixture(app, browserJob("linkedin"), testUser())
	f.browser.pollResp = &out.StatusResponse{Status: out.AutomationNeedsAuthentication}

	result, err := f.svc.PollSession(context.Background(), "user-1", "app-1", "app-1:sess")
	if err != nil {
		t.Fatalf("PollSession: %v", err)
	}
	if result.Status != domain.StatusNeedsAuthentication {
		t.Fatalf("status = %s", result.Status)
	}
	if f.quota.released != 1 {
		t.Fatalf("released = %d, want 1", f.quota.released)
	}
	if f.apps.apps["app-1"].ReservedUsageType != "" {
		t.Fatalf("reservation marker not cleared: %q", f.apps.apps["app-1"].ReservedUsageType)
	}
}

func TestPollSessionAlreadySettled(t *testing.T) {
	app := draftApp()
	app.Status = domain.StatusApplied
	f := newFixture(app, browserJob("linkedin"), testUser())

	result, err := f.svc.PollSession(context.Background(), "user-1", "app-1", "app-1:sess")
	if err != nil {
		t.Fatalf("PollSession: %v", err)
	}
	if result.Status != domain.StatusApplied {
		t.Fatalf("status = %s", result.Status)
	}
}

// ===== Callbacks =====

func TestHandleWorkerCallbackSettles(t *testing.T) {
	app := draftApp()
	app.Status = domain.StatusProcessing
	f := newFixture(app, browserJob("linkedin"), testUser())

	err := f.svc.HandleWorkerCallback(context.Background(), "app-1:abcd", out.AutomationCompleted,
		map[string]any{
			"new_credentials": map[string]any{
				"domain":   "apply.acme.example",
				"username": "dana",
				"password": "pw",
			},
		})
	if err != nil {
		t.Fatalf("HandleWorkerCallback: %v", err)
	}
	if f.apps.apps["app-1"].Status != domain.StatusApplied {
		t.Fatalf("status = %s", f.apps.apps["app-1"].Status)
	}
	if len(f.users.creds) != 1 {
		t.Fatal("callback credentials not stored")
	}
}

func TestHandleWorkerCallbackIgnoresSettledSession(t *testing.T) {
	// A late or duplicate callback after a poll already settled the session
	// must not re-patch the application or release quota twice.
	app := draftApp()
	app.Status = domain.StatusNeedsAuthentication
	f := newFixture(app, browserJob("linkedin"), testUser())

	err := f.svc.HandleWorkerCallback(context.Background(), "app-1:abcd", out.AutomationNeedsAuthentication, nil)
	if err != nil {
		t.Fatalf("HandleWorkerCallback: %v", err)
	}
	if f.quota.released != 0 {
		t.Fatalf("released = %d, want 0 for an already settled session", f.quota.released)
	}
	if f.apps.apps["app-1"].Status != domain.StatusNeedsAuthentication {
		t.Fatalf("status changed: %s", f.apps.apps["app-1"].Status)
	}
}

func TestHandleWorkerCallbackMalformedSession(t *testing.T) {
	f := newFixture(draftApp(), browserJob("linkedin"), testUser())
	err := f.svc.HandleWorkerCallback(context.Background(), "no-separator", out.AutomationCompleted, nil)
	if !apperr.IsCode(err, apperr.CodeInvariant) {
		t.Fatalf("err = %v, want invariant violation", err)
	}
}

// ===== Helpers =====

func TestResolveName(t *testing.T) {
	cases := []struct {
		name  string
		user  *domain.User
		cv    *domain.ParsedCV
		first string
		last  string
	}{
		{
			name:  "profile wins",
			user:  &domain.User{Profile: domain.UserProfile{FirstName: "Dana", LastName: "Smith"}},
			cv:    &domain.ParsedCV{PersonalInfo: domain.PersonalInfo{Name: "Other Person"}},
			first: "Dana", last: "Smith",
		},
		{
			name:  "cv name split",
			user:  &domain.User{Email: "x@example.com"},
			cv:    &domain.ParsedCV{PersonalInfo: domain.PersonalInfo{Name: "Dana Maria Smith"}},
			first: "Dana", last: "Maria Smith",
		},
		{
			name:  "email local part",
			user:  &domain.User{Email: "dana.smith@example.com"},
			first: "Dana", last: "Smith",
		},
		{
			name:  "underscored local part",
			user:  &domain.User{Email: "dana_smith@example.com"},
			first: "Dana", last: "Smith",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first, last := resolveName(tc.user, tc.cv)
			if first != tc.first || last != tc.last {
				t.Fatalf("resolveName = %q %q, want %q %q", first, last, tc.first, tc.last)
			}
		})
	}
}

func TestSplitLocation(t *testing.T) {
	city, state := splitLocation("Berlin, BE")
	if city != "Berlin" || state != "BE" {
		t.Fatalf("splitLocation = %q %q", city, state)
	}
	city, state = splitLocation("Remote")
	if city != "Remote" || state != "" {
		t.Fatalf("splitLocation = %q %q", city, state)
	}
}

func TestHostOf(t *testing.T) {
	cases := map[string]string{
		"https://www.apply.acme.example/jobs/123": "apply.acme.example",
		"https://jobs.example.org":                "jobs.example.org",
		"not a url":                               "not a url",
	}
	for raw, want := range cases {
		if got := hostOf(raw); got != want {
			t.Fatalf("hostOf(%q) = %q, want %q", raw, got, want)
		}
	}
}
