package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"apply_server/core/domain"
	"apply_server/core/port/in"
	"apply_server/core/port/out"
	"apply_server/pkg/apperr"
)

// ===== Fakes =====

type memApps struct {
	apps    map[string]*domain.Application
	patches []*out.ApplicationPatch
}

func newMemApps(apps ...*domain.Application) *memApps {
	m := &memApps{apps: make(map[string]*domain.Application)}
	for _, a := range apps {
		m.apps[a.ID] = a
	}
	return m
}

func (m *memApps) Create(ctx context.Context, app *domain.Application) (*domain.Application, error) {
	m.apps[app.ID] = app
	return app, nil
}

func (m *memApps) FindByID(ctx context.Context, userID, id string) (*domain.Application, error) {
	app, ok := m.apps[id]
	if !ok || app.UserID != userID {
		return nil, apperr.NotFound("application")
	}
	cp := *app
	return &cp, nil
}

func (m *memApps) FindByIDAny(ctx context.Context, id string) (*domain.Application, error) {
	app, ok := m.apps[id]
	if !ok {
		return nil, apperr.NotFound("application")
	}
	cp := *app
	return &cp, nil
}

func (m *memApps) List(ctx context.Context, userID string, filter *domain.ApplicationFilter, page, pageSize int, sort domain.ApplicationSort) (*domain.ApplicationPage, error) {
	return &domain.ApplicationPage{}, nil
}

func (m *memApps) Patch(ctx context.Context, userID, id string, patch *out.ApplicationPatch) (*domain.Application, error) {
	app, ok := m.apps[id]
	if !ok {
		return nil, apperr.NotFound("application")
	}
	m.patches = append(m.patches, patch)
	if patch.LastResponseCheck != nil {
		app.LastResponseCheck = patch.LastResponseCheck
	}
	if patch.IncResponseCheckCount {
		app.ResponseCheckCount++
	}
	cp := *app
	return &cp, nil
}

func (m *memApps) CompleteTask(ctx context.Context, userID, id string, taskIndex int, at time.Time) error {
	return nil
}

func (m *memApps) SoftDelete(ctx context.Context, userID, id string) error { return nil }

func (m *memApps) HardDelete(ctx context.Context, userID, id string) error { return nil }

func (m *memApps) FollowUpsNeeded(ctx context.Context, userID string, now time.Time) ([]*domain.Application, error) {
	return nil, nil
}

func (m *memApps) UpcomingInterviews(ctx context.Context, userID string, now time.Time, days int) ([]*domain.Application, error) {
	return nil, nil
}

func (m *memApps) ListMonitored(ctx context.Context, limit int) ([]*domain.Application, error) {
	var apps []*domain.Application
	for _, a := range m.apps {
		if a.EmailMonitoringEnabled {
			apps = append(apps, a)
		}
	}
	return apps, nil
}

func (m *memApps) ListByStatus(ctx context.Context, status domain.ApplicationStatus, limit int) ([]*domain.Application, error) {
	var apps []*domain.Application
	for _, a := range m.apps {
		if a.Status == status {
			apps = append(apps, a)
		}
	}
	return apps, nil
}

func (m *memApps) CountsByStatus(ctx context.Context, userID string) (map[domain.ApplicationStatus]int64, error) {
	return nil, nil
}

func (m *memApps) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	return 0, nil
}

func (m *memApps) CountWithResponse(ctx context.Context, userID string) (int64, error) {
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
	searchMsgs []out.MailMessage
	threadMsgs []out.MailMessage
	bodies     map[string]*out.MailBody
	searchErr  error

	searched bool
	queries  []string
}

func (f *fakeMailbox) Send(ctx context.Context, userID string, msg *out.OutgoingMessage) (*out.SendResult, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeMailbox) Search(ctx context.Context, userID, query string, maxResults int) ([]out.MailMessage, error) {
	f.searched = true
	f.queries = append(f.queries, query)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchMsgs, nil
}

func (f *fakeMailbox) FetchBody(ctx context.Context, userID, messageID string) (*out.MailBody, error) {
	if body, ok := f.bodies[messageID]; ok {
		return body, nil
	}
	return nil, apperr.NotFound("body")
}

func (f *fakeMailbox) ListThread(ctx context.Context, userID, threadID string) ([]out.MailMessage, error) {
	return f.threadMsgs, nil
}

type fakeBrowser struct {
	checkResp *out.CheckStatusResponse
	checkErr  error
	checked   bool
}

func (f *fakeBrowser) Start(ctx context.Context, req *out.StartRequest) (*out.StartResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBrowser) PollStatus(ctx context.Context, sessionID string) (*out.StatusResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBrowser) CheckStatus(ctx context.Context, url string) (*out.CheckStatusResponse, error) {
	f.checked = true
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	if f.checkResp == nil {
		return &out.CheckStatusResponse{}, nil
	}
	return f.checkResp, nil
}

func (f *fakeBrowser) Cancel(ctx context.Context, sessionID string) error { return nil }

func (f *fakeBrowser) Health(ctx context.Context) error { return nil }

// fakeClassifier returns one canned analysis per message subject.
type fakeClassifier struct {
	results map[string]*domain.AnalysisResult
	calls   int
}

func (f *fakeClassifier) Analyze(ctx context.Context, req *in.AnalyzeRequest) (*domain.AnalysisResult, error) {
	f.calls++
	if result, ok := f.results[req.Subject]; ok {
		return result, nil
	}
	return &domain.AnalysisResult{Category: domain.CategoryUnknown}, nil
}

// fakeLifecycle records transitions and communications.
type fakeLifecycle struct {
	statuses []domain.ApplicationStatus
	comms    []domain.Communication
	reasons  []string
}

func (f *fakeLifecycle) Get(ctx context.Context, userID, id string) (*domain.Application, error) {
	return nil, apperr.NotFound("application")
}

func (f *fakeLifecycle) List(ctx context.Context, userID string, filter *domain.ApplicationFilter, page, pageSize int, sort domain.ApplicationSort) (*domain.ApplicationPage, error) {
	return nil, nil
}

func (f *fakeLifecycle) Create(ctx context.Context, userID string, req *in.CreateApplicationRequest) (*domain.Application, error) {
	return nil, nil
}

func (f *fakeLifecycle) SoftDelete(ctx context.Context, userID, id, idemKey string) error { return nil }

func (f *fakeLifecycle) UpdateStatus(ctx context.Context, userID, id string, newStatus domain.ApplicationStatus, reason, idemKey string) (*domain.Application, error) {
	f.statuses = append(f.statuses, newStatus)
	f.reasons = append(f.reasons, reason)
	return &domain.Application{ID: id, UserID: userID, Status: newStatus}, nil
}

func (f *fakeLifecycle) ApplyClassifierResult(ctx context.Context, userID, id string, result *domain.AnalysisResult, sourceMessageID string) (*domain.Application, error) {
	return nil, nil
}

func (f *fakeLifecycle) ScheduleInterview(ctx context.Context, userID, id string, iv *domain.Interview, idemKey string) error {
	return nil
}

func (f *fakeLifecycle) SetFollowUp(ctx context.Context, userID, id string, at time.Time, idemKey string) error {
	return nil
}

func (f *fakeLifecycle) AddCommunication(ctx context.Context, userID, id string, comm *domain.Communication, idemKey string) error {
	f.comms = append(f.comms, *comm)
	return nil
}

func (f *fakeLifecycle) AddDocument(ctx context.Context, userID, id string, doc *domain.Document, idemKey string) error {
	return nil
}

func (f *fakeLifecycle) AddTask(ctx context.Context, userID, id string, task *domain.Task, idemKey string) error {
	return nil
}

func (f *fakeLifecycle) CompleteTask(ctx context.Context, userID, id string, taskIndex int, idemKey string) error {
	return nil
}

func (f *fakeLifecycle) UpdateNotes(ctx context.Context, userID, id, notes, idemKey string) error {
	return nil
}

func (f *fakeLifecycle) UpdatePriority(ctx context.Context, userID, id string, priority domain.ApplicationPriority, idemKey string) error {
	return nil
}

func (f *fakeLifecycle) FollowUpsNeeded(ctx context.Context, userID string) ([]*domain.Application, error) {
	return nil, nil
}

func (f *fakeLifecycle) UpcomingInterviews(ctx context.Context, userID string, days int) ([]*domain.Application, error) {
	return nil, nil
}

func (f *fakeLifecycle) Stats(ctx context.Context, userID string) (*in.ApplicationStats, error) {
	return nil, nil
}

type memProducer struct {
	probes        []*out.ProbeJob
	notifications []*out.NotificationJob
}

func (m *memProducer) PublishSubmission(ctx context.Context, job *out.SubmissionJob) error {
	return nil
}

func (m *memProducer) PublishSubmissionPoll(ctx context.Context, job *out.SubmissionPollJob) error {
	return nil
}

func (m *memProducer) PublishProbe(ctx context.Context, job *out.ProbeJob) error {
	m.probes = append(m.probes, job)
	return nil
}

func (m *memProducer) PublishVerification(ctx context.Context, job *out.VerificationJob) error {
	return nil
}

func (m *memProducer) PublishNotification(ctx context.Context, job *out.NotificationJob) error {
	m.notifications = append(m.notifications, job)
	return nil
}

func (m *memProducer) PublishUsageReset(ctx context.Context, job *out.UsageResetJob) error {
	return nil
}

func (m *memProducer) PublishJobExpiry(ctx context.Context, job *out.JobExpiryJob) error {
	return nil
}

// ===== Fixture =====

type fixture struct {
	svc        *Service
	apps       *memApps
	users      *fakeUsers
	mailbox    *fakeMailbox
	browser    *fakeBrowser
	classifier *fakeClassifier
	lifecycle  *fakeLifecycle
	producer   *memProducer
}

func newFixture(apps ...*domain.Application) *fixture {
	f := &fixture{
		apps:       newMemApps(apps...),
		users:      &fakeUsers{user: mailboxUser()},
		mailbox:    &fakeMailbox{bodies: map[string]*out.MailBody{}},
		browser:    &fakeBrowser{},
		classifier: &fakeClassifier{results: map[string]*domain.AnalysisResult{}},
		lifecycle:  &fakeLifecycle{},
		producer:   &memProducer{},
	}
	f.svc = NewService(&Deps{
		Apps:       f.apps,
		Lifecycle:  f.lifecycle,
		Users:      f.users,
		Mailbox:    f.mailbox,
		Browser:    f.browser,
		Classifier: f.classifier,
		Producer:   f.producer,
	})
	return f
}

func mailboxUser() *domain.User {
	return &domain.User{
		ID: "user-1",
		Mailbox: &domain.MailboxCredentials{
			Provider:     "gmail",
			EmailAddress: "dana@gmail.example",
			RefreshToken: "refresh",
		},
	}
}

func monitoredApp() *domain.Application {
	applied := time.Now().Add(-7 * 24 * time.Hour)
	return &domain.Application{
		ID:                     "app-1",
		UserID:                 "user-1",
		Status:                 domain.StatusApplied,
		ApplicationURL:         "https://apply.acme.example/jobs/123",
		ApplicationDomain:      "acme.example",
		AppliedDate:            &applied,
		EmailMonitoringEnabled: true,
	}
}

func analysis(category domain.EmailCategory, confidence float64) *domain.AnalysisResult {
	return &domain.AnalysisResult{Category: category, Confidence: confidence}
}

// ===== Fusion =====

func TestFuseSignalsPrecedence(t *testing.T) {
	cases := []struct {
		name    string
		signals []in.ProbeSignal
		want    domain.SignalKind
	}{
		{
			name: "rejected beats offer",
			signals: []in.ProbeSignal{
				{Kind: domain.SignalOffer},
				{Kind: domain.SignalRejected},
			},
			want: domain.SignalRejected,
		},
		{
			name: "interview beats in_review and applied",
			signals: []in.ProbeSignal{
				{Kind: domain.SignalApplied},
				{Kind: domain.SignalInterview},
				{Kind: domain.SignalInReview},
			},
			want: domain.SignalInterview,
		},
		{
			name:    "single signal wins",
			signals: []in.ProbeSignal{{Kind: domain.SignalInReview}},
			want:    domain.SignalInReview,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fused := fuseSignals(tc.signals)
			if fused == nil || *fused != tc.want {
				t.Fatalf("fused = %v, want %s", fused, tc.want)
			}
		})
	}

	if fused := fuseSignals(nil); fused != nil {
		t.Fatalf("fused = %v for no signals, want nil", *fused)
	}
}

// ===== Probe =====

func TestProbeFusesPortalAndMailbox(t *testing.T) {
	f := newFixture(monitoredApp())
	f.browser.checkResp = &out.CheckStatusResponse{
		Success:        true,
		Status:         out.CheckInReview,
		MatchedKeyword: "under review",
	}
	f.mailbox.searchMsgs = []out.MailMessage{{
		MessageID:    "msg-1",
		ThreadID:     "thread-9",
		Subject:      "Interview invitation",
		Snippet:      "We would like to invite you",
		From:         out.MailAddress{Email: "recruiting@acme.example"},
		InternalDate: time.Now(),
	}}
	f.classifier.results["Interview invitation"] = analysis(domain.CategoryInterviewInvitation, 0.9)

	result, err := f.svc.Probe(context.Background(), "user-1", "app-1")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if len(result.Signals) != 2 {
		t.Fatalf("signals = %d, want 2 (portal + mailbox)", len(result.Signals))
	}
	if result.Fused == nil || *result.Fused != domain.SignalInterview {
		t.Fatalf("fused = %v, want %s", result.Fused, domain.SignalInterview)
	}
	if result.NewStatus == nil || *result.NewStatus != domain.StatusInterviewScheduled {
		t.Fatalf("new status = %v, want %s", result.NewStatus, domain.StatusInterviewScheduled)
	}
	if result.NewMessages != 1 {
		t.Fatalf("new messages = %d, want 1", result.NewMessages)
	}

	if len(f.lifecycle.statuses) != 1 || f.lifecycle.statuses[0] != domain.StatusInterviewScheduled {
		t.Fatalf("transitions = %v", f.lifecycle.statuses)
	}
	if len(f.lifecycle.comms) != 1 || f.lifecycle.comms[0].MessageID != "msg-1" {
		t.Fatalf("communications = %+v", f.lifecycle.comms)
	}
	if f.lifecycle.comms[0].Direction != domain.DirectionInbound {
		t.Fatalf("direction = %s, want inbound", f.lifecycle.comms[0].Direction)
	}

	var bookkept bool
	for _, p := range f.apps.patches {
		if p.LastResponseCheck != nil && p.IncResponseCheckCount {
			bookkept = true
		}
	}
	if !bookkept {
		t.Fatal("probe bookkeeping patch missing")
	}
}

func TestProbeTerminalShortCircuits(t *testing.T) {
	app := monitoredApp()
	app.Status = domain.StatusRejected
	f := newFixture(app)

	result, err := f.svc.Probe(context.Background(), "user-1", "app-1")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(result.Signals) != 0 || result.Fused != nil {
		t.Fatalf("terminal application probed: %+v", result)
	}
	if f.browser.checked || f.mailbox.searched {
		t.Fatal("terminal application must not reach the probe sources")
	}
}

func TestProbeDeduplicatesKnownMessages(t *testing.T) {
	app := monitoredApp()
	app.Communications = []domain.Communication{{MessageID: "msg-1"}}
	f := newFixture(app)
	f.mailbox.searchMsgs = []out.MailMessage{{
		MessageID:    "msg-1",
		Subject:      "Interview invitation",
		From:         out.MailAddress{Email: "recruiting@acme.example"},
		InternalDate: time.Now(),
	}}

	result, err := f.svc.Probe(context.Background(), "user-1", "app-1")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.NewMessages != 0 || len(result.Signals) != 0 {
		t.Fatalf("known message re-processed: %+v", result)
	}
	if f.classifier.calls != 0 {
		t.Fatalf("classifier called %d times for a known message", f.classifier.calls)
	}
	if len(f.lifecycle.comms) != 0 {
		t.Fatalf("known message re-recorded: %+v", f.lifecycle.comms)
	}
}

func TestProbeLowConfidenceRecordsWithoutTransition(t *testing.T) {
	f := newFixture(monitoredApp())
	f.mailbox.searchMsgs = []out.MailMessage{{
		MessageID:    "msg-2",
		Subject:      "Your application",
		Snippet:      "ambiguous update",
		From:         out.MailAddress{Email: "hr@acme.example"},
		InternalDate: time.Now(),
	}}
	f.classifier.results["Your application"] = analysis(domain.CategoryRejection,
		domain.TransitionConfidenceGate-0.01)

	result, err := f.svc.Probe(context.Background(), "user-1", "app-1")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if result.NewMessages != 1 {
		t.Fatalf("new messages = %d, want 1", result.NewMessages)
	}
	if len(result.Signals) != 0 || result.Fused != nil {
		t.Fatalf("below-gate classification produced signals: %+v", result.Signals)
	}
	if len(f.lifecycle.comms) != 1 {
		t.Fatalf("communication not recorded: %+v", f.lifecycle.comms)
	}
	if len(f.lifecycle.statuses) != 0 {
		t.Fatalf("below-gate classification transitioned: %v", f.lifecycle.statuses)
	}
}

func TestProbeThreadSkipsOwnOutbound(t *testing.T) {
	sentAt := time.Now().Add(-48 * time.Hour)
	app := monitoredApp()
	app.ApplicationDomain = ""
	app.ApplicationURL = ""
	app.RecipientEmail = ""
	app.EmailThreadID = "thread-1"
	app.LastEmailSentAt = &sentAt
	f := newFixture(app)
	f.mailbox.threadMsgs = []out.MailMessage{
		{
			MessageID:    "msg-out",
			ThreadID:     "thread-1",
			Subject:      "Application for Platform Engineer",
			From:         out.MailAddress{Email: "dana@gmail.example"},
			InternalDate: sentAt,
		},
		{
			MessageID:    "msg-reply",
			ThreadID:     "thread-1",
			Subject:      "Application received",
			Snippet:      "Thanks, we received your application",
			From:         out.MailAddress{Email: "hr@acme.example"},
			InternalDate: sentAt.Add(24 * time.Hour),
		},
	}
	f.classifier.results["Application received"] = analysis(domain.CategoryAcknowledgment, 0.9)

	result, err := f.svc.Probe(context.Background(), "user-1", "app-1")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if f.mailbox.searched {
		t.Fatal("search ran without a sender domain")
	}
	if f.classifier.calls != 1 {
		t.Fatalf("classifier calls = %d, want 1 (reply only)", f.classifier.calls)
	}
	if len(result.Signals) != 1 || result.Signals[0].Source != "thread" {
		t.Fatalf("signals = %+v, want one thread signal", result.Signals)
	}
	if result.NewStatus == nil || *result.NewStatus != domain.StatusUnderReview {
		t.Fatalf("new status = %v, want %s", result.NewStatus, domain.StatusUnderReview)
	}
}

// ===== Fused transition guards =====

func TestApplyFusedGuards(t *testing.T) {
	cases := []struct {
		name   string
		status domain.ApplicationStatus
		kind   domain.SignalKind
		want   *domain.ApplicationStatus
	}{
		{
			name:   "in_review only moves early stages",
			status: domain.StatusInterviewScheduled,
			kind:   domain.SignalInReview,
			want:   nil,
		},
		{
			name:   "applied only moves processing or submitted",
			status: domain.StatusUnderReview,
			kind:   domain.SignalApplied,
			want:   nil,
		},
		{
			name:   "applied settles a processing submission",
			status: domain.StatusProcessing,
			kind:   domain.SignalApplied,
			want:   statusPtr(domain.StatusApplied),
		},
		{
			name:   "rejection always lands",
			status: domain.StatusInterviewScheduled,
			kind:   domain.SignalRejected,
			want:   statusPtr(domain.StatusRejected),
		},
		{
			name:   "no-op when already at target",
			status: domain.StatusOfferReceived,
			kind:   domain.SignalOffer,
			want:   nil,
		},
		{
			name:   "terminal never moves",
			status: domain.StatusWithdrawn,
			kind:   domain.SignalOffer,
			want:   nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			app := &domain.Application{ID: "app-1", UserID: "user-1", Status: tc.status}
			got := f.svc.applyFused(context.Background(), app, tc.kind)
			if tc.want == nil {
				if got != nil {
					t.Fatalf("transitioned to %s, want none", *got)
				}
				if len(f.lifecycle.statuses) != 0 {
					t.Fatalf("lifecycle called: %v", f.lifecycle.statuses)
				}
				return
			}
			if got == nil || *got != *tc.want {
				t.Fatalf("new status = %v, want %s", got, *tc.want)
			}
		})
	}
}

func statusPtr(s domain.ApplicationStatus) *domain.ApplicationStatus { return &s }

// ===== Pure helpers =====

func TestProbeWindowStart(t *testing.T) {
	applied := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	app := &domain.Application{AppliedDate: &applied}
	if got := probeWindowStart(app); !got.Equal(applied) {
		t.Fatalf("window start = %v, want applied date", got)
	}

	got := probeWindowStart(&domain.Application{})
	want := time.Now().Add(-manualProbeWindow)
	if got.Before(want.Add(-time.Minute)) || got.After(want.Add(time.Minute)) {
		t.Fatalf("window start = %v, want about %v", got, want)
	}
}

func TestSearchDomain(t *testing.T) {
	cases := []struct {
		name string
		app  *domain.Application
		want string
	}{
		{
			name: "portal domain wins",
			app:  &domain.Application{ApplicationDomain: "acme.example", RecipientEmail: "jobs@other.example"},
			want: "acme.example",
		},
		{
			name: "falls back to recipient address domain",
			app:  &domain.Application{RecipientEmail: "jobs@acme.example"},
			want: "acme.example",
		},
		{
			name: "nothing to search on",
			app:  &domain.Application{},
			want: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := searchDomain(tc.app); got != tc.want {
				t.Fatalf("searchDomain = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestVerificationLink(t *testing.T) {
	text := "Click https://tracker.example/x then https://portal.acme.example/verify/abc123, thanks."
	if got := verificationLink(text, "portal.acme.example"); got != "https://portal.acme.example/verify/abc123" {
		t.Fatalf("link = %q", got)
	}
	if got := verificationLink(text, "unrelated.example"); got != "" {
		t.Fatalf("link = %q, want empty", got)
	}
	if got := verificationLink("no links here", "portal.acme.example"); got != "" {
		t.Fatalf("link = %q, want empty", got)
	}
}

// ===== Scheduling =====

func TestEnqueueDuePublishesOneProbePerApplication(t *testing.T) {
	second := monitoredApp()
	second.ID = "app-2"
	f := newFixture(monitoredApp(), second)

	count, err := f.svc.EnqueueDue(context.Background())
	if err != nil {
		t.Fatalf("EnqueueDue: %v", err)
	}
	if count != 2 || len(f.producer.probes) != 2 {
		t.Fatalf("enqueued = %d (%d published), want 2", count, len(f.producer.probes))
	}
	for _, job := range f.producer.probes {
		if job.UserID != "user-1" || !strings.HasPrefix(job.IdempotencyKey, "probe:") {
			t.Fatalf("probe job = %+v", job)
		}
	}
}

// ===== Verification sweep =====

func TestSweepVerificationsFollowsLink(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	app := monitoredApp()
	app.Status = domain.StatusPendingVerification
	app.VerificationPortalDomain = "127.0.0.1"
	app.UpdatedAt = time.Now()
	f := newFixture(app)
	f.mailbox.searchMsgs = []out.MailMessage{{
		MessageID:    "verify-1",
		Subject:      "Confirm your application",
		InternalDate: time.Now(),
	}}
	f.mailbox.bodies["verify-1"] = &out.MailBody{
		Text: "Please confirm your account: " + server.URL + "/verify/abc.",
	}

	count, err := f.svc.SweepVerifications(context.Background())
	if err != nil {
		t.Fatalf("SweepVerifications: %v", err)
	}
	if count != 1 {
		t.Fatalf("completed = %d, want 1", count)
	}
	if gotPath != "/verify/abc" {
		t.Fatalf("followed path = %q, want /verify/abc (trailing period trimmed)", gotPath)
	}
	if len(f.lifecycle.statuses) != 1 || f.lifecycle.statuses[0] != domain.StatusApplied {
		t.Fatalf("transitions = %v, want [applied]", f.lifecycle.statuses)
	}
}

func TestSweepVerificationsSkipsWithoutPortalDomain(t *testing.T) {
	app := monitoredApp()
	app.Status = domain.StatusPendingVerification
	f := newFixture(app)

	count, err := f.svc.SweepVerifications(context.Background())
	if err != nil {
		t.Fatalf("SweepVerifications: %v", err)
	}
	if count != 0 || f.mailbox.searched {
		t.Fatalf("swept without a portal domain: count=%d searched=%v", count, f.mailbox.searched)
	}
}
