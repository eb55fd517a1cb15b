package worker

import (
	"testing"

	"apply_server/adapter/out/messaging"
	"apply_server/core/port/out"
)

func TestJobTypeForStreamCoversAllStreams(t *testing.T) {
	for _, stream := range messaging.AllStreams {
		if _, ok := jobTypeForStream[stream]; !ok {
			t.Fatalf("stream %q has no job type", stream)
		}
	}
	if len(jobTypeForStream) != len(messaging.AllStreams) {
		t.Fatalf("job type map has %d entries, streams %d",
			len(jobTypeForStream), len(messaging.AllStreams))
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(JobSubmissionApply, []byte(`{"user_id":"user-1"}`))
	if msg.ID == "" {
		t.Fatal("message id not minted")
	}
	if msg.Type != JobSubmissionApply {
		t.Fatalf("type = %s, want %s", msg.Type, JobSubmissionApply)
	}
	if msg.CreatedAt.IsZero() {
		t.Fatal("created at not stamped")
	}
	if msg.Retries != 0 {
		t.Fatalf("retries = %d, want 0", msg.Retries)
	}
}

func TestParsePayload(t *testing.T) {
	msg := NewMessage(JobSubmissionApply,
		[]byte(`{"idempotency_key":"k-1","user_id":"user-1","application_id":"app-1"}`))

	job, err := ParsePayload[out.SubmissionJob](msg)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if job.UserID != "user-1" || job.ApplicationID != "app-1" || job.IdempotencyKey != "k-1" {
		t.Fatalf("job = %+v", job)
	}
}

func TestParsePayloadRejectsMalformedJSON(t *testing.T) {
	msg := NewMessage(JobSubmissionApply, []byte(`{"user_id":`))
	if _, err := ParsePayload[out.SubmissionJob](msg); err == nil {
		t.Fatal("malformed payload parsed")
	}
}
