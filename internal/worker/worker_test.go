package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/extrabeam/backend/internal/models"
	"github.com/extrabeam/backend/internal/notifications"
	"github.com/extrabeam/backend/pkg/queue"
)

type fakeSender struct {
	err  error
	sent []notifications.Email
}

func (s *fakeSender) Send(_ context.Context, e notifications.Email) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, e)
	return "msg_1", nil
}

type memLogs struct{ rows []*models.EmailLog }

func (m *memLogs) Create(_ context.Context, el *models.EmailLog) error {
	m.rows = append(m.rows, el)
	return nil
}

type sliceQueue struct {
	jobs    []*queue.Job
	retried []*queue.Job
	cancel  context.CancelFunc
}

func (q *sliceQueue) Dequeue(context.Context, ...string) (*queue.Job, error) {
	if len(q.jobs) == 0 {
		q.cancel()
		return nil, nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, nil
}

func (q *sliceQueue) Retry(_ context.Context, job *queue.Job, cause error) error {
	job.Attempt++
	job.LastError = cause.Error()
	q.retried = append(q.retried, job)
	return nil
}

func emailJob(t *testing.T) *queue.Job {
	t.Helper()
	companyID := uuid.New()
	job, err := queue.NewJob(queue.QueueEmails, queue.JobTypeEmail, queue.EmailPayload{
		EmailType:      models.EmailTypeInvoicePaid,
		CompanyID:      &companyID,
		RecipientEmail: "owner@atelier.fr",
		Subject:        "Facture payée",
		BodyHTML:       "<p>ok</p>",
	})
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func TestProcessSendsAndLogs(t *testing.T) {
	sender, logs := &fakeSender{}, &memLogs{}
	p := NewEmailProcessor(nil, sender, logs, nil)
	if err := p.Process(context.Background(), emailJob(t)); err != nil {
		t.Fatalf("Process error = %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].To != "owner@atelier.fr" {
		t.Fatalf("sent = %+v", sender.sent)
	}
	if len(logs.rows) != 1 || logs.rows[0].Status != models.EmailLogStatusSent || logs.rows[0].ProviderID != "msg_1" || logs.rows[0].SentAt == nil {
		t.Fatalf("log = %+v", logs.rows[0])
	}
}

func TestProcessFailureIsLogged(t *testing.T) {
	sender, logs := &fakeSender{err: errors.New("api down")}, &memLogs{}
	p := NewEmailProcessor(nil, sender, logs, nil)
	if err := p.Process(context.Background(), emailJob(t)); err == nil {
		t.Fatalf("expected error")
	}
	if len(logs.rows) != 1 || logs.rows[0].Status != models.EmailLogStatusFailed || logs.rows[0].ErrorMessage != "api down" {
		t.Fatalf("log = %+v", logs.rows)
	}
}

func TestProcessRejectsUnknownType(t *testing.T) {
	p := NewEmailProcessor(nil, &fakeSender{}, &memLogs{}, nil)
	if err := p.Process(context.Background(), &queue.Job{Type: "video"}); err == nil {
		t.Fatalf("expected error for unknown job type")
	}
}

func TestRunRetriesFailedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := &sliceQueue{jobs: []*queue.Job{emailJob(t)}, cancel: cancel}
	p := NewEmailProcessor(q, &fakeSender{err: errors.New("api down")}, &memLogs{}, nil)
	p.backoff = time.Millisecond

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop")
	}
	if len(q.retried) != 1 || q.retried[0].Attempt != 1 || q.retried[0].LastError == "" {
		t.Fatalf("retried = %+v", q.retried)
	}
}
