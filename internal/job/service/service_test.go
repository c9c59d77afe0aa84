package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"atelier/internal/asset"
	"atelier/internal/job"
	"atelier/internal/job/processor"
	"atelier/internal/ledger"
	dErrors "atelier/pkg/domain-errors"
)

const testCallbackSecret = "callback-secret"

type fakeProcessor struct {
	submissions []processor.Submission
	err         error
}

func (f *fakeProcessor) Submit(_ context.Context, sub processor.Submission) error {
	if f.err != nil {
		return f.err
	}
	f.submissions = append(f.submissions, sub)
	return nil
}

type JobServiceSuite struct {
	suite.Suite
	jobs      *job.MemoryStore
	assets    *asset.MemoryStore
	ledger    *ledger.Service
	processor *fakeProcessor
	service   *Service
	ctx       context.Context
	now       time.Time
}

func TestJobServiceSuite(t *testing.T) {
	suite.Run(t, new(JobServiceSuite))
}

func (s *JobServiceSuite) SetupTest() {
	s.jobs = job.NewMemoryStore()
	s.assets = asset.NewMemoryStore()
	s.processor = &fakeProcessor{}
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ledgerSvc, err := ledger.New(ledger.NewMemoryStore())
	s.Require().NoError(err)
	s.ledger = ledgerSvc
	s.Require().NoError(s.ledger.CreateAccount(s.ctx, "acct-1", 10))

	svc, err := New(s.jobs, s.assets, s.ledger, s.processor,
		"https://atelier.app/webhooks/jobs", testCallbackSecret,
		WithClock(func() time.Time { return s.now }),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *JobServiceSuite) TestCreate() {
	s.Run("debits credits and submits", func() {
		created, err := s.service.Create(s.ctx, "acct-1", job.KindCaption, json.RawMessage(`{"image":"a.png"}`))
		s.Require().NoError(err)
		s.Equal(job.StatusQueued, created.Status)
		s.Equal(int64(3), created.CreditsUsed)

		balance, err := s.ledger.Balance(s.ctx, "acct-1")
		s.Require().NoError(err)
		s.Equal(int64(7), balance)

		s.Require().Len(s.processor.submissions, 1)
		sub := s.processor.submissions[0]
		s.Equal(created.ID, sub.JobID)
		s.Equal("acct-1", sub.OwnerID)
		s.Equal("caption", sub.Kind)
		s.Equal("https://atelier.app/webhooks/jobs", sub.CallbackURL)
	})

	s.Run("insufficient credits rejected before any job exists", func() {
		_, err := s.service.Create(s.ctx, "acct-1", job.KindStyleTransfer, nil)
		s.Require().NoError(err) // 7 - 5 = 2 left

		_, err = s.service.Create(s.ctx, "acct-1", job.KindStyleTransfer, nil)
		s.True(dErrors.Is(err, dErrors.CodeInsufficientCredits))
	})

	s.Run("unknown kind charged at the default cost", func() {
		created, err := s.service.Create(s.ctx, "acct-1", job.Kind("hologram"), nil)
		s.Require().NoError(err)
		s.Equal(job.DefaultCost, created.CreditsUsed)
	})

	s.Run("processor failure keeps the job queued with credits spent", func() {
		before, err := s.ledger.Balance(s.ctx, "acct-1")
		s.Require().NoError(err)
		s.Require().GreaterOrEqual(before, int64(1))

		s.processor.err = context.DeadlineExceeded
		_, err = s.service.Create(s.ctx, "acct-1", job.Kind("hologram"), nil)
		s.True(dErrors.Is(err, dErrors.CodeUpstream))
		s.processor.err = nil

		after, err := s.ledger.Balance(s.ctx, "acct-1")
		s.Require().NoError(err)
		s.Equal(before-job.DefaultCost, after)
	})

	s.Run("missing owner unauthorized", func() {
		_, err := s.service.Create(s.ctx, "", job.KindCaption, nil)
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})
}

func (s *JobServiceSuite) TestGet() {
	created, err := s.service.Create(s.ctx, "acct-1", job.KindUpscale, nil)
	s.Require().NoError(err)

	s.Run("owner reads the job", func() {
		got, err := s.service.Get(s.ctx, "acct-1", created.ID)
		s.Require().NoError(err)
		s.Equal(created.ID, got.ID)
	})

	s.Run("other account sees not found", func() {
		_, err := s.service.Get(s.ctx, "acct-2", created.ID)
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("unknown id not found", func() {
		_, err := s.service.Get(s.ctx, "acct-1", "missing")
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *JobServiceSuite) TestHandleCallback() {
	_, err := s.ledger.AddCredits(s.ctx, "acct-1", 90)
	s.Require().NoError(err)

	create := func() job.Job {
		created, err := s.service.Create(s.ctx, "acct-1", job.KindCaption, nil)
		s.Require().NoError(err)
		return created
	}

	s.Run("wrong token unauthorized", func() {
		err := s.service.HandleCallback(s.ctx, "wrong", CallbackPayload{JobID: "x", Status: "succeeded"})
		s.True(dErrors.Is(err, dErrors.CodeUnauthorized))
	})

	s.Run("invalid status rejected", func() {
		err := s.service.HandleCallback(s.ctx, testCallbackSecret, CallbackPayload{JobID: "x", Status: "exploded"})
		s.True(dErrors.Is(err, dErrors.CodeValidation))
	})

	s.Run("unknown job not found", func() {
		err := s.service.HandleCallback(s.ctx, testCallbackSecret, CallbackPayload{JobID: "missing", Status: "succeeded"})
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})

	s.Run("success attaches the result and records an asset", func() {
		created := create()

		err := s.service.HandleCallback(s.ctx, testCallbackSecret, CallbackPayload{
			JobID:     created.ID,
			Status:    "succeeded",
			ResultURL: "https://cdn.atelier.app/out/1.png",
			Meta:      map[string]string{"width": "1024"},
		})
		s.Require().NoError(err)

		got, err := s.jobs.Get(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(job.StatusSucceeded, got.Status)
		s.Require().NotNil(got.Result)
		s.Equal("https://cdn.atelier.app/out/1.png", got.Result.URL)

		a, err := s.assets.FindByJobID(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal("acct-1", a.OwnerID)
	})

	s.Run("redelivered success is a no-op with a single asset", func() {
		created := create()

		payload := CallbackPayload{
			JobID:     created.ID,
			Status:    "succeeded",
			ResultURL: "https://cdn.atelier.app/out/2.png",
		}
		s.Require().NoError(s.service.HandleCallback(s.ctx, testCallbackSecret, payload))

		first, err := s.assets.FindByJobID(s.ctx, created.ID)
		s.Require().NoError(err)

		s.Require().NoError(s.service.HandleCallback(s.ctx, testCallbackSecret, payload))

		again, err := s.assets.FindByJobID(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(first.ID, again.ID)

		assets, err := s.assets.ListByOwner(s.ctx, "acct-1")
		s.Require().NoError(err)
		var count int
		for _, a := range assets {
			if a.JobID == created.ID {
				count++
			}
		}
		s.Equal(1, count)
	})

	s.Run("failure after success does not overwrite", func() {
		created := create()

		s.Require().NoError(s.service.HandleCallback(s.ctx, testCallbackSecret, CallbackPayload{
			JobID:     created.ID,
			Status:    "succeeded",
			ResultURL: "https://cdn.atelier.app/out/3.png",
		}))
		s.Require().NoError(s.service.HandleCallback(s.ctx, testCallbackSecret, CallbackPayload{
			JobID:  created.ID,
			Status: "failed",
			Error:  "late failure report",
		}))

		got, err := s.jobs.Get(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(job.StatusSucceeded, got.Status)
		s.Require().NotNil(got.Result)
		s.Empty(got.Error)
	})

	s.Run("running transition keeps the job non-terminal", func() {
		created := create()

		s.Require().NoError(s.service.HandleCallback(s.ctx, testCallbackSecret, CallbackPayload{
			JobID:  created.ID,
			Status: "running",
		}))

		got, err := s.jobs.Get(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(job.StatusRunning, got.Status)

		s.Require().NoError(s.service.HandleCallback(s.ctx, testCallbackSecret, CallbackPayload{
			JobID: created.ID, Status: "failed", Error: "out of memory",
		}))
		got, err = s.jobs.Get(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(job.StatusFailed, got.Status)
		s.Equal("out of memory", got.Error)
	})
}
