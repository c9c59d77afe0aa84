package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"atelier/internal/account"
	"atelier/internal/asset"
	"atelier/internal/job"
	"atelier/internal/job/processor"
	jobservice "atelier/internal/job/service"
	"atelier/internal/ledger"
	"atelier/internal/otp"
	otpservice "atelier/internal/otp/service"
	"atelier/internal/payment"
	"atelier/internal/platform/middleware"
	"atelier/internal/ratelimit"
	"atelier/internal/session"
	"atelier/pkg/email"
)

const (
	routerTestCode   = "654321"
	routerTestSecret = "callback-secret"
	routerServerKey  = "server-key"
)

type stubResolver struct{}

func (stubResolver) LookupMX(_ context.Context, _ string) ([]*net.MX, error) {
	return []*net.MX{{Host: "mx.example.com"}}, nil
}

type fakeMailer struct{ sent []string }

func (m *fakeMailer) SendOTP(_ context.Context, address, _ string) error {
	m.sent = append(m.sent, address)
	return nil
}

type fakeProcessor struct{ submissions []processor.Submission }

func (f *fakeProcessor) Submit(_ context.Context, sub processor.Submission) error {
	f.submissions = append(f.submissions, sub)
	return nil
}

type RouterSuite struct {
	suite.Suite
	server    *httptest.Server
	client    *http.Client
	mailer    *fakeMailer
	processor *fakeProcessor
	ledger    *ledger.Service
	serverKey string
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.mailer = &fakeMailer{}
	s.processor = &fakeProcessor{}
	s.serverKey = routerServerKey

	ledgerSvc, err := ledger.New(ledger.NewMemoryStore())
	s.Require().NoError(err)
	s.ledger = ledgerSvc

	accountStore := account.NewMemoryStore()
	accountSvc, err := account.NewService(accountStore, ledgerSvc, 10)
	s.Require().NoError(err)

	otpSvc, err := otpservice.New(
		otp.NewMemoryStore(),
		accountStore,
		ratelimit.NewMemoryLimiter(),
		s.mailer,
		email.NewValidator(email.WithResolver(stubResolver{})),
		otpservice.WithCodeGenerator(func() (string, error) { return routerTestCode, nil }),
		otpservice.WithHashCost(bcrypt.MinCost),
		// Issuance windows are exercised in the service tests; a nanosecond
		// window keeps them out of the way here.
		otpservice.WithPolicy(otpservice.Policy{
			Window:      time.Nanosecond,
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
		}),
	)
	s.Require().NoError(err)

	issuer, err := session.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	s.Require().NoError(err)

	jobSvc, err := jobservice.New(
		job.NewMemoryStore(),
		asset.NewMemoryStore(),
		ledgerSvc,
		s.processor,
		"http://localhost:8080/webhooks/jobs",
		routerTestSecret,
	)
	s.Require().NoError(err)

	paymentSvc, err := payment.New(payment.NewMemoryStore(), ledgerSvc, s.serverKey)
	s.Require().NoError(err)

	router := NewRouter(RouterDeps{
		Auth:     NewAuthHandler(otpSvc, accountSvc, issuer, true, logger),
		Jobs:     NewJobsHandler(jobSvc),
		Payments: NewPaymentsHandler(paymentSvc),
		Sessions: issuer,
		Logger:   logger,
	})

	s.server = httptest.NewServer(router)
	s.client = s.server.Client()
}

func (s *RouterSuite) TearDownTest() {
	s.server.Close()
}

func (s *RouterSuite) post(path string, body any, mutate ...func(*http.Request)) (*http.Response, map[string]any) {
	data, err := json.Marshal(body)
	s.Require().NoError(err)

	req, err := http.NewRequest(http.MethodPost, s.server.URL+path, bytes.NewReader(data))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mutate {
		m(req)
	}

	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	return resp, decodeBody(s.T(), resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && err != io.EOF {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

// signup walks the OTP flow and returns the session cookie and account id.
func (s *RouterSuite) signup(address string) (*http.Cookie, string) {
	resp, _ := s.post("/auth/otp/request", map[string]string{"email": address})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp, body := s.post("/auth/otp/verify", map[string]string{"email": address, "code": routerTestCode})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var cookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			cookie = c
		}
	}
	s.Require().NotNil(cookie)
	accountID, _ := body["accountId"].(string)
	s.Require().NotEmpty(accountID)
	return cookie, accountID
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func (s *RouterSuite) TestHealthz() {
	resp, err := s.client.Get(s.server.URL + "/healthz")
	s.Require().NoError(err)
	s.Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func (s *RouterSuite) TestAuthFlow() {
	s.Run("signup issues a session cookie and grants credits", func() {
		cookie, accountID := s.signup("user@example.com")
		s.True(cookie.HttpOnly)
		s.Equal([]string{"user@example.com"}, s.mailer.sent)

		balance, err := s.ledger.Balance(context.Background(), accountID)
		s.Require().NoError(err)
		s.Equal(int64(10), balance)
	})

	s.Run("registered email and bad domain share one failure shape", func() {
		respTaken, bodyTaken := s.post("/auth/otp/request", map[string]string{"email": "user@example.com"})
		respBad, bodyBad := s.post("/auth/otp/request", map[string]string{"email": "x@mailinator.com"})

		s.Equal(http.StatusBadRequest, respTaken.StatusCode)
		s.Equal(respTaken.StatusCode, respBad.StatusCode)
		s.Equal(bodyTaken, bodyBad)
	})

	s.Run("wrong code rejected", func() {
		resp, _ := s.post("/auth/otp/request", map[string]string{"email": "other@example.com"})
		s.Require().Equal(http.StatusOK, resp.StatusCode)

		resp, _ = s.post("/auth/otp/verify", map[string]string{"email": "other@example.com", "code": "000000"})
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func (s *RouterSuite) TestJobFlow() {
	cookie, accountID := s.signup("artist@example.com")

	s.Run("unauthenticated job create rejected", func() {
		resp, _ := s.post("/api/jobs", map[string]any{"kind": "caption"})
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	var jobID string
	s.Run("create debits credits and submits", func() {
		resp, body := s.post("/api/jobs",
			map[string]any{"kind": "caption", "input": map[string]string{"image": "a.png"}},
			withCookie(cookie))
		s.Require().Equal(http.StatusCreated, resp.StatusCode)
		s.Equal("queued", body["status"])

		jobID, _ = body["jobId"].(string)
		s.Require().NotEmpty(jobID)
		s.Require().Len(s.processor.submissions, 1)
		s.Equal(jobID, s.processor.submissions[0].JobID)

		balance, err := s.ledger.Balance(context.Background(), accountID)
		s.Require().NoError(err)
		s.Equal(int64(7), balance)
	})

	s.Run("owner polls the job", func() {
		req, err := http.NewRequest(http.MethodGet, s.server.URL+"/api/jobs/"+jobID, nil)
		s.Require().NoError(err)
		req.AddCookie(cookie)

		resp, err := s.client.Do(req)
		s.Require().NoError(err)
		body := decodeBody(s.T(), resp)
		s.Equal(http.StatusOK, resp.StatusCode)
		s.Equal("queued", body["status"])
	})

	s.Run("webhook without token rejected", func() {
		resp, _ := s.post("/webhooks/jobs", map[string]any{"jobId": jobID, "status": "succeeded"})
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	s.Run("missing token wins over a malformed body", func() {
		req, err := http.NewRequest(http.MethodPost, s.server.URL+"/webhooks/jobs", bytes.NewBufferString("{not json"))
		s.Require().NoError(err)
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		s.Require().NoError(err)
		resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})

	s.Run("webhook completes the job", func() {
		withToken := func(r *http.Request) { r.Header.Set(CallbackTokenHeader, routerTestSecret) }

		resp, _ := s.post("/webhooks/jobs", map[string]any{
			"jobId":     jobID,
			"status":    "succeeded",
			"resultUrl": "https://cdn.atelier.app/out/1.png",
		}, withToken)
		s.Require().Equal(http.StatusOK, resp.StatusCode)

		req, err := http.NewRequest(http.MethodGet, s.server.URL+"/api/jobs/"+jobID, nil)
		s.Require().NoError(err)
		req.AddCookie(cookie)
		resp2, err := s.client.Do(req)
		s.Require().NoError(err)
		body := decodeBody(s.T(), resp2)
		s.Equal("succeeded", body["status"])
		s.Equal("https://cdn.atelier.app/out/1.png", body["resultUrl"])
	})

	s.Run("insufficient credits maps to 402", func() {
		for {
			resp, body := s.post("/api/jobs", map[string]any{"kind": "style-transfer"}, withCookie(cookie))
			if resp.StatusCode == http.StatusPaymentRequired {
				s.Equal("insufficient_credits", body["error"])
				break
			}
			s.Require().Equal(http.StatusCreated, resp.StatusCode)
		}
	})
}

func (s *RouterSuite) TestPaymentFlow() {
	cookie, accountID := s.signup("buyer@example.com")

	var orderID string
	s.Run("create returns a pending transaction", func() {
		resp, body := s.post("/api/payments", map[string]any{"amount": 50, "type": "credits-50"}, withCookie(cookie))
		s.Require().Equal(http.StatusCreated, resp.StatusCode)
		s.Equal("pending", body["status"])

		orderID, _ = body["orderId"].(string)
		s.Require().NotEmpty(orderID)
	})

	s.Run("settlement webhook credits the account", func() {
		notice := map[string]any{
			"order_id":           orderID,
			"status_code":        "200",
			"gross_amount":       "50000.00",
			"transaction_status": "settlement",
			"signature_key":      payment.Signature(orderID, "200", "50000.00", s.serverKey),
		}
		resp, _ := s.post("/webhooks/payments", notice)
		s.Require().Equal(http.StatusOK, resp.StatusCode)

		balance, err := s.ledger.Balance(context.Background(), accountID)
		s.Require().NoError(err)
		s.Equal(int64(60), balance)
	})

	s.Run("forged signature rejected", func() {
		notice := map[string]any{
			"order_id":           orderID,
			"status_code":        "200",
			"gross_amount":       "50000.00",
			"transaction_status": "settlement",
			"signature_key":      "forged",
		}
		resp, _ := s.post("/webhooks/payments", notice)
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	})
}
