package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"replygate/internal/entities"
	"replygate/internal/infrastructure"
	"replygate/internal/usecases"
)

const goodToken = "good-token"

var testIdentity = entities.Identity{UserID: "user-1", BusinessID: "biz-1", Email: "owner@example.com"}

type fakePipeline struct {
	mu  sync.Mutex
	got []entities.InboundMessage
	err error
}

func (f *fakePipeline) ProcessMessage(_ context.Context, in entities.InboundMessage) (*usecases.PipelineResult, error) {
	f.mu.Lock()
	f.got = append(f.got, in)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &usecases.PipelineResult{Status: usecases.StatusSuccess, From: in.SenderID, Text: in.Text, Channel: in.Channel}, nil
}

type fakeApprovalService struct {
	updateErr error
	updated   []entities.ApprovalStatus
	rules     []entities.WorkflowRule
}

func (f *fakeApprovalService) GetPendingApprovals(context.Context, string) ([]entities.Approval, error) {
	return nil, nil
}

func (f *fakeApprovalService) GetApproval(_ context.Context, id, businessID string) (*entities.Approval, error) {
	if businessID != "biz-1" {
		return nil, entities.ErrForbidden
	}
	if id == "missing" {
		return nil, fmt.Errorf("approval %s: %w", id, entities.ErrNotFound)
	}
	return &entities.Approval{ID: id, BusinessID: businessID, Status: entities.ApprovalPending}, nil
}

func (f *fakeApprovalService) UpdateApprovalStatus(_ context.Context, id string, status entities.ApprovalStatus, reviewerID, businessID string) (*entities.Approval, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updated = append(f.updated, status)
	return &entities.Approval{ID: id, Status: status, ReviewedBy: &reviewerID, BusinessID: businessID}, nil
}

func (f *fakeApprovalService) ListRules(context.Context, string) ([]entities.WorkflowRule, error) {
	return f.rules, nil
}

func (f *fakeApprovalService) UpsertRule(_ context.Context, businessID, intent string, requiresApproval bool, minConfidence float64) (*entities.WorkflowRule, error) {
	if minConfidence > 1 {
		return nil, entities.ErrValidation
	}
	return &entities.WorkflowRule{BusinessID: businessID, IntentName: intent, RequiresApproval: requiresApproval, MinConfidence: minConfidence}, nil
}

type fakeDispatcher struct {
	ids []string
	err error
}

func (f *fakeDispatcher) Enqueue(id string) error {
	f.ids = append(f.ids, id)
	return f.err
}

type fakeAuth struct{}

func (fakeAuth) ParseToken(token string) (entities.Identity, error) {
	if token != goodToken {
		return entities.Identity{}, entities.ErrUnauthorized
	}
	return testIdentity, nil
}

func (fakeAuth) Signup(_ context.Context, in usecases.SignupInput) (*usecases.AuthResult, error) {
	if in.Email == "taken@example.com" {
		return nil, entities.ErrAlreadyExists
	}
	return &usecases.AuthResult{AccessToken: goodToken, User: usecases.AuthUser{Email: in.Email, BusinessName: in.BusinessName}}, nil
}

func (fakeAuth) Login(_ context.Context, email, password string) (*usecases.AuthResult, error) {
	if password != "secret1" {
		return nil, fmt.Errorf("invalid credentials: %w", entities.ErrUnauthorized)
	}
	return &usecases.AuthResult{AccessToken: goodToken, User: usecases.AuthUser{Email: email}}, nil
}

type fakeProfiles struct{}

func (fakeProfiles) GetProfile(_ context.Context, id string) (*entities.Business, error) {
	return &entities.Business{ID: id, Name: "Sunrise"}, nil
}

func (fakeProfiles) UpdateProfile(_ context.Context, id string, upd entities.BusinessProfileUpdate) (*entities.Business, error) {
	b := &entities.Business{ID: id, Name: "Sunrise"}
	if upd.Name != nil {
		b.Name = *upd.Name
	}
	return b, nil
}

type fakeDashboardService struct {
	exportErr error
}

func (fakeDashboardService) GetStats(context.Context, string) (*entities.DashboardStats, error) {
	return &entities.DashboardStats{TotalInteractions: 12, SystemHealth: 91.5}, nil
}

func (fakeDashboardService) GetEngagement(context.Context, string) ([]entities.EngagementItem, error) {
	return nil, nil
}

func (fakeDashboardService) Search(_ context.Context, _, q string) ([]entities.SearchHit, error) {
	return []entities.SearchHit{{MessageID: "m1", Content: q}}, nil
}

func (f fakeDashboardService) ExportCSV(_ context.Context, _ string, w io.Writer) error {
	if f.exportErr != nil {
		return f.exportErr
	}
	_, err := io.WriteString(w, "Date,Type,Content,Intent,Status\n")
	return err
}

type fakeDevices struct {
	qr        string
	connected bool
}

func (f *fakeDevices) Connect(_ context.Context, id string) (entities.DeviceStatus, error) {
	return entities.DeviceStatus{BusinessID: id}, nil
}
func (f *fakeDevices) QR(string) string { return f.qr }
func (f *fakeDevices) Status(id string) entities.DeviceStatus {
	return entities.DeviceStatus{BusinessID: id, Connected: f.connected}
}
func (f *fakeDevices) Logout(context.Context, string) error { return errors.New("not paired") }

type testServer struct {
	engine     *gin.Engine
	pipeline   *fakePipeline
	approvals  *fakeApprovalService
	dispatcher *fakeDispatcher
}

func newTestServer(t *testing.T, mutate func(*Deps)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{pipeline: &fakePipeline{}, approvals: &fakeApprovalService{}, dispatcher: &fakeDispatcher{}}
	deps := Deps{
		Pipeline:    ts.pipeline,
		Approvals:   ts.approvals,
		Dispatcher:  ts.dispatcher,
		Auth:        fakeAuth{},
		Profiles:    fakeProfiles{},
		Dashboard:   fakeDashboardService{},
		VerifyToken: "verify-me",
	}
	if mutate != nil {
		mutate(&deps)
	}
	ts.engine = gin.New()
	SetupRoutes(ts.engine, NewHandler(deps, zerolog.Nop()), NewMiddleware(fakeAuth{}, nil, zerolog.Nop()), 1<<20)
	return ts
}

func (ts *testServer) do(method, path, body string, authed bool) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+goodToken)
	}
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	return w
}

func TestVerifyWebhook(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())

	w = ts.do(http.MethodGet, "/whatsapp/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", "", false)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestReceiveWebhook(t *testing.T) {
	textMessage := `{"entry":[{"changes":[{"value":{"messages":[{"from":"15550001","type":"text","text":{"body":"What's the price?"}}]}}]}]}`

	tests := []struct {
		name     string
		body     string
		wantBody string
		calls    int
	}{
		{"status update", `{"entry":[{"changes":[{"value":{"statuses":[{"id":"x"}]}}]}]}`, "NOT_A_MESSAGE", 0},
		{"empty entry", `{"entry":[]}`, "NOT_A_MESSAGE", 0},
		{"image message", `{"entry":[{"changes":[{"value":{"messages":[{"from":"1","type":"image"}]}}]}]}`, "NO_TEXT_CONTENT", 0},
		{"text message", textMessage, `"status":"SUCCESS"`, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			w := ts.do(http.MethodPost, "/whatsapp/webhook", tt.body, false)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantBody)
			require.Len(t, ts.pipeline.got, tt.calls)
		})
	}

	ts := newTestServer(t, nil)
	ts.do(http.MethodPost, "/whatsapp/webhook", textMessage, false)
	require.Len(t, ts.pipeline.got, 1)
	in := ts.pipeline.got[0]
	assert.Equal(t, "15550001", in.SenderID)
	assert.Equal(t, entities.ChannelWhatsApp, in.Channel)
	assert.Empty(t, in.BusinessID, "the pipeline applies the default business")
}

func TestReceiveWebhook_PipelineErrorStillAcknowledged(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.pipeline.err = errors.New("db down")

	w := ts.do(http.MethodPost, "/whatsapp/webhook", `{"entry":[{"changes":[{"value":{"messages":[{"from":"1","text":{"body":"hi"}}]}}]}]}`, false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "db down")

	w = ts.do(http.MethodPost, "/whatsapp/webhook", `not json`, false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/approvals/pending", "", false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/approvals/pending", nil)
	req.Header.Set("Authorization", "Bearer forged")
	w = httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodGet, "/approvals/pending", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestSimulate(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodPost, "/whatsapp/simulate", `{"from":"+1555","text":"hello"}`, true)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "SIMULATED", body["mode"])
	assert.Equal(t, "SUCCESS", body["status"])

	require.Len(t, ts.pipeline.got, 1)
	assert.Equal(t, "biz-1", ts.pipeline.got[0].BusinessID)
	assert.Equal(t, entities.ChannelWhatsApp, ts.pipeline.got[0].Channel)

	w = ts.do(http.MethodPost, "/whatsapp/simulate", `{"from":"+1555","text":"hello","channel":"fax"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(http.MethodPost, "/whatsapp/simulate", `{"text":"hello"}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateApprovalStatus(t *testing.T) {
	t.Run("approved is dispatched", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(http.MethodPatch, "/approvals/a-1/status", `{"status":"APPROVED"}`, true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"a-1"}, ts.dispatcher.ids)
		assert.Contains(t, w.Body.String(), `"reviewed_by":"user-1"`)
	})

	t.Run("rejected is not dispatched", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(http.MethodPatch, "/approvals/a-1/status", `{"status":"rejected"}`, true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, ts.dispatcher.ids)
	})

	t.Run("full queue keeps the approval", func(t *testing.T) {
		ts := newTestServer(t, nil)
		ts.dispatcher.err = usecases.ErrQueueFull
		w := ts.do(http.MethodPatch, "/approvals/a-1/status", `{"status":"APPROVED"}`, true)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			body string
			err  error
			want int
		}{
			{`{"status":"PENDING"}`, nil, http.StatusBadRequest},
			{`{"status":"MAYBE"}`, nil, http.StatusBadRequest},
			{`{}`, nil, http.StatusBadRequest},
			{`{"status":"APPROVED"}`, entities.ErrAlreadyResolved, http.StatusConflict},
			{`{"status":"APPROVED"}`, entities.ErrForbidden, http.StatusForbidden},
			{`{"status":"APPROVED"}`, entities.ErrNotFound, http.StatusNotFound},
			{`{"status":"APPROVED"}`, errors.New("boom"), http.StatusInternalServerError},
		}
		for _, tt := range tests {
			ts := newTestServer(t, nil)
			ts.approvals.updateErr = tt.err
			w := ts.do(http.MethodPatch, "/approvals/a-1/status", tt.body, true)
			assert.Equal(t, tt.want, w.Code, "%s %v", tt.body, tt.err)
			assert.Empty(t, ts.dispatcher.ids)
		}
	})
}

func TestGetApproval(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/approvals/a-1", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(http.MethodGet, "/approvals/missing", "", true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpsertRule(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodPut, "/workflows/rules/complaint", `{"requires_approval":false,"min_confidence":0.7}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"intent_name":"complaint"`)

	w = ts.do(http.MethodPut, "/workflows/rules/Bad-Name", `{"requires_approval":false,"min_confidence":0.7}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(http.MethodPut, "/workflows/rules/complaint", `{"requires_approval":false}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = ts.do(http.MethodPut, "/workflows/rules/complaint", `{"requires_approval":true,"min_confidence":3}`, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodGet, "/workflows/rules", "", true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestAuthRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodPost, "/auth/signup", `{"email":"a@b.co","password":"secret1","business_name":"Sunrise"}`, false)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"access_token":"good-token"`)

	w = ts.do(http.MethodPost, "/auth/signup", `{"email":"taken@example.com","password":"secret1","business_name":"B"}`, false)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(http.MethodPost, "/auth/login", `{"email":"a@b.co","password":"secret1"}`, false)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(http.MethodPost, "/auth/login", `{"email":"a@b.co","password":"nope"}`, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDashboardRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/dashboard/stats", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_interactions":12`)

	w = ts.do(http.MethodGet, "/dashboard/engagement", "", true)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = ts.do(http.MethodGet, "/dashboard/search?q=price", "", true)
	assert.Contains(t, w.Body.String(), `"content":"price"`)

	w = ts.do(http.MethodGet, "/dashboard/export", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "Date,Type,Content,Intent,Status\n", w.Body.String())

	failing := newTestServer(t, func(d *Deps) { d.Dashboard = fakeDashboardService{exportErr: errors.New("db down")} })
	w = failing.do(http.MethodGet, "/dashboard/export", "", true)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestProfileRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/businesses/profile", "", true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"biz-1"`)

	w = ts.do(http.MethodPatch, "/businesses/profile", `{"name":"Moonrise"}`, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Moonrise"`)
}

func TestDeviceRoutes(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t, nil)
		assert.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodPost, "/devices/connect", "", true).Code)
		assert.Equal(t, http.StatusServiceUnavailable, ts.do(http.MethodGet, "/devices/qr", "", true).Code)
		assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/devices/status", "", true).Code)
		assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/devices/logout", "", true).Code)
	})

	t.Run("pairing", func(t *testing.T) {
		devices := &fakeDevices{}
		ts := newTestServer(t, func(d *Deps) { d.Devices = devices })

		assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/devices/connect", "", true).Code)
		assert.Equal(t, http.StatusAccepted, ts.do(http.MethodGet, "/devices/qr", "", true).Code)

		devices.qr = "2@abc,def,ghi"
		w := ts.do(http.MethodGet, "/devices/qr", "", true)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(w.Body.String(), "\x89PNG"))

		devices.qr = ""
		devices.connected = true
		w = ts.do(http.MethodGet, "/devices/qr", "", true)
		assert.Equal(t, "Already logged in", w.Body.String())

		w = ts.do(http.MethodPost, "/devices/logout", "", true)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimitPerUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := infrastructure.NewKeyedRateLimiter(0.001, 1)
	defer limiter.Stop()

	r := gin.New()
	h := NewHandler(Deps{Approvals: &fakeApprovalService{}}, zerolog.Nop())
	SetupRoutes(r, h, NewMiddleware(fakeAuth{}, limiter, zerolog.Nop()), 0)

	call := func() int {
		req := httptest.NewRequest(http.MethodGet, "/workflows/rules", nil)
		req.Header.Set("Authorization", "Bearer "+goodToken)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, call())
	assert.Equal(t, http.StatusTooManyRequests, call())
}

func TestHealthAndPreflight(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = ts.do(http.MethodOptions, "/approvals/pending", "", false)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(http.MethodGet, "/metrics", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", entities.ErrNotFound), http.StatusNotFound},
		{entities.ErrForbidden, http.StatusForbidden},
		{entities.ErrAlreadyResolved, http.StatusConflict},
		{entities.ErrAlreadyExists, http.StatusConflict},
		{entities.ErrValidation, http.StatusBadRequest},
		{entities.ErrInvalidStatus, http.StatusBadRequest},
		{entities.ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
