package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/proposalhub/proposalhub-backend/internal/batch"
	"github.com/proposalhub/proposalhub-backend/internal/notifications"
	"github.com/proposalhub/proposalhub-backend/internal/proposals"
	pkgAuth "github.com/proposalhub/proposalhub-backend/pkg/auth"
	"github.com/proposalhub/proposalhub-backend/pkg/config"
	"github.com/proposalhub/proposalhub-backend/pkg/logger"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubBatcher struct{}

func (stubBatcher) Add(ctx context.Context, in batch.Input) (batch.Notification, error) {
	return batch.Notification{}, nil
}

func (stubBatcher) Pending(filter batch.PendingFilter) []batch.Notification {
	return nil
}

func (stubBatcher) Stats() batch.Stats {
	return batch.Stats{}
}

func (stubBatcher) ForceDeliverAll(ctx context.Context) error {
	return nil
}

type stubProposalsService struct{}

func (stubProposalsService) Create(ctx context.Context, ownerID uuid.UUID, input proposals.CreateInput) (*proposals.ProposalDTO, error) {
	return &proposals.ProposalDTO{}, nil
}

func (stubProposalsService) Get(ctx context.Context, userID, proposalID uuid.UUID, isAdmin bool) (*proposals.ProposalDTO, error) {
	return &proposals.ProposalDTO{}, nil
}

func (stubProposalsService) List(ctx context.Context, input proposals.ListInput) (*proposals.ListResult, error) {
	return &proposals.ListResult{}, nil
}

func (stubProposalsService) Update(ctx context.Context, ownerID, proposalID uuid.UUID, input proposals.UpdateInput) (*proposals.ProposalDTO, error) {
	return &proposals.ProposalDTO{}, nil
}

func (stubProposalsService) Submit(ctx context.Context, ownerID, proposalID uuid.UUID) (*proposals.ProposalDTO, error) {
	return &proposals.ProposalDTO{}, nil
}

func (stubProposalsService) Decide(ctx context.Context, reviewerID, proposalID uuid.UUID, approve bool, note string) (*proposals.ProposalDTO, error) {
	return &proposals.ProposalDTO{}, nil
}

func (stubProposalsService) RemindUpcomingDeadlines(ctx context.Context, window time.Duration) (int, error) {
	return 0, nil
}

type stubNotificationsService struct{}

func (stubNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotificationsService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return nil
}

func (stubNotificationsService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func (stubNotificationsService) UnreadCount(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
	}
}

func newTestRouter(cfg *config.Config) http.Handler {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		stubPinger{},
		nil,
		stubBatcher{},
		stubProposalsService{},
		stubNotificationsService{},
	)
}

func buildToken(t *testing.T, cfg *config.Config, role string) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for liveness got %d", resp.Code)
	}
}

func TestPrivateGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestPrivateGroupSucceedsWithJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, pkgAuth.RoleMember))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for private ping got %d", resp.Code)
	}
}

func TestAdminGroupRequiresAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	member := httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil)
	member.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, pkgAuth.RoleMember))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, member)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, pkgAuth.RoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}

func TestDecisionEndpointRequiresAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	url := "/api/v1/proposals/" + uuid.NewString() + "/decision"
	member := httptest.NewRequest(http.MethodPost, url, nil)
	member.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, pkgAuth.RoleMember))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, member)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for member decision got %d", resp.Code)
	}
}

func TestBatchStatsReachableByAdmin(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/notifications/stats", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, pkgAuth.RoleAdmin))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin stats got %d", resp.Code)
	}
}

func TestInboxListReachableByMember(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, pkgAuth.RoleMember))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for inbox list got %d", resp.Code)
	}
}
