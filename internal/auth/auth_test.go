package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coreos/go-oidc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"codeweave/backend/internal/config"
	"codeweave/backend/internal/storage"
	"codeweave/backend/pkg/models"
)

// NoOpLogger for testing
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, args ...any) {}
func (l *NoOpLogger) Info(msg string, args ...any)  {}
func (l *NoOpLogger) Error(msg string, args ...any) {}

// MockKeySet satisfies oidc.KeySet to bypass signature verification
type MockKeySet struct{}

func (m *MockKeySet) VerifySignature(ctx context.Context, jwtToken string) ([]byte, error) {
	parts := strings.Split(jwtToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed jwt")
	}
	return base64.RawURLEncoding.DecodeString(parts[1])
}

// MockUserAdapter satisfies storage.UserAdapter
type MockUserAdapter struct {
	mock.Mock
}

func (m *MockUserAdapter) GetByEmail(ctx context.Context, email string) (*models.UserProfile, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserProfile), args.Error(1)
}

func (m *MockUserAdapter) Create(ctx context.Context, rec *models.UserProfile) (*models.UserProfile, error) {
	args := m.Called(ctx, rec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.UserProfile), args.Error(1)
}

// Stubs for other interface methods to satisfy storage.UserAdapter
func (m *MockUserAdapter) Connect(ctx context.Context) error    { return nil }
func (m *MockUserAdapter) Disconnect(ctx context.Context) error { return nil }
func (m *MockUserAdapter) GetByID(ctx context.Context, id string) (*models.UserProfile, error) {
	return nil, nil
}
func (m *MockUserAdapter) GetByField(ctx context.Context, field string, value any) (*models.UserProfile, error) {
	return nil, nil
}
func (m *MockUserAdapter) GetByUsername(ctx context.Context, username string) (*models.UserProfile, error) {
	return nil, nil
}
func (m *MockUserAdapter) List(ctx context.Context, opts storage.ListOptions) ([]*models.UserProfile, error) {
	return nil, nil
}
func (m *MockUserAdapter) Update(ctx context.Context, id string, fields storage.Fields) (*models.UserProfile, error) {
	return nil, nil
}
func (m *MockUserAdapter) Delete(ctx context.Context, id string) (bool, error) { return false, nil }
func (m *MockUserAdapter) Count(ctx context.Context, filters storage.Filters) (int64, error) {
	return 0, nil
}
func (m *MockUserAdapter) ExecuteRaw(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	return nil, nil
}
func (m *MockUserAdapter) BeginTx(ctx context.Context) (storage.Tx, error)     { return nil, nil }
func (m *MockUserAdapter) CommitTx(ctx context.Context, tx storage.Tx) error   { return nil }
func (m *MockUserAdapter) RollbackTx(ctx context.Context, tx storage.Tx) error { return nil }

func fakeBearerToken(issuer, clientID, email string) string {
	claims := map[string]interface{}{
		"iss":   issuer,
		"aud":   clientID,
		"sub":   "test-user",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Add(-1 * time.Minute).Unix(),
		"email": email,
	}
	headerData := map[string]interface{}{
		"alg": "RS256",
		"typ": "JWT",
		"kid": "test-key",
	}
	headerBytes, _ := json.Marshal(headerData)
	payload, _ := json.Marshal(claims)
	signature := base64.RawURLEncoding.EncodeToString([]byte("fakesignature"))
	return base64.RawURLEncoding.EncodeToString(headerBytes) + "." +
		base64.RawURLEncoding.EncodeToString(payload) + "." + signature
}

func testVerifier(issuer, clientID string) *oidc.IDTokenVerifier {
	return oidc.NewVerifier(issuer, &MockKeySet{}, &oidc.Config{
		ClientID:          clientID,
		SkipClientIDCheck: true, // Matches logic in auth.go for apiVerifier
	})
}

func TestRequireAuth_BearerToken_ResolvesProfile(t *testing.T) {
	mockUsers := new(MockUserAdapter)
	profile := &models.UserProfile{
		ID:       "user-123",
		Username: "ada",
	}
	mockUsers.On("GetByEmail", mock.Anything, "ada@acme.com").Return(profile, nil)

	issuer := "https://test-issuer.com"
	clientID := "test-client"
	fakeToken := fakeBearerToken(issuer, clientID, "ada@acme.com")

	a := &Auth{
		apiVerifier: testVerifier(issuer, clientID),
		users:       mockUsers,
	}

	req := httptest.NewRequest("GET", "/api/v1/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+fakeToken)
	rec := httptest.NewRecorder()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := r.Context().Value(ContextUserID).(string)
		assert.True(t, ok, "user_id should be in context")
		assert.Equal(t, "user-123", userID)
		w.WriteHeader(http.StatusOK)
	})

	a.RequireAuth(nextHandler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Logf("Response Body: %s", rec.Body.String())
	}
	assert.Equal(t, http.StatusOK, rec.Code)
	mockUsers.AssertExpectations(t)
}

func TestRequireAuth_BypassMode(t *testing.T) {
	mockUsers := new(MockUserAdapter)
	// Expect profile lookup for dev@localhost and auto-provisioning
	mockUsers.On("GetByEmail", mock.Anything, "dev@localhost").Return(nil, nil)
	mockUsers.On("Create", mock.Anything, mock.MatchedBy(func(u *models.UserProfile) bool {
		return u.Username == "dev" && u.Preferences["email"] == "dev@localhost"
	})).Return(&models.UserProfile{ID: "dev-user-id", Username: "dev"}, nil)

	cfg := &config.Config{Environment: "DEV"}
	cfg.Auth.DevBypass = true

	a, err := New(context.Background(), cfg, mockUsers, &NoOpLogger{})
	assert.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/v1/workflows", nil)
	rec := httptest.NewRecorder()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := r.Context().Value(ContextUserID).(string)
		assert.True(t, ok)
		assert.Equal(t, "dev-user-id", userID)
		w.WriteHeader(http.StatusOK)
	})

	a.RequireAuth(nextHandler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	mockUsers.AssertExpectations(t)
}

func TestRequireAuth_AutoProvisionProfile(t *testing.T) {
	mockUsers := new(MockUserAdapter)
	// No profile exists for this email yet
	mockUsers.On("GetByEmail", mock.Anything, "founder@startup.io").Return(nil, nil)
	mockUsers.On("Create", mock.Anything, mock.MatchedBy(func(u *models.UserProfile) bool {
		return u.Username == "founder" && u.Preferences["email"] == "founder@startup.io"
	})).Return(&models.UserProfile{ID: "new-user-id", Username: "founder"}, nil)

	issuer := "https://test-issuer.com"
	clientID := "test-client"
	fakeToken := fakeBearerToken(issuer, clientID, "founder@startup.io")

	a := &Auth{
		apiVerifier: testVerifier(issuer, clientID),
		users:       mockUsers,
	}

	req := httptest.NewRequest("GET", "/api/v1/workflows", nil)
	req.Header.Set("Authorization", "Bearer "+fakeToken)
	rec := httptest.NewRecorder()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := r.Context().Value(ContextUserID).(string)
		assert.True(t, ok)
		assert.Equal(t, "new-user-id", userID)
		w.WriteHeader(http.StatusOK)
	})

	a.RequireAuth(nextHandler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Logf("Response Body: %s", rec.Body.String())
	}
	assert.Equal(t, http.StatusOK, rec.Code)
	mockUsers.AssertExpectations(t)
}

func TestNewRequiresCompleteConfig(t *testing.T) {
	cfg := &config.Config{Environment: "PROD"}
	_, err := New(context.Background(), cfg, new(MockUserAdapter), &NoOpLogger{})
	assert.Error(t, err)
}
