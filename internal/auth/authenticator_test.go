package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/snapwall-app/snapwall/internal/api"
	"github.com/snapwall-app/snapwall/internal/models"
)

func resolveServer(t *testing.T, accessToken string, expiresAt *time.Time) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		access := map[string]any{
			"token":       accessToken,
			"permissions": models.SharePermissions{CanView: true},
		}
		if expiresAt != nil {
			access["expiresAt"] = expiresAt
		}
		json.NewEncoder(w).Encode(map[string]any{
			"event":  map[string]string{"id": "ev-1", "name": "Party"},
			"access": access,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "share",
		"exp": exp.Unix(),
	}).SignedString([]byte("server-side-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "auth.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.CachedCredential{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestResolveRecoversExpiryFromToken(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	srv := resolveServer(t, signedToken(t, exp), nil)

	cred, err := New(api.NewClient(srv.URL)).Resolve(context.Background(), "tok", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cred.ExpiresAt == nil {
		t.Fatal("expiry not recovered from token claims")
	}
	if !cred.ExpiresAt.Equal(exp) {
		t.Errorf("expiresAt = %v, want %v", cred.ExpiresAt, exp)
	}
}

func TestResolveKeepsServerExpiry(t *testing.T) {
	serverExp := time.Now().Add(30 * time.Minute).UTC().Truncate(time.Second)
	claimExp := time.Now().Add(4 * time.Hour)
	srv := resolveServer(t, signedToken(t, claimExp), &serverExp)

	cred, err := New(api.NewClient(srv.URL)).Resolve(context.Background(), "tok", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// The explicit response field wins over the token claim.
	if cred.ExpiresAt == nil || !cred.ExpiresAt.Equal(serverExp) {
		t.Errorf("expiresAt = %v, want %v", cred.ExpiresAt, serverExp)
	}
}

func TestResolveOpaqueTokenHasNoExpiry(t *testing.T) {
	srv := resolveServer(t, "not-a-jwt", nil)

	cred, err := New(api.NewClient(srv.URL)).Resolve(context.Background(), "tok", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if cred.ExpiresAt != nil {
		t.Errorf("expiresAt = %v for opaque token, want nil", cred.ExpiresAt)
	}
}

func TestFreshReturnsValidCredentialUnchanged(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("valid credential triggered a re-resolve")
	}))
	defer srv.Close()

	a := New(api.NewClient(srv.URL))
	future := time.Now().Add(time.Hour)
	cred := &models.ShareCredential{ShareToken: "tok", EventID: "ev", ExpiresAt: &future}

	got, err := a.Fresh(context.Background(), cred, "")
	if err != nil {
		t.Fatalf("fresh: %v", err)
	}
	if got != cred {
		t.Error("valid credential was replaced")
	}
}

func TestFreshReResolvesExpiredCredential(t *testing.T) {
	srv := resolveServer(t, "new-access", nil)

	a := New(api.NewClient(srv.URL))
	past := time.Now().Add(-time.Minute)
	cred := &models.ShareCredential{ShareToken: "tok", EventID: "ev-1", AccessToken: "stale", ExpiresAt: &past}

	got, err := a.Fresh(context.Background(), cred, "pw")
	if err != nil {
		t.Fatalf("fresh: %v", err)
	}
	if got.AccessToken != "new-access" {
		t.Errorf("access token = %q, want re-resolved one", got.AccessToken)
	}
}

func TestFreshNilCredentialFailsClosed(t *testing.T) {
	a := New(api.NewClient("http://unused.invalid"))
	if _, err := a.Fresh(context.Background(), nil, ""); !errors.Is(err, api.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestRememberRecallRoundTrip(t *testing.T) {
	db := testDB(t)
	a := New(nil)

	future := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	cred := &models.ShareCredential{
		ShareToken:  "tok",
		AccessToken: "access",
		EventID:     "ev-1",
		EventName:   "Party",
		Permissions: models.SharePermissions{CanView: true, CanUpload: true},
		ExpiresAt:   &future,
	}
	if err := a.Remember(db, cred); err != nil {
		t.Fatalf("remember: %v", err)
	}

	got, err := a.Recall(db, "tok")
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if got == nil {
		t.Fatal("remembered credential not found")
	}
	if got.AccessToken != "access" || got.EventName != "Party" || !got.Permissions.CanUpload {
		t.Errorf("recalled credential = %+v", got)
	}
}

func TestRecallUnknownTokenIsNil(t *testing.T) {
	db := testDB(t)
	got, err := New(nil).Recall(db, "never-seen")
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if got != nil {
		t.Errorf("recall returned %+v for unknown token", got)
	}
}

func TestRecallDropsExpiredRows(t *testing.T) {
	db := testDB(t)
	a := New(nil)

	past := time.Now().Add(-time.Minute)
	cred := &models.ShareCredential{ShareToken: "tok", AccessToken: "stale", EventID: "ev", ExpiresAt: &past}
	if err := a.Remember(db, cred); err != nil {
		t.Fatalf("remember: %v", err)
	}

	got, err := a.Recall(db, "tok")
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if got != nil {
		t.Error("expired cached credential was returned")
	}

	var n int64
	db.Model(&models.CachedCredential{}).Count(&n)
	if n != 0 {
		t.Errorf("expired row still cached (count=%d)", n)
	}
}

func TestForgetRemovesCachedCredential(t *testing.T) {
	db := testDB(t)
	a := New(nil)

	future := time.Now().Add(time.Hour)
	a.Remember(db, &models.ShareCredential{ShareToken: "tok", AccessToken: "a", EventID: "ev", ExpiresAt: &future})
	a.Forget(db, "tok")

	if got, _ := a.Recall(db, "tok"); got != nil {
		t.Error("credential survived Forget")
	}
}
