package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/snapwall-app/snapwall/internal/api"
	"github.com/snapwall-app/snapwall/internal/models"
)

// Authenticator resolves share tokens into scoped credentials and keeps
// them fresh. Every privileged operation must go through Fresh (or check
// Expired itself) immediately before use; an expired credential fails
// closed, it is never silently reused.
type Authenticator struct {
	api *api.Client
}

// New creates an Authenticator over the given REST client
func New(client *api.Client) *Authenticator {
	return &Authenticator{api: client}
}

// Resolve validates a share token (and optional password) against the
// server. The returned credential is immutable; on expiry call Resolve
// again rather than mutating it.
func (a *Authenticator) Resolve(ctx context.Context, token, password string) (*models.ShareCredential, error) {
	cred, err := a.api.ResolveShare(ctx, token, password)
	if err != nil {
		return nil, err
	}

	// Some deployments omit expiresAt in the resolve response and only
	// encode it inside the access token. Recover it from the registered
	// claims so local expiry checks still work.
	if cred.ExpiresAt == nil {
		if exp := tokenExpiry(cred.AccessToken); exp != nil {
			cred.ExpiresAt = exp
		}
	}

	log.Printf("🔑 Share resolved: event=%s upload=%v expires=%v",
		cred.EventID, cred.Permissions.CanUpload, cred.ExpiresAt)
	return cred, nil
}

// Expired is a pure check against the credential's expiry
func (a *Authenticator) Expired(cred *models.ShareCredential) bool {
	return cred.Expired(time.Now())
}

// Fresh returns the credential unchanged while it is still valid, or
// re-resolves it with the remembered token and password once it expired.
func (a *Authenticator) Fresh(ctx context.Context, cred *models.ShareCredential, password string) (*models.ShareCredential, error) {
	if cred != nil && !cred.Expired(time.Now()) {
		return cred, nil
	}
	if cred == nil {
		return nil, api.ErrInvalidToken
	}
	log.Printf("🔑 Credential expired, re-resolving: event=%s", cred.EventID)
	return a.Resolve(ctx, cred.ShareToken, password)
}

// tokenExpiry extracts the exp claim without verifying the signature.
// The client has no signing key; the server re-validates every request,
// so the claim is only used for the local fail-closed check.
func tokenExpiry(accessToken string) *time.Time {
	if accessToken == "" {
		return nil
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}

// Remember stores the credential in the local cache table so a guest's
// upload session can resume after a restart. Opt-in: nothing is persisted
// unless this is called.
func (a *Authenticator) Remember(db *gorm.DB, cred *models.ShareCredential) error {
	perms, err := json.Marshal(cred.Permissions)
	if err != nil {
		return err
	}
	row := models.CachedCredential{
		ShareToken:  cred.ShareToken,
		AccessToken: cred.AccessToken,
		EventID:     cred.EventID,
		EventName:   cred.EventName,
		Permissions: perms,
		ExpiresAt:   cred.ExpiresAt,
	}
	return db.Save(&row).Error
}

// Recall loads a previously remembered credential. Expired rows are
// deleted and reported as missing so the caller re-resolves.
func (a *Authenticator) Recall(db *gorm.DB, shareToken string) (*models.ShareCredential, error) {
	var row models.CachedCredential
	err := db.First(&row, "share_token = ?", shareToken).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	cred := &models.ShareCredential{
		ShareToken:  row.ShareToken,
		AccessToken: row.AccessToken,
		EventID:     row.EventID,
		EventName:   row.EventName,
		ExpiresAt:   row.ExpiresAt,
	}
	if len(row.Permissions) > 0 {
		if err := json.Unmarshal(row.Permissions, &cred.Permissions); err != nil {
			return nil, err
		}
	}

	if cred.Expired(time.Now()) {
		db.Delete(&models.CachedCredential{}, "share_token = ?", shareToken)
		return nil, nil
	}
	return cred, nil
}

// Forget drops a cached credential, if any
func (a *Authenticator) Forget(db *gorm.DB, shareToken string) {
	db.Delete(&models.CachedCredential{}, "share_token = ?", shareToken)
}
