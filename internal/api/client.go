package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/snapwall-app/snapwall/internal/models"
)

// Client talks to the snapwall REST API: share resolution, photo
// snapshots and uploads. All other endpoints (event CRUD, albums, users)
// belong to the web app and are not consumed here.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPClient builds the tuned HTTP client shared by REST calls
func NewHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext:     dialer.DialContext,
			MaxIdleConns:    100,
			IdleConnTimeout: 90 * time.Second,
		},
	}
}

// NewClient creates a REST client for the given base URL
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: NewHTTPClient(),
	}
}

type resolveRequest struct {
	Token    string `json:"token"`
	Password string `json:"password,omitempty"`
}

type resolveResponse struct {
	Event struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"event"`
	Access struct {
		Token       string                  `json:"token"`
		Permissions models.SharePermissions `json:"permissions"`
		ExpiresAt   *time.Time              `json:"expiresAt,omitempty"`
	} `json:"access"`
}

// ResolveShare exchanges a share token (and optional password) for a
// scoped credential and event metadata.
func (c *Client) ResolveShare(ctx context.Context, token, password string) (*models.ShareCredential, error) {
	body, err := json.Marshal(resolveRequest{Token: token, Password: password})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/shares/resolve", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("resolve share: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized:
		return nil, ErrPasswordRequired
	case http.StatusNotFound:
		return nil, ErrInvalidToken
	case http.StatusGone:
		return nil, ErrEventUnavailable
	default:
		return nil, fmt.Errorf("resolve share: unexpected status %d", resp.StatusCode)
	}

	var rr resolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("resolve share: decode: %w", err)
	}

	return &models.ShareCredential{
		ShareToken:  token,
		AccessToken: rr.Access.Token,
		EventID:     rr.Event.ID,
		EventName:   rr.Event.Name,
		Permissions: rr.Access.Permissions,
		ExpiresAt:   rr.Access.ExpiresAt,
	}, nil
}

// FetchSnapshot returns the full point-in-time photo listing for the
// credential's event. Used to seed the wall and to reconcile after a
// connectivity gap.
func (c *Client) FetchSnapshot(ctx context.Context, cred *models.ShareCredential) ([]models.PhotoRecord, error) {
	if cred.Expired(time.Now()) {
		return nil, ErrCredentialExpired
	}

	url := fmt.Sprintf("%s/api/events/%s/photos", c.BaseURL, cred.EventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrUnauthorized
	case http.StatusGone:
		return nil, ErrEventUnavailable
	default:
		return nil, fmt.Errorf("fetch snapshot: unexpected status %d", resp.StatusCode)
	}

	var photos []models.PhotoRecord
	if err := json.NewDecoder(resp.Body).Decode(&photos); err != nil {
		return nil, fmt.Errorf("fetch snapshot: decode: %w", err)
	}
	return photos, nil
}

// UploadPhoto sends one captured payload to the event. Compression and
// resizing happen server-side in the pic-upload service; the payload goes
// up as-is. On success the server-assigned PhotoRecord is returned and the
// caller may delete its local copy.
func (c *Client) UploadPhoto(ctx context.Context, cred *models.ShareCredential, payload []byte) (*models.PhotoRecord, error) {
	if cred.Expired(time.Now()) {
		return nil, ErrCredentialExpired
	}
	if !cred.Permissions.CanUpload {
		return nil, ErrUnauthorized
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("photo", "capture.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(payload); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/events/%s/photos", c.BaseURL, cred.EventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload photo: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrUnauthorized
	case http.StatusGone:
		return nil, ErrEventUnavailable
	default:
		// Drain so the connection can be reused, then report.
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("upload photo: unexpected status %d", resp.StatusCode)
	}

	var photo models.PhotoRecord
	if err := json.NewDecoder(resp.Body).Decode(&photo); err != nil {
		return nil, fmt.Errorf("upload photo: decode: %w", err)
	}
	return &photo, nil
}
