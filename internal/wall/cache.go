package wall

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/snapwall-app/snapwall/internal/models"
)

// ImageCache holds fetched image bytes for the display so the slideshow
// does not re-download the current rotation on every pass. Entries expire
// on TTL; the wall set itself stays canonical in the engine.
type ImageCache struct {
	cache  *expirable.LRU[string, []byte]
	client *http.Client
}

// NewImageCache creates an LRU of maxSize entries with the given TTL
func NewImageCache(maxSize int, ttl time.Duration, client *http.Client) *ImageCache {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ImageCache{
		cache:  expirable.NewLRU[string, []byte](maxSize, nil, ttl),
		client: client,
	}
}

// Fetch returns the image bytes for a photo, from cache when possible
func (ic *ImageCache) Fetch(ctx context.Context, photo models.PhotoRecord) ([]byte, error) {
	if data, ok := ic.cache.Get(photo.ID); ok {
		imageCacheHitsTotal.Inc()
		return data, nil
	}
	imageCacheMissesTotal.Inc()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photo.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := ic.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch image %s: %w", photo.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image %s: status %d", photo.ID, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	ic.cache.Add(photo.ID, data)
	return data, nil
}

// Forget drops a photo's bytes, e.g. after a PhotoRemoved event
func (ic *ImageCache) Forget(photoID string) {
	ic.cache.Remove(photoID)
}
