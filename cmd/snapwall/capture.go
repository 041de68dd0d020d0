package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/snapwall-app/snapwall/internal/api"
	"github.com/snapwall-app/snapwall/internal/auth"
	"github.com/snapwall-app/snapwall/internal/capture"
	"github.com/snapwall-app/snapwall/internal/config"
	"github.com/snapwall-app/snapwall/internal/models"
)

var (
	captureToken    string
	capturePassword string
	captureDrain    bool
	captureRemember bool
)

var captureCmd = &cobra.Command{
	Use:   "capture [image files...]",
	Short: "Queue captured photos locally and upload them when possible",
	Long: `Capture appends image files to the durable local queue. Queued images
survive restarts and are only removed after the server acknowledges the
upload, so a dead network at capture time never loses a photo.

With --drain the queue is pushed to the event until it is empty.`,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().StringVar(&captureToken, "token", "", "share token (default from SNAPWALL_SHARE_TOKEN)")
	captureCmd.Flags().StringVar(&capturePassword, "password", "", "share password if the token is protected")
	captureCmd.Flags().BoolVar(&captureDrain, "drain", false, "upload queued captures after enqueueing")
	captureCmd.Flags().BoolVar(&captureRemember, "remember", false, "cache the resolved credential locally for later drains")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, storeErr := openStore(cfg)
	if storeErr != nil {
		log.Printf("⚠️ %v: captures will NOT survive this session", storeErr)
	} else {
		defer store.Close()
	}

	// Images that could not be persisted are held in memory as a last
	// resort so a --drain in the same invocation can still ship them.
	var volatile [][]byte

	for _, path := range args {
		payload, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		if store == nil {
			volatile = append(volatile, payload)
			log.Printf("⚠️ %s held in memory only", path)
			continue
		}
		id, err := store.Enqueue(payload)
		if errors.Is(err, capture.ErrStorageUnavailable) {
			volatile = append(volatile, payload)
			log.Printf("⚠️ %s held in memory only: %v", path, err)
			continue
		}
		if err != nil {
			return err
		}
		log.Printf("📦 Queued %s as capture %d", path, id)
	}

	if !captureDrain && len(volatile) == 0 {
		return nil
	}

	client := api.NewClient(cfg.APIBaseURL)
	authn := auth.New(client)
	cred, err := resolveForCapture(ctx, cfg, authn, store)
	if err != nil {
		return err
	}
	if !cred.Permissions.CanUpload {
		return fmt.Errorf("this share token does not allow uploads")
	}

	// Volatile images first: they are gone when the process exits.
	for i, payload := range volatile {
		if _, err := client.UploadPhoto(ctx, cred, payload); err != nil {
			return fmt.Errorf("upload in-memory capture %d: %w", i, err)
		}
		log.Printf("⬆️  In-memory capture %d uploaded", i)
	}

	if store == nil || !captureDrain {
		return nil
	}

	uploader := capture.NewUploader(store, client, authn, cred, capturePassword, cfg.Capture.SweepEvery)
	for {
		n, err := uploader.DrainOnce(ctx)
		if err != nil {
			return err
		}
		remaining, err := store.Count()
		if err != nil {
			return err
		}
		if remaining == 0 {
			log.Printf("✅ Queue drained (%d uploaded this pass)", n)
			return nil
		}
		log.Printf("⏳ %d capture(s) still queued, retrying", remaining)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Capture.SweepEvery):
		}
	}
}

func openStore(cfg *config.Config) (*capture.Store, error) {
	var opts []capture.Option
	if cfg.Capture.SealKey != "" {
		sealer, err := capture.NewSealer(cfg.Capture.SealKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, capture.WithSealer(sealer))
	}
	return capture.Open(cfg.Capture.Path, opts...)
}

// resolveForCapture reuses a remembered credential when possible and
// otherwise resolves the share, caching the result when --remember is on.
func resolveForCapture(ctx context.Context, cfg *config.Config, authn *auth.Authenticator, store *capture.Store) (*models.ShareCredential, error) {
	token := captureToken
	if token == "" {
		token = cfg.ShareToken
	}
	if token == "" {
		return nil, fmt.Errorf("a share token is required (--token or SNAPWALL_SHARE_TOKEN)")
	}
	password := capturePassword
	if password == "" {
		password = cfg.SharePassword
	}

	if store != nil {
		if cred, err := authn.Recall(store.DB(), token); err == nil && cred != nil {
			log.Printf("🔑 Using remembered credential for event %s", cred.EventID)
			return cred, nil
		}
	}

	cred, err := authn.Resolve(ctx, token, password)
	if errors.Is(err, api.ErrPasswordRequired) {
		return nil, fmt.Errorf("this share is password protected; pass --password")
	}
	if err != nil {
		return nil, err
	}

	if captureRemember && store != nil {
		if err := authn.Remember(store.DB(), cred); err != nil {
			log.Printf("⚠️ Could not cache credential: %v", err)
		}
	}
	return cred, nil
}
