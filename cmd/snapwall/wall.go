package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os/signal"
	"syscall"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/snapwall-app/snapwall/internal/api"
	"github.com/snapwall-app/snapwall/internal/auth"
	"github.com/snapwall-app/snapwall/internal/buildinfo"
	"github.com/snapwall-app/snapwall/internal/capture"
	"github.com/snapwall-app/snapwall/internal/channel"
	"github.com/snapwall-app/snapwall/internal/config"
	"github.com/snapwall-app/snapwall/internal/lifecycle"
	"github.com/snapwall-app/snapwall/internal/models"
	"github.com/snapwall-app/snapwall/internal/slideshow"
	"github.com/snapwall-app/snapwall/internal/status"
	"github.com/snapwall-app/snapwall/internal/wall"
)

var (
	wallToken    string
	wallPassword string
)

var wallCmd = &cobra.Command{
	Use:   "wall",
	Short: "Run the unattended photo wall display",
	RunE:  runWall,
}

func init() {
	wallCmd.Flags().StringVar(&wallToken, "token", "", "share token (default from SNAPWALL_SHARE_TOKEN)")
	wallCmd.Flags().StringVar(&wallPassword, "password", "", "share password if the token is protected")
	rootCmd.AddCommand(wallCmd)
}

func runWall(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	token := wallToken
	if token == "" {
		token = cfg.ShareToken
	}
	if token == "" {
		return fmt.Errorf("a share token is required (--token or SNAPWALL_SHARE_TOKEN)")
	}
	password := wallPassword
	if password == "" {
		password = cfg.SharePassword
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg.APIBaseURL)
	authn := auth.New(client)

	cred, err := authn.Resolve(ctx, token, password)
	if errors.Is(err, api.ErrPasswordRequired) {
		return fmt.Errorf("this share is password protected; pass --password")
	}
	if err != nil {
		return err
	}
	if !cred.Permissions.CanView {
		return fmt.Errorf("this share token does not allow viewing")
	}

	log.Printf("🎉 Event: %s (%s)", cred.EventName, cred.EventID)
	printJoinQR(cfg.JoinBaseURL, token)

	engine := wall.NewEngine(cred.EventID)
	ch := channel.New(channel.Config{
		URL:              cfg.ChannelURL,
		DialTimeout:      cfg.Channel.DialTimeout,
		HeartbeatTimeout: cfg.Channel.HeartbeatTimeout,
		BackoffBase:      cfg.Channel.BackoffBase,
		BackoffMax:       cfg.Channel.BackoffMax,
		BackoffJitter:    cfg.Channel.BackoffJitter,
		MaxRetries:       cfg.Channel.MaxRetries,
		ReorderWindow:    cfg.Channel.ReorderWindow,
	})

	coord := lifecycle.New()
	coord.BindChannel(ch)
	defer coord.Shutdown()

	var store *capture.Store
	if st, err := capture.Open(cfg.Capture.Path); err == nil {
		store = st
		defer store.Close()
	} else {
		log.Printf("⚠️ Capture store unavailable, queue depth not reported: %v", err)
	}

	statusSrv := status.New(cfg.Status.Addr, status.Sources{
		EventID:      cred.EventID,
		StartedAt:    buildinfo.StartTime,
		ChannelState: func() string { return ch.State().String() },
		PhotoCount:   engine.Len,
		QueueDepth: func() (int64, error) {
			if store == nil {
				return 0, capture.ErrStorageUnavailable
			}
			return store.Count()
		},
	})
	statusSrv.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		statusSrv.Shutdown(shutdownCtx)
		cancel()
	}()

	syncer := wall.NewSyncer(engine, ch, client, authn, cred, password)
	go func() {
		if err := syncer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("⛔ Syncer stopped: %v", err)
			stop()
		}
	}()

	images := wall.NewImageCache(64, 10*time.Minute, nil)
	sched := slideshow.New(slideshow.Config{
		Duration:  cfg.Slideshow.Duration,
		TickEvery: cfg.Slideshow.TickEvery,
	}, engine.Current)

	renderLoop(ctx, cfg.Slideshow.TickEvery, sched, images)
	return nil
}

// renderLoop drives the slideshow on a fixed cadence and logs each photo
// change. A graphical shell would swap the log lines for draw calls; the
// rotation contract is the same.
func renderLoop(ctx context.Context, tickEvery time.Duration, sched *slideshow.Scheduler, images *wall.ImageCache) {
	ticker := time.NewTicker(tickEvery)
	defer ticker.Stop()

	lastID := ""
	wasEmpty := false

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame := sched.Tick()
			if frame.Empty {
				if !wasEmpty {
					log.Printf("🖼  No photos yet, waiting for the first upload")
					wasEmpty = true
					lastID = ""
				}
				continue
			}
			wasEmpty = false

			if frame.Photo.ID != lastID {
				lastID = frame.Photo.ID
				log.Printf("🖼  Showing photo %s (#%d, seq=%d)", frame.Photo.ID, frame.Index, frame.Photo.Sequence)
				go func(p models.PhotoRecord) {
					if _, err := images.Fetch(ctx, p); err != nil {
						log.Printf("⚠️ Image fetch %s: %v", p.ID, err)
					}
				}(*frame.Photo)
			}
		}
	}
}

// printJoinQR renders the guest join URL as a terminal QR code
func printJoinQR(joinBase, token string) {
	joinURL := fmt.Sprintf("%s/%s", joinBase, url.PathEscape(token))
	q, err := qrcode.New(joinURL, qrcode.Medium)
	if err != nil {
		log.Printf("⚠️ QR code: %v", err)
		return
	}
	fmt.Println(q.ToSmallString(false))
	fmt.Printf("📱 Join at %s\n", joinURL)
}
