package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dense-identity/applink/internal/applink"
	"github.com/dense-identity/applink/internal/capturestore"
	"github.com/dense-identity/applink/internal/config"
	"github.com/dense-identity/applink/internal/sdl"
	"github.com/dense-identity/applink/internal/statusserver"
)

func main() {
	envFile := flag.String("env", "", "Path to .env file (overrides ENV_FILE)")
	verbose := flag.Bool("verbose", false, "Log every session event")
	flag.Parse()

	if *envFile != "" {
		os.Setenv("ENV_FILE", *envFile)
	}
	if err := config.LoadEnv(); err != nil {
		log.Fatalf("Failed to load env file: %v", err)
	}
	cfg, err := config.New[config.AppLinkConfig]()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := capturestore.New(ctx, capturestore.Options{
		Enabled:    cfg.RedisAddr != "",
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		DB:         cfg.RedisDB,
		AppID:      cfg.AppID,
		TTL:        cfg.HistoryTTL(),
		MaxEntries: int64(cfg.CaptureHistoryMax),
	})
	if err != nil {
		log.Fatalf("Failed to open capture history: %v", err)
	}
	defer store.Close()

	var status *statusserver.Server
	if cfg.StatusAddr != "" {
		status, err = statusserver.New(cfg.StatusAddr)
		if err != nil {
			log.Fatalf("Failed to start status server: %v", err)
		}
		go func() {
			if err := status.Serve(); err != nil {
				log.Printf("Status server error: %v", err)
			}
		}()
		defer status.Stop()
	}

	opts := applink.Options{
		NewProxy: func(listener sdl.Listener) (applink.Proxy, error) {
			p, err := sdl.NewProxy(sdl.Options{
				URL:        cfg.HeadUnitURL,
				AppName:    cfg.AppName,
				AppID:      cfg.AppID,
				IsMediaApp: cfg.IsMediaApp,
				Verbose:    cfg.Verbose,
			}, listener)
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		Overlay:        applink.NewScreenOverlay(renderLockScreen),
		ConnectTimeout: cfg.ConnectTimeout(),
		StopDelay:      cfg.StopDelay(),
		Capture: applink.AudioPassThruOptions{
			Dir:        cfg.CaptureDir,
			MaxRetries: cfg.APTMaxRetries,
		},
		Verbose: cfg.Verbose,
	}
	if player, err := applink.NewExecPlayer(cfg.PlayerCommand); err != nil {
		log.Printf("Playback disabled: %v", err)
	} else {
		opts.Capture.Player = player
	}
	if store != nil {
		opts.Capture.Recorder = store
	}
	if status != nil {
		opts.OnStatus = status.Report
	}

	// The loop outlives the signal context so Stop can still dispose the proxy
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()

	svc := applink.NewService(opts)
	go svc.Run(loopCtx)

	log.Println("===== AppLink Client Started =====")
	log.Printf("  App:       %s (%s, media=%v)", cfg.AppName, cfg.AppID, cfg.IsMediaApp)
	log.Printf("  Head unit: %s", cfg.HeadUnitURL)
	log.Printf("  Timeouts:  connect=%v stop=%v", cfg.ConnectTimeout(), cfg.StopDelay())
	log.Printf("  Captures:  %s (retries=%d)", cfg.CaptureDir, cfg.APTMaxRetries)
	log.Printf("  History:   %v", store != nil)
	if status != nil {
		log.Printf("  Status:    %s", status.Addr())
	}
	log.Println("==================================")
	log.Println("")
	log.Println("Commands:")
	log.Println("  start            - Start the service (proxy + connect timeout)")
	log.Println("  reset            - Cycle the proxy, or start it if absent")
	log.Println("  dispose          - Dispose the proxy")
	log.Println("  apt              - Start an audio pass-through capture")
	log.Println("  disconnect       - Report a link disconnect (starts stop delay)")
	log.Println("  unlock-reset     - Lock screen reset button")
	log.Println("  history [n]      - Show recent captures")
	log.Println("  status           - Show session status")
	log.Println("  quit             - Exit")
	log.Println("")

	svc.Start()
	go commandLoop(ctx, svc, store, stop)

	select {
	case <-ctx.Done():
	case <-svc.Done():
		log.Printf("Session shut down: %s", svc.ShutdownReason())
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Stop(stopCtx); err != nil {
		log.Printf("Stop: %v", err)
	}
	cancelLoop()
	log.Println("AppLink client stopped")
}

func renderLockScreen(visible bool) {
	if visible {
		fmt.Println("################ LOCK SCREEN ################")
		fmt.Println("#  Please keep your eyes on the road.       #")
		fmt.Println("#  Type 'unlock-reset' to reset the link.   #")
		fmt.Println("#############################################")
		return
	}
	fmt.Println("[lock screen cleared]")
}

// commandLoop reads commands from stdin
func commandLoop(ctx context.Context, svc *applink.Service, store *capturestore.Store, stop context.CancelFunc) {
	scanner := bufio.NewScanner(os.Stdin)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		switch parts[0] {
		case "start":
			svc.Start()

		case "reset":
			svc.Reset()

		case "dispose":
			svc.DisposeProxy()

		case "apt":
			if err := svc.StartCapture(ctx); err != nil {
				fmt.Printf("Capture failed: %v\n", err)
			} else {
				fmt.Println("Capture requested")
			}

		case "disconnect":
			svc.LinkDisconnected()

		case "unlock-reset":
			svc.ResetFromLockScreen()

		case "history":
			limit := int64(10)
			if len(parts) >= 2 {
				n, err := strconv.ParseInt(parts[1], 10, 64)
				if err != nil || n <= 0 {
					fmt.Println("Usage: history [n]")
					continue
				}
				limit = n
			}
			printHistory(ctx, store, limit)

		case "status":
			st, err := svc.Status(ctx)
			if err != nil {
				fmt.Printf("Status failed: %v\n", err)
				continue
			}
			fmt.Printf("session=%s proxy=%v connected=%v closed=%s\n",
				st.SessionID, st.HasProxy, st.Connected, st.LastCloseReason)
			if st.HMIReceived {
				fmt.Printf("hmi=%s audio=%s context=%s firstRunSeen=%v\n",
					st.HMI.HMILevel, st.HMI.AudioStreamingState, st.HMI.SystemContext, st.HMI.FirstRunSeen)
			}
			fmt.Printf("lockscreen=%s capturing=%v\n", st.LockScreen, st.CapturePending)

		case "quit", "exit":
			stop()
			return

		default:
			fmt.Printf("Unknown command: %s\n", parts[0])
		}
	}
}

func printHistory(ctx context.Context, store *capturestore.Store, limit int64) {
	if store == nil {
		fmt.Println("Capture history disabled (set REDIS_ADDR)")
		return
	}
	entries, err := store.History(ctx, limit)
	if err != nil {
		fmt.Printf("History failed: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("No captures yet")
		return
	}
	fmt.Printf("Recent captures (%d):\n", len(entries))
	for _, e := range entries {
		fmt.Printf("  - %s session=%s bytes=%d duration=%v retries=%d digest=%s\n",
			e.FinishedAt.Local().Format(time.DateTime), e.SessionID, e.Bytes, e.Duration, e.Retries, e.Digest[:min(len(e.Digest), 16)])
	}
}
