package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bosley/voxlog/access"
	"github.com/bosley/voxlog/journal"
	"github.com/bosley/voxlog/library"
	"github.com/bosley/voxlog/player"
	"github.com/bosley/voxlog/recorder"
	"github.com/bosley/voxlog/retention"
	"github.com/bosley/voxlog/scribe"
	"github.com/bosley/voxlog/server"
	"github.com/bosley/voxlog/session"
	"github.com/bosley/voxlog/tui"
	"github.com/gordonklaus/portaudio"

	tea "github.com/charmbracelet/bubbletea"
)

// skipStep is how far the f and b playback commands move.
const skipStep = 5 * time.Second

func main() {
	recordingsDir := flag.String("dir", envOr("VOXLOG_DIR", "recordings"), "Directory for capture files")
	dbPath := flag.String("db", envOr("VOXLOG_DB", journal.DefaultDBPath()), "Path to the interaction journal")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	playFile := flag.String("play", "", "Play audio file")
	playRate := flag.Float64("rate", 1.0, "Playback rate used with -play")
	playSeek := flag.Duration("seek", 0, "Start position used with -play")
	listDevices := flag.Bool("list-devices", false, "List available audio input devices")
	deviceID := flag.Int("device", 0, "Audio input device ID to use, 0 for the default")
	pruneOnly := flag.Bool("prune", false, "Delete expired recordings and exit")
	maxAge := flag.Duration("max-age", retention.DefaultMaxAge, "How long recordings are kept")
	history := flag.Int("history", 0, "Print the last N saved interactions and exit")
	serve := flag.Bool("serve", false, "Serve the recording session over HTTP")
	httpAddr := flag.String("addr", "localhost:8444", "HTTP listen address used with -serve")
	certFile := flag.String("cert", "", "Path to server certificate file")
	keyFile := flag.String("key", "", "Path to server key file")
	useTUI := flag.Bool("tui", false, "Run the terminal interface")
	whisperPath := flag.String("whisper", "", "Path to whisper executable")
	whisperModel := flag.String("model", "", "Path to whisper model file")
	ffmpegPath := flag.String("ffmpeg", "ffmpeg", "Path to ffmpeg used for resampling")
	kind := flag.String("kind", "voice", "Kind recorded with saved interactions")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	// The TUI owns stdout.
	logOut := os.Stdout
	if *useTUI {
		logOut = os.Stderr
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	if *history > 0 {
		if err := printHistory(ctx, *dbPath, *history); err != nil {
			slog.Error("Failed to read journal", "error", err)
			os.Exit(1)
		}
		return
	}

	if *pruneOnly {
		if err := prune(ctx, *recordingsDir, *maxAge, *dbPath); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := portaudio.Initialize(); err != nil {
		slog.Error("Failed to initialize PortAudio", "error", err)
		os.Exit(1)
	}
	defer portaudio.Terminate()

	if *playFile != "" {
		if err := play(ctx, *playFile, *playRate, *playSeek); err != nil {
			slog.Error("Failed to play audio file", "error", err)
			os.Exit(1)
		}
		return
	}

	if *listDevices {
		devices, err := recorder.ListAudioDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}

		fmt.Println("Available audio input devices:")
		for i, device := range devices {
			fmt.Printf("[%d] %s\n", i, device.Name)
			fmt.Printf("    Max Input Channels: %d\n", device.MaxInputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
			fmt.Println()
		}
		return
	}

	// Retention runs before the first recording can start.
	if err := prune(ctx, *recordingsDir, *maxAge, *dbPath); err != nil {
		slog.Warn("Continuing after retention errors", "dir", *recordingsDir)
	}

	store, err := journal.Open(*dbPath)
	if err != nil {
		slog.Error("Failed to open journal", "error", err, "path", *dbPath)
		os.Exit(1)
	}
	defer store.Close()

	speech := *whisperPath != "" && *whisperModel != ""
	if !speech {
		slog.Warn("Whisper executable or model not set, recordings will not be transcribed")
	}
	gate := access.DeviceGate{Speech: speech}

	coord := scribe.New(scribe.Whisper{
		Path:   *whisperPath,
		Model:  *whisperModel,
		FFmpeg: *ffmpegPath,
	}, gate)
	defer coord.Close()

	rec := recorder.New(recorder.Config{Dir: *recordingsDir},
		recorder.PortAudioMicrophone{DeviceID: *deviceID}, gate, coord)
	recDone := make(chan struct{})
	go func() {
		defer close(recDone)
		if err := rec.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Recorder stopped", "error", err)
		}
	}()
	defer func() {
		cancel()
		<-recDone
	}()

	pipe := &session.Pipeline{Recorder: rec, Scribe: coord, Sink: store}

	switch {
	case *serve:
		catalog, err := library.New(*recordingsDir)
		if err != nil {
			slog.Error("Failed to open recordings catalog", "error", err)
			return
		}
		go catalog.Watch(ctx)

		token := os.Getenv("VOXLOG_TOKEN")
		if token == "" {
			slog.Warn("VOXLOG_TOKEN environment variable is not set, the API is unauthenticated")
		}
		srv := server.New(server.Config{
			Addr:     *httpAddr,
			CertFile: *certFile,
			KeyFile:  *keyFile,
			Token:    token,
		}, pipe, catalog, store)
		if err := srv.Run(ctx); err != nil {
			slog.Error("Server failed", "error", err)
		}

	case *useTUI:
		updates, unsubscribe := rec.Subscribe()
		defer unsubscribe()
		program := tea.NewProgram(tui.New(ctx, pipe, updates), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			slog.Error("Terminal interface failed", "error", err)
		}

	default:
		if err := recordOnce(ctx, pipe, *kind); err != nil {
			slog.Error("Recording failed", "error", err)
		}
	}

	slog.Debug("Program exiting")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// prune deletes expired recordings and detaches them from the journal.
// Failures are logged here; the returned error only tells the caller
// whether the pass was clean.
func prune(ctx context.Context, dir string, maxAge time.Duration, dbPath string) error {
	report, err := retention.New(retention.Config{Dir: dir, MaxAge: maxAge}).Prune()
	if err != nil {
		slog.Error("Some expired recordings could not be deleted", "error", err)
	}
	if len(report.Deleted) == 0 {
		return err
	}

	store, openErr := journal.Open(dbPath)
	if openErr != nil {
		slog.Error("Failed to open journal", "error", openErr, "path", dbPath)
		return errors.Join(err, openErr)
	}
	defer store.Close()

	n, detachErr := store.DetachAudio(ctx, report.Deleted)
	if detachErr != nil {
		slog.Error("Failed to detach deleted recordings", "error", detachErr)
		return errors.Join(err, detachErr)
	}
	slog.Debug("Detached deleted recordings from journal", "interactions", n)
	return err
}

func printHistory(ctx context.Context, dbPath string, limit int) error {
	store, err := journal.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	list, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	for _, in := range list {
		fmt.Printf("%s  %-6s %6.1fs  %s\n",
			in.OccurredAt.Format("2006-01-02 15:04:05"), in.Kind, in.DurationSeconds, in.Transcript)
	}
	return nil
}

// recordOnce records until Enter is pressed, then saves the interaction.
func recordOnce(ctx context.Context, pipe *session.Pipeline, kind string) error {
	path, err := pipe.Start()
	if err != nil {
		return err
	}
	fmt.Printf("Recording to %s. Press Enter to stop.\n", path)

	enter := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(enter)
	}()

	select {
	case <-enter:
	case <-ctx.Done():
		return ctx.Err()
	}

	rec, err := pipe.Stop()
	if err != nil {
		return err
	}
	fmt.Printf("Stopped after %s. Transcribing...\n", rec.Duration)

	saved, err := pipe.Save(ctx, kind)
	if saved.ID == "" {
		return err
	}
	if err != nil {
		slog.Warn("Saved without transcript", "error", err)
	}
	fmt.Printf("Saved %s\n%s\n", saved.ID, saved.Transcript)
	return nil
}

// play runs a file to the end. Lines on stdin control it: p toggles
// pause, f and b skip, q stops.
func play(ctx context.Context, path string, rate float64, seek time.Duration) error {
	ctrl := player.New(player.PortAudioOutput{})
	defer ctrl.Close()

	if err := ctrl.Load(path); err != nil {
		return err
	}
	if err := ctrl.SetRate(rate); err != nil {
		return err
	}
	if seek > 0 {
		if err := ctrl.Seek(seek); err != nil {
			return err
		}
	}
	if err := ctrl.Play(); err != nil {
		return err
	}
	status := ctrl.Status()
	fmt.Printf("Playing %s (%s at %.2fx). Commands: p pause, f forward, b back, q quit\n",
		status.File, status.Duration, status.Rate)

	commands := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			commands <- strings.TrimSpace(scanner.Text())
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ctrl.Finished():
			slog.Debug("Playback finished", "file", path)
			return nil
		case cmd := <-commands:
			var err error
			switch cmd {
			case "p":
				if ctrl.Status().State == player.StatePlaying {
					err = ctrl.Pause()
				} else {
					err = ctrl.Play()
				}
			case "f":
				err = ctrl.Skip(skipStep)
			case "b":
				err = ctrl.Skip(-skipStep)
			case "q":
				return ctrl.Stop()
			}
			if err != nil {
				slog.Warn("Playback command failed", "command", cmd, "error", err)
			}
			s := ctrl.Status()
			fmt.Printf("%s %s / %s\n", s.State, s.Position.Round(time.Second), s.Duration.Round(time.Second))
		}
	}
}
