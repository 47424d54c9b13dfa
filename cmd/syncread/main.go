package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/syncread/syncread/internal/config"
	"github.com/syncread/syncread/internal/display"
	"github.com/syncread/syncread/internal/logging"
	"github.com/syncread/syncread/internal/mpv"
	"github.com/syncread/syncread/internal/sync"
)

var (
	version = "0.1.0"
	cfgFile string

	bindAddr   string
	serverAddr string
	userID     string
	minimal    bool
)

var rootCmd = &cobra.Command{
	Use:   "syncread",
	Short: "Synchronized media viewer using MPV",
	Long: `SyncRead keeps a group of mpv instances on the same playlist position.
One participant runs the server; everyone runs a client pointed at it.`,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start a sync server (host mode)",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var clientCmd = &cobra.Command{
	Use:   "client <files...>",
	Short: "Connect to a sync server (client mode)",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runClient(args)
	},
}

var testCmd = &cobra.Command{
	Use:   "test <files...>",
	Short: "Test the MPV controller only (no networking)",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runTest(args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("SyncRead v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is syncread.yaml in the config dir)")

	serverCmd.Flags().StringVarP(&bindAddr, "bind", "b", "", "address to bind the server to")

	clientCmd.Flags().StringVarP(&serverAddr, "server", "s", "", "server address to connect to")
	clientCmd.Flags().StringVarP(&userID, "user-id", "u", "", "user id for this client (default is a generated one)")
	clientCmd.Flags().BoolVar(&minimal, "minimal", false, "minimal display: relative positions only")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(clientCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if bindAddr != "" {
		cfg.BindAddr = bindAddr
	}
	if serverAddr != "" {
		cfg.ServerAddr = serverAddr
	}
	if userID != "" {
		cfg.UserID = userID
	}
	if minimal {
		cfg.MinimalDisplay = true
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		}
		os.Exit(1)
	}
	return cfg
}

// setupLogging routes logs to the rotating file when the terminal belongs to
// the status display, which repaints the screen every refresh.
func setupLogging(cfg *config.Config, toFile bool) func() {
	if toFile {
		w, err := logging.NewRotatingWriter(cfg.DefaultLogFile(), cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		if err == nil {
			logging.Init(cfg.LogFormat, cfg.LogLevel, w)
			return func() { w.Close() }
		}
		fmt.Fprintf(os.Stderr, "Falling back to stderr logging: %v\n", err)
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, os.Stderr)
	return func() {}
}

func runServer() {
	cfg := loadConfig()
	closeLogs := setupLogging(cfg, true)
	defer closeLogs()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := sync.NewServer()

	view := &display.ServerView{Session: srv.Session(), Tolerance: cfg.SyncTolerance}
	go view.Run(ctx, os.Stdout)

	fmt.Printf("Starting sync server on %s\n", cfg.BindAddr)
	fmt.Printf("Clients can connect with: syncread client --server %s --user-id <name> <files...>\n", cfg.BindAddr)

	if err := srv.ListenAndServe(ctx, cfg.BindAddr); err != nil {
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("\nServer stopped")
}

func runClient(args []string) {
	cfg := loadConfig()
	closeLogs := setupLogging(cfg, true)
	defer closeLogs()

	id := cfg.UserID
	if id == "" {
		id = "reader-" + uuid.NewString()[:8]
	}

	files, err := mpv.ExpandMediaFiles(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load media: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "No media files found")
		os.Exit(1)
	}
	fmt.Printf("Loaded %d media files\n", len(files))

	keybindPath, err := mpv.NewSyncProfile().CreateTempConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write keybind config: %v\n", err)
		os.Exit(1)
	}
	defer os.Remove(keybindPath)

	ctrl, err := mpv.Launch(cfg.SocketPath(id), keybindPath, files, cfg.MpvBinary)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to launch mpv: %v\n", err)
		os.Exit(1)
	}
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := sync.NewClient(id, ctrl, files)
	client.SetPollInterval(time.Duration(cfg.PollIntervalMs) * time.Millisecond)

	view := &display.ClientView{
		Session: client.Session(),
		UserID:  id,
		Minimal: cfg.MinimalDisplay,
	}
	go view.Run(ctx, os.Stdout)

	runErr := client.Run(ctx, cfg.ServerAddr)

	// Tear down mpv before a potential exit; os.Exit skips defers.
	ctrl.Close()
	os.Remove(keybindPath)

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Sync client failed: %v\n", runErr)
		closeLogs()
		os.Exit(1)
	}
	fmt.Println("\nDisconnected")
}

func runTest(args []string) {
	cfg := loadConfig()
	closeLogs := setupLogging(cfg, false)
	defer closeLogs()

	files, err := mpv.ExpandMediaFiles(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load media: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "No media files found for testing")
		os.Exit(1)
	}
	fmt.Printf("Testing with %d files\n", len(files))

	keybindPath, err := mpv.NewSyncProfile().CreateTempConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write keybind config: %v\n", err)
		os.Exit(1)
	}
	defer os.Remove(keybindPath)

	ctrl, err := mpv.Launch(cfg.SocketPath("test"), keybindPath, files, cfg.MpvBinary)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to launch mpv: %v\n", err)
		os.Exit(1)
	}
	defer ctrl.Close()
	fmt.Println("MPV launched successfully")

	// Give mpv a moment to load the first file before poking it.
	time.Sleep(2 * time.Second)

	pos, _ := ctrl.GetPosition()
	playlistPos, _ := ctrl.GetPlaylistPos()
	paused, _ := ctrl.IsPaused()
	fmt.Printf("Initial state - Position: %.2fs, Playlist: %d, Paused: %v\n", pos, playlistPos, paused)

	if paused {
		fmt.Println("Starting playback...")
		if err := ctrl.Play(); err != nil {
			fmt.Fprintf(os.Stderr, "Play failed: %v\n", err)
		}
		time.Sleep(time.Second)
		fmt.Println("Pausing playback...")
		if err := ctrl.Pause(); err != nil {
			fmt.Fprintf(os.Stderr, "Pause failed: %v\n", err)
		}
	}

	fmt.Println("MPV controller test completed. Press 'q' in MPV to quit, or Ctrl+C here.")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	fmt.Println("\nShutting down...")
}
