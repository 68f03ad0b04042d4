package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/panicsave/panicsave/internal/config"
	"github.com/panicsave/panicsave/internal/daemon"
	"github.com/panicsave/panicsave/internal/database"
	"github.com/panicsave/panicsave/internal/lifecycle"
	"github.com/panicsave/panicsave/internal/logging"
	"github.com/panicsave/panicsave/internal/metrics"
	"github.com/panicsave/panicsave/internal/reporter"
	"github.com/panicsave/panicsave/internal/saver"
	"github.com/panicsave/panicsave/internal/tracker"
	"github.com/panicsave/panicsave/internal/web"
	"github.com/panicsave/panicsave/pkg/detector"
	"github.com/panicsave/panicsave/pkg/integrations/process"
	"github.com/panicsave/panicsave/pkg/window"
)

var (
	version = "0.1.0"
	commit  = "unknown"
	date    = "unknown"
)

const (
	appName = "panicsave"

	daemonChildEnv = "PANICSAVE_DAEMON_CHILD"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "run":
		runForeground()
	case "start":
		startDaemon()
	case "stop":
		stopDaemon()
	case "status":
		showStatus()
	case "closing":
		announceClosing()
	case "history":
		showHistory()
	case "clear":
		clearJournal()
	case "watch":
		watchFocus()
	case "version":
		fmt.Printf("%s version %s\n", appName, version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`panicsave - save everything when focus leaves the host application

Usage:
  panicsave <command> [options]

Commands:
  run [pid|name]          Watch the host in the foreground
  start [pid|name]        Watch the host in a background daemon
  stop                    Stop the daemon
  status                  Show daemon status and the current focused window
  closing                 Tell the daemon the host is shutting down
  history [period] [--json]
                          Show journaled saves (period: day, week, month)
  clear                   Delete the save journal
  watch [seconds]         Print raw foreground changes
  version                 Show version information
  help                    Show this help message

Examples:
  panicsave run soffice.bin
  PANICSAVE_SAVE_COMMAND="xdotool,key,--window,{window},ctrl+s" panicsave start 4242
  panicsave history week --json

Environment Variables:
  PANICSAVE_CONFIG                    Config file (default %s)
  PANICSAVE_HOST_PID                  Host process id
  PANICSAVE_HOST_PROCESS              Host process name
  PANICSAVE_SAVE_COMMAND              Save command, comma separated
  PANICSAVE_SAVE_TIMEOUT              Save timeout (e.g. 10s)
  PANICSAVE_LIFECYCLE_WATCH_PROCESS   Stop when the host exits (true/false)
  PANICSAVE_LOGGING_LEVEL             debug, info, warn, error
  PANICSAVE_DATABASE_ENABLED          Journal saves in SQLite (true/false)
  PANICSAVE_WEB_ENABLED               Serve the HTTP API (true/false)

Version: %s
`, config.DefaultPath(), version)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func loadConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

// applyHostArg lets the host be given as the first command argument
func applyHostArg(cfg *config.Config) {
	if len(os.Args) < 3 {
		return
	}
	arg := os.Args[2]
	if pid, err := strconv.Atoi(arg); err == nil {
		cfg.Host.PID = pid
		cfg.Host.Process = ""
		return
	}
	cfg.Host.PID = 0
	cfg.Host.Process = arg
}

func validatedConfig() *config.Config {
	cfg := loadConfig()
	applyHostArg(cfg)
	if err := cfg.Validate(); err != nil {
		fatalf("Invalid configuration: %v", err)
	}
	if err := cfg.ValidateHost(); err != nil {
		fatalf("Invalid configuration: %v", err)
	}
	return cfg
}

func ensureNotRunning(dm *daemon.Daemon) {
	running, pid, err := dm.IsRunning()
	if err != nil {
		fatalf("Failed to check daemon status: %v", err)
	}
	if running {
		fatalf("Daemon is already running (PID: %d)", pid)
	}
}

func runForeground() {
	cfg := validatedConfig()
	dm := daemon.New(cfg.Daemon.PIDFile)
	ensureNotRunning(dm)

	if err := run(cfg, dm, false); err != nil {
		fatalf("%v", err)
	}
}

func startDaemon() {
	cfg := validatedConfig()
	dm := daemon.New(cfg.Daemon.PIDFile)

	if os.Getenv(daemonChildEnv) == "1" {
		if err := run(cfg, dm, true); err != nil {
			os.Exit(1)
		}
		return
	}

	ensureNotRunning(dm)

	pid, err := daemonize()
	if err != nil {
		fatalf("Failed to start daemon process: %v", err)
	}

	fmt.Printf("Daemon started successfully (PID: %d)\n", pid)
	if cfg.Web.Enabled {
		fmt.Printf("Web API available at: http://%s\n", cfg.WebAddress())
	}
	fmt.Printf("Logs: %s\n", cfg.Logging.File)
}

func newLogger(cfg *config.Config, daemonized bool) (*logging.Logger, error) {
	logCfg := logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stderr"},
	}
	if daemonized && cfg.Logging.File != "" {
		logCfg.OutputPaths = []string{cfg.Logging.File}
	}
	return logging.New(logCfg)
}

// run wires every component and blocks until a shutdown signal arrives or
// the host process exits
func run(cfg *config.Config, dm *daemon.Daemon, daemonized bool) error {
	log, err := newLogger(cfg, daemonized)
	if err != nil {
		return errors.Wrap(err, "failed to create logger")
	}
	defer log.Close()

	var repo *database.Repository
	if cfg.Database.Enabled {
		db, err := database.Connect(cfg.Database.Path)
		if err != nil {
			log.Error("failed to open journal", zap.Error(err))
			return err
		}
		defer db.Close()

		if err := db.Initialize(); err != nil {
			log.Error("failed to initialize journal", zap.Error(err))
			return err
		}
		repo = database.NewRepository(db)
		log.Info("journal opened", zap.String("path", db.Path()))
	}

	commandSaver, err := saver.NewCommandSaver(cfg.Save.Command)
	if err != nil {
		log.Error("invalid save command", zap.Error(err))
		return err
	}

	hooker, err := detector.New(log.Component("detector"))
	if err != nil {
		log.Error("failed to initialize focus backend", zap.Error(err))
		return err
	}
	defer hooker.Close()

	log.Info("focus backend initialized", zap.String("display_server", hooker.DisplayServer()))

	if err := dm.WritePID(); err != nil {
		log.Error("failed to write PID file", zap.Error(err))
		return err
	}
	defer dm.RemovePID()

	m := metrics.New()
	svc := tracker.NewService(cfg, hooker, repo, m, commandSaver, log.Component("tracker"))

	var webServer *web.Server
	if cfg.Web.Enabled {
		handler := web.NewHandler(svc, repo, m.Handler(), log.Component("web"))
		webServer = web.NewServer(cfg, handler, log.Component("web"))
		go func() {
			if err := webServer.Start(); err != nil {
				log.Error("web server error", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	log.Info("starting panicsave", zap.String("config", cfg.String()))

	err = svc.Start(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		err = nil
	case errors.Is(err, tracker.ErrHostExited):
		log.Info("host exited, nothing left to watch")
		err = nil
	case err != nil:
		log.Error("tracker error", zap.Error(err))
	}

	if webServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if serr := webServer.Shutdown(shutdownCtx); serr != nil {
			log.Warn("error shutting down web server", zap.Error(serr))
		}
	}

	log.Info("panicsave stopped")
	return err
}

func stopDaemon() {
	cfg := loadConfig()
	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		fatalf("Failed to check daemon status: %v", err)
	}
	if !running {
		fmt.Println("Daemon is not running")
		return
	}
	fmt.Printf("Stopping daemon (PID: %d)...\n", pid)
	if err := dm.Stop(); err != nil {
		fatalf("Failed to stop daemon: %v", err)
	}
	fmt.Println("Daemon stopped successfully")
}

func showStatus() {
	cfg := loadConfig()
	dm := daemon.New(cfg.Daemon.PIDFile)
	running, pid, err := dm.IsRunning()
	if err != nil {
		fatalf("Failed to check daemon status: %v", err)
	}
	if !running {
		fmt.Println("Status: Not running")
	} else {
		fmt.Printf("Status: Running (PID: %d)\n", pid)
		if cfg.Web.Enabled {
			fmt.Printf("Web API: http://%s\n", cfg.WebAddress())
		}
	}

	if cfg.Database.Enabled {
		showLatestSave(cfg)
	}

	hooker, err := detector.New(nil)
	if err != nil {
		fmt.Printf("\nCould not detect current window: %v\n", err)
		return
	}
	defer hooker.Close()

	info, err := hooker.FocusedWindow()
	if err == nil && info != nil {
		fmt.Printf("\nCurrent Window:\n")
		fmt.Printf("  App: %s\n", info.AppName)
		fmt.Printf("  Title: %s\n", info.WindowTitle)
		fmt.Printf("  PID: %d\n", info.PID)
		fmt.Printf("  Display: %s\n", info.DisplayServer)
	}
}

func showLatestSave(cfg *config.Config) {
	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		return
	}
	defer db.Close()

	latest, err := database.NewRepository(db).GetLatestSave()
	if err != nil || latest == nil {
		return
	}

	outcome := "ok"
	if !latest.Success {
		outcome = "failed: " + latest.ErrorMsg
	}
	fmt.Printf("Last save: %s (%s, focus went to %s)\n",
		latest.Timestamp.Format(time.RFC3339), outcome, latest.TargetApp)
}

// announceClosing marks the host as closing in the running daemon, through
// the HTTP API when enabled and the closing signal otherwise
func announceClosing() {
	cfg := loadConfig()

	if cfg.Web.Enabled {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Post("http://"+cfg.WebAddress()+"/api/closing", "application/json", nil)
		if err != nil {
			fatalf("Failed to reach daemon: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			fatalf("Daemon answered %s", resp.Status)
		}
		fmt.Println("Host marked as closing")
		return
	}

	sigs := lifecycle.CloseSignals()
	if len(sigs) == 0 {
		fatalf("No closing signal on this platform; enable the web API (PANICSAVE_WEB_ENABLED=true)")
	}

	dm := daemon.New(cfg.Daemon.PIDFile)
	if err := dm.Signal(sigs[0]); err != nil {
		fatalf("Failed to signal daemon: %v", err)
	}
	fmt.Println("Host marked as closing")
}

func openJournal(cfg *config.Config) (*database.DB, *database.Repository) {
	db, err := database.Connect(cfg.Database.Path)
	if err != nil {
		fatalf("Failed to connect to database: %v", err)
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		fatalf("Failed to initialize database: %v", err)
	}
	return db, database.NewRepository(db)
}

func showHistory() {
	periodType := "day"
	jsonOutput := false
	for _, arg := range os.Args[2:] {
		if arg == "--json" {
			jsonOutput = true
		} else {
			periodType = arg
		}
	}

	cfg := loadConfig()
	db, repo := openJournal(cfg)
	defer db.Close()

	rep := reporter.New(repo)
	report, err := rep.GenerateReport(periodType)
	if err != nil {
		fatalf("Failed to generate report: %v", err)
	}

	if jsonOutput {
		jsonStr, err := rep.FormatReportJSON(report)
		if err != nil {
			fatalf("Failed to format JSON: %v", err)
		}
		fmt.Println(jsonStr)
		return
	}
	fmt.Println(rep.FormatReportText(report))
}

func clearJournal() {
	cfg := loadConfig()
	fmt.Print("This will delete the save journal. Are you sure? (yes/no): ")
	var response string
	fmt.Scanln(&response)
	if response != "yes" && response != "y" {
		fmt.Println("Operation cancelled")
		return
	}

	db, repo := openJournal(cfg)
	defer db.Close()

	if err := repo.Clear(); err != nil {
		fatalf("Failed to clear database: %v", err)
	}
	fmt.Println("Journal cleared successfully")
}

// watchFocus prints every foreground change, which helps to find the host
// pid and to check that the backend sees the session
func watchFocus() {
	duration := 30 * time.Second
	if len(os.Args) > 2 {
		seconds, err := strconv.Atoi(os.Args[2])
		if err != nil || seconds <= 0 {
			fatalf("Invalid duration: %s", os.Args[2])
		}
		duration = time.Duration(seconds) * time.Second
	}

	hooker, err := detector.New(nil)
	if err != nil {
		fatalf("Failed to initialize focus backend: %v", err)
	}
	defer hooker.Close()

	events := make(chan window.Event, 64)
	handle, err := hooker.Register(window.HookSpec{
		EventMin: window.EventSystemForeground,
		EventMax: window.EventSystemForeground,
	}, func(ev window.Event) {
		select {
		case events <- ev:
		default:
		}
	})
	if err != nil {
		fatalf("Failed to register hook: %v", err)
	}
	defer hooker.Unregister(handle)

	fmt.Printf("Watching foreground changes on %s for %v\n", hooker.DisplayServer(), duration)
	fmt.Println("Switch between applications to see them here")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	timeout := time.After(duration)
	for {
		select {
		case ev := <-events:
			fmt.Printf("[%s] window=%#x pid=%d process=%s\n",
				ev.Time.Format("15:04:05"), ev.Window, ev.ProcessID, process.Name(int32(ev.ProcessID)))
		case <-timeout:
			return
		case <-sigChan:
			return
		}
	}
}
