package cli

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajur/huddlelight/internal/app"
	"github.com/ajur/huddlelight/internal/diaglog"
	"github.com/ajur/huddlelight/internal/monitor"
)

const maxLogSize = 10 * 1024 * 1024

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon",
	Long: `Run the daemon: poll for meeting windows, serve the webhook control
plane and drive the configured lights while the bridge is reachable.

With no lights configured the daemon lists the lights the bridge reports
and exits, so a fresh install can fill in the config file.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}

	if err := initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	log.Println("===========================================")
	log.Println("Starting huddlelight v" + Version + "...")
	log.Printf("PID: %d", os.Getpid())
	log.Printf("Config: %s", path)
	log.Printf("Timestamp: %s", time.Now().Format(time.RFC3339))
	log.Println("===========================================")

	diaglog.Version = Version
	diag, err := diaglog.New(diagLogPath())
	if err != nil {
		log.Printf("[STARTUP] WARNING: could not open diagnostic log: %v (continuing)", err)
		diag = diaglog.NewNoOp()
	}
	defer func() { _ = diag.Close() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = app.Run(ctx, app.Options{ConfigPath: path, Diag: diag})
	if errors.Is(err, monitor.ErrDiscoveryDone) {
		return nil
	}
	if err != nil {
		return err
	}
	log.Println("[SHUTDOWN] huddlelight stopped")
	return nil
}

// initLogging mirrors everything written with the standard logger into a
// rotating file next to the cache dir, while keeping stderr output for
// interactive runs.
func initLogging() error {
	logPath := filepath.Join(logDir(), "huddlelight.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return err
	}

	if err := rotateLogIfNeeded(logPath, maxLogSize); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rotate log: %v\n", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[huddlelight] ")
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}

// rotateLogIfNeeded renames the log to .old once it exceeds maxSize bytes,
// replacing any previous .old.
func rotateLogIfNeeded(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxSize {
		return nil
	}

	oldPath := logPath + ".old"
	if err := os.Remove(oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove old log: %w", err)
	}
	return os.Rename(logPath, oldPath)
}

func logDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	return filepath.Join(home, ".cache", "huddlelight")
}

func diagLogPath() string {
	if p := os.Getenv("HUDDLELIGHT_LOG_PATH"); p != "" {
		return p
	}
	return filepath.Join(logDir(), "huddlelight-debug.log")
}
