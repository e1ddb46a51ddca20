// Command storyctl - терминальный клиент плеера историй.
// Прогресс хранится в файлах, поэтому историю одной вкладки (--tab)
// можно продолжать между запусками.
package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"story-player/internal/clients"
	"story-player/internal/logger"
	"story-player/internal/repository"
	"story-player/internal/service"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	apiURL       string
	apiTimeout   time.Duration
	dataDir      string
	tabID        string
	logLevel     string
	pollInterval time.Duration
	pollAttempts int
}

// app - зависимости одного запуска команды.
type app struct {
	api    clients.StoryAPIClient
	player *service.Player
	out    io.Writer
	in     io.Reader
	logger *zap.Logger
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "storyctl",
		Short:         "Play personalized bedtime stories from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.apiURL, "api", envOr("STORY_API_BASE_URL", "http://localhost:8000"), "Story backend base URL")
	flags.DurationVar(&opts.apiTimeout, "timeout", 60*time.Second, "Story backend request timeout")
	flags.StringVar(&opts.dataDir, "data-dir", envOr("SESSION_FILE_DIR", "./data/sessions"), "Directory for saved sessions")
	flags.StringVar(&opts.tabID, "tab", "cli", "Session slot, like a browser tab")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.DurationVar(&opts.pollInterval, "poll-interval", service.DefaultPollInterval, "Interval between branch readiness checks")
	flags.IntVar(&opts.pollAttempts, "poll-attempts", service.DefaultPollMaxAttempts, "Branch readiness checks before giving up")

	cmd.AddCommand(
		healthCmd(opts),
		startCmd(opts),
		playCmd(opts),
		showCmd(opts),
		resetCmd(opts),
	)
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newApp собирает клиента, файловое хранилище и плеер вкладки.
func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	log, err := logger.New(logger.Config{Level: opts.logLevel, Encoding: "console", OutputPath: "stderr", Env: "production"})
	if err != nil {
		return nil, err
	}
	api, err := clients.NewStoryAPIClient(opts.apiURL, opts.apiTimeout, log)
	if err != nil {
		return nil, err
	}
	storage, err := repository.NewFileSessionStorage(opts.dataDir, log)
	if err != nil {
		return nil, err
	}
	store := repository.NewSessionStore(storage, opts.tabID, log)
	poller := service.NewBranchPoller(api, opts.pollInterval, opts.pollAttempts, log)

	return &app{
		api:    api,
		player: service.NewPlayer(api, store, poller, log),
		out:    cmd.OutOrStdout(),
		in:     cmd.InOrStdin(),
		logger: log,
	}, nil
}

func (a *app) close() {
	a.player.Close()
	_ = a.logger.Sync()
}
