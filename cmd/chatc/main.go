package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/youruser/chatc/internal/api"
	"github.com/youruser/chatc/internal/chat"
	"github.com/youruser/chatc/internal/config"
	"github.com/youruser/chatc/internal/conversation"
	"github.com/youruser/chatc/internal/logging"
	"github.com/youruser/chatc/internal/refresh"
	"github.com/youruser/chatc/internal/transcript"
	"github.com/youruser/chatc/internal/tui"
)

//go:embed version.txt
var version string

// buildCommit is set via -ldflags or falls back to VCS info from debug.ReadBuildInfo.
var buildCommit string

var log = logging.Get()

// getBuildCommit returns the short commit hash, resolving from VCS build info if needed.
func getBuildCommit() string {
	if buildCommit != "" {
		return buildCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && len(setting.Value) >= 7 {
			return setting.Value[:7]
		}
	}
	return ""
}

func versionString() string {
	v := strings.TrimSpace(version)
	if commit := getBuildCommit(); commit != "" {
		return v + " (" + commit + ")"
	}
	return v
}

const usage = `usage: chatc [--version | --build | --config]

Environment:
  CHATC_BASE_URL    backend URL (overrides base_url)
  CHATC_TRANSPORT   buffered, sse, raw-get or raw-post (overrides transport)
  CHATC_DEBUG=1     write a debug log to ~/.chatc/logs
`

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v":
			fmt.Printf("chatc %s\n", versionString())
			return
		case "--build":
			if commit := getBuildCommit(); commit != "" {
				fmt.Println(commit)
			} else {
				fmt.Println("unknown")
			}
			return
		case "--config":
			path, err := config.Path()
			if err != nil {
				fmt.Fprintf(os.Stderr, "chatc: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(path)
			return
		case "--help", "-h":
			fmt.Print(usage)
			return
		default:
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
	}

	defer log.Close()
	log.Info("chatc %s; go=%s", versionString(), runtime.Version())

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatc: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrInvalidJSON) {
			path, _ := config.Path()
			return fmt.Errorf("%w (fix or remove %s)", err, path)
		}
		return err
	}
	log.Info("Backend %s, transport %s, refresh delay %s", cfg.BaseURL, cfg.Transport, cfg.RefreshDelayDuration())

	mode, err := api.ParseMode(cfg.Transport)
	if err != nil {
		return err
	}

	client := api.NewClient(cfg.BaseURL, cfg.RequestTimeoutDuration())
	transport, err := api.NewTransport(client, mode, cfg.Model)
	if err != nil {
		return err
	}

	store := transcript.New(client)
	selector := conversation.NewSelector(client, store)
	scheduler := refresh.NewScheduler(client, cfg.RefreshDelayDuration(), selector.ApplyMetadata)
	defer scheduler.Close()
	controller := chat.NewController(transport, store, selector, scheduler)

	return tui.Run(tui.Deps{
		Selector:   selector,
		Store:      store,
		Controller: controller,
		Version:    strings.TrimSpace(version),
	})
}
