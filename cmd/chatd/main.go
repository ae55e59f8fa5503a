package main

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/youruser/chatc/internal/devserver"
	"github.com/youruser/chatc/internal/logging"
)

//go:embed version.txt
var version string

func main() {
	addr := flag.String("addr", "localhost:8000", "listen address")
	delay := flag.Duration("word-delay", 60*time.Millisecond, "pause between streamed words")
	verbose := flag.Bool("v", false, "log every request to stderr")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("chatd %s\n", strings.TrimSpace(version))
		return
	}

	logger := logging.Get()
	if *verbose {
		logger = logging.New(os.Stderr, "chatd")
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	defer logger.Close()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           devserver.New(devserver.Options{WordDelay: *delay, Logger: logger}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "chatd %s listening on %s\n", strings.TrimSpace(version), *addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "chatd: %v\n", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown: %v", err)
		}
	}
}
