// Command mdserve previews a markdown file or a flat directory of markdown
// files as live-reloading HTML.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdserve/mdserve/internal/notify"
	"github.com/mdserve/mdserve/internal/render"
	"github.com/mdserve/mdserve/internal/server"
	"github.com/mdserve/mdserve/internal/store"
	"github.com/mdserve/mdserve/internal/watch"
)

// version is set via ldflags at release time.
var version = "dev"

func main() {
	host := flag.String("host", "localhost", "Hostname or IP address to listen on")
	port := flag.Int("port", 3000, "Port to serve on")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("mdserve %s\n", version)
		return
	}

	path := "."
	if flag.NArg() > 0 {
		path = flag.Arg(0)
	}

	if err := run(path, *host, *port); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: mdserve [flags] <markdown-file|directory>\n\n")
	fmt.Fprintf(os.Stderr, "Serves rendered markdown over HTTP with live reload.\n\n")
	fmt.Fprintf(os.Stderr, "Flags:\n")
	flag.PrintDefaults()
}

func run(path, host string, port int) error {
	target, err := store.ResolveTarget(path)
	if err != nil {
		return err
	}

	renderer := render.New()
	st := store.New(target, renderer.Render, renderer.Title)
	if err := st.Scan(); err != nil {
		return fmt.Errorf("initial scan: %w", err)
	}

	notifier := notify.New()
	reconciler, err := watch.New(st, notifier)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go reconciler.Run(ctx)

	srv := server.New(st, notifier)
	httpServer := &http.Server{
		Addr:        server.Addr(host, port),
		Handler:     srv.Handler(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the reload WebSocket is long-lived.
		IdleTimeout: 60 * time.Second,
	}

	switch target.Mode {
	case store.SingleFile:
		fmt.Printf("Serving %s\n", target.Entry)
	case store.Directory:
		fmt.Printf("Serving %s (%d markdown files)\n", target.BaseDir, st.Len())
	}
	fmt.Printf("Server running at http://%s\n", httpServer.Addr)
	fmt.Println("Live reload enabled - press Ctrl+C to stop")

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
