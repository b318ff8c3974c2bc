package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"golang.org/x/term"

	"thermavip/config"
	"thermavip/console"
	"thermavip/server"
)

func main() {
	args := config.ParseCommandLineArgs()

	cfg, err := config.LoadConfig(args.ConfigFile)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyCommandLineArgs(args)
	if err := cfg.Validate(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logManager, err := server.NewLogManager(cfg.Log.Filename, cfg.Debug)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Log setup error: %v\n", err)
		os.Exit(1)
	}
	defer logManager.Close()

	if err := run(cfg, logManager); err != nil {
		slog.Error("Exiting on error", "err", err)
		_, _ = fmt.Fprintln(os.Stderr, err)
		logManager.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logManager *server.LogManager) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	srv, err := server.NewServer(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			slog.Warn("Error closing the pools", "err", err)
		}
	}()

	if err := srv.Configure(cfg); err != nil {
		slog.Warn("Configuration partially applied", "err", err)
		fmt.Printf("Warning: %v\n", err)
	}
	stateFormat := server.StateFormat(cfg)
	if cfg.State.Restore {
		if err := srv.RestoreState(cfg.State.File); err != nil {
			slog.Error("Failed to restore the state", "file", cfg.State.File, "err", err)
			fmt.Printf("Warning: state not restored: %v\n", err)
		}
	}
	fmt.Println(srv.Summary())

	var (
		transport *server.DefaultWebSocketTransport
		wsServer  *server.WebSocketServer
		serveErr  = make(chan error, 1)
	)
	if cfg.WebSocket.Enabled || cfg.HTTPServer.Enabled {
		addr := net.JoinHostPort(cfg.HTTPServer.Host, strconv.Itoa(cfg.HTTPServer.Port))
		transport = server.NewDefaultWebSocketTransport(ctx, addr)

		if cfg.HTTPServer.Enabled {
			server.NewHTTPAPI(srv.Pool(), slog.Default()).Mount(transport.Router())
			if err := transport.SetupStaticFileServer(cfg.HTTPServer.WebRoot); err != nil {
				return err
			}
		}
		if cfg.WebSocket.Enabled {
			wsServer = server.NewWebSocketServer(ctx, transport, srv.Pool(), srv.Pools(), server.StateOptions{
				Filename: cfg.State.File,
				Format:   stateFormat,
			})
			logManager.AttachTransport(transport)
		}

		options := server.StartOptions{Ready: make(chan net.Addr, 1)}
		if cfg.TLS.Enabled {
			options.CertFile, options.KeyFile = cfg.TLS.CertFile, cfg.TLS.KeyFile
		}
		go func() {
			serveErr <- transport.Start(options)
		}()
		select {
		case a := <-options.Ready:
			scheme := "http"
			if cfg.TLS.Enabled {
				scheme = "https"
			}
			fmt.Printf("Serving on %s://%s\n", scheme, a)
		case err := <-serveErr:
			return fmt.Errorf("server: %w", err)
		}
	}

	if cfg.Playback.Autoplay {
		if err := srv.Pool().Play(); err != nil {
			slog.Warn("Autoplay failed", "err", err)
		}
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		go func() {
			console.ConsoleProcess(ctx, srv, cfg.State.File)
			cancel()
		}()
	} else {
		fmt.Println("No terminal on stdin, running until interrupted")
	}

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("server: %w", err)
		}
	}

	fmt.Println("Shutting down...")
	srv.Shutdown()
	switch {
	case wsServer != nil:
		_ = wsServer.Stop()
	case transport != nil:
		_ = transport.Stop()
	}
	if cfg.State.Autosave && cfg.State.File != "" {
		if err := srv.SaveState(cfg.State.File, stateFormat); err != nil {
			slog.Error("Failed to save the state", "file", cfg.State.File, "err", err)
		} else {
			slog.Info("State saved", "file", cfg.State.File)
		}
	}
	return runErr
}
