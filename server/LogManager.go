package server

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"thermavip/vip/log"
)

// LogManager owns the process file logger, installs the slog default
// handler on it and rotates the file on SIGHUP.
type LogManager struct {
	logger    *log.Logger
	handler   slog.Handler
	rotateCh  chan os.Signal
	done      chan struct{}
	closeOnce sync.Once
}

// NewLogManager opens logFilename. In debug mode records are mirrored to stderr.
func NewLogManager(logFilename string, debug bool) (*LogManager, error) {
	var mirror io.Writer
	level := slog.LevelInfo
	if debug {
		mirror = os.Stderr
		level = slog.LevelDebug
	}

	logger, err := log.NewLogger(logFilename, mirror)
	if err != nil {
		return nil, err
	}
	log.SetLogger(logger)

	lm := &LogManager{
		logger:   logger,
		handler:  slog.NewTextHandler(logger, &slog.HandlerOptions{Level: level}),
		rotateCh: make(chan os.Signal, 1),
		done:     make(chan struct{}),
	}
	slog.SetDefault(slog.New(lm.handler))

	signal.Notify(lm.rotateCh, syscall.SIGHUP)
	go lm.rotateLoop()

	return lm, nil
}

func (lm *LogManager) rotateLoop() {
	for {
		select {
		case <-lm.done:
			return
		case <-lm.rotateCh:
			fmt.Fprintln(os.Stderr, "Received SIGHUP, rotating the log file...")
			if err := lm.logger.Rotate(); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "Log rotation error: %v\n", err)
				continue
			}
			slog.Info("Log file rotated", "file", lm.logger.Path())
		}
	}
}

// AttachTransport broadcasts Warn and Error records to the clients of transport
func (lm *LogManager) AttachTransport(transport WebSocketTransport) {
	slog.SetDefault(slog.New(NewBroadcastHandler(lm.handler, transport, slog.LevelWarn)))
}

// Close restores the default slog handler and closes the log file
func (lm *LogManager) Close() error {
	lm.closeOnce.Do(func() {
		signal.Stop(lm.rotateCh)
		close(lm.done)
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
		log.SetLogger(nil)
		lm.logger.Close()
	})
	return nil
}
