package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalHandler cancels its context on the first SIGINT or SIGTERM, so the
// REPL and components can stop cleanly. A second signal exits immediately
// for a shutdown that hangs on a stuck browser.
type SignalHandler struct {
	ctx     context.Context
	cancel  context.CancelFunc
	sigChan chan os.Signal
	wg      sync.WaitGroup

	out  io.Writer
	exit func(code int)
}

func NewSignalHandler(ctx context.Context) *SignalHandler {
	ctx, cancel := context.WithCancel(ctx)

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	return &SignalHandler{
		ctx:     ctx,
		cancel:  cancel,
		sigChan: sigChan,
		out:     os.Stderr,
		exit:    os.Exit,
	}
}

func (s *SignalHandler) Context() context.Context {
	return s.ctx
}

func (s *SignalHandler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case _, ok := <-s.sigChan:
			if !ok {
				return
			}
			fmt.Fprintln(s.out, "\nStopping koe... (signal again to force)")
			s.cancel()
		case <-s.ctx.Done():
			return
		}
		if _, ok := <-s.sigChan; ok {
			fmt.Fprintln(s.out, "Forced exit")
			s.exit(130)
		}
	}()
}

// Stop releases the signal subscription and the watcher goroutine.
func (s *SignalHandler) Stop() {
	signal.Stop(s.sigChan)
	s.cancel()
	close(s.sigChan)
	s.wg.Wait()
}
