package lifecycle

import (
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// DefaultSignals are translated into a graceful shutdown request.
var DefaultSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// ShutdownSignal is a one-shot event: unset at creation, set by the first
// request and never reset. Set is safe to call from any goroutine and any
// number of times.
type ShutdownSignal struct {
	once sync.Once
	done chan struct{}
}

// NewShutdownSignal creates an unset ShutdownSignal.
func NewShutdownSignal() *ShutdownSignal {
	return &ShutdownSignal{done: make(chan struct{})}
}

// Set requests shutdown. Reports whether this call was the one that set it.
func (s *ShutdownSignal) Set() bool {
	first := false
	s.once.Do(func() {
		close(s.done)
		first = true
	})
	return first
}

// Done is closed once shutdown has been requested.
func (s *ShutdownSignal) Done() <-chan struct{} {
	return s.done
}

// IsSet reports whether shutdown has been requested.
func (s *ShutdownSignal) IsSet() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// NotifyOS sets the signal when one of signals is delivered to the process.
// Repeated deliveries are absorbed. The returned stop func unregisters the
// handler and waits for the forwarding goroutine to exit.
func (s *ShutdownSignal) NotifyOS(signals ...os.Signal) (stop func()) {
	if len(signals) == 0 {
		signals = DefaultSignals
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, signals...)

	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case sig := <-ch:
				if s.Set() {
					slog.Warn("shutdown signal received", "signal", sig.String())
				}
			case <-quit:
				return
			}
		}
	}()

	return sync.OnceFunc(func() {
		signal.Stop(ch)
		close(quit)
		wg.Wait()
	})
}
