// Package notifier pushes capture outcomes to an external chat channel.
// Delivery is best-effort: a lost notification never affects a recording.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"aircheck/internal/eventbus"
	logx "aircheck/pkg/logx"
)

// Sender delivers one formatted message. The production implementation is
// the Telegram sender; tests inject a fake.
type Sender interface {
	Send(ctx context.Context, text string) error
}

type Config struct {
	Enabled bool
	// MinLevel selects which outcomes are pushed: "all" or "errors".
	MinLevel string
	// RatePerMin caps outbound messages. Zero means 20.
	RatePerMin int
}

type Service struct {
	log    logx.Logger
	bus    *eventbus.Bus
	sender Sender

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	cancel  context.CancelFunc
	unsub   func()
	done    chan struct{}
}

func New(cfg Config, sender Sender, bus *eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, bus: bus, sender: sender}
	s.applyLocked(cfg)
	return s
}

// Apply swaps the config for subsequent sends. The subscription itself is
// not restarted; a disabled notifier simply drops events as they arrive.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerMin <= 0 {
		cfg.RatePerMin = 20
	}
	if cfg.MinLevel == "" {
		cfg.MinLevel = "all"
	}
	s.cfg = cfg
	// Token bucket refilled at the per-minute rate; a small burst absorbs a
	// cluster of jobs finishing together.
	s.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMin))/60, 5)
}

// Start is idempotent. It does nothing when the service is disabled or has
// no sender wired.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil || s.bus == nil || s.sender == nil {
		return
	}
	if !s.cfg.Enabled {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	ch, unsub := s.bus.Subscribe(64)
	s.cancel = cancel
	s.unsub = unsub
	s.done = make(chan struct{})
	done := s.done

	go func() {
		defer close(done)
		for {
			select {
			case <-runCtx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				s.deliver(runCtx, ev)
			}
		}
	}()
	s.log.Info("notifier started", logx.String("min_level", s.cfg.MinLevel))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	unsub := s.unsub
	done := s.done
	s.cancel = nil
	s.unsub = nil
	s.done = nil
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
}

func (s *Service) deliver(ctx context.Context, ev eventbus.Event) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	if !cfg.Enabled {
		return
	}
	text, ok := formatEvent(ev, cfg.MinLevel)
	if !ok {
		return
	}
	if err := lim.Wait(ctx); err != nil {
		return
	}

	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.sender.Send(sctx, text); err != nil {
		s.log.Warn("notification delivery failed", logx.String("kind", string(ev.Kind)), logx.Err(err))
	}
}

// formatEvent renders a capture event as a chat message, or reports that the
// event is below the configured level.
func formatEvent(ev eventbus.Event, minLevel string) (string, bool) {
	errorsOnly := strings.EqualFold(strings.TrimSpace(minLevel), "errors")

	switch ev.Kind {
	case eventbus.CaptureFinished:
		if errorsOnly {
			return "", false
		}
		return fmt.Sprintf("✅ %s finished: %s", ev.JobName, ev.Artifact), true
	case eventbus.CaptureKilled:
		if errorsOnly {
			return "", false
		}
		return fmt.Sprintf("⏱ %s ran past its duration and was stopped: %s", ev.JobName, ev.Artifact), true
	case eventbus.CaptureFailed:
		name := ev.JobName
		if name == "" {
			name = ev.JobID
		}
		return fmt.Sprintf("❌ %s failed: %s", name, ev.Error), true
	default:
		return "", false
	}
}
