package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/tgcollect/internal/collector"
	"github.com/dokzlo13/tgcollect/internal/config"
	"github.com/dokzlo13/tgcollect/internal/ledger"
	"github.com/dokzlo13/tgcollect/internal/luafilter"
	"github.com/dokzlo13/tgcollect/internal/metrics"
	"github.com/dokzlo13/tgcollect/internal/models"
)

// CollectorStatus is a point-in-time view of one configured collector
type CollectorStatus struct {
	Name      string    `json:"name"`
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	ChatID    int64     `json:"chat_id,omitempty"`
	Collected int       `json:"collected"`
	Received  int       `json:"received"`
	Ended     bool      `json:"ended"`
	Reason    string    `json:"reason,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// tracked is the type-erased handle of a running collector
type tracked struct {
	status func() CollectorStatus
	stop   func(collector.Reason)
}

// CollectorService starts the configured collectors on the bus and records
// every session in the ledger when it ends.
type CollectorService struct {
	cfg     *config.Config
	host    collector.Host
	ledger  *ledger.Ledger
	metrics *metrics.Metrics

	mu      sync.Mutex
	running []*tracked
	wg      sync.WaitGroup
	started bool
}

// NewCollectorService creates a new CollectorService.
func NewCollectorService(cfg *config.Config, host collector.Host, l *ledger.Ledger, m *metrics.Metrics) *CollectorService {
	return &CollectorService{
		cfg:     cfg,
		host:    host,
		ledger:  l,
		metrics: m,
	}
}

// Start creates one collector per config entry. Cancelling ctx stops them
// with reason "user". On error the collectors created so far are stopped.
func (s *CollectorService) Start(ctx context.Context) error {
	for _, cc := range s.cfg.Collectors {
		if err := s.startOne(ctx, cc); err != nil {
			s.StopAll(collector.ReasonUser)
			return fmt.Errorf("collector %q: %w", cc.Name, err)
		}
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	log.Info().Int("collectors", len(s.cfg.Collectors)).Msg("Collectors started")
	return nil
}

func (s *CollectorService) startOne(ctx context.Context, cc config.CollectorConfig) error {
	var prog *luafilter.Program
	if cc.Filter != "" {
		var err error
		prog, err = luafilter.Compile(cc.Name, cc.Filter)
		if err != nil {
			return err
		}
	}
	closeProg := func() {
		if prog != nil {
			prog.Close()
		}
	}

	var err error
	switch cc.Kind {
	case config.KindMessage:
		opts := baseOptions[int, *models.Message](cc, prog)
		var mc *collector.MessageCollector
		if mc, err = collector.NewMessageCollector(ctx, s.host, cc.ChatID, opts); err == nil {
			track(s, cc, mc.ChatID(), mc.Collector, closeProg)
		}
	case config.KindReaction:
		opts := collector.ReactionOptions{
			Options:   baseOptions[string, *models.MessageReactionUpdated](cc, prog),
			MessageID: cc.MessageID,
		}
		var rc *collector.ReactionCollector
		if rc, err = collector.NewReactionCollector(ctx, s.host, cc.ChatID, opts); err == nil {
			rc.OnCreate(func(u *models.MessageReactionUpdated) {
				log.Debug().Str("collector", cc.Name).Int64("user_id", u.User.ID).Msg("First reaction from user")
			})
			track(s, cc, rc.ChatID(), rc.Collector, closeProg)
		}
	case config.KindKeyboard:
		opts := collector.KeyboardOptions{
			Options:  baseOptions[string, *models.CallbackQuery](cc, prog),
			MaxUsers: cc.MaxUsers,
		}
		var kc *collector.InlineKeyboardCollector
		if kc, err = collector.NewInlineKeyboardCollector(ctx, s.host, opts); err == nil {
			track(s, cc, 0, kc.Collector, closeProg)
		}
	default:
		err = fmt.Errorf("unknown kind %q", cc.Kind)
	}

	if err != nil {
		closeProg()
		return err
	}
	return nil
}

func baseOptions[K comparable, V models.Fielder](cc config.CollectorConfig, prog *luafilter.Program) collector.Options[K, V] {
	logger := log.With().Str("collector", cc.Name).Logger()
	opts := collector.Options[K, V]{
		Time:         cc.Time.Duration(),
		Idle:         cc.Idle.Duration(),
		Max:          cc.Max,
		MaxProcessed: cc.MaxProcessed,
		Dispose:      cc.Dispose,
		Logger:       &logger,
	}
	if prog != nil {
		opts.Filter = luafilter.For[K, V](prog)
	}
	return opts
}

// track registers c with metrics and the ledger. cleanup runs once after
// the session is recorded.
func track[K comparable, V any](s *CollectorService, cc config.CollectorConfig, chatID int64, c *collector.Collector[K, V], cleanup func()) {
	t := &tracked{
		status: func() CollectorStatus {
			return CollectorStatus{
				Name:      cc.Name,
				ID:        c.ID(),
				Kind:      c.Kind(),
				ChatID:    chatID,
				Collected: c.Collected().Len(),
				Received:  c.Received(),
				Ended:     c.Ended(),
				Reason:    string(c.EndReason()),
				StartedAt: c.StartedAt(),
			}
		},
		stop: c.Stop,
	}

	s.mu.Lock()
	s.running = append(s.running, t)
	s.mu.Unlock()

	if s.metrics != nil {
		metrics.Observe(s.metrics, c)
	}

	s.wg.Add(1)
	var once sync.Once
	finish := func(collected *collector.Collection[K, V], reason collector.Reason) {
		once.Do(func() {
			defer s.wg.Done()
			defer cleanup()
			record(s, cc.Name, chatID, c, collected, reason)
		})
	}
	c.OnEnd(finish)
	// Ended before the listener was attached
	if c.Ended() {
		finish(c.Collected(), c.EndReason())
	}
}

func record[K comparable, V any](s *CollectorService, name string, chatID int64, c *collector.Collector[K, V], collected *collector.Collection[K, V], reason collector.Reason) {
	log.Info().
		Str("collector", name).
		Str("collector_id", c.ID()).
		Str("reason", string(reason)).
		Int("collected", collected.Len()).
		Int("received", c.Received()).
		Msg("Collector finished")

	if s.ledger == nil {
		return
	}
	session := &ledger.Session{
		ID:        c.ID(),
		Name:      name,
		Kind:      c.Kind(),
		ChatID:    chatID,
		Reason:    string(reason),
		Collected: collected.Len(),
		Received:  c.Received(),
		StartedAt: c.StartedAt(),
		EndedAt:   time.Now(),
	}
	for key := range collected.All() {
		session.Keys = append(session.Keys, fmt.Sprint(key))
	}
	if err := s.ledger.Record(session); err != nil {
		log.Error().Err(err).Str("collector", name).Msg("Failed to record collector session")
	}
}

// Status returns the state of every collector started so far
func (s *CollectorService) Status() []CollectorStatus {
	s.mu.Lock()
	running := append([]*tracked(nil), s.running...)
	s.mu.Unlock()

	out := make([]CollectorStatus, 0, len(running))
	for _, t := range running {
		out = append(out, t.status())
	}
	return out
}

// Ready reports whether Start completed
func (s *CollectorService) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// StopAll stops every collector that is still running
func (s *CollectorService) StopAll(reason collector.Reason) {
	s.mu.Lock()
	running := append([]*tracked(nil), s.running...)
	s.mu.Unlock()

	for _, t := range running {
		t.stop(reason)
	}
}

// Wait blocks until every collector has ended and been recorded, or ctx is done
func (s *CollectorService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
