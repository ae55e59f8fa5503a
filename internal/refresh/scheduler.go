// Package refresh schedules the one-shot metadata fetch that picks up a
// conversation's server-inferred title after its first completed reply.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/youruser/chatc/internal/api"
	"github.com/youruser/chatc/internal/logging"
)

var log = logging.Get()

// MetadataFetcher fetches the current metadata of a conversation.
type MetadataFetcher interface {
	GetChat(ctx context.Context, chatID string) (*api.Conversation, error)
}

// Guard records conversations that already had a refresh scheduled.
// Entries are never removed.
type Guard struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func NewGuard() *Guard {
	return &Guard{ids: make(map[string]struct{})}
}

// Claim inserts id and reports whether it was absent.
func (g *Guard) Claim(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, seen := g.ids[id]; seen {
		return false
	}
	g.ids[id] = struct{}{}
	return true
}

// Has reports whether id has been claimed.
func (g *Guard) Has(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, seen := g.ids[id]
	return seen
}

// Scheduler arms at most one delayed metadata fetch per conversation for its
// whole lifetime. Results go to the apply callback; fetch failures are
// logged and otherwise ignored.
type Scheduler struct {
	fetcher MetadataFetcher
	apply   func(api.Conversation)
	delay   time.Duration
	timeout time.Duration
	guard   *Guard

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler that waits delay before fetching.
func NewScheduler(fetcher MetadataFetcher, delay time.Duration, apply func(api.Conversation)) *Scheduler {
	return &Scheduler{
		fetcher: fetcher,
		apply:   apply,
		delay:   delay,
		timeout: 30 * time.Second,
		guard:   NewGuard(),
		timers:  make(map[string]*time.Timer),
	}
}

// Schedule arms the refresh for conversationID unless one was already
// scheduled during this scheduler's lifetime. It reports whether a new
// refresh was armed.
func (s *Scheduler) Schedule(conversationID string) bool {
	if conversationID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if !s.guard.Claim(conversationID) {
		log.Debug("Metadata refresh for %s already scheduled", conversationID)
		return false
	}

	s.wg.Add(1)
	s.timers[conversationID] = time.AfterFunc(s.delay, func() {
		defer s.wg.Done()
		s.fire(conversationID)
	})
	log.Debug("Metadata refresh for %s scheduled in %s", conversationID, s.delay)
	return true
}

// Scheduled reports whether conversationID has had a refresh scheduled.
func (s *Scheduler) Scheduled(conversationID string) bool {
	return s.guard.Has(conversationID)
}

func (s *Scheduler) fire(conversationID string) {
	s.mu.Lock()
	delete(s.timers, conversationID)
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	chat, err := s.fetcher.GetChat(ctx, conversationID)
	if err != nil {
		log.Error("Failed to refresh chat metadata for %s: %v", conversationID, err)
		return
	}
	log.Info("Refreshed metadata for %s: %q", conversationID, chat.Title)
	if s.apply != nil {
		s.apply(*chat)
	}
}

// Wait blocks until every armed refresh has fired or been stopped.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close stops pending timers. Refreshes already fetching run to completion.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, id)
	}
}
