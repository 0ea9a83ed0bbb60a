package services

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultStreamIdleLimit is how long a streaming session may sit without
	// audio before it is reaped.
	DefaultStreamIdleLimit = 2 * time.Minute

	reapCheckInterval = 30 * time.Second
)

// StreamTimeoutService closes streaming sessions whose clients stopped
// sending audio without saying goodbye, so remote recognizer sessions do not
// leak.
type StreamTimeoutService struct {
	idleLimit time.Duration
	onExpire  func(user string)

	mu           sync.Mutex
	lastActivity map[string]time.Time
}

func NewStreamTimeoutService(idleLimit time.Duration, onExpire func(user string)) *StreamTimeoutService {
	if idleLimit <= 0 {
		idleLimit = DefaultStreamIdleLimit
	}
	service := &StreamTimeoutService{
		idleLimit:    idleLimit,
		onExpire:     onExpire,
		lastActivity: make(map[string]time.Time),
	}
	go service.run()
	return service
}

// Touch records activity for the user's session.
func (s *StreamTimeoutService) Touch(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity[user] = time.Now()
}

// Remove drops the user from tracking after an orderly stop.
func (s *StreamTimeoutService) Remove(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastActivity, user)
}

func (s *StreamTimeoutService) run() {
	ticker := time.NewTicker(reapCheckInterval)
	defer ticker.Stop()

	for range ticker.C {
		for _, user := range s.expired() {
			slog.Info("Reaping idle streaming session", "user", user)
			s.onExpire(user)
		}
	}
}

func (s *StreamTimeoutService) expired() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var users []string
	for user, last := range s.lastActivity {
		if time.Since(last) > s.idleLimit {
			users = append(users, user)
			delete(s.lastActivity, user)
		}
	}
	return users
}
