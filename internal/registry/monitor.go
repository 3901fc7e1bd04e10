package registry

import (
	"context"
	"log"
	"time"

	"parkserv/internal/hub"
)

// StartMonitoring ages out nodes whose relay connection went quiet. A node
// is online while its last message is younger than maxAge.
func (s *Store) StartMonitoring(ctx context.Context, h *hub.Hub, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkNodes(h, maxAge)
		}
	}
}

func (s *Store) checkNodes(h *hub.Hub, maxAge time.Duration) {
	for _, n := range s.List() {
		online := time.Since(h.LastSeen(n.ID)) < maxAge
		if n.Online != online {
			s.SetOnline(n.ID, online)
			if online {
				log.Printf("[monitor] node %s is ONLINE", n.ID)
			} else {
				log.Printf("[monitor] node %s is OFFLINE", n.ID)
			}
		}
	}
}
