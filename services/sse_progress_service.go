package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
)

// SSEPollInterval is how often the event stream checks for new rows.
var SSEPollInterval = 2 * time.Second

// StreamProgressEventsSSE streams the authenticated user's progress events
// as they are written.
func (s *ProgressionService) StreamProgressEventsSSE(c *fiber.Ctx) error {
	userID := c.Locals("user_id").(string)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	// Only events from now on; history is served by the list endpoint.
	since := s.Clock.Now()
	done := c.Context().Done()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		s.pumpProgressEvents(w, userID, since, done)
	})

	return nil
}

// pumpProgressEvents writes the user's events created at or after since to w,
// one frame per event, until done is closed or a flush fails.
func (s *ProgressionService) pumpProgressEvents(w *bufio.Writer, userID string, since time.Time, done <-chan struct{}) {
	ticker := s.Clock.NewTicker(SSEPollInterval)
	defer ticker.Stop()

	// Rows sharing the cursor timestamp are re-read on every poll.
	sent := make(map[string]bool)

	w.WriteString(":\n\n")
	if err := w.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-ticker.Chan():
			events, err := s.EventsSince(context.Background(), userID, since)
			if err != nil {
				log.Printf("[SSE] query error for user %s: %v", userID, err)
				continue
			}
			wrote := false
			for _, ev := range events {
				if sent[ev.ID] {
					continue
				}
				payload, _ := json.Marshal(ev)
				fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, payload)
				wrote = true

				if ev.CreatedAt.After(since) {
					since = ev.CreatedAt
					sent = make(map[string]bool)
				}
				sent[ev.ID] = true
			}
			if !wrote {
				// Keepalive comment doubles as disconnect detection.
				w.WriteString(":\n\n")
			}
			if err := w.Flush(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
