package workers

import (
	"bytes"
	"context"
	"log"
	"time"

	"digidost/services"

	"github.com/jonboulle/clockwork"
)

// CatalogSyncer re-reads a catalog source and swaps it into the live holder
// whenever the content changes.
type CatalogSyncer struct {
	Source services.CatalogSource
	Holder *services.CatalogHolder
	Clock  clockwork.Clock

	last []byte
}

func NewCatalogSyncer(src services.CatalogSource, holder *services.CatalogHolder, clock clockwork.Clock) *CatalogSyncer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CatalogSyncer{Source: src, Holder: holder, Clock: clock}
}

// SyncOnce fetches the source and reports whether the live catalog changed.
// A broken catalog leaves the previous one in place.
func (s *CatalogSyncer) SyncOnce(ctx context.Context) (bool, error) {
	data, err := s.Source.Fetch(ctx)
	if err != nil {
		return false, err
	}
	if s.last != nil && bytes.Equal(data, s.last) {
		return false, nil
	}
	cat, err := services.ParseCatalog(data)
	if err != nil {
		return false, err
	}
	s.Holder.Replace(cat)
	s.last = data
	log.Printf("✅ [CATALOG_SYNC] loaded %d badges, %d achievements from %s",
		len(cat.Badges()), len(cat.Achievements()), s.Source.Name())
	return true, nil
}

// PollCatalog runs SyncOnce every interval until ctx is cancelled.
func PollCatalog(ctx context.Context, syncer *CatalogSyncer, pollInterval time.Duration) {
	log.Printf("Starting catalog polling from %s every %s...", syncer.Source.Name(), pollInterval)

	ticker := syncer.Clock.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Catalog polling stopped.")
			return
		case <-ticker.Chan():
			if _, err := syncer.SyncOnce(ctx); err != nil {
				// Keep serving the last good catalog; retry next tick.
				log.Printf("❌ Error syncing catalog from %s: %v", syncer.Source.Name(), err)
			}
		}
	}
}
