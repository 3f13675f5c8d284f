package instrument

import (
	"sync"

	"github.com/quarterforge/arcadeguard/internal/domain/model"
)

// recordGuard serializes access to the session record between the
// engine's update loop and the aggregator's fingerprint timer.
type recordGuard struct {
	mu  sync.Mutex
	rec *model.SessionRecord
}

func (g *recordGuard) with(fn func(*model.SessionRecord)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g.rec)
}
