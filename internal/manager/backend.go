package manager

import (
	"fmt"
	"sync"

	"github.com/hpungsan/mediamgr/internal/engine"
)

// backends owns the engines requests run against. The production engine is
// built on first use; the fake engine is cached the same way.
type backends struct {
	newProduction func() (engine.Engine, error)

	mu         sync.Mutex
	production engine.Engine
	fake       engine.Engine
	released   bool
}

func (b *backends) get(fake bool) (engine.Engine, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return nil, fmt.Errorf("backend released")
	}
	if fake {
		if b.fake == nil {
			b.fake = engine.NewFake()
		}
		return b.fake, nil
	}
	if b.production == nil {
		if b.newProduction == nil {
			return nil, fmt.Errorf("no production backend configured")
		}
		e, err := b.newProduction()
		if err != nil {
			return nil, err
		}
		b.production = e
	}
	return b.production, nil
}

// release shuts down whatever was built. Later gets fail.
func (b *backends) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released = true
	if b.production != nil {
		b.production.Shutdown()
		b.production = nil
	}
	if b.fake != nil {
		b.fake.Shutdown()
		b.fake = nil
	}
}
