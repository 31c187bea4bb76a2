package mcp

import (
	"sync"

	"github.com/khanglvm/casebank/internal/retrieval"
)

// pendingRetrievals remembers retrievals until they are recorded. When full,
// the oldest is forgotten.
type pendingRetrievals struct {
	mu    sync.Mutex
	max   int
	items map[string]*retrieval.Retrieval
	order []string
}

func newPendingRetrievals(max int) *pendingRetrievals {
	return &pendingRetrievals{max: max, items: make(map[string]*retrieval.Retrieval)}
}

func (p *pendingRetrievals) put(r *retrieval.Retrieval) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.items[r.RequestID]; !ok {
		p.order = append(p.order, r.RequestID)
	}
	p.items[r.RequestID] = r

	for len(p.items) > p.max && len(p.order) > 0 {
		oldest := p.order[0]
		p.order = p.order[1:]
		delete(p.items, oldest)
	}
}

// take removes and returns the retrieval for id.
func (p *pendingRetrievals) take(id string) (*retrieval.Retrieval, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, ok := p.items[id]
	if !ok {
		return nil, false
	}
	delete(p.items, id)
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return r, true
}

func (p *pendingRetrievals) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}
