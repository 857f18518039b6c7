package watcher

// pendingSet is an insertion-ordered set of paths.
type pendingSet struct {
	order []string
	index map[string]struct{}
}

func newPendingSet() *pendingSet {
	return &pendingSet{index: make(map[string]struct{})}
}

func (p *pendingSet) add(path string) bool {
	if _, ok := p.index[path]; ok {
		return false
	}
	p.index[path] = struct{}{}
	p.order = append(p.order, path)
	return true
}

func (p *pendingSet) len() int { return len(p.order) }

func (p *pendingSet) list() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

func (p *pendingSet) clear() {
	p.order = nil
	p.index = make(map[string]struct{})
}
