package docstore

import "sync"

// subscriber holds at most one undelivered snapshot; a newer snapshot
// replaces an older one that has not been read yet.
type subscriber struct {
	ch   chan Snapshot
	last int64
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan Snapshot, 1), last: -1}
}

// offer must not race with close of s.ch; callers serialize the two.
func (s *subscriber) offer(snap Snapshot) {
	if snap.Version < s.last {
		return
	}
	s.last = snap.Version
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
}

// broker fans snapshots out to in-process subscribers, keyed by family.
type broker struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func newBroker() *broker {
	return &broker{subs: make(map[string]map[*subscriber]struct{})}
}

func (b *broker) add(familyID string) *subscriber {
	s := newSubscriber()
	b.mu.Lock()
	if b.subs[familyID] == nil {
		b.subs[familyID] = make(map[*subscriber]struct{})
	}
	b.subs[familyID][s] = struct{}{}
	b.mu.Unlock()
	return s
}

func (b *broker) remove(familyID string, s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.subs[familyID]
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(b.subs, familyID)
	}
	close(s.ch)
}

// deliver offers snap to one subscriber if it is still registered.
func (b *broker) deliver(s *subscriber, snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[snap.FamilyID][s]; ok {
		s.offer(snap)
	}
}

func (b *broker) publish(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs[snap.FamilyID] {
		s.offer(snap)
	}
}

func (b *broker) count(familyID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[familyID])
}
