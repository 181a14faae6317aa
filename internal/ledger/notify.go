package ledger

import "sync"

// subscriberBuffer bounds each subscriber's queue; slow readers miss changes
// rather than block writers.
const subscriberBuffer = 16

type notifier struct {
	mu   sync.Mutex
	subs map[string]map[chan Change]struct{}
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[string]map[chan Change]struct{})}
}

func (n *notifier) subscribe(userID string) (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)

	n.mu.Lock()
	if n.subs[userID] == nil {
		n.subs[userID] = make(map[chan Change]struct{})
	}
	n.subs[userID][ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[userID], ch)
			if len(n.subs[userID]) == 0 {
				delete(n.subs, userID)
			}
			n.mu.Unlock()
			close(ch)
		})
	}
}

func (n *notifier) publish(c Change) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[c.User.ID] {
		select {
		case ch <- c:
		default:
		}
	}
}
