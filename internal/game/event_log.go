package game

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Audit log sizing. Per-user limits stop one account from flooding the file.
const (
	AuditBufferSize    = 1024
	MaxAuditPerSec     = 5000
	MaxAuditPerUser    = 50
	AuditFlushSize     = 64
	AuditFlushInterval = 100 * time.Millisecond
	UserLimiterIdle    = 5 * time.Minute
)

// AuditLog is a bounded, rate-limited, append-only JSONL log of match and
// tournament events. Emit never waits on disk; when the ring is full the
// oldest unflushed event is dropped and counted.
type AuditLog struct {
	ringMu    sync.Mutex
	ring      [AuditBufferSize]Event
	writeHead uint64 // guarded by ringMu, read atomically for stats
	readHead  uint64 // guarded by ringMu, read atomically for stats

	globalLimiter *rate.Limiter
	userLimiters  sync.Map // map[string]*userLimiter

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	path   string
	out    io.WriteCloser
	outMu  sync.Mutex
	onDrop func()

	dropped uint64 // atomic
	total   uint64 // atomic
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

// NewAuditLog creates a stopped audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{
		globalLimiter: rate.NewLimiter(MaxAuditPerSec, MaxAuditPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// OnDrop registers a callback for dropped events (metrics).
func (al *AuditLog) OnDrop(fn func()) { al.onDrop = fn }

// Start opens path for append and starts the writer. An empty path keeps
// events in memory only.
func (al *AuditLog) Start(path string) error {
	if al.running.Load() {
		return nil
	}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open audit log: %w", err)
		}
		al.out = f
	}
	al.path = path
	al.running.Store(true)
	al.writerWg.Add(2)
	go al.writerLoop()
	go al.cleanupLoop()
	return nil
}

// StartWriter is Start with a caller-supplied sink.
func (al *AuditLog) StartWriter(w io.WriteCloser) {
	if al.running.Load() {
		return
	}
	al.out = w
	al.running.Store(true)
	al.writerWg.Add(2)
	go al.writerLoop()
	go al.cleanupLoop()
}

// Stop flushes pending events and closes the sink.
func (al *AuditLog) Stop() {
	al.stopOnce.Do(func() {
		al.running.Store(false)
		close(al.stopChan)
		al.writerWg.Wait()

		al.outMu.Lock()
		if al.out != nil {
			al.out.Close()
		}
		al.outMu.Unlock()
	})
}

// Emit queues an event. Returns false when rate limited or stopped.
func (al *AuditLog) Emit(ev Event) bool {
	if !al.running.Load() {
		return false
	}
	if !al.globalLimiter.Allow() {
		al.drop()
		return false
	}
	if ev.UserID != "" && !al.limiterFor(ev.UserID).Allow() {
		al.drop()
		return false
	}

	al.ringMu.Lock()
	head := atomic.AddUint64(&al.writeHead, 1)
	overflow := head-atomic.LoadUint64(&al.readHead) > AuditBufferSize
	if overflow {
		atomic.AddUint64(&al.readHead, 1)
	}
	ev.Sequence = head
	al.ring[head%AuditBufferSize] = ev
	al.ringMu.Unlock()

	if overflow {
		al.drop()
	}
	atomic.AddUint64(&al.total, 1)
	return true
}

// Record is a convenience wrapper around NewEvent and Emit.
func (al *AuditLog) Record(t EventType, matchID, userID string, payload any) bool {
	return al.Emit(NewEvent(t, matchID, userID, payload))
}

func (al *AuditLog) drop() {
	atomic.AddUint64(&al.dropped, 1)
	if al.onDrop != nil {
		al.onDrop()
	}
}

func (al *AuditLog) limiterFor(userID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if v, ok := al.userLimiters.Load(userID); ok {
		ul := v.(*userLimiter)
		ul.lastUsed.Store(now)
		return ul.limiter
	}
	ul := &userLimiter{limiter: rate.NewLimiter(MaxAuditPerUser, MaxAuditPerUser/5)}
	ul.lastUsed.Store(now)
	actual, _ := al.userLimiters.LoadOrStore(userID, ul)
	return actual.(*userLimiter).limiter
}

func (al *AuditLog) writerLoop() {
	defer al.writerWg.Done()

	ticker := time.NewTicker(AuditFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, AuditFlushSize)
	for {
		select {
		case <-al.stopChan:
			for {
				batch = al.collect(batch[:0])
				if len(batch) == 0 {
					return
				}
				al.flush(batch)
			}
		case <-ticker.C:
			batch = al.collect(batch[:0])
			if len(batch) > 0 {
				al.flush(batch)
			}
		}
	}
}

func (al *AuditLog) cleanupLoop() {
	defer al.writerWg.Done()

	ticker := time.NewTicker(UserLimiterIdle)
	defer ticker.Stop()

	for {
		select {
		case <-al.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-UserLimiterIdle).UnixNano()
			al.userLimiters.Range(func(key, value any) bool {
				if value.(*userLimiter).lastUsed.Load() < cutoff {
					al.userLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

func (al *AuditLog) collect(batch []Event) []Event {
	al.ringMu.Lock()
	defer al.ringMu.Unlock()
	head := atomic.LoadUint64(&al.writeHead)
	tail := atomic.LoadUint64(&al.readHead)
	for i := tail + 1; i <= head && len(batch) < AuditFlushSize; i++ {
		batch = append(batch, al.ring[i%AuditBufferSize])
	}
	if len(batch) > 0 {
		atomic.AddUint64(&al.readHead, uint64(len(batch)))
	}
	return batch
}

func (al *AuditLog) flush(batch []Event) {
	al.outMu.Lock()
	defer al.outMu.Unlock()
	if al.out == nil {
		return
	}
	for _, ev := range batch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		data = append(data, '\n')
		if _, err := al.out.Write(data); err != nil {
			log.Printf("⚠️ Audit log write failed: %v", err)
			return
		}
	}
}

// Stats returns counters for the debug endpoint.
func (al *AuditLog) Stats() map[string]any {
	head := atomic.LoadUint64(&al.writeHead)
	tail := atomic.LoadUint64(&al.readHead)
	return map[string]any{
		"path":    al.path,
		"total":   atomic.LoadUint64(&al.total),
		"dropped": atomic.LoadUint64(&al.dropped),
		"pending": head - tail,
		"running": al.running.Load(),
	}
}

// ReadRecordings scans a JSONL audit stream and returns the recordings of
// every completed match, in file order.
func ReadRecordings(r io.Reader) ([]Recording, error) {
	var out []Recording
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return out, fmt.Errorf("line %d: %w", line, err)
		}
		if ev.Type != EventTypeMatchCompleted {
			continue
		}
		var rec Recording
		if err := json.Unmarshal(ev.Payload, &rec); err != nil {
			return out, fmt.Errorf("line %d payload: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, sc.Err()
}
