// Package timer implements the three-bucket timer service: one epoch
// counter at millisecond resolution and one scan per bucket per tick,
// all driven by a single ticking goroutine.
package timer

import (
	"sync"
	"time"

	"github.com/wang-russell/rsm/internal/constants"
	"github.com/wang-russell/rsm/internal/idalloc"
	"github.com/wang-russell/rsm/internal/rsmerrors"
	"github.com/wang-russell/rsm/internal/rsmtypes"
)

// Bucket categorizes a timer by its duration.
type Bucket int

const (
	Bucket1ms Bucket = iota
	Bucket100ms
	Bucket1s
)

func bucketFor(durationMs uint64) Bucket {
	switch {
	case durationMs < constants.TimerCat1msBound:
		return Bucket1ms
	case durationMs < constants.TimerCat100msBound:
		return Bucket100ms
	default:
		return Bucket1s
	}
}

type record struct {
	id            int32
	durationMs    uint64
	loopCount     uint64
	timerData     uintptr
	lastFired     uint64
	expiredCount  uint64
	owner         rsmtypes.Identity
}

// Sender delivers a priority message to an identity; satisfied by
// *registry.Registry in production and a stub in tests.
type Sender interface {
	SendAsyncPriority(dst rsmtypes.Identity, msg rsmtypes.Envelope) error
}

// Service owns the three bucket maps, the dense ID allocator, and the
// epoch-ticking goroutine.
type Service struct {
	sender Sender

	mu      sync.Mutex
	buckets [3]map[int32]*record
	catMap  map[int32]Bucket
	ids     *idalloc.Allocator

	clock uint64 // monotonic ms counter, single-writer (epoch goroutine)

	stop chan struct{}
	wg   sync.WaitGroup
}

// New creates a timer service bound to sender, which it uses to deliver
// TIMER envelopes. Call Start to begin the epoch ticker.
func New(sender Sender) *Service {
	return &Service{
		sender: sender,
		buckets: [3]map[int32]*record{
			Bucket1ms:   make(map[int32]*record),
			Bucket100ms: make(map[int32]*record),
			Bucket1s:    make(map[int32]*record),
		},
		catMap: make(map[int32]Bucket),
		ids:    idalloc.New(1, constants.MaxTimerCount),
		stop:   make(chan struct{}),
	}
}

// Start launches the epoch-ticking goroutine (1ms resolution).
func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop halts the epoch ticker. Outstanding timers are left in place but
// will no longer fire.
func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Service) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(constants.EpochTickMs * time.Millisecond)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.tick(uint64(now.Sub(start).Milliseconds()))
		}
	}
}

func (s *Service) tick(nowMs uint64) {
	s.mu.Lock()
	s.clock = nowMs
	s.mu.Unlock()

	s.scanBucket(Bucket1ms)
	s.scanBucket(Bucket100ms)
	s.scanBucket(Bucket1s)
}

// SetTimer allocates a new timer owned by self, firing every durationMs
// for loopCount iterations (0 = forever). Returns the new timer ID, or
// an error if the ID space is exhausted.
func (s *Service) SetTimer(self rsmtypes.Identity, durationMs, loopCount uint64, timerData uintptr) (int32, error) {
	id := s.ids.Allocate()
	if id == idalloc.Invalid {
		return 0, rsmerrors.New("set_timer", rsmerrors.OutOfMem, "no timer ids available")
	}

	s.mu.Lock()
	rec := &record{
		id:           id,
		durationMs:   durationMs,
		loopCount:    loopCount,
		timerData:    timerData,
		lastFired:    s.clock,
		owner:        self,
		expiredCount: 0,
	}
	b := bucketFor(durationMs)
	s.buckets[b][id] = rec
	s.catMap[id] = b
	s.mu.Unlock()

	return id, nil
}

// KillTimerByID removes a timer, provided self is its owner.
func (s *Service) KillTimerByID(self rsmtypes.Identity, timerID int32) error {
	s.mu.Lock()
	b, ok := s.catMap[timerID]
	if !ok {
		s.mu.Unlock()
		return rsmerrors.New("kill_timer_by_id", rsmerrors.NotFound, "unknown timer id")
	}
	rec, ok := s.buckets[b][timerID]
	if !ok {
		s.mu.Unlock()
		return rsmerrors.New("kill_timer_by_id", rsmerrors.NotFound, "unknown timer id")
	}
	if rec.owner != self {
		s.mu.Unlock()
		return rsmerrors.New("kill_timer_by_id", rsmerrors.InvalidState, "caller is not the timer owner")
	}
	delete(s.buckets[b], timerID)
	delete(s.catMap, timerID)
	s.mu.Unlock()

	s.ids.Release(timerID)
	return nil
}

// scanBucket fires every due record in bucket b, "at-or-after"
// relative to its last fire, with deferred removal after the walk so a
// concurrent kill never observes a half-removed record.
func (s *Service) scanBucket(b Bucket) {
	s.mu.Lock()
	now := s.clock
	toDelete := make([]int32, 0)
	toFire := make([]*record, 0)
	for id, rec := range s.buckets[b] {
		if now >= rec.lastFired+rec.durationMs {
			rec.lastFired = now
			rec.expiredCount++
			toFire = append(toFire, rec)
			if rec.loopCount > 0 && rec.expiredCount >= rec.loopCount {
				toDelete = append(toDelete, id)
			}
		}
	}
	fired := make([]*record, len(toFire))
	copy(fired, toFire)
	s.mu.Unlock()

	for _, rec := range fired {
		env := rsmtypes.NewTimerEnvelope(constants.MsgIDTimer, rec.id, rec.timerData)
		_ = s.sender.SendAsyncPriority(rec.owner, env)
	}

	if len(toDelete) == 0 {
		return
	}
	s.mu.Lock()
	for _, id := range toDelete {
		delete(s.buckets[b], id)
		delete(s.catMap, id)
	}
	s.mu.Unlock()
	for _, id := range toDelete {
		s.ids.Release(id)
	}
}

// Stats reports the current timer population.
type Stats struct {
	Total           int
	TimerCount1ms   int
	TimerCount100ms int
	TimerCount1s    int
}

// Snapshot returns the current timer population by bucket.
func (s *Service) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Total:           int(s.ids.UsedCount()),
		TimerCount1ms:   len(s.buckets[Bucket1ms]),
		TimerCount100ms: len(s.buckets[Bucket100ms]),
		TimerCount1s:    len(s.buckets[Bucket1s]),
	}
}
