package timer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wang-russell/rsm/internal/rsmerrors"
	"github.com/wang-russell/rsm/internal/rsmtypes"
)

type recordingSender struct {
	mu   sync.Mutex
	fire map[int32]int
}

func newRecordingSender() *recordingSender {
	return &recordingSender{fire: make(map[int32]int)}
}

func (s *recordingSender) SendAsyncPriority(_ rsmtypes.Identity, msg rsmtypes.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fire[msg.TimerID]++
	return nil
}

func (s *recordingSender) count(id int32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fire[id]
}

var owner = rsmtypes.Identity{NodeID: 1, Cid: 1024, InstID: 1}

func TestSetTimer_BucketsByDuration(t *testing.T) {
	svc := New(newRecordingSender())

	id1, err := svc.SetTimer(owner, 5, 1, 0)
	require.NoError(t, err)
	id2, err := svc.SetTimer(owner, 50, 1, 0)
	require.NoError(t, err)
	id3, err := svc.SetTimer(owner, 500, 1, 0)
	require.NoError(t, err)

	require.Equal(t, Bucket1ms, svc.catMap[id1])
	require.Equal(t, Bucket100ms, svc.catMap[id2])
	require.Equal(t, Bucket1s, svc.catMap[id3])
}

func TestScanBucket_FiresAtOrAfterDuration(t *testing.T) {
	sender := newRecordingSender()
	svc := New(sender)

	id, err := svc.SetTimer(owner, 5, 0, 0xDEAD)
	require.NoError(t, err)

	svc.tick(5)
	require.Equal(t, 1, sender.count(id))

	svc.tick(9) // not yet at 10 (5 + 5)
	require.Equal(t, 1, sender.count(id))

	svc.tick(10)
	require.Equal(t, 2, sender.count(id))
}

func TestScanBucket_FiniteLoopCountStopsAndFreesID(t *testing.T) {
	sender := newRecordingSender()
	svc := New(sender)

	id, err := svc.SetTimer(owner, 1, 3, 0)
	require.NoError(t, err)

	for ms := uint64(1); ms <= 10; ms++ {
		svc.tick(ms)
	}
	require.Equal(t, 3, sender.count(id))

	err = svc.KillTimerByID(owner, id)
	require.Error(t, err)
	require.True(t, rsmerrors.IsCode(err, rsmerrors.NotFound))
}

func TestKillTimerByID_RejectsNonOwner(t *testing.T) {
	svc := New(newRecordingSender())
	id, err := svc.SetTimer(owner, 100, 0, 0)
	require.NoError(t, err)

	other := rsmtypes.Identity{NodeID: 1, Cid: 1025, InstID: 1}
	err = svc.KillTimerByID(other, id)
	require.Error(t, err)
	require.True(t, rsmerrors.IsCode(err, rsmerrors.InvalidState))
}

func TestKillTimerByID_UnknownID(t *testing.T) {
	svc := New(newRecordingSender())
	err := svc.KillTimerByID(owner, 9999)
	require.Error(t, err)
	require.True(t, rsmerrors.IsCode(err, rsmerrors.NotFound))
}

func TestScanBucket_CoalescesLaggingScans(t *testing.T) {
	sender := newRecordingSender()
	svc := New(sender)

	id, err := svc.SetTimer(owner, 10, 0, 0)
	require.NoError(t, err)

	// A lagging scan that jumps far past several would-be firings still
	// counts as exactly one fire per pass.
	svc.tick(1000)
	require.Equal(t, 1, sender.count(id))
}
