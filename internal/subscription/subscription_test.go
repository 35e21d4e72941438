package subscription

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDataDriven_SignalWaitReset(t *testing.T) {
	s := New(DataDriven, 0)

	done := make(chan Outcome, 1)
	go func() {
		done <- s.Wait()
	}()

	s.Signal()
	assert.Equal(t, Ready, <-done)
	s.Reset()
	assert.Equal(t, int64(0), s.Overruns())
}

func TestDataDriven_OverrunBlocksProducer(t *testing.T) {
	s := New(DataDriven, 0)

	s.Signal() // first signal, armed

	signalReturned := make(chan struct{})
	go func() {
		s.Signal() // overrun: should block until Reset
		close(signalReturned)
	}()

	select {
	case <-signalReturned:
		t.Fatal("second Signal returned before Reset was called")
	case <-time.After(50 * time.Millisecond):
	}

	s.Reset()

	select {
	case <-signalReturned:
	case <-time.After(time.Second):
		t.Fatal("second Signal never returned after Reset")
	}
	assert.Equal(t, int64(1), s.Overruns())
}

func TestClockDriven_WaitTimesOutAndRecordsOverrun(t *testing.T) {
	s := New(ClockDriven, 10*time.Millisecond)
	outcome := s.Wait()
	assert.Equal(t, TimedOut, outcome)
	assert.Equal(t, int64(1), s.Timeouts())
	assert.Equal(t, int64(1), s.Overruns())
}

func TestClockDriven_SignalNeverBlocksProducer(t *testing.T) {
	s := New(ClockDriven, 5*time.Millisecond)
	s.Signal()

	done := make(chan struct{})
	go func() {
		s.Signal() // gate already armed: overrun counted, producer returns immediately
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ClockDriven Signal blocked the producer")
	}
	assert.Equal(t, int64(1), s.Overruns())
}

func TestCancel_UnblocksWaiters(t *testing.T) {
	s := New(DataDriven, 0)
	var wg sync.WaitGroup
	results := make([]Outcome, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.Wait()
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	s.Cancel()
	wg.Wait()
	for _, r := range results {
		assert.Equal(t, Cancelled, r)
	}
}

func TestLive_TimeoutDoesNotStall(t *testing.T) {
	s := New(Live, 5*time.Millisecond)
	start := time.Now()
	outcome := s.Wait()
	elapsed := time.Since(start)
	assert.Equal(t, TimedOut, outcome)
	assert.Less(t, elapsed, 200*time.Millisecond)
}
