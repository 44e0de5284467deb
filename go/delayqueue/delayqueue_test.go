package delayqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpireOrder(t *testing.T) {
	var q = New()
	defer q.Abandon()

	q.Schedule("late", 300*time.Millisecond)
	q.Schedule("early", 50*time.Millisecond)
	q.Schedule("mid", 150*time.Millisecond)

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case k := <-q.Expired():
			got = append(got, k)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for expiration")
		}
	}
	require.Equal(t, []string{"early", "mid", "late"}, got)
}

func TestSameDeadlineKeepsInsertionOrder(t *testing.T) {
	var q = New()
	defer q.Abandon()

	var deadline = 80 * time.Millisecond
	q.Schedule("a", deadline)
	q.Schedule("b", deadline)
	q.Schedule("c", deadline)

	var got []string
	for i := 0; i < 3; i++ {
		select {
		case k := <-q.Expired():
			got = append(got, k)
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for expiration")
		}
	}
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestEarlierEntryPreemptsSleep(t *testing.T) {
	var q = New()
	defer q.Abandon()

	q.Schedule("slow", 5*time.Second)
	time.Sleep(20 * time.Millisecond)
	q.Schedule("fast", 50*time.Millisecond)

	select {
	case k := <-q.Expired():
		require.Equal(t, "fast", k)
	case <-time.After(time.Second):
		t.Fatal("driver did not wake for the earlier entry")
	}
}

func TestCloseDrains(t *testing.T) {
	var q = New()
	q.Schedule("x", 30*time.Millisecond)
	q.Schedule("y", 60*time.Millisecond)
	q.Close()
	q.Schedule("dropped", time.Millisecond)

	var got []string
	for k := range q.Expired() {
		got = append(got, k)
	}
	require.Equal(t, []string{"x", "y"}, got)
}

func TestScheduleRacingCloseDoesNotPanic(t *testing.T) {
	for i := 0; i < 200; i++ {
		var q = New()
		var done = make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < 50; j++ {
				q.Schedule("k", time.Millisecond)
			}
		}()
		q.Close()
		<-done
		q.Abandon()
	}
}

func TestScheduleNeverBlocks(t *testing.T) {
	var q = New()
	defer q.Abandon()

	var done = make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			q.Schedule("k", time.Millisecond)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("schedule blocked")
	}
}
