package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func seed(q *mockQueue, id string, trigger time.Time) {
	q.emails[id] = FollowUpEmail{ID: id, JobID: "j-" + id, TriggerDate: trigger, EmailType: TypeFollowUpApplication}
}

func TestProcessScheduledEmails_DeliversDueOnly(t *testing.T) {
	q := newMockQueue()
	seed(q, "past", testNow.Add(-time.Hour))
	seed(q, "exact", testNow)
	seed(q, "future", testNow.Add(time.Hour))

	n := &mockNotifier{}
	d := NewDispatcher(staticSettings(enabledSettings()), q, n, DispatcherOptions{Clock: &mockClock{now: testNow}})

	res, err := d.ProcessScheduledEmails(context.Background())
	if err != nil {
		t.Fatalf("ProcessScheduledEmails: %v", err)
	}
	if res.Due != 2 || res.Sent != 2 {
		t.Errorf("res = %+v, want 2 due 2 sent", res)
	}
	if !q.get("past").Sent || !q.get("exact").Sent {
		t.Error("due reminders not marked sent")
	}
	if q.get("future").Sent {
		t.Error("future reminder was sent")
	}
}

func TestProcessScheduledEmails_NeverRefires(t *testing.T) {
	q := newMockQueue()
	seed(q, "a", testNow.Add(-time.Hour))

	n := &mockNotifier{}
	clock := &mockClock{now: testNow}
	d := NewDispatcher(staticSettings(enabledSettings()), q, n, DispatcherOptions{Clock: clock})
	ctx := context.Background()

	d.ProcessScheduledEmails(ctx)
	clock.Advance(time.Hour)
	d.ProcessScheduledEmails(ctx)

	if n.count() != 1 {
		t.Errorf("notifications = %d, want 1", n.count())
	}
}

func TestProcessScheduledEmails_ConcurrentScansDeliverOnce(t *testing.T) {
	q := newMockQueue()
	seed(q, "a", testNow.Add(-time.Hour))
	n := &mockNotifier{delay: 50 * time.Millisecond}
	d := NewDispatcher(staticSettings(enabledSettings()), q, n, DispatcherOptions{Clock: &mockClock{now: testNow}})

	var wg sync.WaitGroup
	results := make([]Result, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := d.ProcessScheduledEmails(context.Background())
			if err != nil {
				t.Errorf("ProcessScheduledEmails: %v", err)
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	if n.count() != 1 {
		t.Errorf("notifications = %d, want 1", n.count())
	}
	if results[0].Sent+results[1].Sent != 1 {
		t.Errorf("sent = %d + %d, want 1 in total", results[0].Sent, results[1].Sent)
	}
}

func TestProcessScheduledEmails_Skipped(t *testing.T) {
	noAddr := enabledSettings()
	noAddr.EmailAddress = ""

	for name, settings := range map[string]EmailSettings{"disabled": DefaultSettings(), "no address": noAddr} {
		t.Run(name, func(t *testing.T) {
			q := newMockQueue()
			seed(q, "a", testNow.Add(-time.Hour))
			n := &mockNotifier{}
			d := NewDispatcher(staticSettings(settings), q, n, DispatcherOptions{Clock: &mockClock{now: testNow}})

			res, err := d.ProcessScheduledEmails(context.Background())
			if err != nil {
				t.Fatalf("ProcessScheduledEmails: %v", err)
			}
			if !res.Skipped || n.count() != 0 || q.get("a").Sent {
				t.Errorf("expected skip, res=%+v notified=%d", res, n.count())
			}
		})
	}
}

func TestProcessScheduledEmails_NotifierFailureStillMarksSent(t *testing.T) {
	q := newMockQueue()
	seed(q, "a", testNow.Add(-time.Hour))
	n := &mockNotifier{err: errors.New("boom")}
	d := NewDispatcher(staticSettings(enabledSettings()), q, n, DispatcherOptions{Clock: &mockClock{now: testNow}})

	res, err := d.ProcessScheduledEmails(context.Background())
	if err != nil {
		t.Fatalf("ProcessScheduledEmails: %v", err)
	}
	if res.Failed != 1 || res.Sent != 0 || !q.get("a").Sent {
		t.Errorf("res = %+v sent=%v", res, q.get("a").Sent)
	}
}

func TestProcessScheduledEmails_Prunes(t *testing.T) {
	q := newMockQueue()
	old := testNow.Add(-48 * time.Hour)
	q.emails["old"] = FollowUpEmail{ID: "old", Sent: true, SentAt: &old}
	d := NewDispatcher(staticSettings(enabledSettings()), q, &mockNotifier{}, DispatcherOptions{
		Clock:     &mockClock{now: testNow},
		Retention: 24 * time.Hour,
	})

	res, err := d.ProcessScheduledEmails(context.Background())
	if err != nil {
		t.Fatalf("ProcessScheduledEmails: %v", err)
	}
	if res.Pruned != 1 {
		t.Errorf("Pruned = %d, want 1", res.Pruned)
	}
}

func TestDispatcher_StartStop(t *testing.T) {
	q := newMockQueue()
	seed(q, "a", testNow.Add(-time.Hour))
	n := &mockNotifier{}
	d := NewDispatcher(staticSettings(enabledSettings()), q, n, DispatcherOptions{
		Clock:    &mockClock{now: testNow},
		Interval: time.Hour,
	})

	d.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for n.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	d.Stop()

	if n.count() != 1 {
		t.Errorf("notifications = %d, want 1 from the immediate scan", n.count())
	}
	if n.prepared != 1 {
		t.Errorf("prepared = %d, want 1", n.prepared)
	}
	d.Stop()
}

func TestMultiNotifier(t *testing.T) {
	a, b := &mockNotifier{}, &mockNotifier{err: errors.New("down")}
	m := MultiNotifier{a, b}

	err := m.Notify(context.Background(), FollowUpEmail{ID: "x"})
	if err == nil {
		t.Error("expected error from failing member")
	}
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("a=%d b=%d, want both called", a.count(), b.count())
	}
	if err := m.Prepare(context.Background()); err != nil {
		t.Errorf("Prepare: %v", err)
	}
	if a.prepared != 1 || b.prepared != 1 {
		t.Error("members not prepared")
	}
}
