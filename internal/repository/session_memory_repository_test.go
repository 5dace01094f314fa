package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stemsi/exstem-quiz/internal/model"
)

func TestMemorySessionMissingIsLogin(t *testing.T) {
	repo := NewMemorySessionRepository(0)

	screen, err := repo.Get(context.Background(), "nobody")
	if err != nil {
		t.Fatal(err)
	}
	if screen.Kind() != model.ScreenLogin {
		t.Errorf("kind = %s, want LOGIN", screen.Kind())
	}
}

func TestMemorySessionStoresCopies(t *testing.T) {
	repo := NewMemorySessionRepository(0)
	ctx := context.Background()

	ip := &model.InProgressScreen{
		Candidate: model.Candidate{Name: "Alice", Roll: "R-1"},
		StartTime: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Answers:   make([]model.Option, 10),
	}
	if err := repo.Set(ctx, "s1", ip); err != nil {
		t.Fatal(err)
	}
	ip.Answers[0] = model.OptionA

	screen, err := repo.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	got, ok := screen.(*model.InProgressScreen)
	if !ok {
		t.Fatalf("screen = %T", screen)
	}
	if got.Answers[0] != model.OptionNone {
		t.Errorf("store shares state with caller")
	}

	if err := repo.ClearAll(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if screen, _ := repo.Get(ctx, "s1"); screen.Kind() != model.ScreenLogin {
		t.Errorf("kind after clear = %s", screen.Kind())
	}
}

func TestMemorySessionLockSerializes(t *testing.T) {
	repo := NewMemorySessionRepository(0)
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := repo.Lock(ctx, "s1")
			if err != nil {
				t.Error(err)
				return
			}
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
}

func TestMemoryDeadlines(t *testing.T) {
	repo := NewMemoryDeadlineRepository()
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	_ = repo.Schedule(ctx, "past", now.Add(-time.Second))
	_ = repo.Schedule(ctx, "exact", now)
	_ = repo.Schedule(ctx, "future", now.Add(time.Minute))
	_ = repo.Schedule(ctx, "cancelled", now.Add(-time.Minute))
	_ = repo.Cancel(ctx, "cancelled")

	due, err := repo.Due(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	got := map[string]bool{}
	for _, id := range due {
		got[id] = true
	}
	if len(due) != 2 || !got["past"] || !got["exact"] {
		t.Errorf("due = %v, want past and exact", due)
	}
}

func TestMemoryResultFeed(t *testing.T) {
	feed := NewMemoryResultFeed()
	ctx, cancel := context.WithCancel(context.Background())

	ch := feed.Subscribe(ctx)
	rec := model.ResultRecord{Timestamp: "2024-03-01 09:00:00", Name: "Alice", Roll: "R-1", Score: "9/10"}
	if err := feed.Publish(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-ch:
		if got != rec {
			t.Errorf("got %+v, want %+v", got, rec)
		}
	case <-time.After(time.Second):
		t.Fatal("no result delivered")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("channel delivered after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestMemorySessionExpiresAfterTTL(t *testing.T) {
	repo := NewMemorySessionRepository(time.Hour)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	sub := &model.SubmittedScreen{Report: model.Report{Score: 3, Total: 10}}
	if err := repo.Set(ctx, "old", sub); err != nil {
		t.Fatal(err)
	}
	now = now.Add(45 * time.Minute)
	if err := repo.Set(ctx, "fresh", sub); err != nil {
		t.Fatal(err)
	}

	now = now.Add(30 * time.Minute)
	screen, err := repo.Get(ctx, "old")
	if err != nil {
		t.Fatal(err)
	}
	if screen.Kind() != model.ScreenLogin {
		t.Errorf("expired session kind = %s, want LOGIN", screen.Kind())
	}

	if dropped := repo.Sweep(); dropped != 1 {
		t.Errorf("Sweep dropped %d, want 1", dropped)
	}
	if repo.Len() != 1 {
		t.Errorf("Len = %d, want 1", repo.Len())
	}
	screen, err = repo.Get(ctx, "fresh")
	if err != nil {
		t.Fatal(err)
	}
	if screen.Kind() != model.ScreenSubmitted {
		t.Errorf("fresh session kind = %s, want SUBMITTED", screen.Kind())
	}
}

func TestMemorySessionWithoutTTLKeepsSessions(t *testing.T) {
	repo := NewMemorySessionRepository(0)
	repo.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	if err := repo.Set(context.Background(), "s", model.LoginScreen{}); err != nil {
		t.Fatal(err)
	}
	repo.now = func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }
	if dropped := repo.Sweep(); dropped != 0 || repo.Len() != 1 {
		t.Errorf("Sweep dropped %d, Len %d; want 0, 1", dropped, repo.Len())
	}
}
