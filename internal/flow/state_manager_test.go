package flow

import (
	"fmt"
	"sync"
	"testing"

	"github.com/BTreeMap/Jeeves/internal/models"
)

func TestSessionStore_CreateGetDelete(t *testing.T) {
	s := NewSessionStore()
	if _, ok := s.Get("u1"); ok {
		t.Fatal("expected no session")
	}

	created := s.Create("u1", "c1")
	if created.Step != StepDate || created.ChannelID != "c1" {
		t.Errorf("unexpected new session %+v", created)
	}

	got, ok := s.Get("u1")
	if !ok || got.UserID != "u1" {
		t.Fatalf("expected session for u1, got %+v %v", got, ok)
	}
	if s.Count() != 1 {
		t.Errorf("expected count 1, got %d", s.Count())
	}

	s.Delete("u1")
	s.Delete("u1")
	if _, ok := s.Get("u1"); ok {
		t.Error("expected session to be deleted")
	}
}

func TestSessionStore_GetReturnsCopy(t *testing.T) {
	s := NewSessionStore()
	s.Create("u1", "c1")

	sess, _ := s.Get("u1")
	sess.Answers[models.DataKeyDate] = "2025-08-20"
	sess.Step = StepStartTime

	stored, _ := s.Get("u1")
	if stored.Step != StepDate || len(stored.Answers) != 0 {
		t.Errorf("mutating a copy leaked into the store: %+v", stored)
	}

	s.Save(sess)
	stored, _ = s.Get("u1")
	if stored.Step != StepStartTime || stored.Answers[models.DataKeyDate] != "2025-08-20" {
		t.Errorf("Save did not persist changes: %+v", stored)
	}
}

func TestSessionStore_List(t *testing.T) {
	s := NewSessionStore()
	s.Create("u2", "c1")
	s.Create("u1", "c2")
	list := s.List()
	if len(list) != 2 || list[0].UserID != "u1" || list[1].UserID != "u2" {
		t.Errorf("expected sessions sorted by user, got %+v", list)
	}
}

func TestSessionStore_LockSerializesUser(t *testing.T) {
	s := NewSessionStore()
	s.Create("u1", "c1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock := s.Lock("u1")
			defer unlock()
			sess, _ := s.Get("u1")
			sess.Answers[models.DataKey(fmt.Sprintf("k%d", i))] = "v"
			s.Save(sess)
		}(i)
	}
	wg.Wait()

	sess, _ := s.Get("u1")
	if len(sess.Answers) != 50 {
		t.Errorf("expected 50 answers with no lost updates, got %d", len(sess.Answers))
	}
	if n := s.lockCount(); n != 0 {
		t.Errorf("expected user locks released, %d left", n)
	}
}

func TestSessionStore_LockEntryRemovedAfterUnlock(t *testing.T) {
	s := NewSessionStore()
	for _, user := range []string{"u1", "u2", "u3"} {
		unlock := s.Lock(user)
		unlock()
	}
	if n := s.lockCount(); n != 0 {
		t.Errorf("expected no lingering user locks, got %d", n)
	}

	unlock := s.Lock("u1")
	if n := s.lockCount(); n != 1 {
		t.Errorf("expected held lock to be tracked, got %d", n)
	}
	unlock()
}
