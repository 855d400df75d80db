package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/Lllllllleong/pdfanalysisflow/internal/models"
)

func TestTaskStoreSnapshotsAreIsolated(t *testing.T) {
	store := NewTaskStore()
	task := store.Create()
	if task.Phase != models.PhaseCreated {
		t.Fatalf("phase = %s, want CREATED", task.Phase)
	}

	_, err := store.Update(task.ID, func(t *models.Task) error {
		t.Documents = []models.Document{{ID: "d", Pages: []models.Page{{Index: 0}}}}
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	snap, err := store.Get(task.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	snap.Documents[0].Pages[0].Text = "changed"
	snap.Phase = models.PhaseFailed

	again, _ := store.Get(task.ID)
	if again.Documents[0].Pages[0].Text != "" || again.Phase != models.PhaseCreated {
		t.Errorf("mutating a snapshot leaked into the store: %+v", again)
	}
}

func TestTaskStoreUpdateIsAllOrNothing(t *testing.T) {
	store := NewTaskStore()
	task := store.Create()
	boom := errors.New("boom")

	_, err := store.Update(task.ID, func(t *models.Task) error {
		t.Phase = models.PhaseOCRRunning
		t.Chunks = []models.Chunk{{ID: "0-0"}}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}

	got, _ := store.Get(task.ID)
	if got.Phase != models.PhaseCreated || len(got.Chunks) != 0 {
		t.Errorf("failed mutation was committed: %+v", got)
	}
}

func TestTaskStoreUnknownID(t *testing.T) {
	store := NewTaskStore()
	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	called := false
	if _, err := store.Update("missing", func(*models.Task) error { called = true; return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
	if called {
		t.Error("mutator ran for an unknown task")
	}
	if err := store.Delete("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
	if n := len(store.List()); n != 0 {
		t.Errorf("List() returned %d tasks, want 0", n)
	}
}

func TestTaskStoreListNewestFirstAndDelete(t *testing.T) {
	store := NewTaskStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first := store.Create()
	second := store.Create()

	list := store.List()
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("List() order wrong: %+v", list)
	}

	updated, err := store.Update(first.ID, func(*models.Task) error { return nil })
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if !updated.CreatedAt.Equal(first.CreatedAt) || !updated.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("timestamps not maintained: created %v updated %v", updated.CreatedAt, updated.UpdatedAt)
	}

	if err := store.Delete(first.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
	}
}
