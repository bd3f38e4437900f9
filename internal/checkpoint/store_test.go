package checkpoint_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"sceneflow/internal/checkpoint"
	"sceneflow/internal/scene"
	"sceneflow/internal/services"
	"sceneflow/internal/testsupport"
)

var testKey = scene.NewKey(37, 35, time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC))

func TestRecordCompleteIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCheckpoints(t, cfg)
	ctx := context.Background()

	ran, err := store.HasRun(ctx, "example", testKey, 1000)
	if err != nil {
		t.Fatalf("HasRun: %v", err)
	}
	if ran {
		t.Fatal("expected fresh store to report step not run")
	}

	for i := 0; i < 3; i++ {
		if err := store.RecordComplete(ctx, "example", testKey, 1000, "first step"); err != nil {
			t.Fatalf("RecordComplete attempt %d: %v", i, err)
		}
	}

	ran, err = store.HasRun(ctx, "example", testKey, 1000)
	if err != nil || !ran {
		t.Fatalf("expected step recorded, got %v %v", ran, err)
	}
	records, err := store.List(ctx, "example", testKey.String())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected a single record after duplicate writes, got %d", len(records))
	}
	if records[0].Description != "first step" || records[0].RecordedAt.IsZero() {
		t.Fatalf("unexpected record %+v", records[0])
	}
}

func TestRecordsAreScopedByWorkflowAndKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCheckpoints(t, cfg)
	ctx := context.Background()
	otherKey := scene.NewKey(37, 36, testKey.Date)

	if err := store.RecordComplete(ctx, "example", testKey, 1000, ""); err != nil {
		t.Fatalf("RecordComplete: %v", err)
	}
	if ran, _ := store.HasRun(ctx, "command", testKey, 1000); ran {
		t.Fatal("record leaked across workflows")
	}
	if ran, _ := store.HasRun(ctx, "example", otherKey, 1000); ran {
		t.Fatal("record leaked across scenes")
	}
	if ran, _ := store.HasRun(ctx, "example", testKey, 1010); ran {
		t.Fatal("record leaked across steps")
	}
}

func TestClearAllRemovesOnlyScopedRecords(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCheckpoints(t, cfg)
	ctx := context.Background()
	otherKey := scene.NewKey(37, 36, testKey.Date)

	for _, step := range []int{0, 1000, 1010} {
		if err := store.RecordComplete(ctx, "example", testKey, step, ""); err != nil {
			t.Fatalf("RecordComplete: %v", err)
		}
	}
	if err := store.RecordComplete(ctx, "example", otherKey, 1000, ""); err != nil {
		t.Fatalf("RecordComplete: %v", err)
	}

	removed, err := store.ClearAll(ctx, "example", testKey)
	if err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if ran, _ := store.HasRun(ctx, "example", otherKey, 1000); !ran {
		t.Fatal("ClearAll removed another scene's record")
	}

	removed, err = store.ClearAll(ctx, "example", testKey)
	if err != nil || removed != 0 {
		t.Fatalf("expected second ClearAll to be a no-op, got %d %v", removed, err)
	}
}

func TestRecordsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	ctx := context.Background()

	store, err := checkpoint.Open(ctx, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.RecordComplete(ctx, "example", testKey, 1010, ""); err != nil {
		t.Fatalf("RecordComplete: %v", err)
	}
	store.Close()

	reopened, err := checkpoint.Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if ran, err := reopened.HasRun(ctx, "example", testKey, 1010); err != nil || !ran {
		t.Fatalf("expected record to persist across reopen, got %v %v", ran, err)
	}
}

func TestInvalidScopeIsRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCheckpoints(t, cfg)
	ctx := context.Background()

	if _, err := store.HasRun(ctx, "", testKey, 1000); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for blank workflow, got %v", err)
	}
	if err := store.RecordComplete(ctx, "example", scene.Key{}, 1000, ""); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for zero key, got %v", err)
	}
}

func TestWritesAfterCloseAreStorageErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	store, err := checkpoint.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	store.Close()

	err = store.RecordComplete(context.Background(), "example", testKey, 1000, "")
	if !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestListWhileAnotherHandleWrites(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	reader := testsupport.MustOpenCheckpoints(t, cfg)
	writer := testsupport.MustOpenCheckpoints(t, cfg)
	ctx := context.Background()

	steps := make([]int, 20)
	for i := range steps {
		steps[i] = 1000 + 10*i
	}
	done := make(chan error, 1)
	go func() {
		for _, id := range steps {
			if err := writer.RecordComplete(ctx, "example", testKey, id, "step"); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for range steps {
		if _, err := reader.List(ctx, "example", ""); err != nil {
			t.Fatalf("List during writes: %v", err)
		}
	}
	if err := <-done; err != nil {
		t.Fatalf("RecordComplete: %v", err)
	}
	records, err := reader.List(ctx, "example", testKey.String())
	if err != nil || len(records) != len(steps) {
		t.Fatalf("expected %d records, got %d (%v)", len(steps), len(records), err)
	}
}
