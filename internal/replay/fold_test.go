// SPDX-License-Identifier: Apache-2.0

package replay

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/drawdeck/boardsync/internal/domain"
	"github.com/google/uuid"
)

func testFolder() *Folder {
	return NewFolder(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func action(kind domain.ActionKind, payload string) domain.Action {
	return domain.Action{
		ID:        domain.NewActionID(),
		Kind:      kind,
		Payload:   json.RawMessage(payload),
		CreatedBy: uuid.New(),
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestFoldAddUpdateRemove(t *testing.T) {
	f := testFolder()

	actions := []domain.Action{
		action(domain.ActionAdd, `{"id":"e1","kind":"sticky-note","data":{"text":"hello"}}`),
		action(domain.ActionAdd, `{"id":"e2","kind":"line","data":{"points":[[0,0],[1,1]]}}`),
		action(domain.ActionUpdate, `{"id":"e1","data":{"text":"edited"}}`),
		action(domain.ActionRemove, `{"id":"e2"}`),
	}

	snap := f.Fold(actions)
	if len(snap) != 1 {
		t.Fatalf("expected 1 element, got %d", len(snap))
	}
	el, ok := snap["e1"]
	if !ok {
		t.Fatal("expected e1 to survive")
	}
	if el.Kind != domain.ElementStickyNote {
		t.Fatalf("expected sticky-note, got %s", el.Kind)
	}
	if string(el.Data) != `{"text":"edited"}` {
		t.Fatalf("expected updated data, got %s", el.Data)
	}
}

func TestFoldDeterminism(t *testing.T) {
	f := testFolder()

	actions := []domain.Action{
		action(domain.ActionAdd, `{"id":"a","kind":"frame"}`),
		action(domain.ActionAdd, `{"id":"b","kind":"text","data":{"text":"x"}}`),
		action(domain.ActionUpdate, `{"id":"a","data":{"w":100}}`),
	}

	first := f.Fold(actions)
	second := f.Fold(actions)

	if len(first) != len(second) {
		t.Fatalf("snapshots differ in size: %d vs %d", len(first), len(second))
	}
	for id, el := range first {
		other, ok := second[id]
		if !ok {
			t.Fatalf("element %s missing from second fold", id)
		}
		if el.Kind != other.Kind || string(el.Data) != string(other.Data) ||
			!el.UpdatedAt.Equal(other.UpdatedAt) {
			t.Fatalf("element %s differs between folds", id)
		}
	}
}

func TestFoldClearAndSync(t *testing.T) {
	f := testFolder()

	snap := f.Fold([]domain.Action{
		action(domain.ActionAdd, `{"id":"e1","kind":"shape"}`),
		action(domain.ActionAdd, `{"id":"e2","kind":"shape"}`),
		action(domain.ActionClear, ``),
		action(domain.ActionSync, ``),
		action(domain.ActionAdd, `{"id":"e3","kind":"line"}`),
	})

	if len(snap) != 1 {
		t.Fatalf("expected only e3 after clear, got %d elements", len(snap))
	}
	if _, ok := snap["e3"]; !ok {
		t.Fatal("expected e3 present")
	}
}

func TestFoldUpdateMissingElementIsNoop(t *testing.T) {
	f := testFolder()

	snap := f.Fold([]domain.Action{
		action(domain.ActionUpdate, `{"id":"ghost","data":{"text":"boo"}}`),
	})
	if len(snap) != 0 {
		t.Fatalf("expected empty snapshot, got %d elements", len(snap))
	}
}

func TestFoldRemoveMissingElementIsNoop(t *testing.T) {
	f := testFolder()

	snap := f.Fold([]domain.Action{
		action(domain.ActionAdd, `{"id":"e1","kind":"frame"}`),
		action(domain.ActionRemove, `{"id":"ghost"}`),
	})
	if len(snap) != 1 {
		t.Fatalf("expected e1 to survive, got %d elements", len(snap))
	}
}

func TestFoldSkipsMalformedActions(t *testing.T) {
	f := testFolder()

	snap := f.Fold([]domain.Action{
		action(domain.ActionAdd, `{"id":"e1","kind":"line"}`),
		action(domain.ActionAdd, `{not json`),
		action(domain.ActionAdd, `{"id":"e2","kind":"hexagon"}`),
		action(domain.ActionUpdate, `{"data":{"no":"id"}}`),
		action(domain.ActionAdd, `{"id":"e3","kind":"text"}`),
	})

	if len(snap) != 2 {
		t.Fatalf("expected 2 surviving elements, got %d", len(snap))
	}
	for _, id := range []string{"e1", "e3"} {
		if _, ok := snap[id]; !ok {
			t.Fatalf("expected %s present", id)
		}
	}
}

func TestFoldGeneratesElementID(t *testing.T) {
	f := testFolder()

	snap := f.Fold([]domain.Action{
		action(domain.ActionAdd, `{"kind":"sticky-note","data":{"text":"anon"}}`),
	})
	if len(snap) != 1 {
		t.Fatalf("expected 1 element, got %d", len(snap))
	}
	for id, el := range snap {
		if id == "" || el.ID != id {
			t.Fatalf("expected generated id to be set on the element, got %q / %q", id, el.ID)
		}
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("expected generated id to be a uuid, got %q", id)
		}
	}
}

func TestSnapshotListStableOrder(t *testing.T) {
	f := testFolder()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	actions := make([]domain.Action, 0, 5)
	for i := 0; i < 5; i++ {
		a := action(domain.ActionAdd, fmt.Sprintf(`{"id":"e%d","kind":"line"}`, i))
		a.CreatedAt = base.Add(time.Duration(i) * time.Second)
		actions = append(actions, a)
	}

	list := f.Fold(actions).List()
	if len(list) != 5 {
		t.Fatalf("expected 5 elements, got %d", len(list))
	}
	for i, el := range list {
		if want := fmt.Sprintf("e%d", i); el.ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, el.ID)
		}
	}
}
