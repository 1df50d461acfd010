package gamestate

import (
	"reflect"
	"testing"

	"github.com/sbischoff-ai/pygase/seqnum"
)

const w = seqnum.Width(2)

func u(to seqnum.Number, attrs map[string]any) *Update {
	return &Update{TimeOrder: to, Attrs: attrs}
}

func TestApplyOverwritesAndDeletes(t *testing.T) {
	s := New()
	s.Attrs["hp"] = 100
	s.TimeOrder = 1

	delta := u(2, map[string]any{"hp": 90, "shield": Deleted})
	out := s.Apply(delta, w)

	if out.Attrs["hp"] != 90 {
		t.Fatalf("hp = %v, want 90", out.Attrs["hp"])
	}
	if _, ok := out.Attrs["shield"]; ok {
		t.Fatalf("shield should have been deleted")
	}
	if out.TimeOrder != 2 {
		t.Fatalf("time_order = %d, want 2", out.TimeOrder)
	}

	// applying TO_DELETE again is a no-op
	out2 := out.Apply(u(3, map[string]any{"shield": Deleted}), w)
	if _, ok := out2.Attrs["shield"]; ok {
		t.Fatalf("shield reappeared")
	}
}

func TestApplyDoesNotRegressTimeOrder(t *testing.T) {
	s := New()
	s.TimeOrder = 5
	s.Attrs["x"] = 1

	out := s.Apply(u(3, map[string]any{"x": 2}), w)
	if out.TimeOrder != 5 {
		t.Fatalf("time_order regressed to %d", out.TimeOrder)
	}
}

func TestComposeAssociative(t *testing.T) {
	u1 := u(1, map[string]any{"a": 1, "b": 1})
	u2 := u(2, map[string]any{"b": 2, "c": 2})
	u3 := u(3, map[string]any{"c": 3, "d": 3})

	left := u1.Compose(u2, w).Compose(u3, w)
	right := u1.Compose(u2.Compose(u3, w), w)

	if !reflect.DeepEqual(left.Attrs, right.Attrs) || left.TimeOrder != right.TimeOrder {
		t.Fatalf("composition not associative: left=%+v right=%+v", left, right)
	}
}

func TestStateComposeCompose(t *testing.T) {
	s := New()
	s.Attrs["a"] = 0

	u1 := u(1, map[string]any{"a": 1})
	u2 := u(2, map[string]any{"a": 2})

	direct := s.Apply(u1.Compose(u2, w), w)
	sequential := s.Apply(u1, w).Apply(u2, w)

	if direct.Attrs["a"] != sequential.Attrs["a"] {
		t.Fatalf("state (+) (u1+u2) != (state+u1)+u2: %v vs %v", direct.Attrs["a"], sequential.Attrs["a"])
	}
}

func TestApplyMergesNestedMapsRecursively(t *testing.T) {
	s := New()
	s.TimeOrder = 1
	s.Attrs["players"] = map[string]any{
		"alice": map[string]any{"x": 1, "y": 2},
		"bob":   map[string]any{"x": 5, "y": 5},
	}

	delta := u(2, map[string]any{
		"players": map[string]any{
			"alice": map[string]any{"x": 9},
		},
	})
	out := s.Apply(delta, w)

	alice := out.Attrs["players"].(map[string]any)["alice"].(map[string]any)
	if alice["x"] != 9 || alice["y"] != 2 {
		t.Fatalf("alice = %+v, want x=9 (updated) y=2 (preserved)", alice)
	}
	bob := out.Attrs["players"].(map[string]any)["bob"].(map[string]any)
	if bob["x"] != 5 || bob["y"] != 5 {
		t.Fatalf("bob should be untouched, got %+v", bob)
	}

	// original nested map must not have been mutated in place
	origAlice := s.Attrs["players"].(map[string]any)["alice"].(map[string]any)
	if origAlice["x"] != 1 {
		t.Fatalf("Apply mutated the source state's nested map: %+v", origAlice)
	}
}

func TestApplyDeletesNestedKeyWithoutDroppingSiblings(t *testing.T) {
	s := New()
	s.TimeOrder = 1
	s.Attrs["players"] = map[string]any{
		"alice": map[string]any{"x": 1, "y": 2},
	}

	delta := u(2, map[string]any{
		"players": map[string]any{
			"alice": map[string]any{"y": Deleted},
		},
	})
	out := s.Apply(delta, w)

	alice := out.Attrs["players"].(map[string]any)["alice"].(map[string]any)
	if _, ok := alice["y"]; ok {
		t.Fatalf("alice.y should have been deleted, got %+v", alice)
	}
	if alice["x"] != 1 {
		t.Fatalf("alice.x should survive the nested deletion, got %+v", alice)
	}
}

func TestComposePreservesDeleteMarkerInNestedMap(t *testing.T) {
	u1 := u(1, map[string]any{"players": map[string]any{"alice": map[string]any{"x": 1}}})
	u2 := u(2, map[string]any{"players": map[string]any{"alice": map[string]any{"x": Deleted}}})

	composed := u1.Compose(u2, w)
	alice := composed.Attrs["players"].(map[string]any)["alice"].(map[string]any)
	if !IsDeleted(alice["x"]) {
		t.Fatalf("composed update should keep the TO_DELETE marker for later application, got %+v", alice)
	}

	s := New()
	s.Attrs["players"] = map[string]any{"alice": map[string]any{"x": 1}}
	out := s.Apply(composed, w)
	aliceState := out.Attrs["players"].(map[string]any)["alice"].(map[string]any)
	if _, ok := aliceState["x"]; ok {
		t.Fatalf("applying the composed update should delete alice.x, got %+v", aliceState)
	}
}

func TestSnapshotReproducesState(t *testing.T) {
	s := New()
	s.TimeOrder = 7
	s.Status = Active
	s.Attrs["hp"] = 42

	snap := s.Snapshot()
	rebuilt := New().Apply(snap, w)

	if rebuilt.TimeOrder != s.TimeOrder || rebuilt.Status != s.Status || rebuilt.Attrs["hp"] != 42 {
		t.Fatalf("rebuilt state %+v does not match original %+v", rebuilt, s)
	}
}
