package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/mentxia/mordomo/internal/types"
)

func msg(body string) types.Message {
	return types.Message{Role: types.RoleUser, Body: body}
}

func TestAppendKeepsMostRecentWindow(t *testing.T) {
	s := NewStore(5)
	for i := 0; i < 12; i++ {
		s.Append("351911111111", msg(fmt.Sprintf("m%d", i)))
	}

	snap := s.Snapshot("351911111111")
	if len(snap) != 5 {
		t.Fatalf("snapshot length = %d, want 5", len(snap))
	}
	for i, m := range snap {
		want := fmt.Sprintf("m%d", 7+i)
		if m.Body != want {
			t.Errorf("snapshot[%d] = %q, want %q", i, m.Body, want)
		}
	}
}

func TestSnapshotPreservesOrder(t *testing.T) {
	s := NewStore(20)
	bodies := []string{"olá", "liga a luz", "obrigado"}
	for _, b := range bodies {
		s.Append("351911111111", msg(b))
	}

	snap := s.Snapshot("351911111111")
	if len(snap) != len(bodies) {
		t.Fatalf("snapshot length = %d, want %d", len(snap), len(bodies))
	}
	for i, b := range bodies {
		if snap[i].Body != b {
			t.Errorf("snapshot[%d] = %q, want %q", i, snap[i].Body, b)
		}
	}
}

func TestResetEmptiesConversation(t *testing.T) {
	s := NewStore(20)
	s.Append("351911111111", msg("olá"))
	s.Append("351922222222", msg("boa tarde"))

	s.Reset("351911111111")

	if got := s.Snapshot("351911111111"); len(got) != 0 {
		t.Errorf("reset identity snapshot length = %d, want 0", len(got))
	}
	if got := s.Snapshot("351922222222"); len(got) != 1 {
		t.Errorf("other identity snapshot length = %d, want 1", len(got))
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := NewStore(20)
	s.Append("351911111111", msg("primeira"))

	snap := s.Snapshot("351911111111")
	s.Append("351911111111", msg("segunda"))

	if len(snap) != 1 {
		t.Errorf("earlier snapshot grew to %d entries", len(snap))
	}
}

func TestScratchpad(t *testing.T) {
	s := NewStore(20)
	s.SetScratch("351911111111", "last_entity", "light.sala")

	if v, ok := s.Scratch("351911111111", "last_entity"); !ok || v != "light.sala" {
		t.Errorf("Scratch = %q, %v", v, ok)
	}
	if _, ok := s.Scratch("351911111111", "missing"); ok {
		t.Error("missing key reported present")
	}

	s.Reset("351911111111")
	if _, ok := s.Scratch("351911111111", "last_entity"); ok {
		t.Error("scratch survived reset")
	}
}

func TestConcurrentIdentitiesDoNotInterleave(t *testing.T) {
	s := NewStore(100)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			id := fmt.Sprintf("3519%d", g)
			for i := 0; i < 50; i++ {
				s.Append(id, msg(fmt.Sprintf("m%d", i)))
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < 8; g++ {
		id := fmt.Sprintf("3519%d", g)
		snap := s.Snapshot(id)
		if len(snap) != 50 {
			t.Fatalf("identity %s has %d messages, want 50", id, len(snap))
		}
		for i, m := range snap {
			if m.Body != fmt.Sprintf("m%d", i) {
				t.Fatalf("identity %s out of order at %d: %q", id, i, m.Body)
			}
		}
	}
}
