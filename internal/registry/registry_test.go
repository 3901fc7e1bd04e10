package registry

import "testing"

func TestStoreUpsertAndGet(t *testing.T) {
	s := NewStore()

	if _, ok := s.Get("ground"); ok {
		t.Fatal("empty store returned a node")
	}

	s.Upsert(Node{ID: "ground", Floor: 0, Addr: "127.0.0.1:4000", Online: true})
	s.Upsert(Node{ID: "floor1", Floor: 1, Addr: "127.0.0.1:4001", Online: true})

	n, ok := s.Get("floor1")
	if !ok || n.Floor != 1 {
		t.Errorf("Get = %+v ok=%v", n, ok)
	}

	// upsert replaces the record
	s.Upsert(Node{ID: "floor1", Floor: 1, Addr: "127.0.0.1:5001", Online: true})
	if n, _ := s.Get("floor1"); n.Addr != "127.0.0.1:5001" {
		t.Errorf("addr = %q after upsert", n.Addr)
	}

	if got := len(s.List()); got != 2 {
		t.Errorf("List len = %d, want 2", got)
	}
}

func TestStoreSetOnline(t *testing.T) {
	s := NewStore()
	s.Upsert(Node{ID: "ground", Online: true})

	s.SetOnline("ground", false)
	if n, _ := s.Get("ground"); n.Online {
		t.Error("node still online")
	}

	// unknown ids are ignored
	s.SetOnline("ghost", true)
	if _, ok := s.Get("ghost"); ok {
		t.Error("SetOnline invented a node")
	}
}
