// Package registry tracks the control nodes known to central.
package registry

import "sync"

type Node struct {
	ID    string `yaml:"id"    json:"id"`
	Floor int    `yaml:"floor" json:"floor"`
	Addr  string `yaml:"-"     json:"addr"`

	Online bool `yaml:"-" json:"online"`
}

type Store struct {
	mu   sync.RWMutex
	data map[string]Node
}

func NewStore() *Store {
	return &Store{data: map[string]Node{}}
}

func (s *Store) Get(id string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[id]
	return v, ok
}

func (s *Store) Upsert(n Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[n.ID] = n
}

func (s *Store) SetOnline(id string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[id]
	if !ok {
		return
	}
	v.Online = online
	s.data[id] = v
}

func (s *Store) List() []Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Node, 0, len(s.data))
	for _, v := range s.data {
		out = append(out, v)
	}
	return out
}
