package featureflag

import (
	"sort"
	"strings"
	"sync"
)

// Store holds flag state. Implementations must be safe for concurrent use.
type Store interface {
	Get(name string) (Flag, bool)
	Set(flag Flag) (Flag, error)
	List() []Flag
}

// MemoryStore keeps flags in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	flags map[string]Flag
}

func NewMemoryStore(initial ...Flag) *MemoryStore {
	s := &MemoryStore{flags: make(map[string]Flag, len(initial))}
	for _, f := range initial {
		_, _ = s.Set(f)
	}
	return s
}

func (s *MemoryStore) Get(name string) (Flag, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flags[strings.TrimSpace(name)]
	return f, ok
}

// Set stores flag and bumps its version past the stored one.
func (s *MemoryStore) Set(flag Flag) (Flag, error) {
	if err := flag.Validate(); err != nil {
		return Flag{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.flags[flag.Name]; ok && flag.Version <= prev.Version {
		flag.Version = prev.Version + 1
	}
	if flag.Version <= 0 {
		flag.Version = 1
	}
	s.flags[flag.Name] = flag
	return flag, nil
}

// Replace swaps the full flag set, keeping versions monotonic for flags that survive.
func (s *MemoryStore) Replace(flags []Flag) error {
	next := make(map[string]Flag, len(flags))
	for _, f := range flags {
		if err := f.Validate(); err != nil {
			return err
		}
		next[f.Name] = f
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name, f := range next {
		if prev, ok := s.flags[name]; ok {
			if prev.Enabled == f.Enabled && prev.RolloutPercent == f.RolloutPercent && prev.Description == f.Description {
				f.Version = prev.Version
			} else if f.Version <= prev.Version {
				f.Version = prev.Version + 1
			}
		}
		if f.Version <= 0 {
			f.Version = 1
		}
		next[name] = f
	}
	s.flags = next
	return nil
}

func (s *MemoryStore) List() []Flag {
	s.mu.RLock()
	out := make([]Flag, 0, len(s.flags))
	for _, f := range s.flags {
		out = append(out, f)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
