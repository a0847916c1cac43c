package store

import (
	"errors"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/jalsense/jalsense/server/internal/rules"
)

// ErrUnknownNode is returned for any node id that was not provisioned.
var ErrUnknownNode = errors.New("unknown node")

// NodeSpec is the provisioning record for one node.
type NodeSpec struct {
	ID       string
	Name     string
	Category rules.Category
	Location string
}

// Node is a monitored asset together with its latest known state.
type Node struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Category    rules.Category `json:"type"`
	Location    string         `json:"location"`
	Metrics     rules.Snapshot `json:"latest_metrics"`
	LastUpdated *time.Time     `json:"last_updated"`
	Status      rules.Status   `json:"status"`
}

// clone returns a copy of n that shares no mutable state with it.
func (n *Node) clone() Node {
	cp := *n
	cp.Metrics = maps.Clone(n.Metrics)
	if cp.Metrics == nil {
		cp.Metrics = rules.Snapshot{}
	}
	if n.LastUpdated != nil {
		ts := *n.LastUpdated
		cp.LastUpdated = &ts
	}
	return cp
}

// merge overwrites or inserts every key in delta and stamps ts as the latest
// update. Keys absent from delta keep their previous value. Arrival order
// wins: an older ts that merges last still becomes LastUpdated.
func (n *Node) merge(delta map[string]float64, ts time.Time) {
	if n.Metrics == nil {
		n.Metrics = make(rules.Snapshot, len(delta))
	}
	for k, v := range delta {
		n.Metrics[k] = v
	}
	n.LastUpdated = &ts
}

// Tx is the mutable view of one node handed to an Update callback. It is only
// valid for the duration of the callback.
type Tx struct {
	node *Node
}

// Merge applies a metric delta to the node and returns the post-merge snapshot.
func (tx *Tx) Merge(delta map[string]float64, ts time.Time) Node {
	tx.node.merge(delta, ts)
	return tx.node.clone()
}

// SetStatus records the status derived from the node's latest evaluation.
func (tx *Tx) SetStatus(s rules.Status) {
	tx.node.Status = s
}

// Node returns a copy of the node as currently held by the transaction.
func (tx *Tx) Node() Node {
	return tx.node.clone()
}

// slot pairs a node with the lock that serializes its updates.
type slot struct {
	mu   sync.Mutex
	node Node
}

// Store is a thread-safe per-node snapshot store. The id→slot map is built
// once by New and is read-only afterwards, so lookups need no global lock.
type Store struct {
	slots map[string]*slot
	ids   []string // sorted, for deterministic List order
}

// New provisions a Store with the given nodes. A later spec with a duplicate
// id replaces the earlier one; config validation rejects duplicates first.
func New(specs []NodeSpec) *Store {
	s := &Store{slots: make(map[string]*slot, len(specs))}
	for _, sp := range specs {
		if _, dup := s.slots[sp.ID]; !dup {
			s.ids = append(s.ids, sp.ID)
		}
		s.slots[sp.ID] = &slot{node: Node{
			ID:       sp.ID,
			Name:     sp.Name,
			Category: sp.Category,
			Location: sp.Location,
			Metrics:  rules.Snapshot{},
			Status:   rules.StatusOK,
		}}
	}
	sort.Strings(s.ids)
	return s
}

// Update runs fn with exclusive access to node id. No other Update or Merge
// for the same node can interleave with fn; other nodes are unaffected.
func (s *Store) Update(id string, fn func(tx *Tx)) error {
	sl, ok := s.slots[id]
	if !ok {
		return ErrUnknownNode
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	fn(&Tx{node: &sl.node})
	return nil
}

// Merge applies delta to node id and returns the post-merge node.
func (s *Store) Merge(id string, delta map[string]float64, ts time.Time) (Node, error) {
	var out Node
	err := s.Update(id, func(tx *Tx) {
		out = tx.Merge(delta, ts)
	})
	return out, err
}

// Get returns a copy of node id and whether it exists.
func (s *Store) Get(id string) (Node, bool) {
	sl, ok := s.slots[id]
	if !ok {
		return Node{}, false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.node.clone(), true
}

// List returns copies of all nodes ordered by id.
func (s *Store) List() []Node {
	out := make([]Node, 0, len(s.ids))
	for _, id := range s.ids {
		sl := s.slots[id]
		sl.mu.Lock()
		out = append(out, sl.node.clone())
		sl.mu.Unlock()
	}
	return out
}

// Count returns the number of provisioned nodes.
func (s *Store) Count() int {
	return len(s.ids)
}
