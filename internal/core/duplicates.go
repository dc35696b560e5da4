package core

// duplicates.go classifies records against the store snapshot and the
// records already accepted earlier in the same session.
//
// The snapshot indices are built once and never written. Accepted batch
// records go into a separate overlay so that two rows colliding with each
// other are detected even when neither existed in the store.

import "sync"

// DuplicateCheck is the result of probing both indices. ByID and ByCPT are
// evaluated independently and may both be set.
type DuplicateCheck struct {
	ByID  bool
	ByCPT bool

	// CPTOwnerID is the id of the record that already holds the CPT code.
	CPTOwnerID string
}

// Unique reports whether neither index matched.
func (c DuplicateCheck) Unique() bool {
	return !c.ByID && !c.ByCPT
}

// Classification names the result: unique, duplicate-by-id or
// duplicate-by-cpt-code. An id match takes precedence.
func (c DuplicateCheck) Classification() string {
	switch {
	case c.ByID:
		return "duplicate-by-id"
	case c.ByCPT:
		return "duplicate-by-cpt-code"
	default:
		return "unique"
	}
}

// Reasons lists every matched index, id first.
func (c DuplicateCheck) Reasons() []DuplicateReason {
	var reasons []DuplicateReason
	if c.ByID {
		reasons = append(reasons, ReasonIDExists)
	}
	if c.ByCPT {
		reasons = append(reasons, ReasonCPTCodeExists)
	}
	return reasons
}

// Reason returns the primary reason, or nil for a unique record.
func (c DuplicateCheck) Reason() *DuplicateReason {
	reasons := c.Reasons()
	if len(reasons) == 0 {
		return nil
	}
	return &reasons[0]
}

// DuplicateIndex answers id and CPT membership in O(1).
type DuplicateIndex struct {
	byID  map[string]struct{}
	byCPT map[string]string

	mu       sync.RWMutex
	batchID  map[string]struct{}
	batchCPT map[string]string
}

// NewDuplicateIndex indexes existing. Later records do not displace an
// earlier CPT owner.
func NewDuplicateIndex(existing []TestRecord) *DuplicateIndex {
	ix := &DuplicateIndex{
		byID:     make(map[string]struct{}, len(existing)),
		byCPT:    make(map[string]string, len(existing)),
		batchID:  make(map[string]struct{}),
		batchCPT: make(map[string]string),
	}
	for _, rec := range existing {
		ix.byID[rec.ID] = struct{}{}
		if cpt := Deref(rec.CPTCode); cpt != "" {
			if _, taken := ix.byCPT[cpt]; !taken {
				ix.byCPT[cpt] = rec.ID
			}
		}
	}
	return ix
}

// Check probes rec against the snapshot and the batch overlay.
func (ix *DuplicateIndex) Check(rec TestRecord) DuplicateCheck {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var c DuplicateCheck
	if _, ok := ix.byID[rec.ID]; ok {
		c.ByID = true
	} else if _, ok := ix.batchID[rec.ID]; ok {
		c.ByID = true
	}

	if cpt := Deref(rec.CPTCode); cpt != "" {
		if owner, ok := ix.byCPT[cpt]; ok {
			c.ByCPT, c.CPTOwnerID = true, owner
		} else if owner, ok := ix.batchCPT[cpt]; ok {
			c.ByCPT, c.CPTOwnerID = true, owner
		}
	}
	return c
}

// Add records rec as accepted in the current session.
func (ix *DuplicateIndex) Add(rec TestRecord) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.byID[rec.ID]; !ok {
		ix.batchID[rec.ID] = struct{}{}
	}
	if cpt := Deref(rec.CPTCode); cpt != "" {
		_, inSnapshot := ix.byCPT[cpt]
		_, inBatch := ix.batchCPT[cpt]
		if !inSnapshot && !inBatch {
			ix.batchCPT[cpt] = rec.ID
		}
	}
}

// Len returns the number of indexed ids across snapshot and batch.
func (ix *DuplicateIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byID) + len(ix.batchID)
}
