// Package coordinate hands out non-overlapping pagination ranges to
// extraction producers, for both plain offset paging and folder-scoped
// paging across many folders.
package coordinate

import "sync"

// OffsetCoordinator assigns disjoint (offset, limit) ranges over one
// paginated collection. Workers claim ranges until one of them observes
// the end of data and marks the collection exhausted.
type OffsetCoordinator struct {
	mu sync.Mutex

	batchSize  int
	nextOffset int
	exhausted  bool

	totalWorkers int
	doneWorkers  int
}

// NewOffsetCoordinator creates a coordinator starting at the given offset.
func NewOffsetCoordinator(batchSize, startOffset int) *OffsetCoordinator {
	if batchSize < 1 {
		batchSize = 1
	}
	if startOffset < 0 {
		startOffset = 0
	}
	return &OffsetCoordinator{batchSize: batchSize, nextOffset: startOffset}
}

// SetTotalWorkers records how many workers will claim ranges. Used by
// AllDone to detect full completion.
func (c *OffsetCoordinator) SetTotalWorkers(n int) {
	c.mu.Lock()
	c.totalWorkers = n
	c.mu.Unlock()
}

// ClaimRange returns the next unclaimed (offset, limit) range. ok=false
// means the collection is exhausted and the worker should stop.
func (c *OffsetCoordinator) ClaimRange() (offset, limit int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exhausted {
		return 0, 0, false
	}
	offset = c.nextOffset
	c.nextOffset += c.batchSize
	return offset, c.batchSize, true
}

// MarkExhausted records that a claimed range came back short, so no
// ranges past it hold data. Claims already handed out stay valid.
func (c *OffsetCoordinator) MarkExhausted() {
	c.mu.Lock()
	c.exhausted = true
	c.mu.Unlock()
}

// MarkWorkerDone records one worker leaving the pool.
func (c *OffsetCoordinator) MarkWorkerDone() {
	c.mu.Lock()
	c.doneWorkers++
	c.mu.Unlock()
}

// AllDone reports whether every registered worker has finished.
func (c *OffsetCoordinator) AllDone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalWorkers > 0 && c.doneWorkers >= c.totalWorkers
}

// FolderRange is a claimed page within one folder.
type FolderRange struct {
	FolderID string
	Offset   int
	Limit    int
}

// MultiFolderOffsetCoordinator assigns disjoint (folder, offset, limit)
// ranges across a set of folders, rotating between folders so no single
// large folder starves the rest. The same (folder, offset) pair is never
// handed out twice.
type MultiFolderOffsetCoordinator struct {
	mu sync.Mutex

	batchSize int
	folders   []string
	offsets   map[string]int
	exhausted map[string]bool
	cursor    int

	totalWorkers int
	doneWorkers  int
}

// NewMultiFolderOffsetCoordinator creates a coordinator over the given
// folder IDs. Duplicate IDs are collapsed.
func NewMultiFolderOffsetCoordinator(batchSize int, folderIDs []string) *MultiFolderOffsetCoordinator {
	if batchSize < 1 {
		batchSize = 1
	}
	c := &MultiFolderOffsetCoordinator{
		batchSize: batchSize,
		offsets:   make(map[string]int, len(folderIDs)),
		exhausted: make(map[string]bool, len(folderIDs)),
	}
	for _, id := range folderIDs {
		if _, seen := c.offsets[id]; seen || id == "" {
			continue
		}
		c.folders = append(c.folders, id)
		c.offsets[id] = 0
	}
	return c
}

// SetTotalWorkers records how many workers will claim ranges.
func (c *MultiFolderOffsetCoordinator) SetTotalWorkers(n int) {
	c.mu.Lock()
	c.totalWorkers = n
	c.mu.Unlock()
}

// ClaimRange returns the next unclaimed range, rotating across folders
// that still have data. ok=false means every folder is exhausted.
func (c *MultiFolderOffsetCoordinator) ClaimRange() (r FolderRange, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for tried := 0; tried < len(c.folders); tried++ {
		folder := c.folders[c.cursor]
		c.cursor = (c.cursor + 1) % len(c.folders)
		if c.exhausted[folder] {
			continue
		}
		offset := c.offsets[folder]
		c.offsets[folder] = offset + c.batchSize
		return FolderRange{FolderID: folder, Offset: offset, Limit: c.batchSize}, true
	}
	return FolderRange{}, false
}

// MarkFolderExhausted records that a folder's claimed range came back
// short, so the folder has no further pages.
func (c *MultiFolderOffsetCoordinator) MarkFolderExhausted(folderID string) {
	c.mu.Lock()
	c.exhausted[folderID] = true
	c.mu.Unlock()
}

// Exhausted reports whether every folder has been marked exhausted.
func (c *MultiFolderOffsetCoordinator) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.folders {
		if !c.exhausted[f] {
			return false
		}
	}
	return true
}

// MarkWorkerDone records one worker leaving the pool.
func (c *MultiFolderOffsetCoordinator) MarkWorkerDone() {
	c.mu.Lock()
	c.doneWorkers++
	c.mu.Unlock()
}

// AllDone reports whether every registered worker has finished.
func (c *MultiFolderOffsetCoordinator) AllDone() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalWorkers > 0 && c.doneWorkers >= c.totalWorkers
}

// Folders returns the deduplicated folder IDs in claim rotation order.
func (c *MultiFolderOffsetCoordinator) Folders() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.folders))
	copy(out, c.folders)
	return out
}
