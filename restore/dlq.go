package restore

import (
	"context"
	"errors"
	"fmt"

	"github.com/lookervault/lookervault/store"
	"github.com/lookervault/lookervault/types"
)

// RetryDLQ re-attempts one dead-lettered item. The current stored copy is
// preferred over the blob frozen in the queue entry, so a retry picks up
// any re-extraction that happened since the failure. On success the entry
// leaves the queue; on failure it stays with its retry count bumped.
func RetryDLQ(ctx context.Context, st *store.Store, restorer *Restorer, id int64) (*Result, error) {
	entry, err := st.DLQGet(ctx, id)
	if err != nil {
		return nil, err
	}

	item, err := st.GetContent(ctx, entry.ContentID)
	if errors.Is(err, store.ErrNotFound) {
		item = itemFromEntry(entry)
		err = nil
	}
	if err != nil {
		return nil, err
	}

	res, err := restorer.RestoreItem(ctx, item)
	if err != nil {
		if touchErr := st.DLQTouch(context.WithoutCancel(ctx), id); touchErr != nil {
			return nil, fmt.Errorf("retry failed: %w (and retry count update failed: %v)", err, touchErr)
		}
		return nil, err
	}

	if err := st.DLQRemove(ctx, id); err != nil {
		return nil, err
	}
	return res, nil
}

// itemFromEntry rebuilds a restorable item from the payload the queue
// entry froze at failure time.
func itemFromEntry(entry *types.DLQEntry) *types.ContentItem {
	return &types.ContentItem{
		ID:          entry.ContentID,
		ContentType: entry.ContentType,
		ContentData: entry.ContentData,
		ContentSize: int64(len(entry.ContentData)),
	}
}
