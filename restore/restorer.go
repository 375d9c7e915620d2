package restore

import (
	"context"
	"errors"
	"time"

	"github.com/lookervault/lookervault/codec"
	"github.com/lookervault/lookervault/log"
	"github.com/lookervault/lookervault/looker"
	"github.com/lookervault/lookervault/types"
)

// Operation names the action taken for one restored item.
type Operation string

// Restore operations.
const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpSkip   Operation = "skip"
)

// Destination is the slice of the API client restoration needs.
// *looker.Client satisfies it.
type Destination interface {
	Exists(ctx context.Context, ct types.ContentType, id string) (bool, error)
	GetItem(ctx context.Context, ct types.ContentType, id, fields string) (*codec.Map, error)
	Create(ctx context.Context, ct types.ContentType, payload *codec.Map) (string, error)
	Update(ctx context.Context, ct types.ContentType, id string, payload *codec.Map) error
}

// Result describes one per-item restore.
type Result struct {
	Operation     Operation
	DestinationID string
	Duration      time.Duration
}

// Restorer applies single stored items to the destination instance.
type Restorer struct {
	dest   Destination
	mapper *IDMapper
	logger *log.Logger

	// SkipIfModified skips items whose destination copy is newer than
	// the stored one.
	SkipIfModified bool
	// DryRun decodes, translates, and checks existence without issuing
	// creates or updates.
	DryRun bool
}

// NewRestorer creates a per-item restorer.
func NewRestorer(dest Destination, mapper *IDMapper, logger *log.Logger) *Restorer {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Restorer{dest: dest, mapper: mapper, logger: logger}
}

// RestoreItem restores one stored content item. Validation and decode
// failures are permanent; the caller routes them to the DLQ.
func (r *Restorer) RestoreItem(ctx context.Context, item *types.ContentItem) (*Result, error) {
	start := time.Now()

	decoded, err := codec.Decode(item.ContentData)
	if err != nil {
		return nil, err
	}
	payload, ok := decoded.(*codec.Map)
	if !ok {
		return nil, &codec.DeserializationError{Msg: "stored blob is not an object"}
	}

	report, err := r.mapper.TranslatePayload(ctx, item.ContentType, payload)
	if err != nil {
		return nil, err
	}
	if len(report.Unmapped) > 0 {
		r.logger.Debug("unmapped references carried through", map[string]any{
			"id": item.ID, "unmapped": report.Unmapped,
		})
	}

	_, sourceID, err := types.SplitID(item.ID)
	if err != nil {
		return nil, err
	}
	destID := sourceID
	if !r.mapper.SameInstance() {
		if mapped, found, err := r.mapper.DestinationID(ctx, item.ContentType, sourceID); err != nil {
			return nil, err
		} else if found {
			destID = mapped
		}
	}

	exists, err := r.dest.Exists(ctx, item.ContentType, destID)
	if err != nil {
		return nil, err
	}

	if exists && r.SkipIfModified {
		newer, err := r.destinationNewer(ctx, item, destID)
		if err != nil {
			return nil, err
		}
		if newer {
			return &Result{Operation: OpSkip, DestinationID: destID, Duration: time.Since(start)}, nil
		}
	}

	if r.DryRun {
		return &Result{Operation: OpSkip, DestinationID: destID, Duration: time.Since(start)}, nil
	}

	if exists {
		if err := r.dest.Update(ctx, item.ContentType, destID, payload); err != nil {
			return nil, err
		}
		return &Result{Operation: OpUpdate, DestinationID: destID, Duration: time.Since(start)}, nil
	}

	// The API assigns ids on create; strip the source id so the two
	// never collide.
	payload.Delete("id")
	createdID, err := r.dest.Create(ctx, item.ContentType, payload)
	if err != nil {
		return nil, err
	}
	if !r.mapper.SameInstance() || createdID != sourceID {
		if err := r.mapper.RecordMapping(ctx, item.ContentType, sourceID, createdID); err != nil {
			return nil, err
		}
	}
	return &Result{Operation: OpCreate, DestinationID: createdID, Duration: time.Since(start)}, nil
}

// destinationNewer compares destination updated_at with the stored one.
func (r *Restorer) destinationNewer(ctx context.Context, item *types.ContentItem, destID string) (bool, error) {
	remote, err := r.dest.GetItem(ctx, item.ContentType, destID, "id,updated_at")
	if err != nil {
		if errors.Is(err, looker.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	v, ok := remote.Get("updated_at")
	if !ok {
		return false, nil
	}
	s, ok := v.(string)
	if !ok {
		return false, nil
	}
	remoteUpdated, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return false, nil
	}
	return remoteUpdated.After(item.UpdatedAt), nil
}
