// Package expire drops old snapshots and tags and garbage-collects the files
// only they referenced.
package expire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/INLOpen/nexuslake/core"
	"github.com/INLOpen/nexuslake/deletion"
	"github.com/INLOpen/nexuslake/hooks"
	"github.com/INLOpen/nexuslake/metrics"
	"github.com/INLOpen/nexuslake/snapshot"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Options configures an Expirer.
type Options struct {
	Snapshots *snapshot.Manager
	Tags      *snapshot.TagManager
	// GC is handed to every deletion pass. Its Hooks, Metrics and Logger are
	// also used by the Expirer itself.
	GC deletion.Options

	// RetainMin snapshots are always kept, regardless of age. Must be at least 1.
	RetainMin int
	// RetainMax bounds the number of snapshots kept. Zero means unbounded.
	RetainMax int
	// TimeRetained keeps snapshots younger than this, subject to RetainMax.
	TimeRetained time.Duration

	// Now defaults to time.Now.
	Now    func() time.Time
	Tracer trace.Tracer
}

// Expirer applies the retention policy of a table.
type Expirer struct {
	snapshots    *snapshot.Manager
	tags         *snapshot.TagManager
	gc           deletion.Options
	retainMin    int
	retainMax    int
	timeRetained time.Duration
	now          func() time.Time
	tracer       trace.Tracer
	hooks        hooks.HookManager
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// NewExpirer validates opts and creates an Expirer.
func NewExpirer(opts Options) (*Expirer, error) {
	if opts.Snapshots == nil {
		return nil, &core.ValidationError{Field: "snapshots", Value: "nil", Message: "a snapshot manager is required"}
	}
	if opts.RetainMin < 1 {
		return nil, &core.ValidationError{
			Field:   "snapshot.num_retained_min",
			Value:   strconv.Itoa(opts.RetainMin),
			Message: "at least one snapshot must be retained",
		}
	}
	retainMax := opts.RetainMax
	if retainMax <= 0 {
		retainMax = math.MaxInt32
	}
	if retainMax < opts.RetainMin {
		return nil, &core.ValidationError{
			Field:   "snapshot.num_retained_max",
			Value:   strconv.Itoa(retainMax),
			Message: fmt.Sprintf("must not be smaller than num_retained_min (%d)", opts.RetainMin),
		}
	}
	if opts.TimeRetained < 0 {
		return nil, &core.ValidationError{
			Field:   "snapshot.time_retained",
			Value:   opts.TimeRetained.String(),
			Message: "cannot be negative",
		}
	}

	logger := opts.GC.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("expire")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Expirer{
		snapshots:    opts.Snapshots,
		tags:         opts.Tags,
		gc:           opts.GC,
		retainMin:    opts.RetainMin,
		retainMax:    retainMax,
		timeRetained: opts.TimeRetained,
		now:          now,
		tracer:       tracer,
		hooks:        opts.GC.Hooks,
		metrics:      opts.GC.Metrics,
		logger:       logger.With("component", "Expirer"),
	}, nil
}

// Expire deletes every snapshot outside the retention policy and returns how
// many snapshot files were removed.
//
// The newest RetainMin snapshots are kept. Of the rest, a snapshot survives
// if it is among the newest RetainMax and younger than TimeRetained. The scan
// stops at the first survivor, so expired snapshots always form a prefix.
func (e *Expirer) Expire(ctx context.Context) (expired int, err error) {
	ctx, span := e.tracer.Start(ctx, "Expirer.Expire")
	defer span.End()
	span.SetAttributes(
		attribute.Int("snapshot.retain_min", e.retainMin),
		attribute.Int("snapshot.retain_max", e.retainMax),
		attribute.String("snapshot.time_retained", e.timeRetained.String()),
	)

	var begin, end int64
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "snapshot expiration failed")
		}
		span.SetAttributes(attribute.Int("snapshot.expired", expired))
		_ = hooks.Trigger(ctx, e.hooks, hooks.NewPostExpireEvent(hooks.PostExpirePayload{
			BeginID: begin,
			EndID:   end,
			Expired: expired,
			Error:   err,
		}))
	}()

	latest, ok, err := e.snapshots.LatestID(ctx)
	if err != nil || !ok {
		return 0, err
	}
	earliest, ok, err := e.snapshots.EarliestID(ctx)
	if err != nil || !ok {
		return 0, err
	}

	minID := max(latest-int64(e.retainMax)+1, earliest)
	maxExclusive := latest - int64(e.retainMin) + 1
	olderThan := e.now().Add(-e.timeRetained).UnixMilli()

	end = maxExclusive
	for id := minID; id < maxExclusive; id++ {
		s, serr := e.snapshots.Snapshot(ctx, id)
		if serr != nil {
			if errors.Is(serr, core.ErrSnapshotNotFound) {
				continue
			}
			return 0, serr
		}
		if olderThan <= s.TimeMillis {
			end = id
			break
		}
	}
	begin, expired, err = e.ExpireUntil(ctx, earliest, end)
	return expired, err
}

// ExpireUntil deletes the snapshots in [earliest, endExclusive) together with
// every file no retained snapshot or tag needs. endExclusive must exist. The
// returned begin is the first snapshot id that was actually present.
func (e *Expirer) ExpireUntil(ctx context.Context, earliest, endExclusive int64) (begin int64, expired int, err error) {
	if endExclusive <= earliest {
		e.logger.Debug("Nothing to expire.", "earliest", earliest, "end", endExclusive)
		return earliest, 0, nil
	}

	// An interrupted earlier pass leaves a gap below the ids still present.
	begin = earliest
	for id := endExclusive - 1; id >= earliest; id-- {
		exists, err := e.snapshots.Exists(ctx, id)
		if err != nil {
			return 0, 0, err
		}
		if !exists {
			begin = id + 1
			break
		}
	}
	endSnapshot, err := e.snapshots.Snapshot(ctx, endExclusive)
	if err != nil {
		return begin, 0, fmt.Errorf("failed to read first retained snapshot %d: %w", endExclusive, err)
	}
	e.logger.Info("Expiring snapshots.", "begin", begin, "end_exclusive", endExclusive)

	tagged, err := e.taggedSnapshots(ctx)
	if err != nil {
		return begin, 0, err
	}

	gc := deletion.NewSnapshotDeletion(e.gc)

	// Files removed by commit id were last live in id-1, which expires.
	skippers := make(map[int64]deletion.Skipper)
	for id := begin + 1; id <= endExclusive; id++ {
		s, err := e.snapshots.Snapshot(ctx, id)
		if err != nil {
			return begin, 0, err
		}
		skipper := deletion.SkipNone
		if tag := previousTag(tagged, id); tag >= 0 {
			tagID := tagged[tag].ID
			if skippers[tagID] == nil {
				sk, err := gc.DataFileSkipper(ctx, []*snapshot.Snapshot{tagged[tag]})
				if err != nil {
					return begin, 0, err
				}
				skippers[tagID] = sk
			}
			skipper = skippers[tagID]
		}
		if err := gc.CleanUnusedDataFiles(ctx, s, skipper); err != nil {
			return begin, 0, fmt.Errorf("failed to clean data files of snapshot %d: %w", id, err)
		}
	}
	gc.CleanDataDirectories(ctx)

	retained := append(overlappedTags(tagged, begin, endExclusive), endSnapshot)
	skippingSet, err := gc.ManifestSkippingSet(ctx, retained)
	if err != nil {
		return begin, 0, err
	}
	for id := begin; id < endExclusive; id++ {
		s, err := e.snapshots.Snapshot(ctx, id)
		if err != nil {
			return begin, 0, err
		}
		if err := gc.CleanUnusedManifests(ctx, s, skippingSet); err != nil {
			return begin, 0, fmt.Errorf("failed to clean manifests of snapshot %d: %w", id, err)
		}
	}

	for id := begin; id < endExclusive; id++ {
		if err := e.snapshots.DeleteSnapshot(ctx, id); err != nil {
			return begin, expired, err
		}
		e.metrics.IncSnapshotsExpired()
		expired++
	}
	if err := e.snapshots.CommitEarliestHint(ctx, endExclusive); err != nil {
		e.logger.Warn("Failed to update EARLIEST hint.", "snapshot_id", endExclusive, "error", err)
	}
	e.logger.Info("Snapshots expired.", "count", expired, "earliest", endExclusive)
	return begin, expired, nil
}

func (e *Expirer) taggedSnapshots(ctx context.Context) ([]*snapshot.Snapshot, error) {
	if e.tags == nil {
		return nil, nil
	}
	tagged, err := e.tags.TaggedSnapshots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read tagged snapshots: %w", err)
	}
	return tagged, nil
}

// previousTag returns the index of the newest tagged snapshot older than id,
// or -1. tagged is ordered by id.
func previousTag(tagged []*snapshot.Snapshot, id int64) int {
	for i := len(tagged) - 1; i >= 0; i-- {
		if tagged[i].ID < id {
			return i
		}
	}
	return -1
}

// overlappedTags returns the tagged snapshots whose manifests may be shared
// with snapshots in [begin, endExclusive): the newest tag at or before begin
// and every tag inside the range.
func overlappedTags(tagged []*snapshot.Snapshot, begin, endExclusive int64) []*snapshot.Snapshot {
	right := previousTag(tagged, endExclusive)
	if right < 0 {
		return nil
	}
	left := 0
	for i := right; i >= 0; i-- {
		if tagged[i].ID <= begin {
			left = i
			break
		}
	}
	out := make([]*snapshot.Snapshot, 0, right-left+2)
	return append(out, tagged[left:right+1]...)
}
