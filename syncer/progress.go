package syncer

import (
	"context"

	"modio-repo/db"
)

// EventKind describes a step of a sync run.
type EventKind string

const (
	EventPage      EventKind = "page"      // a catalog page was fetched
	EventUnchanged EventKind = "unchanged" // stats refreshed only
	EventChanged   EventKind = "changed"   // the mod is being re-fetched
	EventExtracted EventKind = "extracted" // pallets of one platform file are stored
	EventFailed    EventKind = "failed"    // a platform file was recorded as broken
	EventSkipped   EventKind = "skipped"   // the catalog entry could not be used
)

// Event is sent on the progress channel while a sync runs.
type Event struct {
	Kind     EventKind
	ModID    int64
	ModName  string
	Platform db.Platform
	Message  string
}

func (s *Syncer) emit(ctx context.Context, ev Event) {
	if s.progress == nil {
		return
	}
	select {
	case s.progress <- ev:
	case <-ctx.Done():
	}
}
