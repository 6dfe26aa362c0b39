// Package journal records world and entity lifecycle transitions to an
// append-only store.
package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/polyengine/polyengine/internal/core/ecs"
	"github.com/polyengine/polyengine/internal/persist"
	"go.uber.org/zap"
)

const Name = "journal"

// Writer persists a batch of entries. *persist.JournalRepo implements it.
type Writer interface {
	Append(ctx context.Context, entries []persist.JournalEntry) error
}

// Extension buffers lifecycle transitions and writes them in batches. It
// runs on the engine goroutine only, so the buffer needs no lock.
type Extension struct {
	ecs.ExtensionBase
	w       Writer
	batch   int
	timeout time.Duration
	now     func() time.Time
	buf     []persist.JournalEntry
	written int
}

// Type returns the descriptor registered under Name.
func Type(w Writer, batch int) ecs.ExtensionType {
	return ecs.ExtensionType{
		Name: Name,
		New: func(base ecs.ExtensionBase) (ecs.Extension, error) {
			if w == nil {
				return nil, fmt.Errorf("journal writer: %w", ecs.ErrInaccessible)
			}
			if batch <= 0 {
				batch = 1
			}
			return &Extension{
				ExtensionBase: base,
				w:             w,
				batch:         batch,
				timeout:       5 * time.Second,
				now:           time.Now,
				buf:           make([]persist.JournalEntry, 0, batch),
			}, nil
		},
	}
}

func (x *Extension) Term() error {
	if err := x.flush(); err != nil {
		return fmt.Errorf("journal final flush: %w", err)
	}
	x.Engine().Logger().Info("journal closed", zap.Int("entries", x.written))
	return nil
}

func (x *Extension) OnWorldCreated(w *ecs.World)     { x.worldEntry(persist.KindWorldCreated, w) }
func (x *Extension) OnWorldDestroyed(w *ecs.World)   { x.worldEntry(persist.KindWorldDestroyed, w) }
func (x *Extension) OnWorldActivated(w *ecs.World)   { x.worldEntry(persist.KindWorldActivated, w) }
func (x *Extension) OnWorldDeactivated(w *ecs.World) { x.worldEntry(persist.KindWorldDeactivated, w) }

func (x *Extension) OnEntityCreated(en *ecs.Entity) {
	x.entityEntry(persist.KindEntityCreated, en)
}

func (x *Extension) OnEntityDestroyed(en *ecs.Entity) {
	x.entityEntry(persist.KindEntityDestroyed, en)
}

// Pending is the number of buffered entries not yet written.
func (x *Extension) Pending() int { return len(x.buf) }

func (x *Extension) worldEntry(kind string, w *ecs.World) {
	x.add(persist.JournalEntry{Kind: kind, WorldID: w.ID(), EntityID: uuid.Nil, At: x.now()})
}

func (x *Extension) entityEntry(kind string, en *ecs.Entity) {
	x.add(persist.JournalEntry{
		Kind:       kind,
		WorldID:    en.World().ID(),
		EntityID:   en.ID(),
		Attributes: len(en.Attributes()),
		At:         x.now(),
	})
}

// add buffers an entry and writes the batch once it is full. A failed
// write keeps the entries for the next attempt.
func (x *Extension) add(e persist.JournalEntry) {
	x.buf = append(x.buf, e)
	if len(x.buf) < x.batch {
		return
	}
	if err := x.flush(); err != nil {
		x.Engine().Logger().Error("journal write failed",
			zap.Error(err), zap.Int("pending", len(x.buf)))
	}
}

func (x *Extension) flush() error {
	if len(x.buf) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), x.timeout)
	defer cancel()
	if err := x.w.Append(ctx, x.buf); err != nil {
		return err
	}
	x.written += len(x.buf)
	x.buf = x.buf[:0]
	return nil
}
