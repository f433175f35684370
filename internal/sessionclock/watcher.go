package sessionclock

import (
	"context"
	"log"
	"time"
)

// BroadcastInterval is the periodic session-frame broadcast cadence.
const BroadcastInterval = 30 * time.Second

// Watcher polls the wall clock on BroadcastInterval, invoking Broadcast
// with every frame and logging transitions between sessions.
type Watcher struct {
	Broadcast func(Frame)
	last      Session
	haveLast  bool
}

// Run drives the watcher until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(BroadcastInterval)
	defer ticker.Stop()
	w.tick(time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.tick(now)
		}
	}
}

func (w *Watcher) tick(now time.Time) {
	frame := FrameAt(now)
	sess := Classify(now)
	if w.haveLast && sess != w.last {
		log.Printf("sessionclock: transition %s -> %s", w.last, sess)
	}
	w.last = sess
	w.haveLast = true
	if w.Broadcast != nil {
		w.Broadcast(frame)
	}
}
