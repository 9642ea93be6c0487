// Package daemon implements the Persistence Daemon (C11): a background
// task that snapshots every loaded RAG index on a fixed cadence and on
// shutdown, logging and skipping failures rather than aborting the loop.
package daemon

import (
	"context"
	"time"

	"voxpersona/internal/logging"
	"voxpersona/internal/rag"
)

const defaultSavePeriod = 15 * time.Minute

// PersistenceDaemon periodically snapshots a rag.Manager's loaded indices.
type PersistenceDaemon struct {
	Rag    *rag.Manager
	Period time.Duration
}

// New constructs a daemon with the default 15-minute save period; Period
// can be overridden afterwards (e.g. from config.RAGConfig.SavePeriod).
func New(mgr *rag.Manager) *PersistenceDaemon {
	return &PersistenceDaemon{Rag: mgr, Period: defaultSavePeriod}
}

func (d *PersistenceDaemon) period() time.Duration {
	if d.Period > 0 {
		return d.Period
	}
	return defaultSavePeriod
}

// Run blocks, saving every index on each tick, until ctx is cancelled. On
// cancellation it takes one final snapshot (the shutdown-signal save
// spec.md §4.11 requires) before returning.
func (d *PersistenceDaemon) Run(ctx context.Context) {
	ticker := time.NewTicker(d.period())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.saveAll()
		case <-ctx.Done():
			d.saveAll()
			return
		}
	}
}

// saveAll runs one snapshot pass, recovering from any panic so a single
// bad save never takes the daemon loop down with it.
func (d *PersistenceDaemon) saveAll() {
	defer func() {
		if r := recover(); r != nil {
			logging.Log.WithField("panic", r).Error("rag snapshot pass panicked")
		}
	}()

	for scope, err := range d.Rag.SaveAll() {
		logging.Log.WithField("scope", scope).WithError(err).Error("rag snapshot failed")
	}
}
