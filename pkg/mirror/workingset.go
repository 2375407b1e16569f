package mirror

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
	"github.com/core-tools/hsu-mcservice/pkg/logging"
	"github.com/core-tools/hsu-mcservice/pkg/metrics"
)

// Console commands used to quiesce the server around a save.
const (
	CommandSaveAll = "save-all"
	CommandSaveOff = "save-off"
	CommandSaveOn  = "save-on"

	backupStartMessage = "say server is backing up ramdisk..."
	backupDoneMessage  = "say server is done backing up ramdisk"
)

type CommandSender interface {
	Send(command string) bool
}

// Pauses give the server time to act on console commands, which are never
// acknowledged.
type Pauses struct {
	AfterSaveAll time.Duration
	BeforeSaveOn time.Duration
	AfterSaveOn  time.Duration
}

func DefaultPauses() Pauses {
	return Pauses{
		AfterSaveAll: 100 * time.Millisecond,
		BeforeSaveOn: time.Second,
		AfterSaveOn:  100 * time.Millisecond,
	}
}

// WorkingSet pairs the durable world directory with its copy on fast
// ephemeral storage.
type WorkingSet struct {
	durable   string
	ephemeral string

	engine    *Engine
	sender    CommandSender
	pauses    Pauses
	collector metrics.Collector
	logger    logging.Logger

	// loaded is set by a successful Load and cleared by Unload. Save mirrors
	// with deletion, so it must never run against an ephemeral copy that was
	// not filled from durable storage.
	mutex  sync.Mutex
	loaded bool
}

func NewWorkingSet(durable, ephemeral string, engine *Engine, sender CommandSender, pauses Pauses, collector metrics.Collector, logger logging.Logger) *WorkingSet {
	return &WorkingSet{
		durable:   durable,
		ephemeral: ephemeral,
		engine:    engine,
		sender:    sender,
		pauses:    pauses,
		collector: collector,
		logger:    logger,
	}
}

func (w *WorkingSet) Durable() string {
	return w.durable
}

func (w *WorkingSet) Ephemeral() string {
	return w.ephemeral
}

// Operative returns the directory the server works in.
func (w *WorkingSet) Operative(mirroring bool) string {
	if mirroring && w.ephemeral != "" {
		return w.ephemeral
	}
	return w.durable
}

// Load replaces the ephemeral contents with the durable world.
func (w *WorkingSet) Load() error {
	if err := w.checkEphemeral(); err != nil {
		return err
	}
	w.setLoaded(false)

	started := time.Now()
	err := w.load()
	w.collector.MirrorCycle(metrics.DirectionLoad, time.Since(started), err)
	if err != nil {
		w.logger.Errorf("Failed to load working set into %s: %v", w.ephemeral, err)
		return err
	}
	w.setLoaded(true)

	w.logger.Infof("Working set loaded into %s in %v", w.ephemeral, time.Since(started).Round(time.Millisecond))
	return nil
}

func (w *WorkingSet) load() error {
	if err := Clear(w.ephemeral); err != nil {
		return err
	}
	if _, err := os.Stat(w.durable); os.IsNotExist(err) {
		w.logger.Warnf("Durable working set %s does not exist yet, nothing to load", w.durable)
		return nil
	}

	_, err := w.engine.Mirror(context.Background(), w.durable, w.ephemeral)
	return err
}

// Save quiesces the server, copies the ephemeral world back to durable
// storage and resumes autosave. A failed copy is not retried; the next
// scheduled save covers it.
func (w *WorkingSet) Save() error {
	if err := w.checkEphemeral(); err != nil {
		return err
	}
	if !w.Loaded() {
		w.logger.Warnf("Working set in %s was never loaded, refusing to save over %s", w.ephemeral, w.durable)
		return errors.NewValidationError("working set has not been loaded", nil).
			WithContext("ephemeral", w.ephemeral).WithContext("durable", w.durable)
	}

	w.sender.Send(backupStartMessage)
	w.sender.Send(CommandSaveAll)
	w.pause(w.pauses.AfterSaveAll)
	w.sender.Send(CommandSaveOff)

	started := time.Now()
	stats, err := w.engine.Mirror(context.Background(), w.ephemeral, w.durable)
	w.collector.MirrorCycle(metrics.DirectionSave, time.Since(started), err)

	w.pause(w.pauses.BeforeSaveOn)
	w.sender.Send(CommandSaveOn)
	w.pause(w.pauses.AfterSaveOn)
	w.sender.Send(backupDoneMessage)

	if err != nil {
		w.logger.Errorf("Failed to save working set to %s: %v", w.durable, err)
		return err
	}

	w.logger.Infof("Working set saved to %s, copied: %d, removed: %d", w.durable, stats.Copied, stats.Removed)
	return nil
}

// Loaded reports whether the ephemeral copy was filled by Load since the
// last Unload.
func (w *WorkingSet) Loaded() bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.loaded
}

// Unload marks the ephemeral copy as stale, typically once the server has
// stopped.
func (w *WorkingSet) Unload() {
	w.setLoaded(false)
}

func (w *WorkingSet) setLoaded(loaded bool) {
	w.mutex.Lock()
	w.loaded = loaded
	w.mutex.Unlock()
}

func (w *WorkingSet) checkEphemeral() error {
	if w.ephemeral == "" {
		return errors.NewConfigError("no ephemeral working set location configured", nil)
	}
	return nil
}

func (w *WorkingSet) pause(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
