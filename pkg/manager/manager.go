package manager

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
	"github.com/core-tools/hsu-mcservice/pkg/eventloop"
	"github.com/core-tools/hsu-mcservice/pkg/logging"
	"github.com/core-tools/hsu-mcservice/pkg/metrics"
	"github.com/core-tools/hsu-mcservice/pkg/notify"
	"github.com/core-tools/hsu-mcservice/pkg/serverconfig"
)

const (
	DefaultCloseTimeout = 120 * time.Second

	reloadCommand = "reload"
)

// Supervisor controls the game server process.
type Supervisor interface {
	Start(options []string, relativePath string, timeout time.Duration) (bool, error)
	Stop(timeout time.Duration) bool
	Status() bool
	Send(command string) bool
}

// WorkingSet moves the world between durable and ephemeral storage.
type WorkingSet interface {
	Load() error
	Save() error
	Loaded() bool
	Unload()
	Operative(mirroring bool) string
}

type ManagerOptions struct {
	ServerDirectory string
	CloseTimeout    time.Duration

	Supervisor Supervisor
	Config     *serverconfig.Reconciler
	Scheduler  eventloop.Scheduler
	Notifier   notify.Notifier
	Collector  metrics.Collector

	// NewWorkingSet is called once the world directory is known.
	NewWorkingSet func(worldPath string) WorkingSet
}

// Manager composes the supervisor, the configuration and the working set.
// Its operations are meant to run on the scheduler's goroutine.
type Manager struct {
	options    ManagerOptions
	supervisor Supervisor
	config     *serverconfig.Reconciler
	workingSet WorkingSet
	scheduler  eventloop.Scheduler
	notifier   notify.Notifier
	collector  metrics.Collector
	logger     logging.Logger
	worldPath  string

	mutex       sync.Mutex
	mirrorTimer eventloop.Timer
	serverState bool
}

func NewManager(options ManagerOptions, logger logging.Logger) (*Manager, error) {
	if options.Supervisor == nil || options.Config == nil || options.Scheduler == nil || options.NewWorkingSet == nil {
		return nil, errors.NewValidationError("supervisor, config, scheduler and working set factory are required", nil)
	}
	if options.Notifier == nil {
		options.Notifier = notify.NewPublisher("", logger)
	}
	if options.Collector == nil {
		options.Collector = metrics.NewNoopCollector()
	}
	if options.CloseTimeout == 0 {
		options.CloseTimeout = DefaultCloseTimeout
	}

	config := options.Config
	if err := config.LoadConfig(); err != nil {
		return nil, err
	}
	if _, err := config.SyncProperties(); err != nil {
		return nil, err
	}
	if err := config.SaveProperties(); err != nil {
		return nil, err
	}

	worldPath := filepath.Join(options.ServerDirectory, config.LevelName())

	m := &Manager{
		options:    options,
		supervisor: options.Supervisor,
		config:     config,
		workingSet: options.NewWorkingSet(worldPath),
		scheduler:  options.Scheduler,
		notifier:   options.Notifier,
		collector:  options.Collector,
		logger:     logger,
		worldPath:  worldPath,
	}

	logger.Infof("Manager created, world path: %s", worldPath)
	return m, nil
}

// Start launches the server once the eula has been accepted. With mirroring
// enabled the world is loaded into ephemeral storage and a periodic save is
// scheduled.
func (m *Manager) Start(timeout time.Duration) (bool, error) {
	if !m.config.Eula() {
		m.logger.Warnf("You must agree to the eula to launch the server")
		return false, nil
	}

	started := time.Now()
	ok, err := m.supervisor.Start(m.config.LaunchOptions(), m.config.LaunchPath(), timeout)
	if ok || err != nil {
		m.collector.ServerStartDuration(time.Since(started), err)
	}
	if err != nil {
		m.logger.Errorf("Failed to start server: %v", err)
		return false, err
	}
	if !ok {
		return false, nil
	}

	if m.config.Ramdisk() {
		if err := m.workingSet.Load(); err != nil {
			m.logger.Errorf("Failed to load working set, periodic saves are disabled: %v", err)
			m.cancelMirror()
			return true, nil
		}
		m.scheduleMirror()
	}

	m.logger.Infof("Server started, world in %s", m.OperativeWorldPath())
	return true, nil
}

func (m *Manager) scheduleMirror() {
	interval := time.Duration(m.config.RamdiskInterval()) * time.Minute

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.mirrorTimer != nil {
		m.mirrorTimer.Stop()
		m.mirrorTimer = nil
	}
	if interval <= 0 {
		m.logger.Warnf("Ramdisk interval is not positive, periodic saves are disabled")
		return
	}

	m.mirrorTimer = m.scheduler.RunEvery(interval, m.MirrorSave)
	m.logger.Infof("Ramdisk saves scheduled every %v", interval)
}

func (m *Manager) cancelMirror() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.mirrorTimer != nil {
		m.mirrorTimer.Stop()
		m.mirrorTimer = nil
	}
}

// MirrorSave is the periodic save callback. Returning false ends the
// schedule.
func (m *Manager) MirrorSave() bool {
	if !m.supervisor.Status() || !m.config.Ramdisk() {
		m.logger.Infof("Server stopped or ramdisk disabled, ending periodic saves")
		m.mutex.Lock()
		m.mirrorTimer = nil
		m.mutex.Unlock()
		return false
	}

	if !m.workingSet.Loaded() {
		m.logger.Errorf("Working set was not loaded, ending periodic saves")
		m.mutex.Lock()
		m.mirrorTimer = nil
		m.mutex.Unlock()
		return false
	}

	if err := m.workingSet.Save(); err != nil {
		m.logger.Errorf("Periodic ramdisk save failed: %v", err)
	}
	return true
}

// Stop saves the working set first when mirroring, then stops the server.
func (m *Manager) Stop(timeout time.Duration) bool {
	running := m.supervisor.Status()

	if running && m.config.Ramdisk() {
		if !m.workingSet.Loaded() {
			m.logger.Warnf("Working set was not loaded, skipping the save before stop")
		} else if err := m.workingSet.Save(); err != nil {
			m.logger.Errorf("Ramdisk save before stop failed: %v", err)
		}
	}
	m.cancelMirror()

	stopped := m.supervisor.Stop(timeout)
	if !m.supervisor.Status() {
		m.workingSet.Unload()
	}
	if running {
		m.collector.ServerStop(stopped)
	}
	return stopped
}

func (m *Manager) Status() bool {
	return m.supervisor.Status()
}

func (m *Manager) Send(command string) bool {
	return m.supervisor.Send(command)
}

func (m *Manager) ReloadProperties() bool {
	return m.supervisor.Send(reloadCommand)
}

// CheckStateChange polls the server state and announces transitions. It
// always returns true so the tick stays registered.
func (m *Manager) CheckStateChange() bool {
	state := m.supervisor.Status()
	m.collector.ServerRunning(state)

	m.mutex.Lock()
	changed := state != m.serverState
	m.serverState = state
	m.mutex.Unlock()

	if changed {
		m.logger.Infof("Server state changed, running: %t", state)
		m.notifier.ServerChanged(state)
		m.notifier.Notify(notify.FieldRunning, state)
	}
	return true
}

// PropertiesFileChanged folds edits the server made to its properties file
// back into the configuration.
func (m *Manager) PropertiesFileChanged() {
	changed, err := m.config.SyncProperties()
	if err != nil {
		m.logger.Errorf("Failed to sync properties: %v", err)
		return
	}
	if changed {
		m.notifier.Notify(serverconfig.FieldServerProperties, m.config.ServerProperties())
	}
}

// Close persists everything and stops the server.
func (m *Manager) Close() {
	m.logger.Infof("Finishing up...")

	if _, err := m.config.SyncProperties(); err != nil {
		m.logger.Errorf("Failed to sync properties: %v", err)
	}
	if err := m.config.SaveProperties(); err != nil {
		m.logger.Errorf("Failed to save properties: %v", err)
	}
	if m.Status() && !m.Stop(m.options.CloseTimeout) {
		m.logger.Warnf("Server did not stop cleanly")
	}
	if _, err := m.config.SaveConfig(); err != nil {
		m.logger.Errorf("Failed to save configuration: %v", err)
	}

	m.logger.Infof("Done")
}

func (m *Manager) WorldPath() string {
	return m.worldPath
}

// OperativeWorldPath is where the running server's world currently lives.
func (m *Manager) OperativeWorldPath() string {
	return m.workingSet.Operative(m.config.Ramdisk())
}

func (m *Manager) LaunchPath() string                  { return m.config.LaunchPath() }
func (m *Manager) SetLaunchPath(path string) error     { return m.config.SetLaunchPath(path) }
func (m *Manager) LaunchOptions() []string             { return m.config.LaunchOptions() }
func (m *Manager) SetLaunchOptions(options []string)   { m.config.SetLaunchOptions(options) }
func (m *Manager) ServerProperties() map[string]string { return m.config.ServerProperties() }
func (m *Manager) Eula() bool                          { return m.config.Eula() }
func (m *Manager) SetEula(agreed bool) error           { return m.config.SetEula(agreed) }
func (m *Manager) MCVersion() string                   { return m.config.MCVersion() }
func (m *Manager) Ramdisk() bool                       { return m.config.Ramdisk() }
func (m *Manager) SetRamdisk(enabled bool)             { m.config.SetRamdisk(enabled) }
func (m *Manager) RamdiskInterval() int                { return m.config.RamdiskInterval() }
func (m *Manager) SetRamdiskInterval(minutes int)      { m.config.SetRamdiskInterval(minutes) }

func (m *Manager) SetServerProperties(properties map[string]string) error {
	return m.config.SetServerProperties(properties)
}
