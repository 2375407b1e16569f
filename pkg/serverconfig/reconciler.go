package serverconfig

import (
	"os"
	"sync"
	"time"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
	"github.com/core-tools/hsu-mcservice/pkg/logging"
)

// Field names carried by change notifications.
const (
	FieldLaunchPath       = "launch_path"
	FieldLaunchOptions    = "launch_options"
	FieldServerProperties = "server_properties"
	FieldEula             = "eula"
	FieldMCVersion        = "mc_version"
	FieldRamdisk          = "ramdisk"
	FieldRamdiskInterval  = "ramdisk_interval"

	reloadCommand = "reload"

	LevelNameProperty = "level-name"
	DefaultLevelName  = "world"
)

type Paths struct {
	Config     string
	Properties string
	Eula       string
}

type CommandSender interface {
	Send(command string) bool
}

type Notifier interface {
	Notify(field string, value interface{})
}

// Reconciler keeps the configuration document and the server's flat
// properties file in agreement.
type Reconciler struct {
	paths    Paths
	sender   CommandSender
	notifier Notifier
	logger   logging.Logger
	now      func() time.Time

	mutex    sync.Mutex
	document *Document
}

func NewReconciler(paths Paths, sender CommandSender, notifier Notifier, logger logging.Logger) *Reconciler {
	return &Reconciler{
		paths:    paths,
		sender:   sender,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		document: NewDocument(),
	}
}

// LoadConfig replaces the in-memory document with the one on disk.
func (r *Reconciler) LoadConfig() error {
	document, err := LoadDocument(r.paths.Config)
	if err != nil {
		return err
	}

	r.mutex.Lock()
	r.document = document
	r.mutex.Unlock()

	r.logger.Infof("Configuration loaded, path: %s, launch_path: %s", r.paths.Config, document.Launcher.LaunchPath)
	return nil
}

// SyncProperties folds the properties file into the document and reports
// whether the document changed. A missing file is not an error: the server
// writes one on its first run.
func (r *Reconciler) SyncProperties() (bool, error) {
	file, err := os.Open(r.paths.Properties)
	if os.IsNotExist(err) {
		r.logger.Infof("Properties file does not exist yet, path: %s", r.paths.Properties)
		return false, nil
	}
	if err != nil {
		return false, errors.NewIOError("failed to open properties file", err).WithContext("path", r.paths.Properties)
	}
	defer file.Close()

	found, err := ParseProperties(file)
	if err != nil {
		return false, errors.NewIOError("failed to read properties file", err).WithContext("path", r.paths.Properties)
	}

	r.mutex.Lock()
	changed := mergeProperties(found, r.document.Server.Properties, r.document.Server.DefaultProperties)
	r.mutex.Unlock()

	for _, key := range changed {
		r.logger.Debugf("Property updated from file, key: %s", key)
	}
	r.logger.Infof("Properties synced, found: %d, changed: %d", len(found), len(changed))

	return len(changed) > 0, nil
}

func (r *Reconciler) SaveConfig() (bool, error) {
	r.mutex.Lock()
	document := r.document.clone()
	r.mutex.Unlock()

	if err := SaveDocument(r.paths.Config, document); err != nil {
		r.logger.Errorf("Failed to save configuration: %v", err)
		return false, err
	}

	r.logger.Infof("Configuration saved, path: %s", r.paths.Config)
	return true, nil
}

// SaveProperties regenerates the properties file and asks a running server to
// reload it.
func (r *Reconciler) SaveProperties() error {
	r.mutex.Lock()
	data := RenderProperties(r.document.Server.Properties, r.document.Server.DefaultProperties)
	r.mutex.Unlock()

	if err := writeFileAtomic(r.paths.Properties, data, 0644); err != nil {
		return err
	}

	reloaded := r.sender.Send(reloadCommand)
	r.logger.Infof("Properties saved, path: %s, reload sent: %t", r.paths.Properties, reloaded)
	return nil
}

func (r *Reconciler) LaunchPath() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.document.Launcher.LaunchPath
}

func (r *Reconciler) SetLaunchPath(path string) error {
	if err := ValidateLaunchPath(path); err != nil {
		return err
	}

	r.mutex.Lock()
	r.document.Launcher.LaunchPath = path
	r.mutex.Unlock()

	r.notifier.Notify(FieldLaunchPath, path)
	return nil
}

func (r *Reconciler) LaunchOptions() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.document.Launcher.Options...)
}

func (r *Reconciler) SetLaunchOptions(options []string) {
	options = append([]string(nil), options...)

	r.mutex.Lock()
	r.document.Launcher.Options = options
	r.mutex.Unlock()

	r.notifier.Notify(FieldLaunchOptions, append([]string(nil), options...))
}

// ServerProperties returns a copy of the override map.
func (r *Reconciler) ServerProperties() map[string]string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return copyMap(r.document.Server.Properties)
}

// SetServerProperties replaces the override map and, unlike the other
// setters, writes the properties file right away.
func (r *Reconciler) SetServerProperties(properties map[string]string) error {
	for key, value := range properties {
		if err := ValidateProperty(key, value); err != nil {
			return err
		}
	}

	r.mutex.Lock()
	r.document.Server.Properties = copyMap(properties)
	r.mutex.Unlock()

	if err := r.SaveProperties(); err != nil {
		return err
	}

	r.notifier.Notify(FieldServerProperties, copyMap(properties))
	return nil
}

func (r *Reconciler) DefaultProperties() map[string]string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return copyMap(r.document.Server.DefaultProperties)
}

// LevelName resolves the world directory name, overrides first.
func (r *Reconciler) LevelName() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if name, ok := r.document.Server.Properties[LevelNameProperty]; ok {
		return name
	}
	if name, ok := r.document.Server.DefaultProperties[LevelNameProperty]; ok {
		return name
	}
	r.logger.Warnf("No %s found, using %q", LevelNameProperty, DefaultLevelName)
	return DefaultLevelName
}

func (r *Reconciler) Eula() bool {
	return readEula(r.paths.Eula)
}

func (r *Reconciler) SetEula(agreed bool) error {
	if err := writeEula(r.paths.Eula, agreed, r.now()); err != nil {
		return err
	}

	r.notifier.Notify(FieldEula, r.Eula())
	return nil
}

func (r *Reconciler) MCVersion() string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.document.Server.Version
}

func (r *Reconciler) Ramdisk() bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.document.Ramdisk.Enabled
}

func (r *Reconciler) SetRamdisk(enabled bool) {
	r.mutex.Lock()
	r.document.Ramdisk.Enabled = enabled
	r.mutex.Unlock()

	r.notifier.Notify(FieldRamdisk, enabled)
}

func (r *Reconciler) RamdiskInterval() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.document.Ramdisk.Interval
}

func (r *Reconciler) SetRamdiskInterval(minutes int) {
	r.mutex.Lock()
	r.document.Ramdisk.Interval = minutes
	r.mutex.Unlock()

	r.notifier.Notify(FieldRamdiskInterval, minutes)
}
