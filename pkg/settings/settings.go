package settings

import (
	"os"
	"path/filepath"
	"time"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
	"github.com/core-tools/hsu-mcservice/pkg/notify"

	"gopkg.in/yaml.v3"
)

// Settings represents the service settings file structure
type Settings struct {
	Service       ServiceSettings      `yaml:"service"`
	Server        ServerSettings       `yaml:"server"`
	Files         FileSettings         `yaml:"files"`
	Ramdisk       RamdiskSettings      `yaml:"ramdisk"`
	Notifications NotificationSettings `yaml:"notifications"`
	Metrics       MetricsSettings      `yaml:"metrics"`
}

type ServiceSettings struct {
	RootPath           string        `yaml:"root_path"`
	Interface          string        `yaml:"interface,omitempty"`
	LogLevel           string        `yaml:"log_level,omitempty"`
	LogFormat          string        `yaml:"log_format,omitempty"`
	LogOutput          string        `yaml:"log_output,omitempty"`
	StatusPollInterval time.Duration `yaml:"status_poll_interval,omitempty"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout,omitempty"`
	Autostart          bool          `yaml:"autostart,omitempty"`
	StartTimeout       time.Duration `yaml:"start_timeout,omitempty"` // zero waits for readiness forever
	WatchProperties    bool          `yaml:"watch_properties,omitempty"`
	WatchDebounce      time.Duration `yaml:"watch_debounce,omitempty"`
}

type ServerSettings struct {
	Directory             string        `yaml:"directory"`
	JavaBinary            string        `yaml:"java_binary,omitempty"`
	OutputLog             string        `yaml:"output_log,omitempty"`
	ReadinessMarker       string        `yaml:"readiness_marker,omitempty"`
	ReadinessPollInterval time.Duration `yaml:"readiness_poll_interval,omitempty"`
	KillWait              time.Duration `yaml:"kill_wait,omitempty"`
	PIDFile               string        `yaml:"pid_file,omitempty"`
}

// FileSettings locates the documents the service reads and writes. The
// properties and eula files default to the server directory.
type FileSettings struct {
	Config     string `yaml:"config"`
	Properties string `yaml:"properties,omitempty"`
	Eula       string `yaml:"eula,omitempty"`
}

type RamdiskSettings struct {
	Path        string `yaml:"path,omitempty"`
	CopyWorkers int    `yaml:"copy_workers,omitempty"`
}

type NotificationSettings struct {
	MQTT *notify.MQTTConfig `yaml:"mqtt,omitempty"`
}

type MetricsSettings struct {
	ListenAddress string `yaml:"listen_address,omitempty"`
	Namespace     string `yaml:"namespace,omitempty"`
}

// LoadSettingsFromFile loads service settings from a YAML file
func LoadSettingsFromFile(filename string) (*Settings, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read settings file", err).WithContext("filename", filename)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML settings", err).WithContext("filename", filename)
	}

	if settings.Service.RootPath == "" {
		settings.Service.RootPath = filepath.Dir(filename)
	}

	if err := setSettingsDefaults(&settings); err != nil {
		return nil, errors.NewValidationError("failed to apply settings defaults", err)
	}

	return &settings, nil
}

// setSettingsDefaults applies default values and makes every path absolute
func setSettingsDefaults(settings *Settings) error {
	service := &settings.Service
	if service.RootPath == "" {
		service.RootPath = "."
	}
	root, err := filepath.Abs(service.RootPath)
	if err != nil {
		return err
	}
	service.RootPath = root

	if service.Interface == "" {
		service.Interface = notify.DefaultInterface
	}
	if service.LogLevel == "" {
		service.LogLevel = "info"
	}
	if service.LogFormat == "" {
		service.LogFormat = "console"
	}
	if service.LogOutput == "" {
		service.LogOutput = "stdout"
	}
	if service.StatusPollInterval == 0 {
		service.StatusPollInterval = time.Second
	}
	if service.ShutdownTimeout == 0 {
		service.ShutdownTimeout = 120 * time.Second
	}
	if service.WatchDebounce == 0 {
		service.WatchDebounce = 500 * time.Millisecond
	}

	server := &settings.Server
	if server.Directory == "" {
		server.Directory = "server"
	}
	server.Directory = resolve(root, server.Directory)
	if server.JavaBinary == "" {
		server.JavaBinary = "java"
	}
	if server.OutputLog == "" {
		server.OutputLog = "output.log"
	}
	server.OutputLog = resolve(root, server.OutputLog)
	if server.ReadinessMarker == "" {
		server.ReadinessMarker = "[Server thread/INFO]: Done"
	}
	if server.ReadinessPollInterval == 0 {
		server.ReadinessPollInterval = 100 * time.Millisecond
	}
	if server.KillWait == 0 {
		server.KillWait = 5 * time.Second
	}
	if server.PIDFile == "" {
		server.PIDFile = "mcserver.pid"
	}
	server.PIDFile = resolve(root, server.PIDFile)

	files := &settings.Files
	if files.Config == "" {
		files.Config = "config.yaml"
	}
	files.Config = resolve(root, files.Config)
	if files.Properties == "" {
		files.Properties = filepath.Join(server.Directory, "server.properties")
	}
	files.Properties = resolve(root, files.Properties)
	if files.Eula == "" {
		files.Eula = filepath.Join(server.Directory, "eula.txt")
	}
	files.Eula = resolve(root, files.Eula)

	if settings.Ramdisk.Path != "" {
		settings.Ramdisk.Path = resolve(root, settings.Ramdisk.Path)
	}
	if settings.Ramdisk.CopyWorkers == 0 {
		settings.Ramdisk.CopyWorkers = 4
	}

	if mqtt := settings.Notifications.MQTT; mqtt != nil {
		if mqtt.ClientID == "" {
			mqtt.ClientID = "mcservice"
		}
		if mqtt.TopicPrefix == "" {
			mqtt.TopicPrefix = "mcservice"
		}
	}

	if settings.Metrics.Namespace == "" {
		settings.Metrics.Namespace = "mcservice"
	}

	return nil
}

func resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(root, path)
}
