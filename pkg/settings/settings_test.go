package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
	"github.com/core-tools/hsu-mcservice/pkg/notify"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcservice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadSettingsFromFile(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		expectError bool
		validate    func(t *testing.T, settings *Settings, dir string)
	}{
		{
			name:    "minimal settings get defaults",
			content: "service: {}\n",
			validate: func(t *testing.T, settings *Settings, dir string) {
				assert.Equal(t, dir, settings.Service.RootPath)
				assert.Equal(t, notify.DefaultInterface, settings.Service.Interface)
				assert.Equal(t, "info", settings.Service.LogLevel)
				assert.Equal(t, "console", settings.Service.LogFormat)
				assert.Equal(t, time.Second, settings.Service.StatusPollInterval)
				assert.Equal(t, 120*time.Second, settings.Service.ShutdownTimeout)
				assert.Equal(t, time.Duration(0), settings.Service.StartTimeout)

				assert.Equal(t, filepath.Join(dir, "server"), settings.Server.Directory)
				assert.Equal(t, "java", settings.Server.JavaBinary)
				assert.Equal(t, filepath.Join(dir, "output.log"), settings.Server.OutputLog)
				assert.Equal(t, "[Server thread/INFO]: Done", settings.Server.ReadinessMarker)
				assert.Equal(t, 100*time.Millisecond, settings.Server.ReadinessPollInterval)
				assert.Equal(t, filepath.Join(dir, "mcserver.pid"), settings.Server.PIDFile)

				assert.Equal(t, filepath.Join(dir, "config.yaml"), settings.Files.Config)
				assert.Equal(t, filepath.Join(dir, "server", "server.properties"), settings.Files.Properties)
				assert.Equal(t, filepath.Join(dir, "server", "eula.txt"), settings.Files.Eula)

				assert.Equal(t, "", settings.Ramdisk.Path)
				assert.Equal(t, 4, settings.Ramdisk.CopyWorkers)
				assert.Nil(t, settings.Notifications.MQTT)
			},
		},
		{
			name: "explicit values",
			content: `
service:
  root_path: /srv/minecraft
  log_level: debug
  log_format: json
  status_poll_interval: 2s
  shutdown_timeout: 3m
  autostart: true
  start_timeout: 5m
  watch_properties: true
server:
  directory: /opt/mc
  java_binary: /usr/lib/jvm/bin/java
files:
  config: etc/mc.json
ramdisk:
  path: /dev/shm/world
  copy_workers: 8
notifications:
  mqtt:
    broker: tcp://localhost:1883
    qos: 1
metrics:
  listen_address: ":9100"
`,
			validate: func(t *testing.T, settings *Settings, dir string) {
				assert.Equal(t, "/srv/minecraft", settings.Service.RootPath)
				assert.Equal(t, "debug", settings.Service.LogLevel)
				assert.Equal(t, 2*time.Second, settings.Service.StatusPollInterval)
				assert.Equal(t, 3*time.Minute, settings.Service.ShutdownTimeout)
				assert.True(t, settings.Service.Autostart)
				assert.Equal(t, 5*time.Minute, settings.Service.StartTimeout)
				assert.True(t, settings.Service.WatchProperties)

				assert.Equal(t, "/opt/mc", settings.Server.Directory)
				assert.Equal(t, "/srv/minecraft/etc/mc.json", settings.Files.Config)
				assert.Equal(t, "/opt/mc/server.properties", settings.Files.Properties)
				assert.Equal(t, "/dev/shm/world", settings.Ramdisk.Path)
				assert.Equal(t, 8, settings.Ramdisk.CopyWorkers)

				require.NotNil(t, settings.Notifications.MQTT)
				assert.Equal(t, "tcp://localhost:1883", settings.Notifications.MQTT.Broker)
				assert.Equal(t, "mcservice", settings.Notifications.MQTT.ClientID)
				assert.Equal(t, "mcservice", settings.Notifications.MQTT.TopicPrefix)
				assert.Equal(t, byte(1), settings.Notifications.MQTT.QoS)
				assert.Equal(t, ":9100", settings.Metrics.ListenAddress)
			},
		},
		{
			name:        "invalid yaml",
			content:     "service: [unterminated",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSettings(t, tt.content)

			settings, err := LoadSettingsFromFile(path)
			if tt.expectError {
				assert.True(t, errors.IsValidationError(err))
				return
			}
			require.NoError(t, err)
			require.NoError(t, ValidateSettings(settings))
			tt.validate(t, settings, filepath.Dir(path))
		})
	}
}

func TestLoadSettingsFromFile_Missing(t *testing.T) {
	_, err := LoadSettingsFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsIOError(err))
}

func TestValidateSettings(t *testing.T) {
	valid := func() *Settings {
		settings := &Settings{}
		require.NoError(t, setSettingsDefaults(settings))
		return settings
	}

	tests := []struct {
		name   string
		mutate func(*Settings)
		valid  bool
	}{
		{"defaults", func(*Settings) {}, true},
		{"bad log level", func(s *Settings) { s.Service.LogLevel = "verbose" }, false},
		{"bad log format", func(s *Settings) { s.Service.LogFormat = "xml" }, false},
		{"negative shutdown timeout", func(s *Settings) { s.Service.ShutdownTimeout = -time.Second }, false},
		{"negative start timeout", func(s *Settings) { s.Service.StartTimeout = -time.Second }, false},
		{"empty marker", func(s *Settings) { s.Server.ReadinessMarker = "" }, false},
		{"negative workers", func(s *Settings) { s.Ramdisk.CopyWorkers = -1 }, false},
		{"mqtt without broker", func(s *Settings) { s.Notifications.MQTT = &notify.MQTTConfig{} }, false},
		{"mqtt bad qos", func(s *Settings) {
			s.Notifications.MQTT = &notify.MQTTConfig{Broker: "tcp://broker:1883", QoS: 3}
		}, false},
		{"metrics bad address", func(s *Settings) { s.Metrics.ListenAddress = "localhost" }, false},
		{"metrics bad port", func(s *Settings) { s.Metrics.ListenAddress = "localhost:70000" }, false},
		{"metrics all interfaces", func(s *Settings) { s.Metrics.ListenAddress = ":9100" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := valid()
			tt.mutate(settings)

			err := ValidateSettings(settings)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.IsValidationError(err))
			}
		})
	}

	assert.Error(t, ValidateSettings(nil))
}
