package settings

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
	"github.com/core-tools/hsu-mcservice/pkg/logging"
)

// ValidateSettings validates the entire settings structure
func ValidateSettings(settings *Settings) error {
	if settings == nil {
		return errors.NewValidationError("settings cannot be nil", nil)
	}

	if err := validateServiceSettings(&settings.Service); err != nil {
		return errors.NewValidationError("invalid service settings", err)
	}

	if err := validateServerSettings(&settings.Server); err != nil {
		return errors.NewValidationError("invalid server settings", err)
	}

	if settings.Ramdisk.CopyWorkers < 0 {
		return errors.NewValidationError("ramdisk copy workers cannot be negative", nil)
	}

	if mqtt := settings.Notifications.MQTT; mqtt != nil {
		if mqtt.Broker == "" {
			return errors.NewValidationError("mqtt broker cannot be empty", nil)
		}
		if mqtt.QoS > 2 {
			return errors.NewValidationError(fmt.Sprintf("invalid mqtt qos: %d", mqtt.QoS), nil).
				WithContext("valid_range", "0-2")
		}
	}

	if settings.Metrics.ListenAddress != "" {
		if err := ValidateListenAddress(settings.Metrics.ListenAddress); err != nil {
			return errors.NewValidationError("invalid metrics settings", err)
		}
	}

	return nil
}

func validateServiceSettings(service *ServiceSettings) error {
	if _, err := logging.ParseLevel(service.LogLevel); err != nil {
		return errors.NewValidationError(
			fmt.Sprintf("invalid log level: %s", service.LogLevel),
			nil,
		).WithContext("valid_levels", "debug, info, warn, error")
	}

	if service.LogFormat != "console" && service.LogFormat != "json" {
		return errors.NewValidationError(
			fmt.Sprintf("invalid log format: %s", service.LogFormat),
			nil,
		).WithContext("valid_formats", "console, json")
	}

	if err := ValidateTimeout(service.StatusPollInterval, "status poll"); err != nil {
		return err
	}
	if err := ValidateTimeout(service.ShutdownTimeout, "shutdown"); err != nil {
		return err
	}
	if service.StartTimeout < 0 {
		return errors.NewValidationError("start timeout cannot be negative", nil)
	}

	return nil
}

func validateServerSettings(server *ServerSettings) error {
	if server.JavaBinary == "" {
		return errors.NewValidationError("java binary cannot be empty", nil)
	}
	if server.ReadinessMarker == "" {
		return errors.NewValidationError("readiness marker cannot be empty", nil)
	}
	if err := ValidateTimeout(server.ReadinessPollInterval, "readiness poll"); err != nil {
		return err
	}
	return ValidateTimeout(server.KillWait, "kill wait")
}

// ValidatePort validates port number
func ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return errors.NewValidationError("port must be between 1 and 65535", nil)
	}
	return nil
}

// ValidateListenAddress validates a host:port pair; the host may be empty to
// listen on all interfaces.
func ValidateListenAddress(address string) error {
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return errors.NewValidationError("invalid network address format: "+address, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return errors.NewValidationError("invalid port in address: "+address, err)
	}

	if err := ValidatePort(port); err != nil {
		return errors.NewValidationError("invalid port in address: "+address, err)
	}

	return nil
}

// ValidateTimeout validates timeout duration
func ValidateTimeout(timeout time.Duration, name string) error {
	if timeout < 0 {
		return errors.NewValidationError(name+" timeout cannot be negative", nil)
	}

	if timeout == 0 {
		return errors.NewValidationError(name+" timeout cannot be zero", nil)
	}

	return nil
}
