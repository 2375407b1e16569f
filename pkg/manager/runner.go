package manager

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/core-tools/hsu-mcservice/pkg/errors"
	"github.com/core-tools/hsu-mcservice/pkg/eventloop"
	"github.com/core-tools/hsu-mcservice/pkg/logging"
	"github.com/core-tools/hsu-mcservice/pkg/metrics"
	"github.com/core-tools/hsu-mcservice/pkg/mirror"
	"github.com/core-tools/hsu-mcservice/pkg/notify"
	"github.com/core-tools/hsu-mcservice/pkg/serverconfig"
	"github.com/core-tools/hsu-mcservice/pkg/settings"
	"github.com/core-tools/hsu-mcservice/pkg/supervisor"
)

// Run wires the service from settings and blocks until a signal arrives or
// runDuration seconds pass.
func Run(runDuration int, config *settings.Settings, logger logging.Logger) error {
	logger.Infof("Service runner starting...")

	ctx := context.Background()
	if runDuration > 0 {
		duration := time.Duration(runDuration) * time.Second
		logger.Infof("Using RUN DURATION of %v", duration)
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	loop := eventloop.New(logging.NewModuleLogger(logger, "eventloop"))

	publisher := notify.NewPublisher(config.Service.Interface, logging.NewModuleLogger(logger, "notify"),
		notify.NewLogSink(logging.NewModuleLogger(logger, "signals")))
	if mqttConfig := config.Notifications.MQTT; mqttConfig != nil {
		client, err := notify.ConnectMQTT(*mqttConfig, logging.NewModuleLogger(logger, "mqtt"))
		if err != nil {
			logger.Errorf("MQTT notifications are disabled: %v", err)
		} else {
			defer notify.DisconnectMQTT(client)
			publisher.AddSink(notify.NewMQTTSink(client, mqttConfig.TopicPrefix, mqttConfig.QoS))
			logger.Infof("Publishing notifications to %s under %s", mqttConfig.Broker, mqttConfig.TopicPrefix)
		}
	}

	collector := metrics.NewNoopCollector()
	if address := config.Metrics.ListenAddress; address != "" {
		prometheusCollector := metrics.NewPrometheusCollector(config.Metrics.Namespace)
		collector = prometheusCollector

		server := startMetricsServer(address, prometheusCollector.Handler(), logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdownCtx)
		}()
	}

	serverSupervisor := supervisor.NewSupervisor(supervisor.Options{
		ServerDirectory:       config.Server.Directory,
		JavaBinary:            config.Server.JavaBinary,
		OutputLogPath:         config.Server.OutputLog,
		ReadinessMarker:       config.Server.ReadinessMarker,
		ReadinessPollInterval: config.Server.ReadinessPollInterval,
		KillWait:              config.Server.KillWait,
		PIDFile:               config.Server.PIDFile,
	}, logging.NewModuleLogger(logger, "supervisor"))

	reconciler := serverconfig.NewReconciler(serverconfig.Paths{
		Config:     config.Files.Config,
		Properties: config.Files.Properties,
		Eula:       config.Files.Eula,
	}, serverSupervisor, publisher, logging.NewModuleLogger(logger, "config"))

	engine := mirror.NewEngine(config.Ramdisk.CopyWorkers, logging.NewModuleLogger(logger, "mirror"))
	workingSetLogger := logging.NewModuleLogger(logger, "ramdisk")

	manager, err := NewManager(ManagerOptions{
		ServerDirectory: config.Server.Directory,
		CloseTimeout:    config.Service.ShutdownTimeout,
		Supervisor:      serverSupervisor,
		Config:          reconciler,
		Scheduler:       loop,
		Notifier:        publisher,
		Collector:       collector,
		NewWorkingSet: func(worldPath string) WorkingSet {
			return mirror.NewWorkingSet(worldPath, config.Ramdisk.Path, engine, serverSupervisor,
				mirror.DefaultPauses(), collector, workingSetLogger)
		},
	}, logging.NewModuleLogger(logger, "manager"))
	if err != nil {
		return errors.NewInternalError("failed to create manager", err)
	}

	loop.RunEvery(config.Service.StatusPollInterval, manager.CheckStateChange)

	if config.Service.Autostart {
		loop.Post(func() {
			if _, err := manager.Start(config.Service.StartTimeout); err != nil {
				logger.Errorf("Autostart failed: %v", err)
			}
		})
	}

	if config.Service.WatchProperties {
		watcher, err := serverconfig.NewWatcher(config.Files.Properties, config.Service.WatchDebounce, func() {
			loop.Post(manager.PropertiesFileChanged)
		}, logging.NewModuleLogger(logger, "watcher"))
		if err != nil {
			logger.Warnf("Properties file watching is disabled: %v", err)
		} else {
			defer watcher.Close()
		}
	}

	logger.Infof("Enabling signal handling...")

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig) // Unix signals not implemented on Windows
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		loop.Run(context.Background())
	}()

	logger.Infof("Service is ready")

	select {
	case receivedSignal := <-sig:
		logger.Infof("Service runner received signal: %v", receivedSignal)
	case <-ctx.Done():
		logger.Infof("Service runner timed out")
	}

	logger.Infof("Service is stopping")

	// Close runs on the loop so it cannot overlap a save in progress
	loop.Post(func() {
		manager.Close()
		loop.Quit()
	})
	<-loopDone

	logger.Infof("Service runner stopped")
	return nil
}

func startMetricsServer(address string, handler http.Handler, logger logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Serving metrics on %s/metrics", address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Metrics server failed: %v", err)
		}
	}()

	return server
}

// ValidateSettingsFile checks a settings file and the configuration document
// it points at without starting anything.
func ValidateSettingsFile(settingsFile string) error {
	config, err := settings.LoadSettingsFromFile(settingsFile)
	if err != nil {
		return err
	}

	if err := settings.ValidateSettings(config); err != nil {
		return errors.NewValidationError("settings validation failed", err).WithContext("settings_file", settingsFile)
	}

	if _, err := serverconfig.LoadDocument(config.Files.Config); err != nil {
		return err
	}

	return nil
}
