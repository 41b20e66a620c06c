package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/config"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/cover"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/dispatcher"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/engine"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/influx"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/ledger"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/logging"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/notify"
	intOtel "github.com/sherman-jordan/pf2e-visioner-sub010/internal/otel"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/override"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/scene"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/storage"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/transition"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/visibility"
)

const (
	ServiceName    = "visioner-engine"
	CurrentVersion = "1.0.0"
)

var (
	SessionStartTime = time.Now()

	SlogManager  *logging.SlogManager
	OTelProvider *intOtel.Provider
	LogFile      *os.File

	// Logger is the process-wide slog logger; subsystems get their own
	// zerolog loggers derived from zlog.
	Logger = logging.NewSlogManager().Logger()
	zlog   zerolog.Logger

	eng       *engine.Engine
	tracker   *transition.Tracker
	overrides *override.Store
	events    *dispatcher.Dispatcher
	influxMgr *influx.Manager
	websocket *notify.WebsocketSink
	errLedger *ledger.Ledger
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		usage()
		return
	}

	setup()
	defer teardown()

	var err error
	switch strings.ToLower(args[0]) {
	case "report":
		err = runReport(args[1:])
	case "transition":
		err = runTransition(args[1:])
	case "status":
		err = runStatus(args[1:])
	case "version":
		fmt.Println(ServiceName, CurrentVersion)
	default:
		usage()
	}
	if err != nil {
		Logger.Error("Command failed", "command", args[0], "error", err)
		teardown()
		os.Exit(1)
	}
}

func usage() {
	fmt.Printf(`%s %s

Usage:
  visioner report <scene.json> [overrides.json] [out.json|out.json.gz]
  visioner transition <scene.json> <move.json> [out.json]
  visioner status <scene.json>
  visioner version
`, ServiceName, CurrentVersion)
}

// setup loads configuration and wires the full engine stack. Fatal wiring
// failures panic; optional subsystems (database, influx, websocket) degrade
// with a logged warning instead.
func setup() {
	if err := config.Load("."); err != nil {
		config.SetDefaults()
		Logger.Warn("Failed to load config, using defaults", "error", err)
	}

	logsDir := config.GetString("logsDir")
	if _, err := os.Stat(logsDir); os.IsNotExist(err) {
		os.Mkdir(logsDir, 0755)
	}

	logFilePath := logging.LogFilePath(logsDir, ServiceName, SessionStartTime)
	var err error
	LogFile, err = os.OpenFile(logFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Errorf("failed to open log file %s: %w", logFilePath, err))
	}

	// OTel before logging so the slog bridge can attach to the provider.
	if config.GetBool("otel.enabled") {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      true,
			ServiceName:  ServiceName,
			BatchTimeout: 5 * time.Second,
			LogWriter:    LogFile,
			Endpoint:     config.GetString("otel.endpoint"),
			Insecure:     true,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
			OTelProvider = nil
		}
	}
	var logProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		logProvider = OTelProvider.LoggerProvider()
	}

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(LogFile, config.GetString("logLevel"), logProvider)
	Logger = SlogManager.Logger()
	Logger.Info("Begin logging", "path", logFilePath, "version", CurrentVersion)

	zlog = zerolog.New(LogFile).With().Timestamp().Logger()

	// Notification sinks. The log sink is always present; the websocket sink
	// joins when a frontend endpoint is configured.
	sinks := []notify.Sink{notify.NewLogSink(zlog.With().Str("component", "notify").Logger())}
	if config.GetBool("notify.websocket.enabled") {
		websocket, err = notify.NewWebsocketSink(
			config.GetString("notify.websocket.url"),
			config.GetString("notify.websocket.secret"),
			Logger,
		)
		if err != nil {
			Logger.Warn("Websocket sink unavailable", "error", err)
		} else {
			sinks = append(sinks, websocket)
		}
	}
	sink := notify.NewMultiSink(sinks...)

	errLedger = ledger.New(config.Notifications(), config.Recovery(), sink,
		zlog.With().Str("component", "ledger").Logger())

	if config.GetBool("influx.enabled") {
		influxMgr = influx.NewManager(
			zlog.With().Str("component", "influx").Logger(),
			filepath.Join(logsDir, "diagnostics_backup.lp.gz"),
		)
		if err := influxMgr.Connect(); err != nil {
			Logger.Warn("Influx unavailable, diagnostics export disabled", "error", err)
			influxMgr = nil
		} else {
			// Connect sets up writers (or the backup file) itself.
			errLedger.SetDiagnostics(influxMgr)
		}
	}

	storageType := "memory"
	if config.GetBool("db.enabled") {
		storageType = "postgres"
	}
	backend, err := storage.NewBackend(storage.Config{
		Type:       storageType,
		SqlitePath: filepath.Join(logsDir, fmt.Sprintf("%s_%s.db", ServiceName, SessionStartTime.Format("20060102_150405"))),
	}, zlog.With().Str("component", "storage").Logger())
	if err != nil {
		Logger.Warn("Storage backend unavailable, overrides are session-only", "error", err)
		backend, _ = storage.NewBackend(storage.Config{Type: "memory"}, zlog)
	}

	overrides = override.New(backend, sink, zlog.With().Str("component", "override").Logger())
	SlogManager.StorageDegraded = overrides.Degraded
}

// wireScene builds the calculation stack over a loaded scene document.
// Called by each subcommand after it has read its scene file.
func wireScene(scenePath string, doc *scene.Static) error {
	SlogManager.GetSceneName = func() string { return scenePath }

	vis := visibility.New(doc, zlog.With().Str("component", "visibility").Logger())
	cov := cover.New(doc, doc, config.Cover(), zlog.With().Str("component", "cover").Logger())

	var err error
	eng, err = engine.New(doc, doc, vis, cov, overrides, errLedger,
		engine.OptionsFromConfig(), zlog.With().Str("component", "engine").Logger())
	if err != nil {
		return fmt.Errorf("wiring engine: %w", err)
	}

	tracker = transition.New(eng, doc, doc, zlog.With().Str("component", "transition").Logger())

	events, err = dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		return fmt.Errorf("wiring dispatcher: %w", err)
	}
	registerSceneHandlers(events)
	return nil
}

// registerSceneHandlers routes scene-change events into the engine. Token
// movement only invalidates the cache; geometry and lighting changes also
// sweep overrides for pins the new scene no longer supports.
func registerSceneHandlers(d *dispatcher.Dispatcher) {
	d.Register(dispatcher.EventTokenMoved, func(e dispatcher.Event) (any, error) {
		eng.InvalidateScene()
		return nil, nil
	})
	revalidate := func(e dispatcher.Event) (any, error) {
		eng.InvalidateScene()
		return eng.RevalidateAll(e.Kind)
	}
	d.Register(dispatcher.EventWallChanged, revalidate, dispatcher.Logged())
	d.Register(dispatcher.EventDoorToggled, revalidate, dispatcher.Logged())
	d.Register(dispatcher.EventLightingChanged, revalidate, dispatcher.Logged())
}

func teardown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if websocket != nil {
		websocket.Close()
	}
	if influxMgr != nil && influxMgr.BackupWriter != nil {
		influxMgr.BackupWriter.Close()
	}
	if SlogManager != nil {
		SlogManager.Flush(ctx)
	}
	if OTelProvider != nil {
		OTelProvider.Shutdown(ctx)
	}
	if LogFile != nil {
		LogFile.Close()
	}
}
