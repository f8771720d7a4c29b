// Package run implements the run command, which starts the voice changer
// with the console, HTTP API and MQTT front-ends enabled in the config.
package run

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/voicechanger/internal/api"
	"github.com/tphakala/voicechanger/internal/buildinfo"
	"github.com/tphakala/voicechanger/internal/conf"
	"github.com/tphakala/voicechanger/internal/controller"
	"github.com/tphakala/voicechanger/internal/engine"
	"github.com/tphakala/voicechanger/internal/errors"
	"github.com/tphakala/voicechanger/internal/logger"
	"github.com/tphakala/voicechanger/internal/mqtt"
	"github.com/tphakala/voicechanger/internal/observability"
	"github.com/tphakala/voicechanger/internal/session"
)

// shutdownTimeout bounds the final stop of the voice path
const shutdownTimeout = 10 * time.Second

type options struct {
	console   bool
	autostart bool
}

// Command creates the run command
func Command(info *buildinfo.Context) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the voice changer",
		Long:  "Opens the default microphone and speaker and routes the voice through the pitch shifter.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return execute(cmd.Context(), info, opts)
		},
	}

	if err := setupFlags(cmd, &opts); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags defines run flags and binds the ones backed by settings to viper
func setupFlags(cmd *cobra.Command, opts *options) error {
	flags := cmd.Flags()
	flags.BoolVar(&opts.console, "console", true, "Read start, stop and pitch commands from stdin")
	flags.BoolVar(&opts.autostart, "autostart", false, "Start the voice path immediately")
	flags.Float32("wavelength", 0, "Pitch shifter grain period in milliseconds")
	flags.String("capture", "", "Capture device name, empty for system default")
	flags.String("playback", "", "Playback device name, empty for system default")
	flags.String("backend", "", "Audio backend, empty or auto for platform default")
	flags.Bool("api", false, "Enable the HTTP control API")
	flags.String("listen", "", "HTTP control API listen address")
	flags.Bool("mqtt", false, "Enable the MQTT bridge")

	bindings := map[string]string{
		"engine.wavelength":     "wavelength",
		"engine.capturedevice":  "capture",
		"engine.playbackdevice": "playback",
		"engine.backend":        "backend",
		"api.enabled":           "api",
		"api.listen":            "listen",
		"mqtt.enabled":          "mqtt",
	}
	for key, name := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return errors.Newf("error binding flag %s: %v", name, err).
				Component("run").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}
	return nil
}

func execute(parent context.Context, info *buildinfo.Context, opts options) error {
	settings := conf.GetSettings()
	log := logger.Global().Module("main")

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	m.Errors.InstallHook()

	eng, err := engine.NewMalgoEngine(engineConfig(&settings.Engine), engine.WithRecorder(m.Voice))
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Warn("failed to close audio engine", logger.Error(err))
		}
	}()

	factory := func() (controller.Session, error) {
		manager, err := session.New(eng,
			session.WithRecorder(m.Session),
			session.WithOperationTimeout(settings.Session.OperationTimeout))
		if err != nil {
			return nil, err
		}
		return manager, nil
	}

	ctrl, err := controller.New(ctx, controller.ProbeGate(eng.ProbeCapture), factory,
		controller.WithConfig(controller.Config{
			Wavelength: settings.Engine.Wavelength,
			MinPitch:   settings.Controller.MinPitch,
			MaxPitch:   settings.Controller.MaxPitch,
		}))
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := ctrl.Close(closeCtx); err != nil {
			log.Warn("voice changer did not shut down cleanly", logger.Error(err))
		}
	}()

	ctrl.OnStateChange(func(s controller.State) {
		log.Info("voice changer state changed",
			logger.Bool("running", s.Running),
			logger.Float32("pitch", s.Pitch),
			logger.String("last_error", s.LastError))
	})

	if !ctrl.State().Permission {
		log.Warn("microphone unavailable, voice changer stays stopped")
	} else if opts.autostart {
		ctrl.OnStartRequested()
	}

	log.Info("voice changer ready",
		logger.String("version", info.GetVersion()),
		logger.Bool("permission", ctrl.State().Permission),
		logger.Bool("api", settings.API.Enabled),
		logger.Bool("mqtt", settings.MQTT.Enabled))

	g, gctx := errgroup.WithContext(ctx)

	if settings.API.Enabled {
		var apiOpts []api.ServerOption
		if settings.Metrics.Enabled {
			apiOpts = append(apiOpts, api.WithMetrics(m.HTTP, m.Handler()))
		}
		srv, err := api.New(api.ConfigFromSettings(settings), ctrl, apiOpts...)
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Run(gctx) })
	}

	if settings.MQTT.Enabled {
		bridge, err := newBridge(settings, ctrl, m, info)
		if err != nil {
			return err
		}
		g.Go(func() error { return bridge.Run(gctx) })
	}

	if opts.console {
		c := newConsole(os.Stdin, os.Stdout, ctrl)
		g.Go(func() error { return c.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err = g.Wait()
	if errors.Is(err, errQuit) {
		err = nil
	}
	log.Info("shutting down")
	return err
}

func engineConfig(s *conf.EngineSettings) engine.Config {
	return engine.Config{
		SampleRate:      s.SampleRate,
		FramesPerBuffer: s.FramesPerBuffer,
		RingBufferSize:  s.RingBufferSize,
		CaptureDevice:   s.CaptureDevice,
		PlaybackDevice:  s.PlaybackDevice,
		Backend:         s.Backend,
	}
}

// newBridge creates the MQTT bridge with optional Home Assistant discovery
func newBridge(settings *conf.Settings, ctrl *controller.Controller, m *observability.Metrics, info *buildinfo.Context) (*mqtt.Bridge, error) {
	cfg := mqtt.ConfigFromSettings(&settings.MQTT)
	client, err := mqtt.NewClient(cfg, m.MQTT)
	if err != nil {
		return nil, err
	}

	opts := []mqtt.BridgeOption{
		mqtt.WithCommandRate(settings.MQTT.CommandRate),
		mqtt.WithBridgeMetrics(m.MQTT),
	}
	if ha := settings.MQTT.HomeAssistant; ha.Enabled {
		minPitch, maxPitch := ctrl.PitchRange()
		opts = append(opts, mqtt.WithDiscovery(mqtt.NewDiscoveryPublisher(client, &mqtt.DiscoveryConfig{
			DiscoveryPrefix: ha.DiscoveryPrefix,
			BaseTopic:       cfg.Topic,
			DeviceName:      ha.DeviceName,
			NodeID:          info.GetSystemID(),
			Version:         info.GetVersion(),
			MinPitch:        minPitch,
			MaxPitch:        maxPitch,
		})))
	}
	return mqtt.NewBridge(client, ctrl, cfg.Topic, opts...), nil
}
