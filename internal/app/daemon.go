package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/sync/errgroup"

	"github.com/rbright/fala/internal/animation"
	"github.com/rbright/fala/internal/config"
	"github.com/rbright/fala/internal/health"
	"github.com/rbright/fala/internal/indicator"
	"github.com/rbright/fala/internal/inference"
	"github.com/rbright/fala/internal/ipc"
	"github.com/rbright/fala/internal/metrics"
	"github.com/rbright/fala/internal/pipeline"
	"github.com/rbright/fala/internal/playback"
	"github.com/rbright/fala/internal/rig"
	"github.com/rbright/fala/internal/tick"
	"github.com/rbright/fala/internal/turn"
)

const shutdownTimeout = 2 * time.Second

// Components are the local devices and remote service a daemon drives.
type Components struct {
	Recorder  turn.Recorder
	Service   turn.Service
	Player    turn.Player
	Indicator indicator.Controller
}

// BuildComponents wires Pulse capture and playback, the desktop indicator, and the
// inference HTTP client from cfg.
func BuildComponents(cfg config.Config, logger *slog.Logger) (Components, error) {
	client, err := inference.New(inferenceConfig(cfg.Inference))
	if err != nil {
		return Components{}, err
	}

	var ind indicator.Controller = indicator.Noop{}
	if cfg.Indicator.Enable {
		ind = indicator.NewDesktop(cfg.Indicator, indicator.PulseCueOutput(), logger)
	}

	return Components{
		Recorder:  pipeline.NewRecorder(cfg, pipeline.PulseOpener(cfg.Audio, logger), logger),
		Service:   client,
		Player:    playback.New(playback.PulseOutput("fala reply"), logger),
		Indicator: ind,
	}, nil
}

func inferenceConfig(cfg config.InferenceConfig) inference.Config {
	return inference.Config{
		BaseURL:        cfg.BaseURL,
		APIKey:         cfg.APIKey,
		InitializePath: cfg.InitializePath,
		InteractPath:   cfg.InteractPath,
		EmotionHeader:  cfg.EmotionHeader,
		UploadField:    cfg.UploadField,
		UploadFilename: cfg.UploadFilename,
		InitTimeout:    time.Duration(cfg.InitTimeoutMS) * time.Millisecond,
		TurnTimeout:    time.Duration(cfg.TurnTimeoutMS) * time.Millisecond,
	}
}

func animationConfig(cfg config.AnimationConfig) animation.Config {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return animation.Config{
		TalkCycleMin: ms(cfg.TalkCycleMinMS),
		TalkCycleMax: ms(cfg.TalkCycleMaxMS),
		IdleCycleMin: ms(cfg.IdleCycleMinMS),
		IdleCycleMax: ms(cfg.IdleCycleMaxMS),
		EmotionDecay: ms(cfg.EmotionDecayMS),
	}
}

// Daemon owns the tick loop and every long-running listener.
type Daemon struct {
	cfg    config.Config
	logger *slog.Logger

	loop       *tick.Loop
	controller *turn.Controller
	engine     *animation.Engine
	indicator  indicator.Controller

	hub     *rig.Hub
	mqtt    mqtt.Client
	metrics *metrics.Recorder
	health  *health.Server
}

// NewDaemon builds the controller and animation engine on a fresh tick loop. Rig
// backends that need a connection (MQTT) are dialed here.
func NewDaemon(cfg config.Config, comps Components, logger *slog.Logger) (*Daemon, error) {
	d := &Daemon{cfg: cfg, logger: logger, loop: tick.New(nil), indicator: comps.Indicator}

	sink, err := d.buildSink()
	if err != nil {
		return nil, err
	}

	var observer turn.Metrics = turn.NopMetrics{}
	if strings.TrimSpace(cfg.Metrics.Listen) != "" {
		d.metrics = metrics.New()
		observer = d.metrics
	}

	turnCfg, warnings := turn.ConfigFrom(cfg)
	for _, w := range warnings {
		logger.Warn("turn config warning", "message", w)
	}

	d.controller = turn.New(turnCfg, turn.Deps{
		Loop:      d.loop,
		Recorder:  comps.Recorder,
		Service:   comps.Service,
		Player:    comps.Player,
		Indicator: comps.Indicator,
		Metrics:   observer,
		Logger:    logger,
	})
	d.engine = animation.New(d.loop, sink, animationConfig(cfg.Animation), nil, logger)
	d.controller.Attach(d.engine)

	if strings.TrimSpace(cfg.Health.GRPCListen) != "" {
		d.health = health.New(d.controller, logger)
	}
	return d, nil
}

// Controller exposes the turn controller.
func (d *Daemon) Controller() *turn.Controller { return d.controller }

func (d *Daemon) buildSink() (animation.Sink, error) {
	switch d.cfg.Rig.Backend {
	case config.RigBackendWebSocket:
		d.hub = rig.NewHub(d.logger)
		return d.hub, nil
	case config.RigBackendMQTT:
		client, err := rig.DialMQTT(rig.MQTTConfig{
			Broker:   d.cfg.Rig.MQTTBroker,
			ClientID: d.cfg.Rig.MQTTClientID,
			Topic:    d.cfg.Rig.MQTTTopic,
		}, d.logger)
		if err != nil {
			return nil, err
		}
		d.mqtt = client
		return rig.Multi{rig.NewMQTTSink(client, d.cfg.Rig.MQTTTopic, d.logger), rig.NewLogSink(d.logger)}, nil
	case config.RigBackendLog, "":
		return rig.NewLogSink(d.logger), nil
	default:
		return nil, fmt.Errorf("unknown rig backend %q", d.cfg.Rig.Backend)
	}
}

// Run serves IPC on listener, plus any configured rig, metrics, and health
// listeners, until ctx ends or one of them fails.
func (d *Daemon) Run(ctx context.Context, listener net.Listener) error {
	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() { loopDone <- d.loop.Run(loopCtx) }()
	defer func() {
		stopLoop()
		<-loopDone
		if d.mqtt != nil {
			d.mqtt.Disconnect(250)
		}
		if desktop, ok := d.indicator.(*indicator.Desktop); ok {
			desktop.Wait()
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if err := d.loop.Post(d.engine.Start); err != nil {
		return fmt.Errorf("start animation: %w", err)
	}
	if err := d.controller.Start(gctx); err != nil {
		return fmt.Errorf("start controller: %w", err)
	}

	g.Go(func() error {
		server := &ipc.Server{Handler: d.controller, Logger: d.logger}
		return server.Serve(gctx, listener)
	})
	if d.hub != nil {
		g.Go(func() error {
			return d.hub.Serve(gctx, d.cfg.Rig.WebSocketListen, d.cfg.Rig.WebSocketPath)
		})
	}
	if d.metrics != nil {
		g.Go(func() error {
			return d.metrics.Serve(gctx, d.cfg.Metrics.Listen, d.logger)
		})
	}
	if d.health != nil {
		g.Go(func() error {
			return d.health.Serve(gctx, d.cfg.Health.GRPCListen)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := d.controller.Shutdown(shutdownCtx); err != nil && !errors.Is(err, tick.ErrClosed) {
			d.logger.Warn("controller shutdown incomplete", "error", err.Error())
		}
		_ = d.loop.Do(shutdownCtx, d.engine.Stop)
		return nil
	})

	d.logger.Info("daemon started",
		"socket", listener.Addr().String(),
		"rig", d.cfg.Rig.Backend,
		"inference", d.cfg.Inference.BaseURL,
	)
	err := g.Wait()
	d.logger.Info("daemon stopped")
	return err
}
