package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/sortline/internal/config"
	"github.com/sweeney/sortline/internal/controller"
	"github.com/sweeney/sortline/internal/driver"
	"github.com/sweeney/sortline/internal/fieldbus"
	"github.com/sweeney/sortline/internal/logic"
	"github.com/sweeney/sortline/internal/metrics"
	"github.com/sweeney/sortline/internal/mqtt"
	"github.com/sweeney/sortline/internal/status"
	"github.com/sweeney/sortline/internal/web"
)

var (
	runDriver             string
	runBroker             string
	runHTTPAddr           string
	runImmediatePush      bool
	runAllowNonconforming bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the line controller until interrupted",
	Long: `Run the control loop, the status/metrics HTTP endpoint and MQTT telemetry.

The configured actuation driver is put through the conformance check before
the line is touched; a driver that breaks the emergency-stop contract is
refused unless --allow-nonconforming is given.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runDriver, "driver", "", "actuation driver (overrides config)")
	runCmd.Flags().StringVar(&runBroker, "broker", "", `MQTT broker URL (overrides config, "off" disables)`)
	runCmd.Flags().StringVar(&runHTTPAddr, "http", "", `HTTP status address (overrides config, "off" disables)`)
	runCmd.Flags().BoolVar(&runImmediatePush, "immediate-push", false, "ignore travel times and fire sorters on detection")
	runCmd.Flags().BoolVar(&runAllowNonconforming, "allow-nonconforming", false, "run a driver that fails the conformance check")
}

// telemetry is what run needs from a publisher.
type telemetry interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

func runRun(cmd *cobra.Command, _ []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	factory, err := driver.Lookup(cfg.Driver)
	if err != nil {
		return err
	}
	if err := gateDriver(factory, runAllowNonconforming, logger); err != nil {
		return err
	}

	m := metrics.New()
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	publisher := newTelemetry(cfg, logger)
	defer publisher.Close()

	beats := newHeartbeater(publisher, tracker, logger)
	link := fieldbus.NewLink(newConn(cfg), logger, m)
	ctl := controller.New(cfg, controller.Deps{
		Gateway:           link,
		Driver:            factory,
		Sink:              publisher,
		Tracker:           tracker,
		Metrics:           m,
		Logger:            logger,
		HeartbeatInterval: cfg.Heartbeat,
		Heartbeat:         beats.notify,
	})

	publishSystem(publisher, tracker, "STARTUP", "", true, logger)
	logger.Info().
		Str("fieldbus", endpoint(cfg)).
		Str("backend", string(cfg.Fieldbus.Backend)).
		Str("driver", ctl.DriverName()).
		Dur("poll", cfg.Timing.Poll).
		Bool("immediate_push", cfg.Timing.ImmediatePush).
		Msg("sortline starting")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g, gctx := errgroup.WithContext(ctx)
	reason := "ERROR"

	g.Go(func() error {
		select {
		case s := <-sigCh:
			reason = signalName(s)
			logger.Info().Str("signal", reason).Msg("shutting down")
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	g.Go(func() error {
		return beats.run(gctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Timing.Poll)
		defer ticker.Stop()
		return ctl.Run(gctx, ticker.C)
	})

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, m)
		g.Go(func() error {
			logger.Info().Str("addr", cfg.HTTP.Addr).Msg("http status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	publishSystem(publisher, tracker, "SHUTDOWN", reason, true, logger)
	logger.Info().Msg("sortline stopped")
	return err
}

// applyRunFlags copies explicitly set run flags over the loaded configuration.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("driver") {
		c.Driver = runDriver
	}
	if flags.Changed("broker") {
		c.MQTT.Broker = offToEmpty(runBroker)
	}
	if flags.Changed("http") {
		c.HTTP.Addr = offToEmpty(runHTTPAddr)
	}
	if flags.Changed("immediate-push") {
		c.Timing.ImmediatePush = runImmediatePush
	}
}

func offToEmpty(v string) string {
	if v == "off" {
		return ""
	}
	return v
}

// gateDriver runs the conformance check on the driver before it is given the
// real conveyor.
func gateDriver(factory driver.Factory, allow bool, log zerolog.Logger) error {
	report, err := driver.Check(factory)
	if err == nil {
		log.Info().Str("driver", report.Driver).Int("commands", len(report.Commands)).Msg("driver passed conformance check")
		return nil
	}
	if allow {
		log.Warn().Err(err).Msg("running a non-conforming driver: emergency stop is not guaranteed")
		return nil
	}
	return fmt.Errorf("refusing to start: %w (use --allow-nonconforming to override)", err)
}

func newTelemetry(c *config.Config, log zerolog.Logger) telemetry {
	if c.MQTT.Broker == "" {
		log.Info().Msg("mqtt disabled")
		return mqtt.NopPublisher{}
	}
	return mqtt.NewRealPublisher(mqtt.Options{
		Broker:   c.MQTT.Broker,
		ClientID: c.MQTT.ClientID,
		Topics:   mqtt.TopicsFor(c.MQTT.TopicPrefix),
	}, log)
}

func statusConfig(c *config.Config) status.Config {
	return status.Config{
		PollMs:      c.Timing.Poll.Milliseconds(),
		HeartbeatMs: c.Heartbeat.Milliseconds(),
		Backend:     string(c.Fieldbus.Backend),
		Endpoint:    endpoint(c),
		Driver:      c.Driver,
		Broker:      c.MQTT.Broker,
		HTTPAddr:    c.HTTP.Addr,
	}
}

// publishSystem sends a lifecycle event carrying a full status snapshot.
func publishSystem(pub telemetry, tracker *status.Tracker, event, reason string, retained bool, log zerolog.Logger) {
	tracker.SetMQTTConnected(pub.IsConnected())
	snap := tracker.Snapshot()
	err := pub.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Warn().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	log.Debug().Str("event", event).Msg("published system event")
}

// heartbeater publishes HEARTBEAT events off the control goroutine, so a slow
// broker never delays a control cycle.
type heartbeater struct {
	pub     telemetry
	tracker *status.Tracker
	log     zerolog.Logger
	beats   chan logic.HeartbeatData
}

func newHeartbeater(pub telemetry, tracker *status.Tracker, log zerolog.Logger) *heartbeater {
	return &heartbeater{
		pub:     pub,
		tracker: tracker,
		log:     log,
		beats:   make(chan logic.HeartbeatData, 1),
	}
}

// notify queues a heartbeat without blocking. It is dropped when one is
// already waiting behind a publish in progress.
func (h *heartbeater) notify(hb logic.HeartbeatData) {
	select {
	case h.beats <- hb:
	default:
		h.log.Warn().Msg("previous heartbeat still publishing, skipping")
	}
}

func (h *heartbeater) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case hb := <-h.beats:
			h.log.Info().
				Dur("uptime", hb.Uptime).
				Str("state", string(hb.State)).
				Int("blue", hb.Counts.Blue).
				Int("green", hb.Counts.Green).
				Int("metal", hb.Counts.Metal).
				Msg("heartbeat")
			publishSystem(h.pub, h.tracker, "HEARTBEAT", "", false, h.log)
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
