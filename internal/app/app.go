package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"pawprint-gateway/internal/ble"
	"pawprint-gateway/internal/config"
	"pawprint-gateway/internal/httpapi"
	"pawprint-gateway/internal/mqtt"
	"pawprint-gateway/internal/session"
)

const shutdownTimeout = 10 * time.Second

// Publisher receives every session event. *mqtt.Client implements it.
type Publisher interface {
	PublishEvent(ev session.Event) error
}

func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("initializing gateway",
		"ble_adapter", cfg.BLEAdapter,
		"address", cfg.Address,
		"auto_connect", cfg.AutoConnect,
		"http_addr", cfg.HTTPAddr,
		"mqtt_enabled", cfg.MQTTEnabled,
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"device_id", cfg.DeviceID,
	)

	central := ble.NewCentral(ble.Options{Adapter: cfg.BLEAdapter, Logger: logger})
	sess := session.New(central, session.Options{
		EventBuffer: cfg.EventBuffer,
		FrameQueue:  cfg.FrameQueue,
		Logger:      logger,
	})
	resolve := addressResolver(cfg, central, logger)

	var pub Publisher
	var mqttClient *mqtt.Client
	if cfg.MQTTEnabled {
		c, err := mqtt.NewClient(cfg, logger)
		if err != nil {
			return err
		}
		mqttClient, pub = c, c
	}

	srv := httpapi.NewServer(cfg, httpapi.NewMux(sess, resolve, logger), logger)

	// The session outlives ctx so shutdown can still send the LED-off
	// frames through it.
	sessCtx, stopSession := context.WithCancel(context.WithoutCancel(ctx))
	defer stopSession()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := sess.Run(sessCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		pumpEvents(sessCtx, sess.Events(), pub, logger)
		return nil
	})

	if mqttClient != nil {
		g.Go(func() error {
			connectCtx, cancel := context.WithTimeout(gctx, 10*time.Second)
			defer cancel()
			if err := mqttClient.Connect(connectCtx); err != nil {
				// paho keeps retrying in the background.
				logger.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
			}
			return nil
		})
	}

	if cfg.AutoConnect {
		g.Go(func() error {
			autoConnect(gctx, sess, resolve, logger)
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("gateway shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := sess.Disconnect(shutdownCtx); err != nil && !errors.Is(err, session.ErrNotConnected) {
			logger.Warn("session disconnect failed", "error", err)
		}

		logger.Info("http shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown failed", "error", err)
		}

		// Let the pump drain the Disconnected event before MQTT goes away.
		stopSession()
		if mqttClient != nil {
			logger.Info("mqtt disconnecting")
			mqttClient.Disconnect()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// addressResolver returns the configured address, or scans for the
// first PawPrint in range when none is configured.
func addressResolver(cfg config.Config, central *ble.Central, logger *slog.Logger) httpapi.Resolver {
	return func(ctx context.Context) (string, error) {
		if cfg.Address != "" {
			return cfg.Address, nil
		}
		scanCtx, cancel := context.WithTimeout(ctx, cfg.ScanTimeout)
		defer cancel()

		logger.Info("scanning for pawprint", "timeout", cfg.ScanTimeout)
		m, err := central.Find(scanCtx)
		if err != nil {
			return "", fmt.Errorf("%w: %w", session.ErrNoDeviceSelected, err)
		}
		logger.Info("pawprint found", "address", m.Address, "name", m.LocalName, "rssi", m.RSSI)
		return m.Address, nil
	}
}

func autoConnect(ctx context.Context, sess *session.Session, resolve httpapi.Resolver, logger *slog.Logger) {
	address, err := resolve(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("auto-connect: no device", "error", err)
		}
		return
	}
	if err := sess.Connect(ctx, address); err != nil && ctx.Err() == nil {
		logger.Warn("auto-connect failed", "address", address, "error", err)
	}
}

// pumpEvents logs every session event and forwards it to pub until ctx
// is done. Events still buffered at that point are forwarded first.
func pumpEvents(ctx context.Context, events <-chan session.Event, pub Publisher, logger *slog.Logger) {
	handle := func(ev session.Event) {
		logEvent(logger, ev)
		if pub == nil {
			return
		}
		if err := pub.PublishEvent(ev); err != nil {
			logger.Debug("publish event failed", "kind", ev.Kind(), "error", err)
		}
	}
	for {
		select {
		case ev := <-events:
			handle(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-events:
					handle(ev)
				default:
					return
				}
			}
		}
	}
}

func logEvent(logger *slog.Logger, ev session.Event) {
	switch e := ev.(type) {
	case session.Connected:
		logger.Info("event", "kind", e.Kind(), "address", e.Address)
	case session.Disconnected:
		logger.Info("event", "kind", e.Kind(), "address", e.Address, "requested", e.Requested)
	case session.ButtonDown:
		logger.Info("event", "kind", e.Kind(), "button", e.Button.String())
	case session.ButtonUp:
		logger.Info("event", "kind", e.Kind(), "button", e.Button.String())
	case session.Data:
		logger.Debug("event", "kind", e.Kind(), "x", e.Accel.X, "y", e.Accel.Y, "z", e.Accel.Z, "shake", e.Shake)
	}
}
