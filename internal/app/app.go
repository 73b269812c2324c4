package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"cloudpico-sensorbridge/internal/ble"
	"cloudpico-sensorbridge/internal/config"
	"cloudpico-sensorbridge/internal/db"
	"cloudpico-sensorbridge/internal/gwobj"
	"cloudpico-sensorbridge/internal/httpapi"
	"cloudpico-sensorbridge/internal/measure"
	"cloudpico-sensorbridge/internal/metrics"
	"cloudpico-sensorbridge/internal/mqtt"
	"cloudpico-sensorbridge/internal/registry"
)

const healthInterval = 30 * time.Second

// Bridge is the assembled gateway. Packet intake is Engine.Submit.
type Bridge struct {
	Objects  *gwobj.Store
	Registry *registry.Registry
	Engine   *ble.Engine
	Values   *measure.Store
	Metrics  *metrics.Registry

	lastActivity atomic.Int64
	logger       *slog.Logger
}

// Build wires the reconciliation core to its stores. repo may be nil.
func Build(cfg config.Config, repo gwobj.Repository, publisher measure.Publisher, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{logger: logger}

	objects, err := gwobj.New(gwobj.Options{
		Capacity:   cfg.MaxBeacons,
		Lifetime:   cfg.BeaconLifetime,
		Names:      cfg.Policy.Names,
		Blocked:    cfg.Policy.Blocked,
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	codec, err := measure.NewCodec(cfg.PayloadFormat)
	if err != nil {
		return nil, err
	}
	values, err := measure.New(objects, publisher, measure.Options{
		Capacity:      cfg.MaxBeacons,
		GatewayID:     cfg.GatewayID,
		Topics:        measure.Topics{Prefix: cfg.MQTTTopicPrefix, GatewayID: cfg.GatewayID},
		Codec:         codec,
		QueueSize:     cfg.PublishQueue,
		AnnounceDelay: cfg.AnnounceDelay,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(objects, registry.Options{
		Capacity:      cfg.MaxBeacons,
		Logger:        logger,
		VerboseCreate: cfg.CreateLogVerbose,
	})
	if err != nil {
		return nil, err
	}

	handler, err := ble.NewHandler(reg, values, objects, ble.HandlerOptions{
		Capabilities:    cfg.Capabilities,
		Lifetime:        cfg.BeaconLifetime,
		EventLogVerbose: cfg.EventLogVerbose,
		Activity:        b.activity,
		Logger:          logger,
	})
	if err != nil {
		return nil, err
	}
	engine, err := ble.NewEngine(handler, ble.EngineOptions{QueueSize: cfg.IntakeQueue, Logger: logger})
	if err != nil {
		return nil, err
	}

	// The registry hears about deletions through the engine so slot state
	// is only ever touched by the reconciliation goroutine.
	objects.RegisterAgent(engine.Removed)
	objects.RegisterAgent(values.Removed)

	m := metrics.New()
	if err := m.RegisterBLE(engine.Stats()); err != nil {
		return nil, fmt.Errorf("register ble metrics: %w", err)
	}
	if err := m.RegisterPublisher(values.Stats()); err != nil {
		return nil, fmt.Errorf("register publish metrics: %w", err)
	}
	if err := m.RegisterGauge("table_full", "1 while the beacon table is full", metrics.BoolGauge(reg.TableFull)); err != nil {
		return nil, err
	}
	if err := m.RegisterGauge("beacons", "Beacons currently tracked", func() float64 { return float64(len(objects.List())) }); err != nil {
		return nil, err
	}

	b.Objects = objects
	b.Registry = reg
	b.Engine = engine
	b.Values = values
	b.Metrics = m
	return b, nil
}

func (b *Bridge) activity(idx int) {
	b.lastActivity.Store(time.Now().UnixNano())
	b.logger.Debug("ble: activity", "idx", idx)
}

// LastActivity is the time of the last admitted event, zero if none.
func (b *Bridge) LastActivity() time.Time {
	n := b.lastActivity.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Run starts the reconciliation engine, object expiry and publishing, and
// blocks until ctx is canceled or one of them fails.
func (b *Bridge) Run(ctx context.Context, tick time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Engine.Run(gctx) })
	g.Go(func() error { return b.Objects.Run(gctx, tick) })
	g.Go(func() error { return b.Values.Run(gctx) })
	return g.Wait()
}

func Run(ctx context.Context, cfg config.Config) error {
	logger := slog.Default()
	logger.Info("initializing gateway",
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
		"mqtt_client_id", cfg.MQTTClientID,
		"max_beacons", cfg.MaxBeacons,
		"capabilities", cfg.Capabilities.String(),
	)

	conn, err := db.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(conn); err != nil {
			logger.Error("db close", "error", err)
		}
	}()

	// The MQTT client is created before the bridge so the bridge can publish
	// through it; health payloads are filled in once the bridge exists.
	var bridge *Bridge
	healthTopic := measure.Topics{Prefix: cfg.MQTTTopicPrefix, GatewayID: cfg.GatewayID}.Health()
	codec, err := measure.NewCodec(cfg.PayloadFormat)
	if err != nil {
		return err
	}
	will, err := codec.Marshal(measure.HealthMessage{GatewayID: cfg.GatewayID, Online: false})
	if err != nil {
		return err
	}

	var client *mqtt.Client
	client, err = mqtt.NewClient(cfg, mqtt.Options{
		Will: &mqtt.Will{Topic: healthTopic, Payload: will},
		OnConnect: func() {
			go publishHealth(ctx, client, bridge, healthTopic, logger)
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	bridge, err = Build(cfg, gwobj.NewRepository(conn), client, logger)
	if err != nil {
		return err
	}
	if err := bridge.Objects.Load(ctx); err != nil {
		return err
	}

	srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewMux(httpapi.Deps{
		DB:           conn,
		Connected:    client.IsConnected,
		Stats:        bridge.Engine.Stats(),
		TableFull:    bridge.Registry.TableFull,
		LastActivity: bridge.LastActivity,
		Objects:      bridge.Objects,
		Latest:       bridge.Values,
		Metrics:      bridge.Metrics.Handler(),
	}))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return bridge.Run(gctx, cfg.LifetimeTick) })

	g.Go(func() error {
		// Connect retries internally; readings queue up meanwhile.
		if err := client.Connect(gctx); err != nil && gctx.Err() == nil {
			logger.Error("mqtt connect failed", "error", err)
		}
		<-gctx.Done()
		client.Disconnect()
		return nil
	})

	g.Go(func() error {
		t := time.NewTicker(healthInterval)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				publishHealth(gctx, client, bridge, healthTopic, logger)
			}
		}
	})

	g.Go(func() error {
		logger.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		listener := ble.NewListener(ble.Options{
			Adapter: cfg.BLEAdapter,
			Filter:  ble.Filter{CompanyID: ble.CompanyID},
			Logger:  logger,
		})
		if err := listener.Run(gctx, bridge.Engine.Submit); err != nil {
			logger.Warn("ble listener could not be initialized; gateway continues without BLE",
				"error", err,
			)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("gateway shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func publishHealth(ctx context.Context, client *mqtt.Client, bridge *Bridge, topic string, logger *slog.Logger) {
	if bridge == nil || !client.IsConnected() {
		return
	}
	payload, err := bridge.Values.Health(true, len(bridge.Objects.List()))
	if err != nil {
		logger.Error("encode health", "error", err)
		return
	}
	if err := client.Publish(ctx, topic, payload, true); err != nil {
		logger.Warn("publish health failed", "error", err)
	}
}
