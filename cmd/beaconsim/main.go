// beaconsim advertises encoded sensor events from the local adapter so the
// bridge can be exercised without real beacons.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"tinygo.org/x/bluetooth"

	"cloudpico-sensorbridge/internal/ble"
	"cloudpico-sensorbridge/internal/sensor"
)

type options struct {
	name     string
	product  sensor.Product
	interval time.Duration
	window   time.Duration
	combined bool
}

func main() {
	var (
		opts    options
		product string
	)
	flag.StringVar(&opts.name, "name", "sim-beacon", "advertised local name")
	flag.StringVar(&product, "product", "bt6xx", "product family: bt510 or bt6xx")
	flag.DurationVar(&opts.interval, "interval", 2*time.Second, "time between events")
	flag.DurationVar(&opts.window, "window", 300*time.Millisecond, "how long each advertisement is on air")
	flag.BoolVar(&opts.combined, "combined", false, "send combined event+response advertisements")
	flag.Parse()

	switch product {
	case "bt510":
		opts.product = sensor.ProductBT510
	case "bt6xx":
		opts.product = sensor.ProductBT6XX
	default:
		fmt.Fprintf(os.Stderr, "unknown product %q\n", product)
		os.Exit(2)
	}

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug, TimeFormat: time.Kitchen}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, logger); err != nil && ctx.Err() == nil {
		logger.Error("beaconsim failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, logger *slog.Logger) error {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable: %w", err)
	}
	adv := adapter.DefaultAdvertisement()

	resp := ble.Response{Product: opts.product, FwMajor: 1, FwMinor: 0, FwPatch: 0}
	kinds := simulatedKinds(opts.product)
	var seq uint16

	t := time.NewTicker(opts.interval)
	defer t.Stop()
	for i := 0; ; i++ {
		seq++
		if seq == 0 {
			seq = 1
		}
		kind := kinds[i%len(kinds)]
		e := simulatedEvent(kind, seq, opts.product, time.Now())

		var data []byte
		if opts.combined {
			data = ble.EncodeCombined(e, resp)
		} else {
			data = ble.EncodePrimary(e)
		}
		if err := send(ctx, adv, opts, data); err != nil {
			return err
		}
		logger.Info("advertised", "kind", kind.String(), "seq", seq)

		// Separate scan responses carry the identity every few events.
		if !opts.combined && i%4 == 0 {
			if err := send(ctx, adv, opts, ble.EncodeResponse(resp)); err != nil {
				return err
			}
			logger.Debug("advertised response", "product", opts.product.String())
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func send(ctx context.Context, adv *bluetooth.Advertisement, opts options, data []byte) error {
	err := adv.Configure(bluetooth.AdvertisementOptions{
		AdvertisementType: bluetooth.AdvertisingTypeNonConnInd,
		LocalName:         opts.name,
		Interval:          bluetooth.NewDuration(100 * time.Millisecond),
		ManufacturerData: []bluetooth.ManufacturerDataElement{
			{CompanyID: ble.CompanyID, Data: data},
		},
	})
	if err != nil {
		return fmt.Errorf("configure advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		_ = adv.Stop()
		return fmt.Errorf("start advertisement: %w", err)
	}
	select {
	case <-ctx.Done():
	case <-time.After(opts.window):
	}
	return adv.Stop()
}

func simulatedKinds(p sensor.Product) []sensor.Kind {
	if p == sensor.ProductBT510 {
		return []sensor.Kind{sensor.KindTemperature, sensor.KindTemperature, sensor.KindBatteryGood}
	}
	return []sensor.Kind{
		sensor.KindTemperature1, sensor.KindCurrent1, sensor.KindPressure1,
		sensor.KindUltrasonic1, sensor.KindBatteryGood,
	}
}

func simulatedEvent(kind sensor.Kind, seq uint16, p sensor.Product, now time.Time) ble.Event {
	e := ble.NewEvent(kind, seq)
	e.Epoch = uint32(now.Unix())
	phase := float64(now.Unix()%600) / 600 * 2 * math.Pi
	wave := math.Sin(phase)

	switch kind {
	case sensor.KindTemperature:
		return e.WithS16(int16(2100 + 300*wave))
	case sensor.KindBatteryGood:
		if p == sensor.ProductBT510 {
			return e.WithU16(2950)
		}
		return e.WithS32(3580)
	case sensor.KindUltrasonic1:
		return e.WithF32(float32(1200 + 200*wave))
	case sensor.KindCurrent1:
		return e.WithF32(float32(4 + wave))
	case sensor.KindPressure1:
		return e.WithF32(float32(30 + 2*wave))
	default:
		return e.WithF32(float32(21 + 3*wave))
	}
}
