package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloudpico-sensorbridge/internal/utils"

	"tinygo.org/x/bluetooth"
)

// Packet is a single advertisement observation handed to the reconciliation
// engine. Data is the manufacturer data following the company id.
type Packet struct {
	Address   string
	RSSI      int16
	LocalName string
	CompanyID uint16
	Data      []byte
	SeenAt    time.Time
}

type Filter struct {
	LocalName            string
	CompanyID            uint16
	ManufacturerDataPref []byte
}

type Options struct {
	Adapter string // "hci0" by default
	Filter  Filter
	Logger  *slog.Logger
}

// Listener wraps BlueZ scanning with context cancellation.
type Listener struct {
	adapter *bluetooth.Adapter
	opts    Options
	logger  *slog.Logger
}

func NewListener(opts Options) *Listener {
	if opts.Adapter == "" {
		opts.Adapter = "hci0"
	}
	if opts.Filter.CompanyID == 0 {
		opts.Filter.CompanyID = CompanyID
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Listener{
		adapter: bluetooth.NewAdapter(opts.Adapter),
		opts:    opts,
		logger:  logger,
	}
}

// Run scans until ctx is canceled. onPacket runs on the radio receive
// goroutine and must not block.
func (l *Listener) Run(ctx context.Context, onPacket func(Packet) bool) error {
	l.logger.Info("ble: enabling adapter", "adapter", l.opts.Adapter)
	if err := l.adapter.Enable(); err != nil {
		return fmt.Errorf("ble enable (%s): %w", l.opts.Adapter, err)
	}
	l.logger.Info("ble: adapter enabled", "adapter", l.opts.Adapter)

	go func() {
		<-ctx.Done()
		_ = l.adapter.StopScan()
	}()

	l.logger.Info("ble: scanning started",
		"filter_name", l.opts.Filter.LocalName,
		"filter_company", "0x"+utils.Hex4(l.opts.Filter.CompanyID),
		"filter_prefix", fmt.Sprintf("% X", l.opts.Filter.ManufacturerDataPref),
	)

	// adapter.Scan blocks until StopScan() or error.
	err := l.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		if l.opts.Filter.LocalName != "" && r.LocalName() != l.opts.Filter.LocalName {
			return
		}

		for _, md := range r.ManufacturerData() {
			if md.CompanyID != l.opts.Filter.CompanyID {
				continue
			}
			if !hasPrefix(md.Data, l.opts.Filter.ManufacturerDataPref) {
				continue
			}

			pkt := Packet{
				Address:   strings.ToUpper(r.Address.String()),
				RSSI:      r.RSSI,
				LocalName: r.LocalName(),
				CompanyID: md.CompanyID,
				Data:      append([]byte(nil), md.Data...),
				SeenAt:    time.Now(),
			}
			if onPacket != nil && !onPacket(pkt) {
				l.logger.Debug("ble: packet dropped", "addr", pkt.Address)
			}
			return
		}
	})

	// If ctx canceled, treat as clean shutdown.
	if ctx.Err() != nil {
		l.logger.Info("ble: scanning stopped (context canceled)")
		return nil
	}

	if err != nil {
		return fmt.Errorf("ble scan: %w", err)
	}

	l.logger.Info("ble: scanning stopped")
	return nil
}

func hasPrefix(b, pref []byte) bool {
	if len(pref) == 0 {
		return true
	}
	if len(b) < len(pref) {
		return false
	}
	for i := range pref {
		if b[i] != pref[i] {
			return false
		}
	}
	return true
}
