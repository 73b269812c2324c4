package ble

import "sync/atomic"

// Stats counts reconciliation outcomes. The engine is the only writer; readers
// may snapshot from any goroutine.
type Stats struct {
	Ads            atomic.Uint64
	PrimaryAds     atomic.Uint64
	CombinedAds    atomic.Uint64
	RspAds         atomic.Uint64
	AcceptedAds    atomic.Uint64
	IndexedAds     atomic.Uint64
	ProcessedAds   atomic.Uint64
	SetEvents      atomic.Uint64
	SetErrors      atomic.Uint64
	NameUpdates    atomic.Uint64
	DroppedAds     atomic.Uint64
	DuplicateAds   atomic.Uint64
	UnsupportedAds atomic.Uint64
	CreateFailures atomic.Uint64
	LifetimeErrors atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Ads            uint64 `json:"ads"`
	PrimaryAds     uint64 `json:"primary_ads"`
	CombinedAds    uint64 `json:"combined_ads"`
	RspAds         uint64 `json:"rsp_ads"`
	AcceptedAds    uint64 `json:"accepted_ads"`
	IndexedAds     uint64 `json:"indexed_ads"`
	ProcessedAds   uint64 `json:"processed_ads"`
	SetEvents      uint64 `json:"set_events"`
	SetErrors      uint64 `json:"set_errors"`
	NameUpdates    uint64 `json:"name_updates"`
	DroppedAds     uint64 `json:"dropped_ads"`
	DuplicateAds   uint64 `json:"duplicate_ads"`
	UnsupportedAds uint64 `json:"unsupported_ads"`
	CreateFailures uint64 `json:"create_failures"`
	LifetimeErrors uint64 `json:"lifetime_errors"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Ads:            s.Ads.Load(),
		PrimaryAds:     s.PrimaryAds.Load(),
		CombinedAds:    s.CombinedAds.Load(),
		RspAds:         s.RspAds.Load(),
		AcceptedAds:    s.AcceptedAds.Load(),
		IndexedAds:     s.IndexedAds.Load(),
		ProcessedAds:   s.ProcessedAds.Load(),
		SetEvents:      s.SetEvents.Load(),
		SetErrors:      s.SetErrors.Load(),
		NameUpdates:    s.NameUpdates.Load(),
		DroppedAds:     s.DroppedAds.Load(),
		DuplicateAds:   s.DuplicateAds.Load(),
		UnsupportedAds: s.UnsupportedAds.Load(),
		CreateFailures: s.CreateFailures.Load(),
		LifetimeErrors: s.LifetimeErrors.Load(),
	}
}

// Counter describes one statistic for exporters.
type Counter struct {
	Name string
	Help string
	Load func() uint64
}

// Counters lists every statistic with its export name.
func (s *Stats) Counters() []Counter {
	return []Counter{
		{"ads", "Advertisements received", s.Ads.Load},
		{"primary_ads", "Primary event advertisements", s.PrimaryAds.Load},
		{"combined_ads", "Combined event and response advertisements", s.CombinedAds.Load},
		{"rsp_ads", "Response-only advertisements", s.RspAds.Load},
		{"accepted_ads", "Events of an enabled kind", s.AcceptedAds.Load},
		{"indexed_ads", "Events resolved to a slot", s.IndexedAds.Load},
		{"processed_ads", "Admitted events dispatched to the measurement store", s.ProcessedAds.Load},
		{"set_events", "Successful measurement store writes", s.SetEvents.Load},
		{"set_errors", "Failed or unsupported measurement store writes", s.SetErrors.Load},
		{"name_updates", "Endpoint names bound from advertisements", s.NameUpdates.Load},
		{"dropped_ads", "Packets dropped because the intake queue was full", s.DroppedAds.Load},
		{"duplicate_ads", "Events discarded as duplicates", s.DuplicateAds.Load},
		{"unsupported_ads", "Events of a disabled or unknown kind", s.UnsupportedAds.Load},
		{"create_failures", "Slot allocations refused by capacity or policy", s.CreateFailures.Load},
		{"lifetime_errors", "Failed liveness refreshes", s.LifetimeErrors.Load},
	}
}
