package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// mirrorEventsTotal counts push events by type and outcome
	mirrorEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docnav_mirror_events_total",
		Help: "Push events processed by the mirror, by type and result",
	}, []string{"type", "result"})

	// contentFetchesTotal counts content fetches by outcome
	contentFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docnav_mirror_content_fetches_total",
		Help: "Content fetches by result (ok, error, stale)",
	}, []string{"result"})

	snapshotLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docnav_mirror_snapshot_loads_total",
		Help: "Snapshot loads by result",
	}, []string{"result"})

	channelReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docnav_mirror_channel_reconnects_total",
		Help: "Push channel reconnect attempts",
	})

	// serverConnections tracks open push channel connections
	serverConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "docnav_server_ws_connections",
		Help: "Open push channel connections",
	})

	serverBroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docnav_server_broadcasts_total",
		Help: "Events broadcast to push channel clients, by type",
	}, []string{"type"})

	serverDroppedClientsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docnav_server_dropped_clients_total",
		Help: "Push channel clients dropped because their send buffer was full",
	})
)
