package metrics

import "expvar"

// 运行时计数器（通过 /debug/vars 暴露）
var (
	EventsPublished  = expvar.NewInt("bus_events_published")
	EventsDispatched = expvar.NewInt("bus_events_dispatched")
	EventsDropped    = expvar.NewInt("bus_events_dropped")
	HandlerErrors    = expvar.NewInt("bus_handler_errors")

	ConnectorReconnects = expvar.NewInt("connector_reconnects")
	StaleFramesDropped  = expvar.NewInt("connector_stale_frames_dropped")

	OrdersPlaced  = expvar.NewInt("orders_placed")
	OrdersFailed  = expvar.NewInt("orders_failed")
	FillsEmitted  = expvar.NewInt("fills_emitted")
	SignalsVetoed = expvar.NewInt("risk_signals_vetoed")
)
