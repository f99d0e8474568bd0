package events

// Event enumerates high-level topics inside the trading core.
type Event string

const (
	EventKlineUpdate       Event = "kline.update"
	EventBarClosed         Event = "bar.closed"
	EventBootstrapComplete Event = "bootstrap.complete"
	EventSymbolDegraded    Event = "symbol.degraded"
	EventGapDetected       Event = "bar.gap"
	EventSignalGenerated   Event = "signal.generated"
	EventSignalRejected    Event = "signal.rejected"
	EventOrderSubmitted    Event = "order.submitted"
	EventOrderFilled       Event = "order.filled"
	EventOrderFailed       Event = "order.failed"
	EventMonitorStopped    Event = "monitor.stopped"
)
