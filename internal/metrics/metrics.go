package metrics

import "expvar"

var (
	ReconcilePasses   = expvar.NewInt("reconcile_passes")
	ReconcileErrors   = expvar.NewInt("reconcile_errors")
	EventsEmitted     = expvar.NewMap("events_emitted")
	DeliveryFailures  = expvar.NewInt("delivery_failures")
	DeliveryDropped   = expvar.NewInt("delivery_dropped")
	DedupSuppressed   = expvar.NewInt("dedup_suppressed")
	NotifyTriggers    = expvar.NewInt("notify_triggers")
	LookupSkips       = expvar.NewInt("lookup_skips")
	JournalErrors     = expvar.NewInt("journal_errors")
	GatewayReconnects = expvar.NewInt("gateway_reconnects")
)
