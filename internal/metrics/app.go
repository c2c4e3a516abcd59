package metrics

import (
	"strconv"
	"time"

	"github.com/voidhaul/voidhaul/internal/observability"
)

// Metric names following Prometheus conventions
var (
	// Governor metrics
	RequestsDispatchedTotal = "governor_requests_dispatched_total"
	RequestRetriesTotal     = "governor_request_retries_total"
	RequestRetryWait        = "governor_request_retry_wait_ms"
	FatalEventsTotal        = "governor_fatal_events_total"

	// Fleet metrics
	ShipStateTransitionsTotal = "fleet_ship_state_transitions_total"
	ShipErrorsTotal           = "fleet_ship_errors_total"
	TradesTotal               = "fleet_trades_total"
	TradeCreditsTotal         = "fleet_trade_credits_total"

	// Warehouse metrics
	WarehouseEntities = "warehouse_entities"

	// Maintenance jobs
	JobRunsTotal = "maintenance_job_runs_total"

	// Server lifecycle metrics
	ServerStartTime = "app_server_start_time_seconds"
)

// RecordDispatch counts a request leaving the governor
func RecordDispatch(method string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RequestsDispatchedTotal,
			1,
			map[string]string{"method": method},
		)
	}
}

// RecordRetry counts a governor retry and the wait before it
func RecordRetry(reason string, wait time.Duration) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			RequestRetriesTotal,
			1,
			map[string]string{"reason": reason},
		)
		_ = observability.TelemetrySystem.Histogram(
			RequestRetryWait,
			wait,
			map[string]string{"reason": reason},
		)
	}
}

// RecordFatal counts fatal identity errors
func RecordFatal() {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(FatalEventsTotal, 1, nil)
	}
}

// RecordShipState counts a ship entering a loop state
func RecordShipState(state string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ShipStateTransitionsTotal,
			1,
			map[string]string{"state": state},
		)
	}
}

// RecordShipError counts failed ship steps by role
func RecordShipError(role string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ShipErrorsTotal,
			1,
			map[string]string{"role": role},
		)
	}
}

// RecordTrade counts a completed trade and its value
func RecordTrade(action string, totalPrice int) {
	if observability.TelemetrySystem != nil {
		labels := map[string]string{"action": action}
		_ = observability.TelemetrySystem.Counter(TradesTotal, 1, labels)
		_ = observability.TelemetrySystem.Counter(TradeCreditsTotal, float64(totalPrice), labels)
	}
}

// SetWarehouseEntities reports how many entities of a kind the warehouse holds
func SetWarehouseEntities(kind string, count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			WarehouseEntities,
			float64(count),
			map[string]string{"kind": kind},
		)
	}
}

// RecordJobRun records a maintenance job execution
func RecordJobRun(job string, success bool) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			JobRunsTotal,
			1,
			map[string]string{
				"job":     job,
				"success": strconv.FormatBool(success),
			},
		)
	}
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			ServerStartTime,
			float64(timestamp),
			nil,
		)
	}
}
