package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Signaling metrics
	SignalEventsReceivedTotal   int64
	SignalEventsDispatchedTotal int64
	SignalEmitsTotal            int64
	SignalReconnectsTotal       int64

	// Call metrics
	CallsPlacedTotal    int64
	CallsAnsweredTotal  int64
	CallsRejectedTotal  int64
	CallsTimedOutTotal  int64
	CallsCompletedTotal int64
	activeCalls         int

	// Chat metrics
	ChatMessagesSentTotal     int64
	ChatMessagesReceivedTotal int64
	ChatMessagesDeletedTotal  int64

	// Control surface metrics
	UIConnectionsTotal    int64
	UIDisconnectionsTotal int64
	activeUIConnections   int64
	httpRequestsTotal     map[string]map[int]int64 // endpoint -> status -> count

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			httpRequestsTotal: make(map[string]map[int]int64),
			startTime:         time.Now(),
		}
	})
	return instance
}

// RecordSignalEventReceived increments the received counter
func (m *Metrics) RecordSignalEventReceived() {
	m.mu.Lock()
	m.SignalEventsReceivedTotal++
	m.mu.Unlock()
}

// RecordSignalEventDispatched increments the dispatched counter
func (m *Metrics) RecordSignalEventDispatched() {
	m.mu.Lock()
	m.SignalEventsDispatchedTotal++
	m.mu.Unlock()
}

// RecordSignalEmit increments the emit counter
func (m *Metrics) RecordSignalEmit() {
	m.mu.Lock()
	m.SignalEmitsTotal++
	m.mu.Unlock()
}

// RecordSignalReconnect increments the reconnect counter
func (m *Metrics) RecordSignalReconnect() {
	m.mu.Lock()
	m.SignalReconnectsTotal++
	m.mu.Unlock()
}

// RecordCallPlaced increments the outbound call counter
func (m *Metrics) RecordCallPlaced() {
	m.mu.Lock()
	m.CallsPlacedTotal++
	m.mu.Unlock()
}

// RecordCallAnswered increments the answered call counter
func (m *Metrics) RecordCallAnswered() {
	m.mu.Lock()
	m.CallsAnsweredTotal++
	m.mu.Unlock()
}

// RecordCallRejected increments the rejected call counter
func (m *Metrics) RecordCallRejected() {
	m.mu.Lock()
	m.CallsRejectedTotal++
	m.mu.Unlock()
}

// RecordCallTimedOut increments the ring timeout counter
func (m *Metrics) RecordCallTimedOut() {
	m.mu.Lock()
	m.CallsTimedOutTotal++
	m.mu.Unlock()
}

// RecordCallCompleted increments the completed call counter
func (m *Metrics) RecordCallCompleted() {
	m.mu.Lock()
	m.CallsCompletedTotal++
	m.mu.Unlock()
}

// SetActiveCalls records the size of the server call roster
func (m *Metrics) SetActiveCalls(n int) {
	m.mu.Lock()
	m.activeCalls = n
	m.mu.Unlock()
}

// RecordChatMessageSent increments the sent message counter
func (m *Metrics) RecordChatMessageSent() {
	m.mu.Lock()
	m.ChatMessagesSentTotal++
	m.mu.Unlock()
}

// RecordChatMessageReceived increments the received message counter
func (m *Metrics) RecordChatMessageReceived() {
	m.mu.Lock()
	m.ChatMessagesReceivedTotal++
	m.mu.Unlock()
}

// RecordChatMessageDeleted increments the deleted message counter
func (m *Metrics) RecordChatMessageDeleted() {
	m.mu.Lock()
	m.ChatMessagesDeletedTotal++
	m.mu.Unlock()
}

// RecordUIConnect increments UI websocket connection counters
func (m *Metrics) RecordUIConnect() {
	m.mu.Lock()
	m.UIConnectionsTotal++
	m.activeUIConnections++
	m.mu.Unlock()
}

// RecordUIDisconnect increments the UI websocket disconnection counter
func (m *Metrics) RecordUIDisconnect() {
	m.mu.Lock()
	m.UIDisconnectionsTotal++
	m.activeUIConnections--
	m.mu.Unlock()
}

// RecordHTTPRequest records a control API request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// Helper to write metric
		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		// System metrics
		write("agentd_uptime_seconds", time.Since(m.startTime).Seconds())

		// Signaling metrics
		write("agentd_signal_events_received_total", m.SignalEventsReceivedTotal)
		write("agentd_signal_events_dispatched_total", m.SignalEventsDispatchedTotal)
		write("agentd_signal_emits_total", m.SignalEmitsTotal)
		write("agentd_signal_reconnects_total", m.SignalReconnectsTotal)

		// Call metrics
		write("agentd_calls_placed_total", m.CallsPlacedTotal)
		write("agentd_calls_answered_total", m.CallsAnsweredTotal)
		write("agentd_calls_rejected_total", m.CallsRejectedTotal)
		write("agentd_calls_timed_out_total", m.CallsTimedOutTotal)
		write("agentd_calls_completed_total", m.CallsCompletedTotal)
		write("agentd_active_calls", m.activeCalls)

		// Chat metrics
		write("agentd_chat_messages_sent_total", m.ChatMessagesSentTotal)
		write("agentd_chat_messages_received_total", m.ChatMessagesReceivedTotal)
		write("agentd_chat_messages_deleted_total", m.ChatMessagesDeletedTotal)

		// Control surface metrics
		write("agentd_ui_connections_total", m.UIConnectionsTotal)
		write("agentd_ui_disconnections_total", m.UIDisconnectionsTotal)
		write("agentd_ui_active_connections", m.activeUIConnections)

		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("agentd_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
	}
}
