package realtime

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	inventorydomain "github.com/smallbiznis/perishables/internal/inventory/domain"
)

type EventType string

const (
	EventConnected       EventType = "connected"
	EventExpiryAlert     EventType = "expiry_alert"
	EventPriceUpdate     EventType = "price_update"
	EventInventoryUpdate EventType = "inventory_update"
	EventKPIUpdate       EventType = "kpi_update"
	EventDataUpdate      EventType = "data_update"
	EventPong            EventType = "pong"
	EventError           EventType = "error"
)

// Event is the envelope written to every session.
type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(t EventType, data any, at time.Time) Event {
	return Event{Type: t, Data: data, Timestamp: at.UTC()}
}

// Control messages sent by clients.
const (
	MessageSubscribeAlerts = "subscribe_alerts"
	MessageRequestUpdate   = "request_update"
	MessagePing            = "ping"
)

type ClientMessage struct {
	Type     string `json:"type"`
	DataType string `json:"dataType,omitempty"`
}

type Connected struct {
	Message   string `json:"message"`
	StoreID   string `json:"storeId"`
	UserID    string `json:"userId,omitempty"`
	SessionID string `json:"sessionId"`
}

type DataUpdate struct {
	DataType string `json:"dataType"`
	Message  string `json:"message"`
}

type ErrorMessage struct {
	Message string `json:"message"`
}

const (
	PriorityCritical = "critical"
	PriorityWarning  = "warning"
)

type ExpiryAlert struct {
	Item     inventorydomain.ItemView `json:"item"`
	Message  string                   `json:"message"`
	Priority string                   `json:"priority"`
}

// NewExpiryAlert builds the alert payload for an item; one day or less is critical.
func NewExpiryAlert(item inventorydomain.ItemView) ExpiryAlert {
	priority := PriorityWarning
	if item.DaysToExpiry <= 1 {
		priority = PriorityCritical
	}
	return ExpiryAlert{
		Item:     item,
		Message:  expiryMessage(item.Name, item.DaysToExpiry),
		Priority: priority,
	}
}

func expiryMessage(name string, days int) string {
	switch {
	case days < 0:
		return fmt.Sprintf("%s expired %d day(s) ago", name, -days)
	case days == 0:
		return fmt.Sprintf("%s expires today", name)
	default:
		return fmt.Sprintf("%s expires in %d day(s)", name, days)
	}
}

func NewDataUpdate(dataType string) DataUpdate {
	if dataType == "" {
		dataType = "all"
	}
	return DataUpdate{DataType: dataType, Message: fmt.Sprintf("%s data updated", dataType)}
}

type InventoryUpdate struct {
	Item inventorydomain.ItemView `json:"item"`
}

// KPIUpdate summarizes a store's expiry exposure.
type KPIUpdate struct {
	ExpiringCount int             `json:"expiringCount"`
	CriticalCount int             `json:"criticalCount"`
	AtRiskValue   decimal.Decimal `json:"atRiskValue"`
}
