package events

import "encoding/json"

// Broadcast channels, one per domain. The names mirror the redis channels the
// services use when a redis bridge is configured.
const (
	ChannelIncidents = "incidents:events"
	ChannelFactories = "factory:events"
	ChannelCameras   = "factory:camera:events"
)

// Event names carried inside the message envelope. The incident names are
// published here; the factory and camera lifecycle names belong to the
// external factory-management publisher and arrive over the redis bridge.
const (
	IncidentCreated  = "incident_created"
	IncidentResolved = "incident_resolved"

	FactoryCreated = "factory_created"
	FactoryUpdated = "factory_updated"
	FactoryDeleted = "factory_deleted"
	LayoutUpdated  = "layout_updated"

	CameraCreated = "camera_created"
	CameraUpdated = "camera_updated"
	CameraDeleted = "camera_deleted"
)

// Kafka topic for the best-effort mirror of incident events to external
// analytics consumers.
const TopicIncidentEvents = "incident.events"

// Message is the wire envelope delivered to stream subscribers:
// {"event": "<name>", "data": {...}}.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}
