package graph

import "github.com/tripwright/tripwright/pkg/models"

// EventType identifies a stream event emitted around node execution.
//
// Event lifecycle per node:
//
//	task        - the node is about to run; payload carries its input state
//	task_result - the node returned; payload carries the post-node state
//	task_error  - the node failed; payload carries the error and the last
//	              consistent state
type EventType string

const (
	EventTask       EventType = "task"
	EventTaskResult EventType = "task_result"
	EventTaskError  EventType = "task_error"
)

// Event is one stream observation.
type Event struct {
	Type    EventType
	Payload EventPayload
}

// EventPayload carries the node name, the state snapshot and, for
// task_error events, the failure.
type EventPayload struct {
	Name  string
	State *models.TripState
	Err   error
}
