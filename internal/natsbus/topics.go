package natsbus

import "fmt"

// Topic patterns for NATS pub/sub communication.

// TopicRunEvents carries the live event feed of one analysis run.
func TopicRunEvents(runID string) string {
	return fmt.Sprintf("events.run.%s", runID)
}

const (
	// TopicSystem carries run lifecycle announcements.
	TopicSystem = "events.system"

	// TopicEventsAll matches every event subject.
	TopicEventsAll = "events.>"

	// TopicOpsIPC serves request/reply commands from the stask CLI.
	TopicOpsIPC = "ops.ipc"
)
