package framecollector

import "context"

// EventSink receives session notifications (e.g., an MQTT publisher)
//
// Delivery is best effort: the Collector logs sink errors and carries on.
type EventSink interface {
	// FrameSaved is called after each archived frame.
	FrameSaved(ctx context.Context, rec SavedFrameRecord) error
	// SessionCompleted is called once, after the source was released.
	SessionCompleted(ctx context.Context, sum Summary) error
}
