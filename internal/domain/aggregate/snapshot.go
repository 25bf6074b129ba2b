package aggregate

// DefaultSnapshotThreshold is the number of events between snapshots
const DefaultSnapshotThreshold = 10

// SnapshotTrigger decides after a save whether the aggregate state is snapshotted
type SnapshotTrigger interface {
	ShouldSnapshot(eventsSinceLastSnapshot int) bool
}

// EventCountTrigger snapshots once Threshold events have accumulated
type EventCountTrigger struct {
	Threshold int
}

func (t EventCountTrigger) ShouldSnapshot(eventsSinceLastSnapshot int) bool {
	return t.Threshold > 0 && eventsSinceLastSnapshot >= t.Threshold
}

// NeverSnapshot disables snapshots
type NeverSnapshot struct{}

func (NeverSnapshot) ShouldSnapshot(int) bool { return false }
