package kafka

// Topic definitions for Kafka event streaming
const (
	// Inbound: exchange fills already scoped to a fight participant
	TopicFightTrades = "fights.trades"

	// Outbound: fight lifecycle events
	TopicFightStarted   = "fights.started"
	TopicFightSettled   = "fights.settled"
	TopicFightCancelled = "fights.cancelled"
)
