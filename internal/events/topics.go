package events

const (
	TopicOrderCreated         = "order.created"
	TopicOrderStatusChanged   = "order.status_changed"
	TopicReservationsReleased = "inventory.reservations.released"
)

// PartitionKey keeps every event of one order on one partition, in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
