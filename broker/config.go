package broker

// Config holds broker-agnostic connection configuration.
// Broker plugins extract the fields they need.
type Config struct {
	// Brokers is a list of broker addresses (e.g., "mqtt://localhost:1883").
	Brokers []string

	// ClientID identifies this client to the broker. For Kafka it is the
	// consumer group ID. Plugins generate one when empty.
	ClientID string

	// Username and Password authenticate the connection when set.
	Username string
	Password string

	// Extra holds plugin-specific configuration.
	Extra map[string]any
}
