package account

// Default configuration values
const (
	DefaultIssuerPrefix  = "400"
	DefaultMaxPerUser    = 3
	DefaultCurrency      = "USD"
	DefaultNumberRetries = 5
)
