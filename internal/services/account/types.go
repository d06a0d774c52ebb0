package account

// Config holds configuration for account issuance
type Config struct {
	IssuerPrefix      string
	MaxPerUser        int
	Currency          string
	RequireActivation bool
	NumberRetries     int
}
