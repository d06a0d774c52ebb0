package developer

import (
	"fmt"
	"strings"

	"cardpay/internal/utils"
)

type credentials struct {
	prefix        string
	secret        string
	webhookSecret string
}

func (c credentials) apiKey() string {
	return fmt.Sprintf("%s_%s_%s", apiKeyScheme, c.prefix, c.secret)
}

func newCredentials() (credentials, error) {
	prefix, err := utils.GenerateUniqueID(prefixBytes)
	if err != nil {
		return credentials{}, err
	}
	secret, err := utils.GenerateSecureCode()
	if err != nil {
		return credentials{}, err
	}
	whsec, err := utils.GenerateUniqueID(24)
	if err != nil {
		return credentials{}, err
	}
	return credentials{prefix: prefix, secret: secret, webhookSecret: "whsec_" + whsec}, nil
}

// splitKey returns the lookup prefix and the secret part of an API key.
func splitKey(apiKey string) (prefix, secret string, ok bool) {
	rest, found := strings.CutPrefix(apiKey, apiKeyScheme+"_")
	if !found {
		return "", "", false
	}
	prefix, secret, found = strings.Cut(rest, "_")
	if !found || len(prefix) != prefixBytes*2 || secret == "" {
		return "", "", false
	}
	return prefix, secret, true
}
