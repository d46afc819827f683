package chain

import "strings"

// minSigningSecretLen is the shortest WIF encoding a valid private key
// produces on this network.
const minSigningSecretLen = 51

// wifPrefixes are the base58 prefixes a network private key can start with.
var wifPrefixes = []string{"5J", "5K", "5H", "5W", "5Q", "5R", "5S", "5T", "5U", "5V"}

// ValidateSigningSecret does a syntactic check of a private key. It proves
// nothing about whether the key controls the source account; a bad key is
// only discovered when the network rejects the broadcast.
func ValidateSigningSecret(secret string) bool {
	secret = strings.TrimSpace(secret)
	if len(secret) < minSigningSecretLen {
		return false
	}
	for _, p := range wifPrefixes {
		if strings.HasPrefix(secret, p) {
			return true
		}
	}
	return false
}
