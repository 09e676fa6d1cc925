package types

import (
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsValidAddress reports whether address is a 0x-prefixed 20-byte hex address
func IsValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// ChecksumAddress returns the EIP-55 form of a valid address, or the input unchanged
func ChecksumAddress(address string) string {
	if !IsValidAddress(address) {
		return address
	}
	return common.HexToAddress(address).Hex()
}

// SameAddress compares two addresses case-insensitively
func SameAddress(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}
