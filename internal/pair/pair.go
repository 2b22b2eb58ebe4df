// Package pair validates and canonicalises market pair identifiers.
package pair

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalid is returned for identifiers that cannot name a pair.
var ErrInvalid = errors.New("invalid pair id")

var (
	hashPattern   = regexp.MustCompile(`^0[xX][0-9a-fA-F]{64}$`)
	opaquePattern = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z_-]{5,63}$`)
)

// Normalize returns the canonical spelling of raw. EVM addresses come back
// EIP-55 checksummed and 32-byte pool ids lowercase. Other ids, such as
// base58 accounts or symbols like SOL-USDC, are returned unchanged.
func Normalize(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalid)
	}

	if strings.HasPrefix(id, "0x") || strings.HasPrefix(id, "0X") {
		switch {
		case common.IsHexAddress(id):
			return common.HexToAddress(id).Hex(), nil
		case hashPattern.MatchString(id):
			return common.HexToHash(id).Hex(), nil
		default:
			return "", fmt.Errorf("%w: %q is not a 20-byte address or 32-byte id", ErrInvalid, id)
		}
	}

	if !opaquePattern.MatchString(id) {
		return "", fmt.Errorf("%w: %q must be 6-64 letters, digits, \"-\" or \"_\"", ErrInvalid, id)
	}
	return id, nil
}

// Short abbreviates long ids for display.
func Short(id string) string {
	if len(id) <= 14 {
		return id
	}
	return id[:6] + "…" + id[len(id)-4:]
}
