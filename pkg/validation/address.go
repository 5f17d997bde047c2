package validation

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/sha3"
)

// Mainnet version bytes for base58check addresses.
const (
	versionP2PKH byte = 0x00
	versionP2SH  byte = 0x05
)

const bitcoinHRP = "bc"

// ValidateBitcoinAddress checks the structure and checksum of a mainnet
// Bitcoin address: base58check P2PKH/P2SH, bech32 segwit v0, or bech32m
// segwit v1 and later. It does not query the network.
func ValidateBitcoinAddress(addr string) Result {
	if addr == "" {
		return invalid("empty address")
	}
	if strings.HasPrefix(strings.ToLower(addr), bitcoinHRP+"1") {
		return validateSegwit(addr)
	}
	return validateBase58(addr)
}

// IsValidBitcoinAddress is ValidateBitcoinAddress reduced to a bool.
func IsValidBitcoinAddress(addr string) bool {
	return ValidateBitcoinAddress(addr).Valid
}

func validateBase58(addr string) Result {
	if len(addr) < 26 || len(addr) > 35 {
		return invalid("base58 address must be 26 to 35 characters")
	}

	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		if err == base58.ErrChecksum {
			return invalid("checksum mismatch")
		}
		return invalid("not base58check encoded")
	}

	if version != versionP2PKH && version != versionP2SH {
		return invalid("not a mainnet P2PKH or P2SH version byte")
	}
	if len(payload) != 20 {
		return invalid("hash must be 20 bytes")
	}
	return valid()
}

func validateSegwit(addr string) Result {
	if len(addr) < 14 || len(addr) > 90 {
		return invalid("bech32 address must be 14 to 90 characters")
	}

	hrp, data, encoding, err := bech32.DecodeGeneric(addr)
	if err != nil {
		return invalid("bech32 checksum or charset error")
	}
	if hrp != bitcoinHRP {
		return invalid("not a mainnet address")
	}
	if len(data) < 1 {
		return invalid("missing witness version")
	}

	witnessVersion := data[0]
	if witnessVersion > 16 {
		return invalid("witness version out of range")
	}

	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return invalid("invalid witness program padding")
	}

	if witnessVersion == 0 {
		if encoding != bech32.Version0 {
			return invalid("segwit v0 must use bech32")
		}
		if len(program) != 20 && len(program) != 32 {
			return invalid("segwit v0 program must be 20 or 32 bytes")
		}
		return valid()
	}

	if encoding != bech32.VersionM {
		return invalid("segwit v1+ must use bech32m")
	}
	if len(program) < 2 || len(program) > 40 {
		return invalid("witness program must be 2 to 40 bytes")
	}
	return valid()
}

// IsValidEthereumAddress reports whether addr is "0x" followed by 40 hex
// digits. Case is not checked; use IsChecksummedEthereumAddress for EIP-55.
func IsValidEthereumAddress(addr string) bool {
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return false
	}
	_, err := hex.DecodeString(addr[2:])
	return err == nil
}

// ValidateEthereumAddress performs the structural check and, for mixed-case
// input, the EIP-55 checksum. Single-case input is valid but reported as
// unchecksummed.
func ValidateEthereumAddress(addr string) Result {
	if !IsValidEthereumAddress(addr) {
		return invalid("must be 0x followed by 40 hex digits")
	}

	body := addr[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return Result{Valid: true, Reason: "unchecksummed"}
	}

	if ToChecksumAddress(addr) != addr {
		return invalid("EIP-55 checksum mismatch")
	}
	return valid()
}

// IsChecksummedEthereumAddress is the strict EIP-55 check: the address must
// carry mixed case matching its checksum. All-lowercase and all-uppercase
// addresses are rejected here.
func IsChecksummedEthereumAddress(addr string) bool {
	r := ValidateEthereumAddress(addr)
	return r.Valid && r.Reason == ""
}

// ToChecksumAddress returns the EIP-55 spelling of a structurally valid
// address, or "" when addr is not one.
func ToChecksumAddress(addr string) string {
	if !IsValidEthereumAddress(addr) {
		return ""
	}

	lower := strings.ToLower(addr[2:])
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := h.Sum(nil)

	out := []byte(lower)
	for i, c := range out {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			out[i] = c - 'a' + 'A'
		}
	}
	return "0x" + string(out)
}
