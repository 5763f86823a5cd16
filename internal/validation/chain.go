package validation

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	NetworkEthereum = "ethereum"
	NetworkPolygon  = "polygon"
	NetworkBSC      = "bsc"
	NetworkTron     = "tron"
	NetworkSolana   = "solana"
	NetworkBitcoin  = "bitcoin"
)

var (
	evmAddressRe  = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	evmTxHashRe   = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	hexTxIDRe     = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	base58Re      = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]+$`)
	bech32Re      = regexp.MustCompile(`^(bc1|tb1)[02-9ac-hj-np-z]{11,71}$`)
	tronAddressRe = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
)

// IsEVM сети с адресами и хешами формата Ethereum.
func IsEVM(network string) bool {
	switch network {
	case NetworkEthereum, NetworkPolygon, NetworkBSC:
		return true
	}
	return false
}

// ValidateNetwork проверяет, что сеть входит в список разрешённых.
func ValidateNetwork(network string, allowed []string) error {
	network = strings.ToLower(strings.TrimSpace(network))
	if network == "" {
		return fmt.Errorf("сеть обязательна")
	}
	for _, n := range allowed {
		if n == network {
			return nil
		}
	}
	return fmt.Errorf("сеть %q не поддерживается", network)
}

// ValidateAddress проверяет адрес получателя/отправителя для сети.
func ValidateAddress(network, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("адрес обязателен")
	}

	switch {
	case IsEVM(network):
		if !evmAddressRe.MatchString(address) {
			return fmt.Errorf("адрес должен быть 0x и 40 hex символов")
		}
		if !IsValidChecksum(address) {
			return fmt.Errorf("неверная контрольная сумма адреса (EIP-55)")
		}
	case network == NetworkTron:
		if !tronAddressRe.MatchString(address) {
			return fmt.Errorf("tron адрес должен начинаться с T и содержать 34 символа base58")
		}
	case network == NetworkSolana:
		if len(address) < 32 || len(address) > 44 || !base58Re.MatchString(address) {
			return fmt.Errorf("solana адрес должен содержать 32-44 символа base58")
		}
	case network == NetworkBitcoin:
		lower := strings.ToLower(address)
		if strings.HasPrefix(lower, "bc1") || strings.HasPrefix(lower, "tb1") {
			if address != lower && address != strings.ToUpper(address) {
				return fmt.Errorf("bech32 адрес не может быть в смешанном регистре")
			}
			if !bech32Re.MatchString(lower) {
				return fmt.Errorf("некорректный bech32 адрес")
			}
			return nil
		}
		if len(address) < 26 || len(address) > 35 || !base58Re.MatchString(address) {
			return fmt.Errorf("некорректный base58 адрес bitcoin")
		}
	default:
		return fmt.Errorf("сеть %q не поддерживается", network)
	}
	return nil
}

// NormalizeTxRef проверяет ссылку на транзакцию и приводит её к каноничному виду,
// чтобы одна транзакция не была заявлена дважды в разном регистре.
func NormalizeTxRef(network, txRef string) (string, error) {
	txRef = strings.TrimSpace(txRef)
	if txRef == "" {
		return "", fmt.Errorf("хеш транзакции обязателен")
	}

	switch {
	case IsEVM(network):
		if !evmTxHashRe.MatchString(txRef) {
			return "", fmt.Errorf("хеш транзакции должен быть 0x и 64 hex символа")
		}
		return strings.ToLower(txRef), nil
	case network == NetworkTron || network == NetworkBitcoin:
		txRef = strings.TrimPrefix(strings.ToLower(txRef), "0x")
		if !hexTxIDRe.MatchString(txRef) {
			return "", fmt.Errorf("id транзакции должен содержать 64 hex символа")
		}
		return txRef, nil
	case network == NetworkSolana:
		if len(txRef) < 64 || len(txRef) > 88 || !base58Re.MatchString(txRef) {
			return "", fmt.Errorf("подпись solana должна содержать 64-88 символов base58")
		}
		return txRef, nil
	default:
		return "", fmt.Errorf("сеть %q не поддерживается", network)
	}
}

// IsValidChecksum проверяет EIP-55. Адрес в одном регистре считается без контрольной суммы.
func IsValidChecksum(address string) bool {
	body := strings.TrimPrefix(address, "0x")
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return ToChecksumAddress(address) == address
}

// ToChecksumAddress форматирует адрес по EIP-55.
func ToChecksumAddress(address string) string {
	body := strings.ToLower(strings.TrimPrefix(address, "0x"))

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(body))
	digest := hex.EncodeToString(h.Sum(nil))

	out := make([]byte, len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c >= 'a' && c <= 'f' && digest[i] >= '8' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return "0x" + string(out)
}
