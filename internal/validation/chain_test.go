package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToChecksumAddress_EIP55Vectors(t *testing.T) {
	vectors := []string{
		"0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		"0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359",
		"0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB",
		"0xD1220A0cf47c7B9Be7A2E6BA89F429762e7b9aDb",
	}
	for _, v := range vectors {
		assert.Equal(t, v, ToChecksumAddress(strings.ToLower(v)))
		assert.True(t, IsValidChecksum(v))
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		network string
		address string
		wantErr bool
	}{
		{"evm checksummed", NetworkPolygon, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
		{"evm lowercase", NetworkEthereum, "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", false},
		{"evm bad checksum", NetworkEthereum, "0x5AAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", true},
		{"evm short", NetworkBSC, "0x1234", true},
		{"tron", NetworkTron, "TLa2f6VPqDgRE67v1736s7bJ8Ray5wYjU7", false},
		{"tron bad prefix", NetworkTron, "XLa2f6VPqDgRE67v1736s7bJ8Ray5wYjU7", true},
		{"solana", NetworkSolana, "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", false},
		{"bitcoin bech32", NetworkBitcoin, "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", false},
		{"bitcoin legacy", NetworkBitcoin, "1BvBMSEYstWetqTFn5Au4m4GFg7xJaNVN2", false},
		{"unknown network", "dogecoin", "D8vFz4p1L37jdg47HXKtSHA5uYLYxbGgPD", true},
		{"empty", NetworkPolygon, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.network, tt.address)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizeTxRef(t *testing.T) {
	evm := "0x" + strings.Repeat("AB", 32)

	got, err := NormalizeTxRef(NetworkPolygon, evm)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(evm), got)

	_, err = NormalizeTxRef(NetworkPolygon, "0xdeadbeef")
	assert.Error(t, err)

	got, err = NormalizeTxRef(NetworkBitcoin, "0x"+strings.Repeat("f", 64))
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("f", 64), got)

	sig := strings.Repeat("5", 88)
	got, err = NormalizeTxRef(NetworkSolana, sig)
	require.NoError(t, err)
	assert.Equal(t, sig, got)

	_, err = NormalizeTxRef(NetworkSolana, "0OIl")
	assert.Error(t, err)
}

func TestValidateNetwork(t *testing.T) {
	allowed := []string{NetworkPolygon, NetworkTron}
	assert.NoError(t, ValidateNetwork("Polygon", allowed))
	assert.Error(t, ValidateNetwork("ethereum", allowed))
	assert.Error(t, ValidateNetwork("", allowed))
}

func TestValidateArtifactLink(t *testing.T) {
	assert.NoError(t, ValidateArtifactLink("https://drive.example.com/file/1"))
	assert.Error(t, ValidateArtifactLink("ftp://example.com/file"))
	assert.Error(t, ValidateArtifactLink("https://"))
	assert.Error(t, ValidateArtifactLink(""))
}

func TestValidateDisputeReason(t *testing.T) {
	assert.NoError(t, ValidateDisputeReason("работа не соответствует описанию"))
	assert.Error(t, ValidateDisputeReason("плохо"))
	assert.Error(t, ValidateDisputeReason("   "))
}
