package chain

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const recipient = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"

func TestParseMethod(t *testing.T) {
	tests := []struct {
		method     string
		wantName   string
		wantParams []string
		wantErr    bool
	}{
		{"transfer", "transfer", []string{"address", "uint256"}, false},
		{"approve(address, uint256)", "approve", []string{"address", "uint256"}, false},
		{"pause()", "pause", nil, false},
		{"setFlag(bool)", "setFlag", []string{"bool"}, false},
		{"", "", nil, true},
		{"broken(address", "", nil, true},
		{"(address)", "", nil, true},
		{"swap((address,uint256))", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			name, params, err := ParseMethod(tt.method)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCall)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantParams, params)
		})
	}
}

func TestEncodeCallTransfer(t *testing.T) {
	data, err := EncodeCall("transfer", []string{recipient, "1000"})
	require.NoError(t, err)
	require.Len(t, data, 4+64)

	assert.Equal(t, "a9059cbb", hex.EncodeToString(data[:4]))
	assert.Equal(t, "0000000000000000000000002c7536e3605d9c16a7a3d7b1898e529396a65c23", hex.EncodeToString(data[4:36]))
	assert.Equal(t, 0, new(big.Int).SetBytes(data[36:]).Cmp(big.NewInt(1000)))

	// 完整签名与缺省签名编码一致
	full, err := EncodeCall("transfer(address,uint256)", []string{recipient, "1000"})
	require.NoError(t, err)
	assert.Equal(t, data, full)
}

func TestEncodeCallScientificNotation(t *testing.T) {
	data, err := EncodeCall("transfer", []string{recipient, "1e18"})
	require.NoError(t, err)
	want, _ := new(big.Int).SetString("1000000000000000000", 10)
	assert.Equal(t, 0, new(big.Int).SetBytes(data[36:]).Cmp(want))
}

func TestEncodeCallOtherTypes(t *testing.T) {
	_, err := EncodeCall("setFlag(bool)", []string{"true"})
	assert.NoError(t, err)

	_, err = EncodeCall("setLimits(uint8,int64,bytes32)", []string{
		"255", "-5", "0x" + "11223344556677889900aabbccddeeff11223344556677889900aabbccddeeff",
	})
	assert.NoError(t, err)

	_, err = EncodeCall("setName(string,bytes)", []string{"alice", "0xdeadbeef"})
	assert.NoError(t, err)
}

func TestEncodeCallErrors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		args   []string
	}{
		{"arg count", "transfer", []string{recipient}},
		{"bad address", "transfer", []string{"0xR", "1000"}},
		{"bad number", "transfer", []string{recipient, "ten"}},
		{"fraction", "transfer", []string{recipient, "1.5"}},
		{"negative uint", "transfer", []string{recipient, "-1"}},
		{"uint8 overflow", "set(uint8)", []string{"256"}},
		{"int8 overflow", "set(int8)", []string{"128"}},
		{"bytes32 length", "set(bytes32)", []string{"0x1234"}},
		{"bad bool", "setFlag(bool)", []string{"maybe"}},
		{"unknown type", "set(money)", []string{"1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeCall(tt.method, tt.args)
			assert.ErrorIs(t, err, ErrInvalidCall)
		})
	}
}

func TestContainsHash(t *testing.T) {
	hashes := []string{"0xABC", "0xdef"}
	assert.True(t, ContainsHash(hashes, "0xabc"))
	assert.True(t, ContainsHash(hashes, "0xDEF"))
	assert.False(t, ContainsHash(hashes, "0x123"))
	assert.False(t, ContainsHash(nil, "0x123"))
}
