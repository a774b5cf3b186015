package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestEncrypt_SaltsAreUnique(t *testing.T) {
	a, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)
	b, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEncrypt_RejectsBadInput(t *testing.T) {
	_, err := EncryptKey(testKeyHex, "")
	assert.Error(t, err)

	_, err = EncryptKey("not hex", "hunter2")
	assert.Error(t, err)

	_, err = EncryptKey("deadbeef", "hunter2")
	assert.Error(t, err, "short key is rejected")
}

func TestDecrypt_WrongPasswordFails(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "hunter3")
	assert.Error(t, err)
}

func TestDecrypt_RejectsUnknownVersion(t *testing.T) {
	_, err := DecryptKey([]byte(`{"version": 2}`), "hunter2")
	assert.ErrorContains(t, err, "version")
}

func TestLoadOperatorKey_RawHex(t *testing.T) {
	key, err := LoadOperatorKey(KeySource{RawKey: testKeyHex})
	require.NoError(t, err)

	want, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.PubkeyToAddress(want.PublicKey), ethcrypto.PubkeyToAddress(key.PublicKey))

	// The 0x prefix is accepted too.
	prefixed, err := LoadOperatorKey(KeySource{RawKey: "0x" + testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.PubkeyToAddress(want.PublicKey), ethcrypto.PubkeyToAddress(prefixed.PublicKey))
}

func TestLoadOperatorKey_EncryptedFile(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keystore.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	key, err := LoadOperatorKey(KeySource{EncryptedPath: path, Password: "hunter2"})
	require.NoError(t, err)

	want, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.PubkeyToAddress(want.PublicKey), ethcrypto.PubkeyToAddress(key.PublicKey))
}

func TestLoadOperatorKey_NothingConfigured(t *testing.T) {
	_, err := LoadOperatorKey(KeySource{})
	assert.Error(t, err)
}
