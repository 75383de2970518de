package secretstore

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	k, err := ParseKey(hex.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)
	return k
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	store, err := Open(OpenOptions{
		Path:          filepath.Join(t.TempDir(), "secrets.badger"),
		EncryptionKey: testKey(t),
	})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.SetString("binance_api_key", "k-123"))

	got, found, err := store.GetString("binance_api_key")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "k-123", got)

	_, found, err = store.GetString("missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestStore_EmptyKeyRejected(t *testing.T) {
	store, err := Open(OpenOptions{Path: filepath.Join(t.TempDir(), "s.badger")})
	require.NoError(t, err)
	defer store.Close()

	require.Error(t, store.SetString("  ", "v"))
	_, _, err = store.GetString("")
	require.Error(t, err)
}

func TestParseKey(t *testing.T) {
	// hex 32 字节
	k, err := ParseKey("0x" + hex.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)
	require.Len(t, k, 32)

	// 空输入返回 nil（未加密）
	k, err = ParseKey("")
	require.NoError(t, err)
	require.Nil(t, k)

	// 长度错误
	_, err = ParseKey(hex.EncodeToString(make([]byte, 16)))
	require.Error(t, err)

	// 非法输入
	_, err = ParseKey("!!!not-a-key!!!")
	require.Error(t, err)
}
