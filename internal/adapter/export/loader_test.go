package export

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

const sampleChat = "[1/2/2024, 09:00:00] Alice: Hello\n"

func writeZip(t *testing.T, entries [][2]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "export.zip")
	f, err := os.Create(p)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e[0])
		require.NoError(t, err)
		_, err = w.Write([]byte(e[1]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func TestLoader_Zip(t *testing.T) {
	p := writeZip(t, [][2]string{
		{"00000002-AUDIO-2024.opus", "bbbb"},
		{"_chat.txt", sampleChat},
		{"00000001-AUDIO-2024.opus", "aa"},
		{"../evil.opus", "x"},
		{"__MACOSX/._chat.txt", "junk"},
	})

	b, err := (&Loader{}).Load(p)
	require.NoError(t, err)

	assert.Equal(t, "_chat.txt", b.ChatName)
	assert.Equal(t, sampleChat, b.ChatText)
	assert.Equal(t, []string{"00000002-AUDIO-2024.opus", "00000001-AUDIO-2024.opus"}, b.Media.Names())

	f, ok := b.Media.Get("00000001-AUDIO-2024.opus")
	require.True(t, ok)
	assert.Equal(t, int64(2), f.Size())
	assert.Equal(t, "audio/ogg; codecs=opus", f.ContentType())
	data, err := f.Bytes()
	require.NoError(t, err)
	assert.Equal(t, "aa", string(data))
}

func TestLoader_ZipKeepsDottedNames(t *testing.T) {
	p := writeZip(t, [][2]string{
		{"_chat.txt", sampleChat},
		{"voice..opus", "v"},
		{"media/../../up.opus", "x"},
	})

	b, err := (&Loader{}).Load(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"voice..opus"}, b.Media.Names())
}

func TestLoader_ZipEntryTooLarge(t *testing.T) {
	old := maxEntrySize
	maxEntrySize = 4
	t.Cleanup(func() { maxEntrySize = old })

	p := writeZip(t, [][2]string{
		{"_chat.txt", "ok"},
		{"big.opus", "12345"},
	})

	_, err := (&Loader{}).Load(p)
	require.ErrorIs(t, err, ErrEntryTooLarge)
	assert.Contains(t, err.Error(), "big.opus")
}

func TestEscapes(t *testing.T) {
	assert.True(t, escapes("../a.opus"))
	assert.True(t, escapes("a/../../b.opus"))
	assert.False(t, escapes("voice..opus"))
	assert.False(t, escapes("WhatsApp Chat/_chat.txt"))
}

func TestLoader_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "WhatsApp Chat - Family_chat.txt"), []byte(sampleChat), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.mp3"), []byte("mp3"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.opus"), []byte("opus"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o750))

	b, err := (&Loader{}).Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "WhatsApp Chat - Family_chat.txt", b.ChatName)
	assert.Equal(t, []string{"a.opus", "b.mp3"}, b.Media.Names())
	mp3, _ := b.Media.Get("b.mp3")
	assert.Equal(t, "audio/mpeg", mp3.ContentType())
}

func TestLoader_ChatFileWithSiblings(t *testing.T) {
	dir := t.TempDir()
	chat := filepath.Join(dir, "export.txt")
	require.NoError(t, os.WriteFile(chat, []byte(sampleChat), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "old_chat.txt"), []byte("other"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.opus"), []byte("opus"), 0o600))

	b, err := (&Loader{}).Load(chat)
	require.NoError(t, err)

	assert.Equal(t, "export.txt", b.ChatName)
	assert.Equal(t, sampleChat, b.ChatText)
	assert.Equal(t, []string{"a.opus"}, b.Media.Names())
}

func TestLoader_FallsBackToAnyTxt(t *testing.T) {
	p := writeZip(t, [][2]string{
		{"a.opus", "x"},
		{"WhatsApp Chat with Bob.txt", sampleChat},
	})

	b, err := (&Loader{}).Load(p)
	require.NoError(t, err)
	assert.Equal(t, "WhatsApp Chat with Bob.txt", b.ChatName)
}

func TestLoader_NoChatFile(t *testing.T) {
	p := writeZip(t, [][2]string{{"a.opus", "x"}})

	_, err := (&Loader{}).Load(p)
	require.ErrorIs(t, err, ErrNoChatFile)
}

func TestLoader_MissingPath(t *testing.T) {
	_, err := (&Loader{}).Load(filepath.Join(t.TempDir(), "missing.zip"))
	require.Error(t, err)
}

func TestDecodeChat(t *testing.T) {
	t.Run("utf8 bom is stripped", func(t *testing.T) {
		got, err := DecodeChat(append([]byte{0xEF, 0xBB, 0xBF}, sampleChat...))
		require.NoError(t, err)
		assert.Equal(t, sampleChat, got)
	})

	t.Run("utf16 with bom", func(t *testing.T) {
		enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
		raw, err := enc.Bytes([]byte("[1/2/2024, 09:00:00] דני: שלום\n"))
		require.NoError(t, err)

		got, err := DecodeChat(raw)
		require.NoError(t, err)
		assert.Equal(t, "[1/2/2024, 09:00:00] דני: שלום\n", got)
	})
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "audio/ogg; codecs=opus", ContentType("x.OPUS"))
	assert.Equal(t, "audio/mpeg", ContentType("x.mp3"))
	assert.Equal(t, "application/octet-stream", ContentType("noext"))
	assert.Equal(t, "audio/mp4", ContentType("voice.m4a"))
}
