package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_PlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msg.txt")
	require.NoError(t, os.WriteFile(path, []byte("  Adorei o atendimento!\n"), 0o600))

	text, err := File(path)
	require.NoError(t, err)
	assert.Equal(t, "Adorei o atendimento!", text)
}

func TestFile_Missing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "nope.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFile_TooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("a", MaxFileSize+1)), 0o600))

	_, err := File(path)
	assert.Error(t, err)
}

func TestBytes_RejectsBinary(t *testing.T) {
	_, err := Bytes(".bin", []byte{0xff, 0xfe, 0x00})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestBytes_InvalidPDF(t *testing.T) {
	_, err := Bytes(".pdf", []byte("not really a pdf"))
	assert.Error(t, err)

	_, err = Bytes(".txt", []byte("%PDF-1.4 truncated"))
	assert.Error(t, err, "the PDF magic wins over the extension")
}
