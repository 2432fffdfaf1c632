package extract

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/writepro/writepro/internal/apperrors"
)

func TestText_PlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "essay.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world\n你好"), 0644))

	text, err := Text(path)
	require.NoError(t, err)
	assert.Equal(t, "hello world\n你好", text)
}

func TestText_InvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "binary.txt")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0xfe, 0x01}, 0644))

	_, err := Text(path)
	assert.ErrorIs(t, err, apperrors.ErrExtraction)
}

func TestText_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "program.exe")
	require.NoError(t, os.WriteFile(path, []byte("MZ"), 0644))

	_, err := Text(path)
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
}

func TestText_MissingFile(t *testing.T) {
	_, err := Text(filepath.Join(t.TempDir(), "nope.txt"))
	assert.ErrorIs(t, err, apperrors.ErrExtraction)
}

func TestText_Docx(t *testing.T) {
	path := writeDocx(t, `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>First paragraph</w:t></w:r></w:p>
    <w:p><w:r><w:t>Second </w:t></w:r><w:r><w:t>paragraph</w:t></w:r></w:p>
  </w:body>
</w:document>`)

	text, err := Text(path)
	require.NoError(t, err)
	assert.Equal(t, "First paragraph\nSecond paragraph", text)
}

func TestText_DocxMissingDocumentXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.docx")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/other.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<x/>"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	_, err = Text(path)
	assert.ErrorIs(t, err, apperrors.ErrExtraction)
}

func TestText_DocxNotAZip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.docx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip archive"), 0644))

	_, err := Text(path)
	assert.ErrorIs(t, err, apperrors.ErrExtraction)
}

func TestWordCount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"empty", "", 0},
		{"whitespace only", " \t\n ", 0},
		{"ascii words", "hello world", 10},
		{"cjk text", "你好 世界", 4},
		{"mixed", "hello 世界\n", 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WordCount(tt.text))
		})
	}
}

func writeDocx(t *testing.T, documentXML string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "essay.docx")
	f, err := os.Create(path)
	require.NoError(t, err)

	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(documentXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	return path
}
