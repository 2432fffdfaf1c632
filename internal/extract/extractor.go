// Package extract pulls plain text out of uploaded artifacts for submission
// to the rewrite service.
package extract

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"
	"github.com/writepro/writepro/internal/apperrors"
)

// AllowedExtensions are the upload formats the extractor supports
var AllowedExtensions = map[string]bool{
	".txt":  true,
	".doc":  true,
	".docx": true,
	".pdf":  true,
}

// Text extracts the text content of a document file. Supported formats:
// UTF-8 plain text, Word documents (paragraph concatenation) and PDF
// (per-page concatenation).
func Text(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".txt":
		return textFromPlain(path)
	case ".doc", ".docx":
		return textFromWord(path)
	case ".pdf":
		return textFromPDF(path)
	default:
		return "", fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, ext)
	}
}

// WordCount counts the non-whitespace runes of extracted text
func WordCount(text string) int {
	count := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			count++
		}
	}
	return count
}

func textFromPlain(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperrors.ErrExtraction, err)
	}
	if !utf8.Valid(content) {
		return "", fmt.Errorf("%w: file is not valid UTF-8", apperrors.ErrExtraction)
	}
	return string(content), nil
}

// textFromWord reads WordprocessingML: a .docx is a zip whose
// word/document.xml holds paragraphs of w:t text runs
func textFromWord(path string) (string, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("%w: not a valid word document: %v", apperrors.ErrExtraction, err)
	}
	defer reader.Close()

	var docXML io.ReadCloser
	for _, f := range reader.File {
		if f.Name == "word/document.xml" {
			docXML, err = f.Open()
			if err != nil {
				return "", fmt.Errorf("%w: %v", apperrors.ErrExtraction, err)
			}
			break
		}
	}
	if docXML == nil {
		return "", fmt.Errorf("%w: word/document.xml missing", apperrors.ErrExtraction)
	}
	defer docXML.Close()

	return parseWordXML(docXML)
}

func parseWordXML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var paragraphs []string
	var current strings.Builder
	inText := false

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: malformed document xml: %v", apperrors.ErrExtraction, err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				paragraphs = append(paragraphs, current.String())
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		}
	}

	if current.Len() > 0 {
		paragraphs = append(paragraphs, current.String())
	}

	return strings.Join(paragraphs, "\n"), nil
}

func textFromPDF(path string) (string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return "", fmt.Errorf("%w: failed to open pdf: %v", apperrors.ErrExtraction, err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			return "", fmt.Errorf("%w: failed to read pdf page %d: %v", apperrors.ErrExtraction, i+1, err)
		}
		pages = append(pages, pageText)
	}

	return strings.Join(pages, "\n"), nil
}
