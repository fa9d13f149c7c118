package e2e

import (
	"archive/zip"
	"bytes"
	"html"
	"strings"
)

// SupportedFileExtensions are the diary formats written by WriteDiaryFile. PDF is read by the
// extractor too but not generated here.
var SupportedFileExtensions = []string{".txt", ".md", ".docx"}

// WriteDiaryFile returns the file bytes of a diary with the given text in format ext.
func WriteDiaryFile(ext, text string) ([]byte, error) {
	switch ext {
	case ".docx":
		return minimalDocx(text)
	default:
		return []byte(text), nil
	}
}

// minimalDocx writes one paragraph per line of text.
func minimalDocx(text string) ([]byte, error) {
	var body strings.Builder
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		body.WriteString("<w:p><w:r><w:t>")
		body.WriteString(html.EscapeString(line))
		body.WriteString("</w:t></w:r></w:p>")
	}
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create("word/document.xml")
	if err != nil {
		return nil, err
	}
	doc := `<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`
	if _, err := fw.Write([]byte(doc)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
