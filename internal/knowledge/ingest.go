package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

const (
	// maxDocumentChars caps extracted text per document to keep prompts
	// inside model context limits.
	maxDocumentChars = 50000

	// maxChunkChars is the target size of one indexed snippet.
	maxChunkChars = 1200
)

// IngestDir walks a research directory and indexes every .md, .txt, and
// .pdf file. Unreadable files are skipped with an error count rather than
// aborting the walk. Returns the number of snippets added.
func (s *Store) IngestDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("knowledge: read dir %s: %w", dir, err)
	}
	added := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		var text string
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".md", ".txt":
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			text = string(data)
		case ".pdf":
			extracted, err := extractPDFText(path)
			if err != nil {
				continue
			}
			text = extracted
		default:
			continue
		}
		if len(text) > maxDocumentChars {
			text = text[:maxDocumentChars]
		}
		symbol := symbolFromName(entry.Name())
		for i, chunk := range chunkText(text) {
			snippet := Snippet{
				ID:     fmt.Sprintf("%s#%d", entry.Name(), i),
				Source: path,
				Symbol: symbol,
				Text:   chunk,
			}
			if err := s.Add(snippet); err == nil {
				added++
			}
		}
	}
	return added, nil
}

// chunkText splits a document on blank lines, packing paragraphs into
// chunks of at most maxChunkChars.
func chunkText(text string) []string {
	paragraphs := strings.Split(text, "\n\n")
	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > maxChunkChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
		// A single oversized paragraph becomes its own chunk.
		if current.Len() > maxChunkChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// symbolFromName extracts a leading ticker-like token from a filename, e.g.
// "600519-moutai-q3.md" tags snippets with symbol 600519.
func symbolFromName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	fields := strings.FieldsFunc(base, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(fields) == 0 {
		return ""
	}
	first := fields[0]
	hasDigit := false
	for _, r := range first {
		if unicode.IsDigit(r) {
			hasDigit = true
			break
		}
	}
	if hasDigit {
		return strings.ToUpper(first)
	}
	return ""
}

// extractPDFText extracts plain text from a PDF. Recovers from panics
// raised by corrupt files inside the pdf reader.
func extractPDFText(path string) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("knowledge: panic during pdf extraction: %v", r)
		}
	}()

	f, reader, openErr := pdf.Open(path)
	if openErr != nil {
		return "", fmt.Errorf("knowledge: open pdf %s: %w", path, openErr)
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, pageErr := page.GetPlainText(nil)
		if pageErr != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
		if sb.Len() > maxDocumentChars {
			break
		}
	}
	return sb.String(), nil
}
