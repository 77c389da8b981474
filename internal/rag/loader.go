package rag

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
)

// Document is one source file of reference text.
type Document struct {
	Source string
	Text   string
}

// LoadDocuments reads every supported file directly under dir, in name
// order.  Plain text and markdown are used as is; HTML is reduced to its
// visible body text; PDF contributes the plain text of all its pages.
func LoadDocuments(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read documents dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var docs []Document
	for _, name := range names {
		path := filepath.Join(dir, name)
		var (
			text string
			err  error
		)
		switch strings.ToLower(filepath.Ext(name)) {
		case ".txt", ".md":
			var b []byte
			if b, err = os.ReadFile(path); err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			text = string(b)
		case ".html", ".htm":
			var b []byte
			if b, err = os.ReadFile(path); err != nil {
				return nil, fmt.Errorf("read %s: %w", path, err)
			}
			text, err = htmlText(b)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case ".pdf":
			text, err = pdfText(path)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		default:
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, Document{Source: name, Text: text})
	}
	return docs, nil
}

// htmlText extracts readable text, one block element per paragraph.
func htmlText(b []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript, nav, footer").Remove()

	var parts []string
	doc.Find("h1, h2, h3, h4, p, li, td").Each(func(_ int, s *goquery.Selection) {
		if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(doc.Find("body").Text()), nil
	}
	return strings.Join(parts, "\n\n"), nil
}

// pdfText returns the text of every page, in page order.
func pdfText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", err
	}
	return buf.String(), nil
}
