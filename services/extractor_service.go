package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/tmc/langchaingo/schema"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"
)

// PageExtractor returns the plain text of every page of a PDF, in order.
type PageExtractor interface {
	ExtractPages(path string) ([]string, error)
}

// NewPageExtractor picks UniPDF when a license key is configured and the
// license-free ledongthuc/pdf reader otherwise.
func NewPageExtractor(unidocLicenseKey string) (PageExtractor, error) {
	if unidocLicenseKey == "" {
		return PlainPDFExtractor{}, nil
	}
	if err := license.SetMeteredKey(unidocLicenseKey); err != nil {
		return nil, fmt.Errorf("failed to set unidoc license key: %w", err)
	}
	return UniPDFExtractor{}, nil
}

// UniPDFExtractor uses UniPDF to get the text of each page.
type UniPDFExtractor struct{}

func (UniPDFExtractor) ExtractPages(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	pdfReader, err := model.NewPdfReader(f)
	if err != nil {
		return nil, err
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, err
	}

	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return nil, err
		}

		ex, err := extractor.New(page)
		if err != nil {
			return nil, err
		}

		text, err := ex.ExtractText()
		if err != nil {
			return nil, err
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// PlainPDFExtractor reads page text with github.com/ledongthuc/pdf.
type PlainPDFExtractor struct{}

func (PlainPDFExtractor) ExtractPages(path string) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	numPages := r.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// DocumentLoader turns files on disk into langchaingo documents. PDFs yield
// one document per page; text and markdown files yield a single document.
type DocumentLoader struct {
	pdf PageExtractor
}

func NewDocumentLoader(pdfExtractor PageExtractor) *DocumentLoader {
	return &DocumentLoader{pdf: pdfExtractor}
}

// LoadFile reads a file and returns its documents. Unsupported extensions are
// an error.
func (l *DocumentLoader) LoadFile(path string) ([]schema.Document, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".txt", ".md":
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		return []schema.Document{{
			PageContent: string(content),
			Metadata:    map[string]any{"source": path, "file_type": ext},
		}}, nil
	case ".pdf":
		pages, err := l.pdf.ExtractPages(path)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from %s: %w", path, err)
		}
		docs := make([]schema.Document, 0, len(pages))
		for i, text := range pages {
			docs = append(docs, schema.Document{
				PageContent: text,
				Metadata: map[string]any{
					"source":      path,
					"page":        i,
					"total_pages": len(pages),
					"file_type":   ext,
				},
			})
		}
		return docs, nil
	default:
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}
}

// LoadDirectory walks dir in lexical order and loads every supported file.
func (l *DocumentLoader) LoadDirectory(dir string) ([]schema.Document, error) {
	var docs []schema.Document
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isSupportedFile(path) {
			return nil
		}
		fileDocs, err := l.LoadFile(path)
		if err != nil {
			return err
		}
		docs = append(docs, fileDocs...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// FilterToMinimalDocs keeps only the source metadata of each document.
func FilterToMinimalDocs(docs []schema.Document) []schema.Document {
	minimal := make([]schema.Document, len(docs))
	for i, doc := range docs {
		meta := map[string]any{}
		if src, ok := doc.Metadata["source"]; ok {
			meta["source"] = src
		}
		minimal[i] = schema.Document{PageContent: doc.PageContent, Metadata: meta}
	}
	return minimal
}

func isSupportedFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".pdf", ".txt", ".md":
		return true
	default:
		return false
	}
}
