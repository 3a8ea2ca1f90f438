package export

import (
	"context"
	"fmt"
	"html/template"
)

// DataStore loads the document snapshot to export. Version is "latest"
// or a history commit hash.
type DataStore interface {
	GetExportDocument(ctx context.Context, documentID, version string) (DocumentInfo, error)
}

// Service provides document export functionality
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export renders the requested document version to PDF.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	version := req.Version
	if version == "" {
		version = "latest"
	}
	doc, err := s.store.GetExportDocument(ctx, req.DocumentID, version)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	html, err := RenderDocumentHTML(TemplateData{
		Name:        doc.Name,
		ContentHTML: template.HTML(doc.HTML),
		Author:      doc.Author,
		UpdatedAt:   doc.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return exportPDF(html, doc.Name)
}
