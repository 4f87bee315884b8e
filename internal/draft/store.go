// Package draft implements the single-slot local draft store used for
// anonymous documents.
package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/starford/contextpad/internal/apperr"
	"github.com/starford/contextpad/internal/models"
)

// SlotKey names the one draft slot.
const SlotKey = "contextpad.draft"

// Store is a single-slot document store. Save overwrites any prior draft.
type Store interface {
	// Save writes doc into the slot. Quota and serialization failures wrap
	// apperr.ErrStorage.
	Save(ctx context.Context, doc models.Document) error
	// Load returns the stored draft or apperr.ErrNotFound when the slot is empty.
	Load(ctx context.Context) (*models.Document, error)
	// Clear empties the slot. Clearing an empty slot is not an error.
	Clear(ctx context.Context) error
}

// encode serializes doc and enforces maxBytes when positive.
func encode(doc models.Document, maxBytes int64) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("draft: encode: %w: %v", apperr.ErrStorage, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("draft: %d bytes exceeds quota of %d: %w", len(data), maxBytes, apperr.ErrStorage)
	}
	return data, nil
}

func decode(data []byte) (*models.Document, error) {
	doc, err := models.DecodeDocument(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("draft: decode: %w", err)
	}
	return doc, nil
}
