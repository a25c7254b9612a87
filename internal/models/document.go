package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// IntakeDocument is a record inserted into the upstream intake collection.
// The watcher consumes these via the store's change feed and enqueues one
// submission job per document. ID doubles as the job's correlation key.
type IntakeDocument struct {
	ID        string                 `json:"id"`
	Company   string                 `json:"company"` // Routing discriminator: which portal handles this record
	FormData  map[string]interface{} `json:"form_data"`
	CreatedAt time.Time              `json:"created_at"`
}

// Validate validates an intake document before it is accepted for routing
func (d *IntakeDocument) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("intake document ID is required")
	}
	if d.Company == "" {
		return fmt.Errorf("intake document company is required")
	}
	return nil
}

// ToJSON serializes the document for storage
func (d *IntakeDocument) ToJSON() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal intake document: %w", err)
	}
	return data, nil
}

// IntakeDocumentFromJSON deserializes a document from its stored form
func IntakeDocumentFromJSON(data []byte) (*IntakeDocument, error) {
	var doc IntakeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal intake document: %w", err)
	}
	return &doc, nil
}
