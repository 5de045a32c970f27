package amqp

import (
	"encoding/json"
	"time"
)

// ObjectFinalizedMessage announces a newly uploaded blob. It mirrors the
// payload a storage bucket notification carries: bucket, object path and
// declared content type.
type ObjectFinalizedMessage struct {
	Bucket      string    `json:"bucket"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewObjectFinalizedMessage(bucket, name, contentType string) *ObjectFinalizedMessage {
	return &ObjectFinalizedMessage{
		Bucket:      bucket,
		Name:        name,
		ContentType: contentType,
		Timestamp:   time.Now(),
	}
}

// ExpenseSnapshot is the last observed state of a deleted expense record,
// carried on the delete message so cleanup does not depend on the (already
// removed) row. IsProcessed is the deprecated workflow-state shape kept for
// messages published by old producers.
type ExpenseSnapshot struct {
	UserID           string `json:"userId,omitempty"`
	OriginalImageURL string `json:"originalImageUrl"`
	ThumbnailURL     string `json:"thumbnailUrl,omitempty"`
	Status           string `json:"status,omitempty"`
	IsProcessed      *bool  `json:"isProcessed,omitempty"`
}

// ExpenseDeletedMessage announces a deleted expense record.
type ExpenseDeletedMessage struct {
	ExpenseID string           `json:"expenseId"`
	Snapshot  *ExpenseSnapshot `json:"snapshot,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func NewExpenseDeletedMessage(expenseID string, snapshot *ExpenseSnapshot) *ExpenseDeletedMessage {
	return &ExpenseDeletedMessage{
		ExpenseID: expenseID,
		Snapshot:  snapshot,
		Timestamp: time.Now(),
	}
}

func (m *ObjectFinalizedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ObjectFinalizedMessageFromJSON(data []byte) (*ObjectFinalizedMessage, error) {
	var msg ObjectFinalizedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (m *ExpenseDeletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpenseDeletedMessageFromJSON(data []byte) (*ExpenseDeletedMessage, error) {
	var msg ExpenseDeletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
