package amqp

import (
	"encoding/json"
	"time"
)

// DatasetChangedMessage announces a committed write of the whole dataset.
// It carries no rows: consumers read the dataset back from the store.
type DatasetChangedMessage struct {
	Operation string    `json:"operation"`
	Rows      int       `json:"rows"`
	Version   int64     `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewDatasetChangedMessage(operation string, rows int, version int64) *DatasetChangedMessage {
	return &DatasetChangedMessage{
		Operation: operation,
		Rows:      rows,
		Version:   version,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *DatasetChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func DatasetChangedMessageFromJSON(data []byte) (*DatasetChangedMessage, error) {
	var msg DatasetChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
