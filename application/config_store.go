package application

import "context"

// ConfigRecord is a configuration entry kept by the remote config manager.
type ConfigRecord struct {
	ID      string `json:"ID,omitempty"`
	Topic   string `json:"Topic"`
	Message string `json:"Message"`
	Time    string `json:"Time,omitempty"`
}

type ConfigStore interface {
	List(ctx context.Context) ([]ConfigRecord, error)
	Save(ctx context.Context, record ConfigRecord) error
	Clear(ctx context.Context) error
}
