package persistence

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestRecord is one entry of the optional request log. Nothing reads it
// back while serving completions.
type RequestRecord struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ClientRequestID string          `gorm:"type:varchar(255);index" json:"client_request_id,omitempty"`
	Model           string          `gorm:"type:varchar(255);not null;index" json:"model"`
	CLIModel        string          `gorm:"type:varchar(255)" json:"cli_model,omitempty"`
	Status          RequestStatus   `gorm:"type:varchar(50);not null;index" json:"status"`
	ErrorKind       string          `gorm:"type:varchar(64)" json:"error_kind,omitempty"`
	ErrorMessage    string          `gorm:"type:text" json:"error_message,omitempty"`
	RequestData     json.RawMessage `gorm:"not null" json:"request_data"`
	ResponseData    json.RawMessage `json:"response_data,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Metrics *RequestMetrics `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"metrics,omitempty"`
}

// RequestStatus represents the outcome of a request
type RequestStatus string

const (
	RequestStatusCompleted RequestStatus = "completed"
	RequestStatusFailed    RequestStatus = "failed"
)

// RequestMetrics stores estimated usage and process timing for each request
type RequestMetrics struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID        uuid.UUID `gorm:"type:uuid;not null;uniqueIndex" json:"request_id"`
	PromptTokens     int       `gorm:"default:0" json:"prompt_tokens"`
	CompletionTokens int       `gorm:"default:0" json:"completion_tokens"`
	TotalTokens      int       `gorm:"default:0" json:"total_tokens"`
	LatencyMs        int64     `gorm:"default:0" json:"latency_ms"`
	ExitCode         int       `gorm:"default:0" json:"exit_code"`
	CreatedAt        time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// BeforeCreate hook for RequestRecord
func (r *RequestRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if len(r.ResponseData) == 0 {
		r.ResponseData = nil
	}
	return nil
}

// BeforeCreate hook for RequestMetrics
func (m *RequestMetrics) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for RequestRecord
func (RequestRecord) TableName() string {
	return "requests"
}

// TableName returns the table name for RequestMetrics
func (RequestMetrics) TableName() string {
	return "request_metrics"
}

// PersistenceEvent represents events that can be processed asynchronously
type PersistenceEvent[T any] struct {
	Type EventType `json:"type"`
	Data T         `json:"data"`
}

// EventType represents the type of persistence event
type EventType string

const (
	EventTypeRecordRequest EventType = "record_request"
)

// RecordRequestEvent carries a finished request and its metrics. Both rows are
// written together so readers never see a request without its metrics.
type RecordRequestEvent struct {
	RequestID       uuid.UUID       `json:"request_id"`
	ClientRequestID string          `json:"client_request_id,omitempty"`
	Model           string          `json:"model"`
	CLIModel        string          `json:"cli_model,omitempty"`
	Status          RequestStatus   `json:"status"`
	ErrorKind       string          `json:"error_kind,omitempty"`
	ErrorMessage    string          `json:"error_message,omitempty"`
	RequestData     json.RawMessage `json:"request_data"`
	ResponseData    json.RawMessage `json:"response_data,omitempty"`
	Metrics         RequestMetrics  `json:"metrics"`
}

// Record converts the event into the rows to insert
func (e RecordRequestEvent) Record() *RequestRecord {
	metrics := e.Metrics
	metrics.ID = uuid.Nil
	metrics.RequestID = e.RequestID

	return &RequestRecord{
		ID:              e.RequestID,
		ClientRequestID: e.ClientRequestID,
		Model:           e.Model,
		CLIModel:        e.CLIModel,
		Status:          e.Status,
		ErrorKind:       e.ErrorKind,
		ErrorMessage:    e.ErrorMessage,
		RequestData:     e.RequestData,
		ResponseData:    e.ResponseData,
		Metrics:         &metrics,
	}
}
