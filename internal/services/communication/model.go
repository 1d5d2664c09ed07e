package communication

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/l0p7/gatewaycache/internal/cache"
)

// Type is the channel a communication is shown on.
type Type string

const (
	Banner Type = "Banner"
	Email  Type = "Email"
	InApp  Type = "InApp"
	Mobile Type = "Mobile"
)

// CachedTypes lists the communication types that have an active slot in the cache.
func CachedTypes() []Type {
	return []Type{Banner, InApp, Mobile}
}

// Status is the publication status of a communication.
type Status string

const (
	StatusNew        Status = "New"
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusProcessed  Status = "Processed"
	StatusError      Status = "Error"
	StatusDraft      Status = "Draft"
)

// Change actions carried by a ChangeEvent.
const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// Communication is a banner, in-app or mobile message.
type Communication struct {
	ID                      uuid.UUID `json:"id"`
	Subject                 string    `json:"subject,omitempty"`
	Text                    string    `json:"text"`
	CommunicationTypeCode   Type      `json:"communicationTypeCode"`
	CommunicationStatusCode Status    `json:"communicationStatusCode"`
	Priority                int       `json:"priority,omitempty"`
	EffectiveDateTime       time.Time `json:"effectiveDateTime"`
	ExpiryDateTime          time.Time `json:"expiryDateTime"`
	CreatedBy               string    `json:"createdBy,omitempty"`
	CreatedDateTime         time.Time `json:"createdDateTime,omitzero"`
	UpdatedBy               string    `json:"updatedBy,omitempty"`
	UpdatedDateTime         time.Time `json:"updatedDateTime,omitzero"`
	Version                 uint32    `json:"version,omitempty"`
}

// ChangeEvent reports an insert, update or delete of a communication.
type ChangeEvent struct {
	Action string         `json:"action"`
	Data   *Communication `json:"data"`
}

// ErrUnsupportedCommunicationType is returned for communication types that
// have no cache slot.
var ErrUnsupportedCommunicationType = errors.New("communication: unsupported communication type")

// CacheKey returns the cache slot for t. Only Banner, InApp and Mobile are
// cached; anything else fails with ErrUnsupportedCommunicationType.
func CacheKey(t Type) (string, error) {
	switch t {
	case Banner, InApp, Mobile:
		return cache.Key(cache.DomainCommunication, string(t)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCommunicationType, t)
	}
}

// StoreStatus is the outcome of a communication store query.
type StoreStatus int

const (
	StoreRead StoreStatus = iota
	StoreNotFound
	StoreError
)

func (s StoreStatus) String() string {
	switch s {
	case StoreRead:
		return "read"
	case StoreNotFound:
		return "not_found"
	default:
		return "error"
	}
}

// StoreResult carries the next communication, or why none was returned.
type StoreResult struct {
	Status  StoreStatus
	Payload *Communication
	Message string
}

// Store reads communications from the database.
type Store interface {
	// GetNext returns the active or next scheduled communication of type t.
	GetNext(ctx context.Context, t Type) StoreResult
}
