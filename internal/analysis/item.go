package analysis

import (
	"time"

	"github.com/google/uuid"

	"github.com/baloghm/meterbill/constants"
)

// Assignment tags an item with the tenant and meter it bills against.
// It is owned by, and lives and dies with, the item.
type Assignment struct {
	TenantID  string `json:"tenantId"`
	MeterName string `json:"meterName"`
}

// Assigned reports whether the item is bound to a tenant.
func (a Assignment) Assigned() bool { return a.TenantID != "" }

// Item is one uploaded meter photo and everything derived from it.
type Item struct {
	ID           string               `json:"id"`
	FileName     string               `json:"fileName"`
	ImageData    []byte               `json:"-"`
	ThumbnailB64 string               `json:"thumbnail,omitempty"`
	Status       constants.ItemStatus `json:"status"`
	Result       *Result              `json:"result,omitempty"`
	ErrorMessage string               `json:"errorMessage,omitempty"`
	Assignment   Assignment           `json:"assignment"`
	Shared       bool                 `json:"shared,omitempty"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// NewItem creates an idle item for a freshly uploaded photo.
func NewItem(fileName string, imageData []byte, thumbnailB64 string) *Item {
	return &Item{
		ID:           uuid.New().String(),
		FileName:     fileName,
		ImageData:    imageData,
		ThumbnailB64: thumbnailB64,
		Status:       constants.ItemStatusIdle,
		CreatedAt:    time.Now().UTC(),
	}
}

// clone returns a copy safe to hand outside the store's lock. ImageData is
// shared read-only; Result is copied by value so callers cannot mutate the
// stored one.
func (it *Item) clone() *Item {
	cp := *it
	if it.Result != nil {
		r := *it.Result
		cp.Result = &r
	}
	return &cp
}
