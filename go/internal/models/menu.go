package models

import (
	"time"

	"github.com/google/uuid"
)

// MenuKind defines how a menu contributes steps to a display's rotation.
type MenuKind string

const (
	// MenuKindCustom is a text/custom layout and always occupies one step.
	MenuKindCustom MenuKind = "custom"
	// MenuKindImageSet occupies one step per image.
	MenuKindImageSet MenuKind = "image-set"
)

// ImageRef points at an uploaded image. Storage is handled elsewhere.
type ImageRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Menu represents a content group shown on displays.
type Menu struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Kind      MenuKind   `json:"kind"`
	Images    []ImageRef `json:"images,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
