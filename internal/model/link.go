package model

import (
	"encoding/json"
	"fmt"
)

// Category is the auto-assigned (and user-editable) tag of a link.
type Category string

const (
	CategoryMusic     Category = "music"
	CategoryYouTube   Category = "youtube"
	CategoryNews      Category = "news"
	CategorySNS       Category = "sns"
	CategoryShopping  Category = "shopping"
	CategoryCommunity Category = "community"
	CategoryWeb       Category = "web"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryYouTube,
	CategoryMusic,
	CategoryNews,
	CategorySNS,
	CategoryShopping,
	CategoryCommunity,
	CategoryWeb,
}

// ParseCategory validates a category tag.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// LinkType distinguishes video links from generic web pages.
type LinkType string

const (
	TypeWeb     LinkType = "web"
	TypeYouTube LinkType = "youtube"
)

// Wire field names of a link record.
const (
	FieldURL        = "url"
	FieldCategory   = "category"
	FieldType       = "type"
	FieldTimestamp  = "timestamp"
	FieldIsFavorite = "isFavorite"
	FieldIsRead     = "isRead"
	FieldFolderID   = "folderId"
	FieldTitle      = "title"
	FieldDesc       = "desc"
	FieldImage      = "image"
	FieldVideoID    = "videoId"
	FieldPublisher  = "publisher"
)

// Link is one saved URL.
type Link struct {
	Key        string   `json:"-"`
	URL        string   `json:"url"`
	Category   Category `json:"category"`
	Type       LinkType `json:"type"`
	Timestamp  int64    `json:"timestamp"` // unix millis
	IsFavorite bool     `json:"isFavorite"`
	IsRead     bool     `json:"isRead"`
	FolderID   *string  `json:"folderId,omitempty"` // nil = unclassified

	Title     string `json:"title,omitempty"`
	Desc      string `json:"desc,omitempty"`
	Image     string `json:"image,omitempty"`
	VideoID   string `json:"videoId,omitempty"`
	Publisher string `json:"publisher,omitempty"`
}

// InFolder reports whether the link belongs to the given folder.
func (l Link) InFolder(folderKey string) bool {
	return l.FolderID != nil && *l.FolderID == folderKey
}

// Unclassified reports whether the link has no folder.
func (l Link) Unclassified() bool {
	return l.FolderID == nil || *l.FolderID == ""
}

// Fields returns the record as a field map for a create write.
// Empty optional fields are left out.
func (l Link) Fields() map[string]any {
	fields := map[string]any{
		FieldURL:        l.URL,
		FieldCategory:   string(l.Category),
		FieldType:       string(l.Type),
		FieldTimestamp:  l.Timestamp,
		FieldIsFavorite: l.IsFavorite,
		FieldIsRead:     l.IsRead,
	}
	if l.FolderID != nil {
		fields[FieldFolderID] = *l.FolderID
	}
	optional := map[string]string{
		FieldTitle:     l.Title,
		FieldDesc:      l.Desc,
		FieldImage:     l.Image,
		FieldVideoID:   l.VideoID,
		FieldPublisher: l.Publisher,
	}
	for k, v := range optional {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

// DecodeLink builds a Link from a stored field map, applying defaults for
// anything legacy records may lack.
func DecodeLink(key string, fields map[string]json.RawMessage) (Link, error) {
	var l Link
	if err := decodeFields(fields, &l); err != nil {
		return Link{}, fmt.Errorf("decode link %s: %w", key, err)
	}
	l.Key = key
	if l.Category == "" {
		l.Category = CategoryWeb
	}
	if l.Type == "" {
		l.Type = TypeWeb
	}
	if l.FolderID != nil && *l.FolderID == "" {
		l.FolderID = nil
	}
	return l, nil
}

// decodeFields round-trips a field map through a JSON object into dst.
func decodeFields(fields map[string]json.RawMessage, dst any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
