package entities

import "strings"

// Tag is a user-defined label. Names are unique per user, ignoring case.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Book is a collection entry as returned by the backend.
type Book struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Author    string `json:"author,omitempty"`
	ISBN13    string `json:"isbn13"`
	ISBN10    string `json:"isbn10"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Tags      []Tag  `json:"tags"`
}

// Key returns the identity used to match a book across the local mirror: the
// server id when present, otherwise the ISBN-13. Keys are prefixed so a server
// id can never collide with an ISBN.
func (b Book) Key() string {
	if b.ID != "" {
		return "id:" + b.ID
	}
	return "isbn:" + b.ISBN13
}

// TagNames returns the book's tag names in their stored order.
func (b Book) TagNames() []string {
	names := make([]string, 0, len(b.Tags))
	for _, t := range b.Tags {
		names = append(names, t.Name)
	}
	return names
}

// Clone returns a deep copy so snapshots are not affected by later edits.
func (b Book) Clone() Book {
	c := b
	if b.Tags != nil {
		c.Tags = make([]Tag, len(b.Tags))
		copy(c.Tags, b.Tags)
	}
	return c
}

// SameBook reports whether a and b denote the same collection entry. Server
// ids win when both sides carry one; otherwise the ISBN-13 is compared.
func SameBook(a, b Book) bool {
	if a.ID != "" && b.ID != "" {
		return a.ID == b.ID
	}
	return a.ISBN13 != "" && a.ISBN13 == b.ISBN13
}

// SameTagName compares tag names case-insensitively.
func SameTagName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// FindTagByName returns the tag whose name matches name ignoring case.
func FindTagByName(tags []Tag, name string) (Tag, bool) {
	for _, t := range tags {
		if SameTagName(t.Name, name) {
			return t, true
		}
	}
	return Tag{}, false
}

// NewBook is the payload for creating a book manually (no barcode lookup).
type NewBook struct {
	Title       string `json:"title"`
	ISBN        string `json:"isbn,omitempty"`
	Author      string `json:"author,omitempty"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}
