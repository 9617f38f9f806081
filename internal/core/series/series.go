// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

/*
Package series defines the core catalog entities for the Tankobon platform.

It manages the lifecycle of serialised publications and their chapters,
plus the denormalized release feed that powers the "latest updates" view.

Core Responsibility:

  - Catalog: Series metadata, per-chapter rows, and visibility flags.
  - Feed: Release rows upserted once per chapter-completion event.
  - Counters: Monotonic chapter counters advanced only on completion.

This package acts as the source of truth for all content-related data models.
*/
package series

import "time"

// # Domain Enums

// Visibility controls whether content is served to non-staff readers.
// It is settable independently at the series, chapter, and release level;
// the read path checks all three.
type Visibility string

const (
	// VisibilityPublic content is served to everyone.
	VisibilityPublic Visibility = "public"

	// VisibilityPrivate content is served only to staff-authorized callers.
	VisibilityPrivate Visibility = "private"
)

// IsValid reports whether v is a recognised [Visibility] value.
func (v Visibility) IsValid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Status represents the publication status of a series.
type Status string

const (
	// StatusOngoing indicates the publication is actively updating.
	StatusOngoing Status = "ongoing"

	// StatusCompleted indicates no further chapters are expected.
	StatusCompleted Status = "completed"

	// StatusHiatus indicates the publication is paused indefinitely.
	StatusHiatus Status = "hiatus"

	// StatusDropped indicates the publication has been discontinued.
	StatusDropped Status = "dropped"
)

// IsValid reports whether s is a recognised [Status] value.
func (s Status) IsValid() bool {
	switch s {
	case StatusOngoing, StatusCompleted, StatusHiatus, StatusDropped:
		return true
	}
	return false
}

// # Core Entities

// Series is the central aggregate of the Tankobon catalog.
//
// It carries two public identifiers: UID, a generated 5-digit numeric code
// used in reader URLs, and Nick, the storage-path slug compared
// case-insensitively. The internal UUID primary key never leaves the API.
type Series struct {
	ID          string   `json:"-"`
	UID         string   `json:"id"`   // 5-digit public code
	Nick        string   `json:"nick"` // storage-path slug, case-insensitive unique
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      Status   `json:"status"`
	Thumbnail   string   `json:"thumbnail"`
	Genre       []string `json:"genre,omitempty"`
	Author      string   `json:"author"`
	ReleaseDate string   `json:"release_date,omitempty"`

	// External catalog references
	AniListID string `json:"anilist_id,omitempty"`
	MALID     string `json:"mal_id,omitempty"`

	Visibility Visibility `json:"visibility"`

	// # Completion Counters
	// Both advance monotonically and only when a chapter completes.
	ChapterCount        int `json:"chapter_count"`
	MaxChaptersUploaded int `json:"max_chapters_uploaded"`

	// # Engagement Stats
	ViewCount int64 `json:"view_count"`
	LikeCount int64 `json:"like_count"`

	// Chapters is hydrated only on detail reads, visibility-filtered.
	Chapters []*Chapter `json:"chapters,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Chapter is one numbered installment of a [Series].
//
// ChapterNo is an opaque string key: lookups match it by exact equality,
// and a numeric value is extracted only for counter advancement and
// filename ordering. At most one row exists per (series, chapter_no).
type Chapter struct {
	ID         string     `json:"-"`
	SeriesID   string     `json:"-"`
	ChapterNo  string     `json:"chapter_no"`
	Name       string     `json:"name"`
	IsComplete bool       `json:"is_complete"`
	PageCount  int        `json:"page_count"`
	Thumbnail  string     `json:"thumbnail"` // URL of page 1
	Visibility Visibility `json:"visibility"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Release is the denormalized feed projection of "this chapter became
// available". Exactly one row exists per (series, chapter_no); repeated
// completion signals update the existing row in place.
type Release struct {
	ID          string     `json:"-"`
	SeriesID    string     `json:"-"`
	SeriesUID   string     `json:"series_id"`
	SeriesTitle string     `json:"title"`
	Nick        string     `json:"nick"`
	ChapterNo   string     `json:"chapter_no"`
	// PreviousChapter is chapterNo−1 for numeric chapter numbers above 1,
	// nil for the first chapter and for non-numeric keys.
	PreviousChapter *string    `json:"previous_chapter"`
	Thumbnail       string     `json:"thumbnail"`
	PageCount       int        `json:"page_count"`
	IsComplete      bool       `json:"is_complete"`
	Visibility      Visibility `json:"visibility"`
	ReleasedAt      time.Time  `json:"released_at"`
}

// Stats is the engagement counter pair returned by the stats endpoints.
type Stats struct {
	ViewCount int64 `json:"view_count"`
	LikeCount int64 `json:"like_count"`
}

// # Field Identifiers

// Global field names for validation and the field-map edit endpoints.
const (
	FieldUID         = "id"
	FieldNick        = "nick"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldStatus      = "status"
	FieldThumbnail   = "thumbnail"
	FieldGenre       = "genre"
	FieldAuthor      = "author"
	FieldReleaseDate = "release_date"
	FieldAniListID   = "anilist_id"
	FieldMALID       = "mal_id"
	FieldVisibility  = "visibility"
)

// Field identifiers for the [Chapter] entity.
const (
	FieldChapterNo   = "chapter_no"
	FieldChapterName = "name"
	FieldPageCount   = "page_count"
	FieldIsComplete  = "is_complete"
)
