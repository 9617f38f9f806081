// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package series

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tankobonhq/tankobon/internal/platform/apperr"
	"github.com/tankobonhq/tankobon/internal/platform/validate"
	"github.com/tankobonhq/tankobon/pkg/slug"
	"github.com/tankobonhq/tankobon/pkg/uid"
	"github.com/tankobonhq/tankobon/pkg/uuidv7"
)

// # Service Layer

// CacheInvalidator purges cached chapter views after catalog edits.
// The reader cache satisfies this; a nil invalidator disables purging.
type CacheInvalidator interface {
	InvalidateChapter(ctx context.Context, nick, chapterNo string)
}

// FieldPatch is one entry of the field-map edit payload:
// {"title": {"updated": "New Title"}}.
type FieldPatch struct {
	Updated any `json:"updated"`
}

// Service orchestrates the business logic for the series catalog.
type Service struct {
	repo     Repository
	releases ReleaseRepository
	cache    CacheInvalidator
	logger   *slog.Logger
}

// NewService constructs a new [Service] with its required repositories.
func NewService(repo Repository, releases ReleaseRepository, cache CacheInvalidator, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		releases: releases,
		cache:    cache,
		logger:   logger,
	}
}

// # Series Lookups

/*
Resolve fetches a series by either of its public identifiers.

Description: 5-digit numeric codes resolve via the UID index; anything else
resolves via the case-insensitive nick slug.

Parameters:
  - context: context.Context
  - identifier: string (UID or nick)

Returns:
  - *Series: The hydrated entity, chapters not included
  - error: apperr.NotFound if no match is found
*/
func (service *Service) Resolve(context context.Context, identifier string) (*Series, error) {
	if uid.Valid(identifier) {
		return service.repo.FindByUID(context, identifier)
	}

	return service.repo.FindByNick(context, identifier)
}

/*
GetDetails returns one series with its chapters and release history.

Description: Visibility is enforced at both the series and chapter level.
A private series is a hard 403 for non-staff; for a public series, private
chapters and releases are silently filtered from the response.

Parameters:
  - context: context.Context
  - identifier: string (UID or nick)
  - viewerIsStaff: bool

Returns:
  - *Series: Entity with Chapters hydrated
  - []*Release: The series' feed rows, newest first
  - error: apperr.NotFound / apperr.Forbidden
*/
func (service *Service) GetDetails(context context.Context, identifier string, viewerIsStaff bool) (*Series, []*Release, error) {
	entity, err := service.Resolve(context, identifier)
	if err != nil {
		return nil, nil, err
	}

	if entity.Visibility == VisibilityPrivate && !viewerIsStaff {
		return nil, nil, apperr.Forbidden("This series is not public")
	}

	chapters, err := service.repo.ListChapters(context, entity.ID, viewerIsStaff)
	if err != nil {
		return nil, nil, err
	}
	entity.Chapters = chapters

	releases, err := service.releases.ListBySeries(context, entity.ID, viewerIsStaff)
	if err != nil {
		return nil, nil, err
	}

	return entity, releases, nil
}

/*
ListSeries retrieves a paginated slice of the catalog.

Parameters:
  - context: context.Context
  - viewerIsStaff: bool (true includes private series)
  - limit, offset: int

Returns:
  - []*Series: Page of series
  - int: Total count after visibility filtering
  - error: Repository errors
*/
func (service *Service) ListSeries(context context.Context, viewerIsStaff bool, limit, offset int) ([]*Series, int, error) {
	return service.repo.List(context, viewerIsStaff, limit, offset)
}

/*
LatestReleases returns the recency feed.

Parameters:
  - context: context.Context
  - limit: int (10 for the public endpoint)
  - viewerIsStaff: bool (true includes private rows)

Returns:
  - []*Release: Newest-first feed entries
  - error: Repository errors
*/
func (service *Service) LatestReleases(context context.Context, limit int, viewerIsStaff bool) ([]*Release, error) {
	return service.releases.Latest(context, limit, viewerIsStaff)
}

// # Series Management

/*
CreateSeries initialises a new publication record.

Description: Validates the metadata, generates the UUIDv7 identity and the
5-digit public code, and derives the storage nick from the title when the
client omits one. Duplicate titles surface as 409 Conflict from the store.

Parameters:
  - context: context.Context
  - entity: *Series (Client-provided metadata)

Returns:
  - error: Validation, Conflict, or persistence errors
*/
func (service *Service) CreateSeries(context context.Context, entity *Series) error {
	validator := &validate.Validator{}
	validator.Required(FieldTitle, entity.Title).MaxLen(FieldTitle, entity.Title, 500)

	if entity.Status == "" {
		entity.Status = StatusOngoing
	}
	validator.OneOf(FieldStatus, string(entity.Status),
		string(StatusOngoing),
		string(StatusCompleted),
		string(StatusHiatus),
		string(StatusDropped),
	)

	if entity.Visibility == "" {
		entity.Visibility = VisibilityPublic
	}
	validator.OneOf(FieldVisibility, string(entity.Visibility),
		string(VisibilityPublic),
		string(VisibilityPrivate),
	)

	if entity.Nick == "" {
		entity.Nick = slug.From(entity.Title)
	}
	validator.Required(FieldNick, entity.Nick).Slug(FieldNick, strings.ToLower(entity.Nick))

	if err := validator.Err(); err != nil {
		return err
	}

	entity.ID = uuidv7.New()

	// The public code is random; regenerate on the rare collision.
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		entity.UID = uid.NewNumeric()

		err = service.repo.Create(context, entity)
		if err == nil {
			break
		}
		if ae := apperr.As(err); ae == nil || ae.Code != "CONFLICT" {
			return err
		}
	}
	if err != nil {
		return err
	}

	service.logger.Info("series_created",
		slog.String("series_uid", entity.UID),
		slog.String("nick", entity.Nick),
		slog.String("title", entity.Title),
	)

	return nil
}

// seriesEditColumns maps editable API field names to their columns.
// Nick is deliberately absent: changing it would orphan storage paths.
var seriesEditColumns = map[string]string{
	FieldTitle:       "title",
	FieldDescription: "description",
	FieldStatus:      "status",
	FieldThumbnail:   "thumbnail",
	FieldGenre:       "genre",
	FieldAuthor:      "author",
	FieldReleaseDate: "releasedate",
	FieldAniListID:   "anilistid",
	FieldMALID:       "malid",
	FieldVisibility:  "visibility",
}

/*
EditSeries applies a field-map patch to one series.

Description: The payload shape is {field: {"updated": value}}. Unknown
fields are rejected, and enum fields are validated before the write.

Parameters:
  - context: context.Context
  - identifier: string (UID or nick)
  - patch: map[string]FieldPatch

Returns:
  - *Series: The refreshed entity
  - error: Validation, NotFound, or persistence errors
*/
func (service *Service) EditSeries(context context.Context, identifier string, patch map[string]FieldPatch) (*Series, error) {
	entity, err := service.Resolve(context, identifier)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any, len(patch))
	validator := &validate.Validator{}

	for field, change := range patch {
		column, ok := seriesEditColumns[field]
		if !ok {
			validator.Custom(field, true, "field is not editable")
			continue
		}

		value := change.Updated
		switch field {
		case FieldStatus:
			text, _ := value.(string)
			validator.OneOf(FieldStatus, text,
				string(StatusOngoing), string(StatusCompleted),
				string(StatusHiatus), string(StatusDropped))
			value = text
		case FieldVisibility:
			text, _ := value.(string)
			validator.OneOf(FieldVisibility, text,
				string(VisibilityPublic), string(VisibilityPrivate))
			value = text
		case FieldGenre:
			value = toStringSlice(value)
		}

		fields[column] = value
	}

	if err := validator.Err(); err != nil {
		return nil, err
	}

	if err := service.repo.UpdateFields(context, entity.ID, fields); err != nil {
		return nil, err
	}

	service.logger.Info("series_edited",
		slog.String("series_uid", entity.UID),
		slog.Int("fields", len(fields)),
	)

	return service.repo.FindByUID(context, entity.UID)
}

// chapterEditColumns maps editable chapter field names to their columns.
var chapterEditColumns = map[string]string{
	FieldChapterName: "name",
	FieldThumbnail:   "thumbnail",
	FieldVisibility:  "visibility",
	FieldPageCount:   "pagecount",
	FieldIsComplete:  "iscomplete",
}

/*
EditChapter applies a field-map patch to one chapter and purges its cached
read view.

Parameters:
  - context: context.Context
  - identifier: string (Series UID or nick)
  - chapterNo: string (Opaque chapter key)
  - patch: map[string]FieldPatch

Returns:
  - *Chapter: The refreshed chapter row
  - error: Validation, NotFound, or persistence errors
*/
func (service *Service) EditChapter(context context.Context, identifier, chapterNo string, patch map[string]FieldPatch) (*Chapter, error) {
	entity, err := service.Resolve(context, identifier)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any, len(patch))
	validator := &validate.Validator{}

	for field, change := range patch {
		column, ok := chapterEditColumns[field]
		if !ok {
			validator.Custom(field, true, "field is not editable")
			continue
		}

		value := change.Updated
		switch field {
		case FieldVisibility:
			text, _ := value.(string)
			validator.OneOf(FieldVisibility, text,
				string(VisibilityPublic), string(VisibilityPrivate))
			value = text
		case FieldPageCount:
			// JSON numbers decode as float64
			number, ok := value.(float64)
			if !ok || number < 0 {
				validator.Custom(FieldPageCount, true, "must be a non-negative number")
				continue
			}
			value = int(number)
		case FieldIsComplete:
			flag, ok := value.(bool)
			if !ok {
				validator.Custom(FieldIsComplete, true, "must be a boolean")
				continue
			}
			value = flag
		}

		fields[column] = value
	}

	if err := validator.Err(); err != nil {
		return nil, err
	}

	if err := service.repo.UpdateChapterFields(context, entity.ID, chapterNo, fields); err != nil {
		return nil, err
	}

	// Edits must not be masked by the read-through cache.
	if service.cache != nil {
		service.cache.InvalidateChapter(context, entity.Nick, chapterNo)
	}

	service.logger.Info("chapter_edited",
		slog.String("series_uid", entity.UID),
		slog.String("chapter_no", chapterNo),
	)

	return service.repo.FindChapter(context, entity.ID, chapterNo)
}

// # Engagement Stats

/*
AddStats increments the engagement counters on one series.

Parameters:
  - context: context.Context
  - identifier: string (UID or nick)
  - views, likes: int64 (Non-negative deltas)

Returns:
  - error: Validation or repository errors
*/
func (service *Service) AddStats(context context.Context, identifier string, views, likes int64) error {
	if views < 0 || likes < 0 {
		return apperr.ValidationError("Stat deltas must be non-negative")
	}

	entity, err := service.Resolve(context, identifier)
	if err != nil {
		return err
	}

	return service.repo.AddStats(context, entity.ID, views, likes)
}

/*
GetStats returns the engagement counters for one series.

Parameters:
  - context: context.Context
  - identifier: string (UID or nick)

Returns:
  - *Stats: Current counters
  - error: NotFound or repository errors
*/
func (service *Service) GetStats(context context.Context, identifier string) (*Stats, error) {
	entity, err := service.Resolve(context, identifier)
	if err != nil {
		return nil, err
	}

	return &Stats{ViewCount: entity.ViewCount, LikeCount: entity.LikeCount}, nil
}

// # Internal Helpers

// toStringSlice coerces a decoded JSON array into []string, dropping
// non-string members.
func toStringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}

	result := make([]string, 0, len(items))
	for _, item := range items {
		if text, ok := item.(string); ok {
			result = append(result, text)
		}
	}
	return result
}
