// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

/*
HTTP interface for catalog discovery and management.

# Routing Strategy

  - Public: browsing, series details, the latest-releases feed, and the
    engagement stats endpoints.
  - Restricted: series creation and the field-map edit endpoints require
    the staff role.

The handler translates between the web/JSON layer and the internal domain [Service].
*/
package series

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tankobonhq/tankobon/internal/platform/middleware"
	requestutil "github.com/tankobonhq/tankobon/internal/platform/request"
	"github.com/tankobonhq/tankobon/internal/platform/respond"
	"github.com/tankobonhq/tankobon/internal/platform/sec"
	"github.com/tankobonhq/tankobon/pkg/pagination"
)

// # Handler Implementation

// Handler implements the HTTP layer for catalog management and discovery.
type Handler struct {
	service *Service
}

// NewHandler constructs a new series [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register attaches the catalog endpoints onto the shared /series router.
// The ingest and reader handlers register their own routes alongside.
func (handler *Handler) Register(router chi.Router) {

	// ## Public Discovery Endpoints
	router.Get("/", handler.listSeries)
	router.Get("/latest", handler.latestReleases)
	router.Get("/{series}/{nick}", handler.getDetails)
	router.Get("/{series}/stats", handler.getStats)
	router.Post("/{series}/stats", handler.addStats)

	// ## Catalog Management (Staff Protected)
	router.Group(func(staff chi.Router) {
		staff.Use(middleware.RequireRole(sec.RoleStaff))

		staff.Post("/", handler.createSeries)
		staff.Put("/{series}", handler.editSeries)
		staff.Put("/{series}/chapters/{chapterNo}", handler.editChapter)
	})
}

// viewerIsStaff reports whether the request carries a staff-or-above token.
func viewerIsStaff(request *http.Request) bool {
	claims := requestutil.Claims(request)
	return claims != nil && sec.UserRole(claims.Role).AtLeast(sec.RoleStaff)
}

// # Discovery Endpoints

/*
GET /api/v1/series.

Description: Retrieves a paginated catalog listing. Staff callers see
private series; everyone else gets the public subset.

Request:
  - limit: int
  - page: int

Response:
  - 200: []Series: Paginated catalog page
*/
func (handler *Handler) listSeries(writer http.ResponseWriter, request *http.Request) {
	paginationParams := pagination.FromRequest(request)

	items, total, err := handler.service.ListSeries(
		request.Context(),
		viewerIsStaff(request),
		paginationParams.Limit,
		paginationParams.Offset(),
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, items, pagination.NewMeta(paginationParams.Page, paginationParams.Limit, total))
}

/*
GET /api/v1/series/latest.

Description: Returns the 10 most recently released chapters across the
catalog. Private rows are excluded for non-staff callers.

Response:
  - 200: []Release: Newest-first feed
*/
func (handler *Handler) latestReleases(writer http.ResponseWriter, request *http.Request) {
	releases, err := handler.service.LatestReleases(request.Context(), 10, viewerIsStaff(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, releases)
}

// detailsResponse is the combined payload of the series detail endpoint.
type detailsResponse struct {
	Series   *Series    `json:"series"`
	Releases []*Release `json:"releases"`
}

/*
GET /api/v1/series/{series}/{nick}.

Description: Returns one series with its visibility-filtered chapter list
and release history. Either public identifier resolves the series; the nick
segment is kept for URL compatibility.

Response:
  - 200: detailsResponse
  - 403: 403: ErrForbidden: Private series, non-staff caller
  - 404: 404: ErrNotFound: Unknown series
*/
func (handler *Handler) getDetails(writer http.ResponseWriter, request *http.Request) {
	identifier := requestutil.ID(request, "series")

	entity, releases, err := handler.service.GetDetails(request.Context(), identifier, viewerIsStaff(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, detailsResponse{Series: entity, Releases: releases})
}

// # Management Endpoints

// createSeriesRequest defines the inbound JSON schema for series creation.
type createSeriesRequest struct {
	Title       string     `json:"title"`
	Nick        string     `json:"nick"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Thumbnail   string     `json:"thumbnail"`
	Genre       []string   `json:"genre"`
	Author      string     `json:"author"`
	ReleaseDate string     `json:"release_date"`
	AniListID   string     `json:"anilist_id"`
	MALID       string     `json:"mal_id"`
	Visibility  Visibility `json:"visibility"`
}

/*
POST /api/v1/series.

Description: Creates a new series. The nick slug is derived from the title
when omitted; duplicate titles are rejected.

Request (Body):
  - createSeriesRequest: JSON object

Response:
  - 201: Series: Created series
  - 400: 400: ErrInvalidJSON/Validation: Invalid input data
  - 403: 403: ErrForbidden: Insufficient permissions
  - 409: 409: ErrConflict: Duplicate title or nick
*/
func (handler *Handler) createSeries(writer http.ResponseWriter, request *http.Request) {
	var input createSeriesRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	entity := &Series{
		Title:       input.Title,
		Nick:        input.Nick,
		Description: input.Description,
		Status:      input.Status,
		Thumbnail:   input.Thumbnail,
		Genre:       input.Genre,
		Author:      input.Author,
		ReleaseDate: input.ReleaseDate,
		AniListID:   input.AniListID,
		MALID:       input.MALID,
		Visibility:  input.Visibility,
	}

	if err := handler.service.CreateSeries(request.Context(), entity); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, entity)
}

/*
PUT /api/v1/series/{series}.

Description: Applies a field-map patch of the form
{"title": {"updated": "New Title"}}. Unknown fields are rejected.

Response:
  - 200: Series: The refreshed series
  - 400: 400: Validation: Non-editable field or bad enum value
  - 404: 404: ErrNotFound: Unknown series
*/
func (handler *Handler) editSeries(writer http.ResponseWriter, request *http.Request) {
	identifier := requestutil.ID(request, "series")

	var patch map[string]FieldPatch
	if err := requestutil.DecodeJSON(request, &patch); err != nil {
		respond.Error(writer, request, err)
		return
	}

	entity, err := handler.service.EditSeries(request.Context(), identifier, patch)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, entity)
}

/*
PUT /api/v1/series/{series}/chapters/{chapterNo}.

Description: Applies a field-map patch to one chapter and purges its cached
read view.

Response:
  - 200: Chapter: The refreshed chapter
  - 400: 400: Validation: Non-editable field or bad value type
  - 404: 404: ErrNotFound: Unknown series or chapter
*/
func (handler *Handler) editChapter(writer http.ResponseWriter, request *http.Request) {
	identifier := requestutil.ID(request, "series")
	chapterNo := requestutil.Param(request, "chapterNo")

	var patch map[string]FieldPatch
	if err := requestutil.DecodeJSON(request, &patch); err != nil {
		respond.Error(writer, request, err)
		return
	}

	chapter, err := handler.service.EditChapter(request.Context(), identifier, chapterNo, patch)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, chapter)
}

// # Stats Endpoints

// statsRequest carries engagement counter deltas from the reader frontend.
type statsRequest struct {
	Views int64 `json:"views"`
	Likes int64 `json:"likes"`
}

/*
POST /api/v1/series/{series}/stats.

Description: Increments the view/like counters. Called by the reader
frontend on chapter open and on like toggles.

Response:
  - 204: No Content
  - 400: 400: Validation: Negative delta
  - 404: 404: ErrNotFound: Unknown series
*/
func (handler *Handler) addStats(writer http.ResponseWriter, request *http.Request) {
	identifier := requestutil.ID(request, "series")

	var input statsRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.AddStats(request.Context(), identifier, input.Views, input.Likes); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
GET /api/v1/series/{series}/stats.

Response:
  - 200: Stats: Current counters
  - 404: 404: ErrNotFound: Unknown series
*/
func (handler *Handler) getStats(writer http.ResponseWriter, request *http.Request) {
	identifier := requestutil.ID(request, "series")

	stats, err := handler.service.GetStats(request.Context(), identifier)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, stats)
}
