// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package reader

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	requestutil "github.com/tankobonhq/tankobon/internal/platform/request"
	"github.com/tankobonhq/tankobon/internal/platform/respond"
	"github.com/tankobonhq/tankobon/internal/platform/sec"
)

// # Handler Implementation

// Handler implements the HTTP layer for chapter reading.
type Handler struct {
	service *Service
}

// NewHandler constructs a new reader [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register attaches the read endpoint onto the shared /series router.
func (handler *Handler) Register(router chi.Router) {
	router.Get("/{series}/{nick}/chapters/{chapterNo}", handler.getChapter)
}

/*
GET /api/v1/series/{series}/{nick}/chapters/{chapterNo}.

Description: Returns the series summary and the chapter's ordered page
URLs. Private content at any level returns 403 for non-staff callers and
200 for staff, over identical underlying data.

Response:
  - 200: ChapterView: {series_details, pages[]}
  - 403: 403: ErrForbidden: Private content, non-staff caller
  - 404: 404: ErrNotFound: Unknown series/chapter or zero pages
*/
func (handler *Handler) getChapter(writer http.ResponseWriter, request *http.Request) {
	claims := requestutil.Claims(request)
	viewerIsStaff := claims != nil && sec.UserRole(claims.Role).AtLeast(sec.RoleStaff)

	view, err := handler.service.GetChapter(
		request.Context(),
		requestutil.ID(request, "series"),
		requestutil.Param(request, "nick"),
		requestutil.Param(request, "chapterNo"),
		viewerIsStaff,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, view)
}
