// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/tankobonhq/tankobon/internal/platform/request"
	"github.com/tankobonhq/tankobon/internal/platform/respond"
	"github.com/tankobonhq/tankobon/internal/platform/validate"
)

// Handler implements the HTTP layer for account management.
//
// All routes require an authenticated session; the router mounts them behind
// the RequireAuth middleware.
type Handler struct {
	accountService *Service
}

// NewHandler constructs a new account [Handler].
func NewHandler(service *Service) *Handler {
	return &Handler{accountService: service}
}

// Routes returns a [chi.Router] configured with the account domain's endpoints.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Account Management
	router.Get("/me", handler.getMe)
	router.Patch("/me", handler.updateMe)
	router.Delete("/me", handler.deleteMe)

	// Bookmarks
	router.Get("/me/bookmarks", handler.listBookmarks)
	router.Put("/me/bookmarks/{seriesId}", handler.saveBookmark)
	router.Delete("/me/bookmarks/{seriesId}", handler.removeBookmark)

	// Session Security
	router.Get("/me/sessions", handler.listSessions)
	router.Delete("/me/sessions/{id}", handler.revokeSession)

	return router
}

// # Profile Endpoints

/*
GET /api/v1/users/me.

Description: Retrieves the full private profile of the authenticated account.

Response:
  - 200: Account: Fully hydrated profile
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) getMe(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.accountService.GetProfile(request.Context(), accountID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, account)
}

// updateMeRequest defines the expected JSON payload for profile updates.
type updateMeRequest struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

/*
PATCH /api/v1/users/me.

Description: Applies partial updates to the authenticated account's profile.

Request:
  - body: updateMeRequest (Partial JSON)

Response:
  - 200: Account: The updated profile
  - 400: ErrInvalidJSON/Validation: Invalid input data
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) updateMe(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input updateMeRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	v := &validate.Validator{}
	if input.DisplayName != nil {
		v.MinLen("display_name", *input.DisplayName, 2).MaxLen("display_name", *input.DisplayName, 50)
	}
	if input.AvatarURL != nil {
		v.MaxLen("avatar_url", *input.AvatarURL, 512)
	}

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	account, err := handler.accountService.UpdateProfile(request.Context(), accountID, UpdateProfileInput{
		DisplayName: input.DisplayName,
		AvatarURL:   input.AvatarURL,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, account)
}

/*
DELETE /api/v1/users/me.

Description: Performs a soft-deletion of the authenticated account.

Response:
  - 204: No Content: Account deleted successfully
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) deleteMe(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.accountService.DeleteAccount(request.Context(), accountID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Bookmark Endpoints

/*
GET /api/v1/users/me/bookmarks.

Description: Lists the authenticated account's bookmarks, most recently
updated first.

Response:
  - 200: []Bookmark: Reading list with per-series progress
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) listBookmarks(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	bookmarks, err := handler.accountService.ListBookmarks(request.Context(), accountID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, bookmarks)
}

// saveBookmarkRequest carries a bookmark save; absent fields keep stored values.
type saveBookmarkRequest struct {
	Thumbnail     *string  `json:"thumbnail"`
	Rating        *int     `json:"rating"`
	LastRead      *string  `json:"last_read"`
	LikedChapters []string `json:"liked_chapters"`
}

/*
PUT /api/v1/users/me/bookmarks/{seriesId}.

Description: Creates or updates the bookmark for one series. Saving twice for
the same series updates the existing bookmark rather than adding a duplicate.

Request:
  - seriesId: string (public series code)
  - body: saveBookmarkRequest (Partial JSON)

Response:
  - 200: Bookmark: The persisted bookmark
  - 400: ErrInvalidJSON/Validation: Invalid input data
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) saveBookmark(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	seriesUID := chi.URLParam(request, "seriesId")

	var input saveBookmarkRequest
	if request.ContentLength > 0 {
		if err := requestutil.DecodeJSON(request, &input); err != nil {
			respond.Error(writer, request, err)
			return
		}
	}

	v := &validate.Validator{}
	v.Required("series_id", seriesUID)
	if input.Rating != nil {
		v.Range("rating", *input.Rating, 0, 10)
	}

	if err := v.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	bookmark, err := handler.accountService.SaveBookmark(request.Context(), accountID, SaveBookmarkInput{
		SeriesUID:     seriesUID,
		Thumbnail:     input.Thumbnail,
		Rating:        input.Rating,
		LastRead:      input.LastRead,
		LikedChapters: input.LikedChapters,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, bookmark)
}

/*
DELETE /api/v1/users/me/bookmarks/{seriesId}.

Description: Removes the bookmark for one series. Idempotent.

Response:
  - 204: No Content: Bookmark removed
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) removeBookmark(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	seriesUID := chi.URLParam(request, "seriesId")

	if err := handler.accountService.RemoveBookmark(request.Context(), accountID, seriesUID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Session Security Endpoints

/*
GET /api/v1/users/me/sessions.

Description: Enumerates all devices currently authenticated into the account.

Response:
  - 200: []SessionInfo: List of active device sessions
  - 401: ErrUnauthorized: Authentication required
*/
func (handler *Handler) listSessions(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessions, err := handler.accountService.ListSessions(request.Context(), accountID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, sessions)
}

/*
DELETE /api/v1/users/me/sessions/{id}.

Description: Forces a sign-out on a specific device identified by its session ID.

Request:
  - id: string (Session UUID)

Response:
  - 204: No Content: Session terminated successfully
  - 401: ErrUnauthorized: Authentication required
  - 404: ErrNotFound: Session does not belong to the account
*/
func (handler *Handler) revokeSession(writer http.ResponseWriter, request *http.Request) {
	accountID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	sessionID := chi.URLParam(request, "id")

	if err := handler.accountService.RevokeSession(request.Context(), accountID, sessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}
