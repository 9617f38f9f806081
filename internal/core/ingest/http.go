// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package ingest

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tankobonhq/tankobon/internal/platform/apperr"
	"github.com/tankobonhq/tankobon/internal/platform/constants"
	"github.com/tankobonhq/tankobon/internal/platform/middleware"
	requestutil "github.com/tankobonhq/tankobon/internal/platform/request"
	"github.com/tankobonhq/tankobon/internal/platform/respond"
	"github.com/tankobonhq/tankobon/internal/platform/sec"
	"github.com/tankobonhq/tankobon/pkg/convert"
)

// multipartMemory is the in-memory buffer ceiling for one upload request;
// larger bodies spill to temp files.
const multipartMemory = 64 << 20

// # Handler Implementation

// Handler implements the HTTP layer for chapter ingestion.
type Handler struct {
	service *Service
}

// NewHandler constructs a new ingest [Handler] with its service dependency.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register attaches the ingestion endpoints onto the shared /series router.
// Both endpoints mutate storage and are staff-gated.
func (handler *Handler) Register(router chi.Router) {
	router.Group(func(staff chi.Router) {
		staff.Use(middleware.RequireRole(sec.RoleStaff))

		staff.Post("/{series}/chapters/upload", handler.uploadBatch)
		staff.Post("/{series}/chapters/{chapterNo}/images", handler.replaceImages)
	})
}

// # Upload Endpoints

/*
POST /api/v1/series/{series}/chapters/upload.

Description: Ingests one batch of a chapter upload. The body is
multipart/form-data carrying the page images plus the batch coordinates.
Any non-complete response means "keep sending batches"; a complete response
is terminal for the chapter.

Request (multipart form):
  - chapterNo: string (Opaque chapter key)
  - chapterName: string
  - totalPageNo: int (Declared page count for the whole chapter)
  - visibility: string (public|private, defaults to the series setting)
  - batchNumber: int (1-based index of this batch)
  - totalBatches: int
  - files[]: page images, filenames carrying decimal page numbers

Response:
  - 200: BatchResult: Progress, completion, or partial-failure report
  - 400: 400: Validation: Empty batch, bad filenames, non-image content
  - 404: 404: ErrNotFound: Unknown series
  - 502: 502: StorageError: Storage retries exhausted
*/
func (handler *Handler) uploadBatch(writer http.ResponseWriter, request *http.Request) {
	if err := request.ParseMultipartForm(multipartMemory); err != nil {
		respond.Error(writer, request, apperr.ValidationError("Malformed multipart body"))
		return
	}

	files, err := collectFiles(request.MultipartForm)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	input := BatchInput{
		Nick:          requestutil.ID(request, "series"),
		ChapterNo:     request.FormValue("chapterNo"),
		ChapterName:   request.FormValue("chapterName"),
		DeclaredPages: convert.ToInt(request.FormValue("totalPageNo")),
		Visibility:    request.FormValue("visibility"),
		BatchIndex:    convert.ToIntD(request.FormValue("batchNumber"), 1),
		BatchTotal:    convert.ToIntD(request.FormValue("totalBatches"), 1),
		Files:         files,
	}

	result, err := handler.service.IngestBatch(request.Context(), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

/*
POST /api/v1/series/{series}/chapters/{chapterNo}/images.

Description: Replaces an existing chapter's images wholesale with the same
overwrite-by-path semantics as ingestion. The chapter must already exist.

Request (multipart form):
  - files[]: page images, filenames carrying decimal page numbers

Response:
  - 200: ReplaceResult: Upload summary
  - 400: 400: Validation: Empty set, bad filenames, non-image content
  - 404: 404: ErrNotFound: Unknown series or chapter
  - 502: 502: StorageError: Storage retries exhausted
*/
func (handler *Handler) replaceImages(writer http.ResponseWriter, request *http.Request) {
	if err := request.ParseMultipartForm(multipartMemory); err != nil {
		respond.Error(writer, request, apperr.ValidationError("Malformed multipart body"))
		return
	}

	files, err := collectFiles(request.MultipartForm)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.ReplaceChapterImages(
		request.Context(),
		requestutil.ID(request, "series"),
		requestutil.Param(request, "chapterNo"),
		files,
	)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, result)
}

// # Multipart Helpers

// collectFiles buffers every uploaded file from the "files" field,
// enforcing the per-page size ceiling.
func collectFiles(form *multipart.Form) ([]PageFile, error) {
	if form == nil || len(form.File["files"]) == 0 {
		return nil, apperr.ValidationError("At least one page image is required")
	}

	headers := form.File["files"]
	files := make([]PageFile, 0, len(headers))

	for _, header := range headers {
		if header.Size > constants.MaxPageBytes {
			return nil, apperr.ValidationError(
				fmt.Sprintf("%s exceeds the %dMB page limit", header.Filename, constants.MaxPageBytes>>20))
		}

		part, err := header.Open()
		if err != nil {
			return nil, apperr.Internal(err)
		}

		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, apperr.Internal(err)
		}

		files = append(files, PageFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		})
	}

	return files, nil
}
