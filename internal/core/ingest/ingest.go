// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

/*
Package ingest implements the chaptered, batched image-ingestion pipeline.

A chapter upload arrives as one or more HTTP batches, each carrying a subset
of the chapter's page images. The pipeline uploads pages to deterministic
storage paths, measures progress by re-listing the storage prefix (never by
trusting client batch coordinates), and hands completed chapters to a
background reconciler that updates the catalog and the release feed.

Core Responsibility:

  - Idempotency: Pages land at {nick}/{chapterNo}/{page}.png; retrying a
    batch overwrites the same paths and never duplicates anything.
  - Progress: The storage listing is the sole authority on how many pages
    exist; missed or duplicated batch callbacks cannot corrupt state.
  - Deferral: Reconciliation runs on a supervised background worker after
    the HTTP response, with bounded retries and observable failures.
*/
package ingest

// BatchStatus describes where a (series, chapter) upload stands after one batch.
type BatchStatus string

const (
	// StatusInProgress means more pages are expected; the client should keep
	// sending batches.
	StatusInProgress BatchStatus = "in_progress"

	// StatusComplete means every declared page exists in storage and
	// reconciliation has been scheduled. Terminal for the chapter.
	StatusComplete BatchStatus = "complete"

	// StatusPartialFailure means one or more pages in this batch failed to
	// upload. The client should retry the batch wholesale; pages that did
	// land remain persisted.
	StatusPartialFailure BatchStatus = "partial_failure"
)

// PageFile is one page image within a batch. The filename must embed the
// page's decimal number; content is buffered so uploads can be retried.
type PageFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// BatchInput carries one ingest batch.
//
// BatchIndex/BatchTotal are client declarations used for response shaping
// and completion signalling only — never for progress accounting.
type BatchInput struct {
	Nick          string
	ChapterNo     string
	ChapterName   string
	DeclaredPages int
	Visibility    string
	BatchIndex    int
	BatchTotal    int
	Files         []PageFile
}

// PageFailure records one page that could not be uploaded.
type PageFailure struct {
	Page   int    `json:"page"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// BatchResult is the outcome of one ingest batch.
type BatchResult struct {
	Status        BatchStatus   `json:"status"`
	ChapterNo     string        `json:"chapter_no"`
	UploadedPages int           `json:"uploaded_pages"` // authoritative, listing-derived
	DeclaredPages int           `json:"declared_pages"`
	Remaining     int           `json:"remaining"`
	BatchIndex    int           `json:"batch_index"`
	BatchTotal    int           `json:"batch_total"`
	Failures      []PageFailure `json:"failures,omitempty"`

	// ReconcileScheduled is true once the completion job has been queued.
	ReconcileScheduled bool `json:"reconcile_scheduled"`
}

// ReplaceResult is the outcome of a wholesale image replacement.
type ReplaceResult struct {
	ChapterNo     string        `json:"chapter_no"`
	UploadedPages int           `json:"uploaded_pages"`
	Failures      []PageFailure `json:"failures,omitempty"`
}
