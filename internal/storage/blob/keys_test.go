// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package blob_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tankobonhq/tankobon/internal/storage/blob"
)

func TestPageKey(t *testing.T) {
	assert.Equal(t, "solo-max/12/4.png", blob.PageKey("solo-max", "12", 4))
}

func TestChapterPrefix(t *testing.T) {
	// The trailing slash must keep chapter 1 from matching chapter 10.
	assert.Equal(t, "solo-max/1/", blob.ChapterPrefix("solo-max", "1"))
}

func TestPageNumber(t *testing.T) {
	testCases := []struct {
		name     string
		key      string
		wantPage int
		wantOK   bool
	}{
		{name: "regular page", key: "10234/12/4.png", wantPage: 4, wantOK: true},
		{name: "multi digit page", key: "10234/12/128.png", wantPage: 128, wantOK: true},
		{name: "wrong extension", key: "10234/12/4.jpg", wantOK: false},
		{name: "no page segment", key: "10234/12/.png", wantOK: false},
		{name: "non numeric", key: "10234/12/cover.png", wantOK: false},
		{name: "zero page", key: "10234/12/0.png", wantOK: false},
		{name: "folder placeholder", key: "10234/12/", wantOK: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			page, ok := blob.PageNumber(tc.key)

			assert.Equal(t, tc.wantOK, ok)
			if tc.wantOK {
				assert.Equal(t, tc.wantPage, page)
			}
		})
	}
}
