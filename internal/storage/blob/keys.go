// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package blob

import (
	"fmt"
	"strconv"
	"strings"
)

// # Key Layout
//
// Every page lives at "{seriesNick}/{chapterNo}/{page}.png". The layout is
// load-bearing: listing a chapter prefix is how ingest progress is measured,
// and page numbers are recovered by parsing the final key segment.

// PageKey builds the object key for one page of a chapter. ChapterNo is the
// opaque chapter key, embedded verbatim.
func PageKey(nick, chapterNo string, page int) string {
	return fmt.Sprintf("%s/%s/%d.png", nick, chapterNo, page)
}

// ChapterPrefix builds the listing prefix covering every page of a chapter.
// The trailing slash keeps chapter 1 from matching chapters 10-19.
func ChapterPrefix(nick, chapterNo string) string {
	return fmt.Sprintf("%s/%s/", nick, chapterNo)
}

// PageNumber extracts the page number from an object key.
// It returns false for keys that do not follow the page layout
// (e.g. folder placeholders or foreign objects under the prefix).
func PageNumber(key string) (int, bool) {
	slash := strings.LastIndexByte(key, '/')
	name := key[slash+1:]

	name, ok := strings.CutSuffix(name, ".png")
	if !ok || name == "" {
		return 0, false
	}

	page, err := strconv.Atoi(name)
	if err != nil || page < 1 {
		return 0, false
	}

	return page, true
}
