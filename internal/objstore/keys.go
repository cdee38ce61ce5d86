package objstore

import (
	"net/url"
	"path"
	"strings"
)

// BuildKey returns the object key for a meal upload: "<mealID>.<ext>".
func BuildKey(mealID, ext string) string {
	return mealID + "." + ext
}

// ParseKey splits a key built by BuildKey.
func ParseKey(key string) (mealID, ext string, ok bool) {
	if strings.Contains(key, "/") {
		return "", "", false
	}
	ext = strings.TrimPrefix(path.Ext(key), ".")
	if ext == "" {
		return "", "", false
	}
	mealID = strings.TrimSuffix(key, "."+ext)
	return mealID, ext, mealID != ""
}

// UnescapeKey decodes a key as it appears in bucket notifications, which
// URL-encode it and use "+" for spaces. Undecodable keys are returned as is.
func UnescapeKey(raw string) string {
	k, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	return k
}
