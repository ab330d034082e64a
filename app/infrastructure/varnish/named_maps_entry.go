package varnish

import (
	"crypto/md5"
	"encoding/base64"
)

const namedMapsBaseKey = "t"

// NamedMapCacheEntry identifies the cached artifacts derived from one named
// map. The front cache tags responses with Key() as a surrogate key, so
// invalidating the entry drops every cached instance of the template.
type NamedMapCacheEntry struct {
	Owner        string
	TemplateName string
}

func NewNamedMapCacheEntry(owner, templateName string) NamedMapCacheEntry {
	return NamedMapCacheEntry{Owner: owner, TemplateName: templateName}
}

// Key returns the surrogate key for the entry: a short, header-safe digest
// of owner and template name.
func (e NamedMapCacheEntry) Key() string {
	sum := md5.Sum([]byte(e.Owner + ":" + e.TemplateName))
	return namedMapsBaseKey + ":" + base64.RawURLEncoding.EncodeToString(sum[:])[:8]
}
