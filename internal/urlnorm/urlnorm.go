// Package urlnorm canonicalizes record and subject references so that distinct
// spellings of the same resource compare equal.
//
// Two kinds of references are understood: conventional web URLs (http, https)
// and peer-replica URLs (dweb). A reference without a scheme is read as a
// peer-replica host. Schemes are never merged: https://x.io and dweb://x.io are
// different origins.
package urlnorm

import "strings"

// PeerScheme is the URL scheme of replicated user record sets.
const PeerScheme = "dweb"

const schemeSep = "://"

type parts struct {
	scheme string
	host   string
	path   string
	tail   string // query and fragment, including the leading '?' or '#'
}

func split(ref string) parts {
	ref = strings.TrimSpace(ref)

	var p parts
	if i := strings.Index(ref, schemeSep); i > 0 {
		p.scheme = strings.ToLower(ref[:i])
		ref = ref[i+len(schemeSep):]
	} else {
		p.scheme = PeerScheme
		ref = strings.TrimPrefix(ref, "//")
	}

	end := strings.IndexAny(ref, "/?#")
	if end < 0 {
		p.host = strings.ToLower(ref)
		return p
	}
	p.host = strings.ToLower(ref[:end])
	rest := ref[end:]

	if q := strings.IndexAny(rest, "?#"); q >= 0 {
		p.path, p.tail = rest[:q], rest[q:]
	} else {
		p.path = rest
	}
	return p
}

// CanonicalOrigin returns the root of the replica or site that owns ref:
// lower-cased scheme and host, no path and no trailing slash.
func CanonicalOrigin(ref string) string {
	p := split(ref)
	return p.scheme + schemeSep + p.host
}

// CanonicalURL returns the canonical full form of ref. Scheme and host are
// lower-cased and the path keeps its case. Every trailing slash is removed,
// not just one, so that CanonicalURL(CanonicalURL(x)) == CanonicalURL(x).
func CanonicalURL(ref string) string {
	p := split(ref)
	return p.scheme + schemeSep + p.host + strings.TrimRight(p.path, "/") + p.tail
}

// SameOrigin reports whether a and b belong to the same origin.
func SameOrigin(a, b string) bool {
	return CanonicalOrigin(a) == CanonicalOrigin(b)
}

// Join builds the URL of a record path inside origin.
func Join(origin, path string) string {
	return CanonicalOrigin(origin) + "/" + strings.TrimLeft(path, "/")
}

// RecordPath returns the path of url relative to its origin, without the
// leading slash. It is empty for a bare origin.
func RecordPath(url string) string {
	return strings.TrimLeft(split(url).path, "/")
}

// IsPeer reports whether ref uses the peer-replica scheme.
func IsPeer(ref string) bool {
	return split(ref).scheme == PeerScheme
}
