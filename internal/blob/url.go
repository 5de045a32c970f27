package blob

import (
	"net/url"
	"strings"
)

// The two download-URL shapes handed out for stored objects:
//
//	https://firebasestorage.googleapis.com/v0/b/{bucket}/o/{escaped path}?alt=media
//	https://storage.googleapis.com/{bucket}/{path}
//
// Anything else is unrecognized and parses to nothing. Parsing never
// returns an error to the caller; a false second return covers malformed
// input as well as unknown hosts.
const (
	apiHost    = "firebasestorage.googleapis.com"
	directHost = "storage.googleapis.com"
)

// ParsePath extracts the object path from a stored object's download URL.
func ParsePath(imageURL string) (string, bool) {
	u, ok := parseURL(imageURL)
	if !ok {
		return "", false
	}

	// apiHost contains directHost as a suffix, so it must be checked first.
	switch {
	case strings.Contains(u.Hostname(), apiHost):
		parts := strings.SplitN(u.EscapedPath(), "/o/", 2)
		if len(parts) < 2 {
			return "", false
		}
		return unescape(parts[1])
	case strings.Contains(u.Hostname(), directHost):
		parts := strings.Split(u.EscapedPath(), "/")
		// parts[0] is empty, parts[1] is the bucket, the rest is the path.
		if len(parts) < 3 {
			return "", false
		}
		return unescape(strings.Join(parts[2:], "/"))
	default:
		return "", false
	}
}

// ParseBucket extracts the bucket name from a stored object's download URL.
func ParseBucket(imageURL string) (string, bool) {
	u, ok := parseURL(imageURL)
	if !ok {
		return "", false
	}

	switch {
	case strings.Contains(u.Hostname(), apiHost):
		// bucket sits between the /b/ and /o/ markers
		path := u.EscapedPath()
		start := strings.Index(path, "/b/")
		if start < 0 {
			return "", false
		}
		rest := path[start+len("/b/"):]
		end := strings.Index(rest, "/o/")
		if end <= 0 {
			return "", false
		}
		return rest[:end], true
	case strings.Contains(u.Hostname(), directHost):
		parts := strings.Split(u.EscapedPath(), "/")
		if len(parts) < 2 || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	default:
		return "", false
	}
}

// PublicURL builds the canonical public download URL for an object. The path
// is percent-encoded segment by segment so that separators survive; this is
// the URL form ParsePath and ParseBucket round-trip against.
func PublicURL(bucket, objectPath string) string {
	escaped := strings.ReplaceAll(url.PathEscape(objectPath), "%2F", "/")
	return "https://" + directHost + "/" + bucket + "/" + escaped
}

func parseURL(imageURL string) (*url.URL, bool) {
	if imageURL == "" {
		return nil, false
	}
	u, err := url.Parse(imageURL)
	if err != nil || u.Host == "" {
		return nil, false
	}
	return u, true
}

func unescape(p string) (string, bool) {
	decoded, err := url.PathUnescape(p)
	if err != nil || decoded == "" {
		return "", false
	}
	return decoded, true
}
