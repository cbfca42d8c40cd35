package gwhttp

import (
	"net/url"
	"strings"
)

// s3MetaPrefix and nimbusMetaPrefix mirror the original web server's
// _build_meta_dict: an S3-compatible "x-amz-meta-" query parameter is
// rewritten onto the gateway's own meta namespace, while a parameter
// already carrying the native prefix passes through unchanged. Any
// other query parameter is not metadata and is ignored (spec.md §6:
// "any query parameter starting with x-amz-meta- or the system's own
// meta-prefix becomes metadata").
const (
	s3MetaPrefix     = "x-amz-meta-"
	nimbusMetaPrefix = "nimbusio-meta-"
)

// extractMeta builds the metadata map an archive-key-start message
// carries from a request's query parameters.
func extractMeta(query url.Values) map[string]string {
	meta := make(map[string]string)
	for key, values := range query {
		if len(values) == 0 {
			continue
		}
		switch {
		case strings.HasPrefix(key, s3MetaPrefix):
			converted := nimbusMetaPrefix + key[len(s3MetaPrefix):]
			meta[converted] = values[0]
		case strings.HasPrefix(key, nimbusMetaPrefix):
			meta[key] = values[0]
		}
	}
	return meta
}
