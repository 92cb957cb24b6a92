package logo

import (
	"fmt"
	"strconv"
	"strings"
)

// OriginalKeySuffix is the dimension slot used for preserved originals.
const OriginalKeySuffix = "original"

// ObjectKey builds the bucket key for a resized rendition:
// {hash}_{dimension}.{ext}. The format must stay bit-exact; downstream
// consumers derive URLs from it.
func ObjectKey(logoHash string, dimension int, format string) string {
	return fmt.Sprintf("%s_%d.%s", logoHash, dimension, strings.ToLower(format))
}

// OriginalObjectKey builds the key for a preserved original:
// {hash}_original.{ext}.
func OriginalObjectKey(logoHash, format string) string {
	return fmt.Sprintf("%s_%s.%s", logoHash, OriginalKeySuffix, strings.ToLower(format))
}

// RenditionKey builds the normalizer's map key for one (format, dimension)
// pair, e.g. "png_240".
func RenditionKey(format string, dimension int) string {
	return fmt.Sprintf("%s_%d", strings.ToLower(format), dimension)
}

// ParseRenditionKey splits a normalizer map key back into format and
// dimension. The literal "original" parses as a preserved vector original.
func ParseRenditionKey(key string) (format string, dimension int, isOriginal bool, err error) {
	if key == OriginalKeySuffix {
		return "svg", 0, true, nil
	}
	idx := strings.LastIndex(key, "_")
	if idx <= 0 || idx == len(key)-1 {
		return "", 0, false, fmt.Errorf("malformed rendition key %q", key)
	}
	dim, convErr := strconv.Atoi(key[idx+1:])
	if convErr != nil {
		return "", 0, false, fmt.Errorf("malformed rendition key %q: %w", key, convErr)
	}
	return key[:idx], dim, false, nil
}

// ContentType maps an encoding extension to its MIME type.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "svg":
		return "image/svg+xml"
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return "image/" + strings.ToLower(format)
	}
}
