package logo

import (
	"crypto/md5" //nolint:gosec // content addressing, not security
	"encoding/hex"
	"fmt"
)

// DeriveHash computes the canonical logo hash for a (source, infomax code)
// pair. The md5-over-"{source}_{code}" scheme is load-bearing: object keys
// in the shared bucket and logo_hash values in the logos table were written
// with it, so every path (crawled and manual) must reproduce it exactly.
func DeriveHash(source Source, infomaxCode string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%s", source, infomaxCode))) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
