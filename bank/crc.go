package bank

import (
	"fmt"
	"strings"

	"github.com/bodgit/metamap/crc32"
)

const filenameTrim = 56

// CRCFilename computes the key of a map name. The name is upper-cased,
// truncated or zero padded to 56 bytes and checksummed, so lookups ignore
// case.
func CRCFilename(filename string) uint32 {
	var b [filenameTrim]byte
	copy(b[:], fmt.Sprintf("%.*s", filenameTrim, strings.ToUpper(filename)))
	return crc32.Checksum(b[:])
}
