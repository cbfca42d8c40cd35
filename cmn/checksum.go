package cmn

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"hash/adler32"
)

// Cksum is a running pair of checksums kept for a slice or for the whole
// plaintext of an archive (spec.md §3: "running MD5 and adler32").
type Cksum struct {
	md5    hash.Hash
	adler  hash.Hash32
	nbytes int64
}

func NewCksum() *Cksum {
	return &Cksum{md5: md5.New(), adler: adler32.New()}
}

// Write feeds b into both running checksums. It never returns an error.
func (c *Cksum) Write(b []byte) {
	c.md5.Write(b)
	c.adler.Write(b)
	c.nbytes += int64(len(b))
}

func (c *Cksum) MD5Hex() string {
	return hex.EncodeToString(c.md5.Sum(nil))
}

func (c *Cksum) MD5Base64() string {
	return base64.StdEncoding.EncodeToString(c.md5.Sum(nil))
}

func (c *Cksum) Adler32() uint32 { return c.adler.Sum32() }

func (c *Cksum) NBytes() int64 { return c.nbytes }

// SliceCksum computes both checksums for a single byte slice in
// isolation, as recorded per-segment (spec.md §3: "adler32, md5" per
// Segment).
func SliceCksum(b []byte) (adler uint32, md5hex string) {
	adler = adler32.Checksum(b)
	sum := md5.Sum(b)
	return adler, hex.EncodeToString(sum[:])
}
