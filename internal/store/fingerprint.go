package store

import (
	"github.com/glaslos/tlsh"
)

// Fingerprint returns the TLSH digest of a page, or "" when the page is too
// short or too uniform to hash.
func Fingerprint(page string) string {
	if page == "" {
		return ""
	}
	h, err := tlsh.HashBytes([]byte(page))
	if err != nil {
		return ""
	}
	return h.String()
}

// Distance compares two digests produced by Fingerprint. Lower is closer.
func Distance(a, b string) (int, error) {
	ta, err := tlsh.ParseStringToTlsh(a)
	if err != nil {
		return 0, err
	}
	tb, err := tlsh.ParseStringToTlsh(b)
	if err != nil {
		return 0, err
	}
	return ta.Diff(tb), nil
}
