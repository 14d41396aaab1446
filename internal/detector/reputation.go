package detector

import (
	"crypto/md5"
	"strings"
)

// Reputation is what a DomainReputation knows about a host.
type Reputation struct {
	DomainAge float64

	// LowAlexaRank mirrors DomainAge in HashReputation. Both are kept
	// because the scorer weights them separately.
	LowAlexaRank float64
}

// DomainReputation supplies the registration-age and traffic-rank signals
// for a host. HashReputation is a deterministic stand-in; a WHOIS or rank
// backed implementation can be passed to NewExtractor instead.
type DomainReputation interface {
	Lookup(host string) Reputation
}

// HashReputation derives a stable pseudo-reputation from the md5 of the host.
// Hosts without a brand token always score zero.
type HashReputation struct {
	brands []string
}

func NewHashReputation(brands []string) *HashReputation {
	return &HashReputation{brands: brands}
}

func (h *HashReputation) Lookup(host string) Reputation {
	host = strings.ToLower(host)
	hasBrand := false
	for _, b := range h.brands {
		if strings.Contains(host, b) {
			hasBrand = true
			break
		}
	}
	if !hasBrand {
		return Reputation{}
	}

	bucket := HostBucket(host)
	if bucket >= 80 {
		return Reputation{}
	}
	age := 0.5
	if bucket < 60 {
		age = 0.8
	}
	return Reputation{DomainAge: age, LowAlexaRank: age}
}

// HostBucket interprets the md5 digest of host as a big-endian integer and
// returns it modulo 100.
func HostBucket(host string) int {
	sum := md5.Sum([]byte(host))
	r := 0
	for _, b := range sum {
		r = (r*256 + int(b)) % 100
	}
	return r
}
