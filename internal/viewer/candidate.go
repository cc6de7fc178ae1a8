package viewer

import (
	"strings"

	"wrtcplay/native/internal/domain"

	"github.com/pion/ice/v4"
)

// DefaultCandidateTypes are the transport protocols accepted by default.
var DefaultCandidateTypes = []string{"udp", "tcp"}

// CandidateFilter accepts ICE candidates whose transport protocol is in a
// configured set. The decision depends only on the candidate.
type CandidateFilter struct {
	types []string
}

// NewCandidateFilter creates a filter for the given protocols.
func NewCandidateFilter(types []string) CandidateFilter {
	if len(types) == 0 {
		types = DefaultCandidateTypes
	}
	lower := make([]string, 0, len(types))
	for _, t := range types {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lower = append(lower, t)
		}
	}
	return CandidateFilter{types: lower}
}

// Accept reports whether c may be used. The empty end-of-candidates marker
// is always accepted.
func (f CandidateFilter) Accept(c domain.Candidate) bool {
	if c.Candidate == "" {
		return true
	}
	if c.Protocol != "" {
		return f.has(strings.ToLower(c.Protocol))
	}
	if proto, ok := candidateProtocol(c.Candidate); ok {
		return f.has(proto)
	}

	lower := strings.ToLower(c.Candidate)
	for _, t := range f.types {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

// Types returns the accepted protocols.
func (f CandidateFilter) Types() []string {
	return append([]string(nil), f.types...)
}

func (f CandidateFilter) has(proto string) bool {
	for _, t := range f.types {
		if t == proto {
			return true
		}
	}
	return false
}

func candidateProtocol(raw string) (string, bool) {
	cand, err := ice.UnmarshalCandidate(strings.TrimPrefix(raw, "candidate:"))
	if err != nil {
		return "", false
	}
	return cand.NetworkType().NetworkShort(), true
}
