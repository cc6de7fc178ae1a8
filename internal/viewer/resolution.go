package viewer

import (
	"slices"

	"wrtcplay/native/internal/domain"
)

// AutoResolution is the ladder entry that lets the server pick the quality.
const AutoResolution = 0

// ResolutionLadder returns the distinct heights in infos, highest first,
// preceded by AutoResolution.
func ResolutionLadder(infos []domain.StreamInfo) []int {
	heights := make([]int, 0, len(infos))
	for _, info := range infos {
		if info.StreamHeight <= 0 || slices.Contains(heights, info.StreamHeight) {
			continue
		}
		heights = append(heights, info.StreamHeight)
	}
	slices.Sort(heights)
	slices.Reverse(heights)
	return append([]int{AutoResolution}, heights...)
}
