// Package facematch decides which detected face represents an image.
//
// Grouping works on one descriptor per image. When a detector finds several
// faces the policy picks one; the others are ignored.
package facematch

import (
	"fmt"

	"github.com/kozaktomas/face-groups/internal/detector"
)

// Policy selects one face out of the faces detected in an image.
type Policy string

const (
	// PolicyFirst uses the first face in detector order.
	PolicyFirst Policy = "first"
	// PolicyLargest uses the face with the largest bounding box. Ties keep
	// detector order.
	PolicyLargest Policy = "largest"
)

// ParsePolicy validates a policy name. An empty name selects PolicyFirst.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(name) {
	case "", PolicyFirst:
		return PolicyFirst, nil
	case PolicyLargest:
		return PolicyLargest, nil
	default:
		return "", fmt.Errorf("unknown face policy %q", name)
	}
}

// Select returns the face chosen by p. ok is false when faces is empty.
func (p Policy) Select(faces []detector.Face) (face detector.Face, ok bool) {
	if len(faces) == 0 {
		return detector.Face{}, false
	}
	if p != PolicyLargest {
		return faces[0], true
	}

	best := 0
	bestArea := BBoxArea(faces[0].BBox)
	for i := 1; i < len(faces); i++ {
		if area := BBoxArea(faces[i].BBox); area > bestArea {
			best, bestArea = i, area
		}
	}
	return faces[best], true
}
