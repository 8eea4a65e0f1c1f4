package models

import (
	"fmt"
	"image"
	"sort"
	"strconv"
	"strings"
)

// Category is the semantic class a detection is counted under
type Category string

const (
	CategoryPlayer Category = "player"
	CategoryBall   Category = "ball"
)

// String returns the string representation of Category
func (c Category) String() string {
	return string(c)
}

// IsValid checks if the category is one the analyzer counts
func (c Category) IsValid() bool {
	switch c {
	case CategoryPlayer, CategoryBall:
		return true
	default:
		return false
	}
}

// Detection is one observation returned by a detector for a single frame.
// Box is in pixel space of the decoded frame.
type Detection struct {
	ClassID    int             `json:"class_id"`
	Category   Category        `json:"category"`
	Confidence float32         `json:"confidence"`
	Box        image.Rectangle `json:"box"`
}

// FrameResult holds the detections of one loop iteration
type FrameResult struct {
	Index      int
	Detections []Detection
}

// Count returns the number of detections of the given category
func (r FrameResult) Count(category Category) int {
	n := 0
	for _, d := range r.Detections {
		if d.Category == category {
			n++
		}
	}
	return n
}

// CategoryMap maps detector class ids to the categories the analyzer counts
type CategoryMap map[int]Category

// ParseCategoryMap parses "0:player,32:ball"
func ParseCategoryMap(s string) (CategoryMap, error) {
	m := CategoryMap{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idStr, label, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid category mapping %q, expected id:category", part)
		}
		id, err := strconv.Atoi(strings.TrimSpace(idStr))
		if err != nil || id < 0 {
			return nil, fmt.Errorf("invalid class id in %q", part)
		}
		category := Category(strings.ToLower(strings.TrimSpace(label)))
		if !category.IsValid() {
			return nil, fmt.Errorf("unknown category %q in %q", label, part)
		}
		m[id] = category
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("category map is empty")
	}
	return m, nil
}

// ClassIDs returns the mapped class ids in ascending order, used as the detector filter
func (m CategoryMap) ClassIDs() []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Resolve assigns categories to raw detections and drops classes outside the map
func (m CategoryMap) Resolve(dets []Detection) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		category, ok := m[d.ClassID]
		if !ok {
			continue
		}
		d.Category = category
		out = append(out, d)
	}
	return out
}
