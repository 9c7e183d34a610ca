package models

import (
	"strconv"
	"strings"
)

// Course order numbers carry the registration id behind a campaign prefix.
// Both prefixes are live on the wire; new checkouts use the short one.
const (
	CourseOrderPrefix       = "C26_"
	CourseOrderPrefixLegacy = "COURSE2026_"
)

// CourseRegistrationID extracts the registration id from a course order
// number ("C26_42" -> 42). ok is false for general order numbers and for
// course order numbers with a non-numeric id.
func CourseRegistrationID(orderNo string) (int64, bool) {
	var suffix string
	switch {
	case strings.HasPrefix(orderNo, CourseOrderPrefix):
		suffix = strings.TrimPrefix(orderNo, CourseOrderPrefix)
	case strings.HasPrefix(orderNo, CourseOrderPrefixLegacy):
		suffix = strings.TrimPrefix(orderNo, CourseOrderPrefixLegacy)
	default:
		return 0, false
	}
	id, err := strconv.ParseInt(suffix, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// CourseOrderNo builds the wire order number for a registration id.
func CourseOrderNo(id int64) string {
	return CourseOrderPrefix + strconv.FormatInt(id, 10)
}

// IsCourseOrderNo reports whether the order number uses a course prefix,
// regardless of whether the id part parses.
func IsCourseOrderNo(orderNo string) bool {
	return strings.HasPrefix(orderNo, CourseOrderPrefix) || strings.HasPrefix(orderNo, CourseOrderPrefixLegacy)
}
