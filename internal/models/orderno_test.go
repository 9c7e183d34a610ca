package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCourseRegistrationID(t *testing.T) {
	tests := []struct {
		name    string
		orderNo string
		wantID  int64
		wantOK  bool
	}{
		{name: "short prefix", orderNo: "C26_42", wantID: 42, wantOK: true},
		{name: "legacy prefix", orderNo: "COURSE2026_42", wantID: 42, wantOK: true},
		{name: "general order", orderNo: "ORD1725000000001", wantOK: false},
		{name: "non-numeric id", orderNo: "C26_abc", wantOK: false},
		{name: "zero id", orderNo: "C26_0", wantOK: false},
		{name: "negative id", orderNo: "C26_-5", wantOK: false},
		{name: "empty", orderNo: "", wantOK: false},
		{name: "prefix only", orderNo: "C26_", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := CourseRegistrationID(tt.orderNo)
			require.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				require.Equal(t, tt.wantID, id)
			}
		})
	}
}

func TestCourseOrderNo(t *testing.T) {
	orderNo := CourseOrderNo(42)
	require.Equal(t, "C26_42", orderNo)

	id, ok := CourseRegistrationID(orderNo)
	require.True(t, ok)
	require.Equal(t, int64(42), id)
}
