package convo

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// dateLayouts are the accepted spoken/typed date formats, tried in order
// (§4.4 date parsing contract). Anything that matches none of these is
// rejected with guidance rather than guessed at.
var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"January 2, 2006",
	"2 January 2006",
}

var monthDayYearLoose = regexp.MustCompile(`(?i)^([A-Za-z]+)\s+(\d{1,2}),?\s+(\d{4})$`)
var dayMonthYearLoose = regexp.MustCompile(`(?i)^(\d{1,2})\s+([A-Za-z]+)\s+(\d{4})$`)

// ParseDate parses a caller-supplied date string in loc's timezone, accepting
// "YYYY-MM-DD", "M/D/YYYY", "Month D, YYYY", and "D Month YYYY". Any other
// shape returns ErrBadDateFormat so the caller can relay the guidance
// message from the step-action matrix.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrBadDateFormat
	}

	// Normalise "Month D, YYYY" / "D Month YYYY" comma variance before
	// trying the strict layouts, since callers often drop the comma.
	candidate := s
	if m := monthDayYearLoose.FindStringSubmatch(s); m != nil {
		candidate = fmt.Sprintf("%s %s, %s", m[1], m[2], m[3])
	} else if m := dayMonthYearLoose.FindStringSubmatch(s); m != nil {
		candidate = fmt.Sprintf("%s %s %s", m[1], m[2], m[3])
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, candidate, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrBadDateFormat
}

// FormatDateISO renders t as the "YYYY-MM-DD" form stored in
// [callsession.AppointmentDetails.Date].
func FormatDateISO(t time.Time) string {
	return t.Format("2006-01-02")
}
