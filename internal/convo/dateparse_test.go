package convo

import (
	"testing"
	"time"
)

func TestParseDate_AcceptedFormats(t *testing.T) {
	loc := time.UTC
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"iso", "2025-10-16", "2025-10-16"},
		{"slash", "10/16/2025", "2025-10-16"},
		{"month day year", "October 16, 2025", "2025-10-16"},
		{"month day year no comma", "October 16 2025", "2025-10-16"},
		{"day month year", "16 October 2025", "2025-10-16"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDate(tc.in, loc)
			if err != nil {
				t.Fatalf("ParseDate(%q): unexpected error: %v", tc.in, err)
			}
			if FormatDateISO(got) != tc.want {
				t.Errorf("ParseDate(%q) = %q, want %q", tc.in, FormatDateISO(got), tc.want)
			}
		})
	}
}

func TestParseDate_Rejected(t *testing.T) {
	cases := []string{"", "next Tuesday", "10-16-2025", "tomorrow"}
	for _, in := range cases {
		if _, err := ParseDate(in, time.UTC); err != ErrBadDateFormat {
			t.Errorf("ParseDate(%q): err = %v, want ErrBadDateFormat", in, err)
		}
	}
}
