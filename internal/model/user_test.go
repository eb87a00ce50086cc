package model

import (
	"testing"
	"time"
)

func TestValidTimezone(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"America/New_York", true},
		{"Asia/Tokyo", true},
		{"UTC", true},
		{"", false},
		{"Local", false},
		{"Mars/Olympus_Mons", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidTimezone(tt.name); got != tt.want {
				t.Errorf("ValidTimezone(%q) = %v, want %v", tt.name, got, tt.want)
			}
		})
	}
}

func TestUser_Location(t *testing.T) {
	fallback := time.FixedZone("fallback", 3600)

	if got := (&User{Timezone: "Asia/Tokyo"}).Location(fallback); got.String() != "Asia/Tokyo" {
		t.Errorf("Location = %s", got)
	}
	if got := (&User{Timezone: "Nowhere/Town"}).Location(fallback); got != fallback {
		t.Errorf("不正なタイムゾーンはfallbackになるはず: %s", got)
	}
	var nilUser *User
	if got := nilUser.Location(fallback); got != fallback {
		t.Errorf("nilユーザーはfallbackになるはず: %s", got)
	}
}
