package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistrictAreaCode(t *testing.T) {
	tests := []struct {
		district string
		want     string
	}{
		{"NE1", "NE"},
		{"SR5", "SR"},
		{"EC1A", "EC"},
		{"W1", "W"},
		{"1AB", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.district, func(t *testing.T) {
			assert.Equal(t, tt.want, DistrictAreaCode(tt.district))
		})
	}
}

func TestMatchResult_PostcodeSet(t *testing.T) {
	result := MatchResult{
		Postcodes: []PostcodeMatch{
			{Postcode: "NE2 1AB"},
			{Postcode: "NE1 4EE"},
			{Postcode: "NE2 1AB"},
			{Postcode: "NE1 7RU"},
		},
	}
	assert.Equal(t, []string{"NE1 4EE", "NE1 7RU", "NE2 1AB"}, result.PostcodeSet())
}

func TestSeverityLevel_String(t *testing.T) {
	assert.Equal(t, "Severe Flood Warning", SevereFloodWarning.String())
	assert.Equal(t, "Flood Warning", FloodWarningLevel.String())
	assert.Equal(t, "Flood Alert", FloodAlert.String())
	assert.Equal(t, "Warning no Longer in Force", NoLongerInForce.String())
	assert.Equal(t, "Unknown", SeverityLevel(9).String())
}
