package semantic

import (
	"testing"

	"github.com/altmanac/altmanac/engine/domain"
)

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("altman_chunks", "d::chunk::0")
	b := PointID("altman_chunks", "d::chunk::0")
	if a != b {
		t.Errorf("same inputs gave %s and %s", a, b)
	}
	if PointID("altman_chunks_summary", "d::chunk::0") == a {
		t.Error("different collections share a point id")
	}
	if PointID("altman_chunks", "d::chunk::1") == a {
		t.Error("different logical ids share a point id")
	}
}

func TestCollectionName(t *testing.T) {
	cases := []struct {
		view string
		want string
	}{
		{domain.ViewPrimary, "altman_chunks"},
		{domain.ViewSummary, "altman_chunks_summary"},
		{domain.ViewIntents, "altman_chunks_intents"},
		{domain.ViewDocsum, "altman_chunks_docsum"},
	}
	for _, tc := range cases {
		if got := CollectionName("altman_chunks", tc.view); got != tc.want {
			t.Errorf("CollectionName(%q) = %q, want %q", tc.view, got, tc.want)
		}
	}
}

func TestToValueConversions(t *testing.T) {
	if got := toValue("s").GetStringValue(); got != "s" {
		t.Errorf("string value = %q", got)
	}
	if got := toValue(7).GetIntegerValue(); got != 7 {
		t.Errorf("int value = %d", got)
	}
	if got := toValue(int64(9)).GetIntegerValue(); got != 9 {
		t.Errorf("int64 value = %d", got)
	}
	if got := toValue(1.5).GetDoubleValue(); got != 1.5 {
		t.Errorf("float value = %v", got)
	}
	if got := toValue(true).GetBoolValue(); !got {
		t.Error("bool value = false")
	}
	if got := toValue([]string{"x"}).GetStringValue(); got == "" {
		t.Error("fallback value is empty")
	}
}
