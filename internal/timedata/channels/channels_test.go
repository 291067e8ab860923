package channels

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		channel  string
		expected Aggregation
	}{
		{
			name:     "average channel",
			channel:  "_sum/EssSoc",
			expected: AggregationAverage,
		},
		{
			name:     "cumulative channel",
			channel:  "_sum/ProductionActiveEnergy",
			expected: AggregationCumulative,
		},
		{
			name:     "expanded average channel",
			channel:  "io0/Relay1",
			expected: AggregationAverage,
		},
		{
			name:     "expanded cumulative channel",
			channel:  "evcs2/ActiveConsumptionEnergy",
			expected: AggregationCumulative,
		},
		{
			name:     "unknown channel",
			channel:  "foo0/Bar",
			expected: AggregationUndefined,
		},
		{
			name:     "no prefix match",
			channel:  "_sum/EssSocX",
			expected: AggregationUndefined,
		},
		{
			name:     "empty channel",
			channel:  "",
			expected: AggregationUndefined,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.channel); got != tt.expected {
				t.Errorf("Classify(%q) = %v, want %v", tt.channel, got, tt.expected)
			}
		})
	}
}

func TestRegistriesAreDisjoint(t *testing.T) {
	for channel := range averageChannels {
		if _, ok := cumulativeChannels[channel]; ok {
			t.Errorf("channel %q appears in both registries", channel)
		}
	}
}

func TestTypedValue_IntegerTruncation(t *testing.T) {
	// Integer channels store truncated values even when the source
	// reports fractional input.
	value, ok := TypedValue("_sum/EssSoc", 42.9)
	if !ok {
		t.Fatal("TypedValue() rejected allowed channel")
	}
	if value != int64(42) {
		t.Errorf("TypedValue(42.9) = %v (%T), want int64(42)", value, value)
	}
}

func TestTypedValue_IntegerInput(t *testing.T) {
	value, ok := TypedValue("_sum/EssActivePower", 1000)
	if !ok {
		t.Fatal("TypedValue() rejected allowed channel")
	}
	if value != int64(1000) {
		t.Errorf("TypedValue(1000) = %v (%T), want int64(1000)", value, value)
	}
}

func TestTypedValue_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		raw     any
	}{
		{
			name:    "unknown channel",
			channel: "foo0/Bar",
			raw:     1.0,
		},
		{
			name:    "nil value",
			channel: "_sum/EssSoc",
			raw:     nil,
		},
		{
			name:    "string value",
			channel: "_sum/EssSoc",
			raw:     "42",
		},
		{
			name:    "bool value",
			channel: "_sum/EssSoc",
			raw:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := TypedValue(tt.channel, tt.raw); ok {
				t.Errorf("TypedValue(%q, %v) accepted, want rejection", tt.channel, tt.raw)
			}
		})
	}
}

func TestExpandChannels(t *testing.T) {
	out := ExpandChannels("meter", 0, 3, "ActiveProductionEnergy", TypeInteger)

	if len(out) != 3 {
		t.Fatalf("len = %d, want 3", len(out))
	}
	for _, channel := range []string{
		"meter0/ActiveProductionEnergy",
		"meter1/ActiveProductionEnergy",
		"meter2/ActiveProductionEnergy",
	} {
		if _, ok := out[channel]; !ok {
			t.Errorf("missing channel %q", channel)
		}
	}
}

func TestExpandSubChannels(t *testing.T) {
	out := ExpandSubChannels("io", 0, 5, "Relay", 1, 9, TypeInteger)

	// 5 components x 8 relays
	if len(out) != 40 {
		t.Fatalf("len = %d, want 40", len(out))
	}
	if _, ok := out["io0/Relay1"]; !ok {
		t.Error("missing first channel io0/Relay1")
	}
	if _, ok := out["io4/Relay8"]; !ok {
		t.Error("missing last channel io4/Relay8")
	}
	if _, ok := out["io5/Relay1"]; ok {
		t.Error("upper component bound should be exclusive")
	}
	if _, ok := out["io0/Relay9"]; ok {
		t.Error("upper sub-channel bound should be exclusive")
	}
}

func TestAll(t *testing.T) {
	all := All()

	if len(all) != AverageChannelCount()+CumulativeChannelCount() {
		t.Errorf("All() size = %d, want %d", len(all), AverageChannelCount()+CumulativeChannelCount())
	}
	if all["_sum/EssSoc"] != AggregationAverage {
		t.Error("expected _sum/EssSoc to be average")
	}
	if all["_sum/GridBuyActiveEnergy"] != AggregationCumulative {
		t.Error("expected _sum/GridBuyActiveEnergy to be cumulative")
	}
}
