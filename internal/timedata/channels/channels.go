package channels

import "fmt"

// Aggregation describes how a channel's values are reduced over time.
type Aggregation int

const (
	// AggregationUndefined marks channels that are not persisted at all.
	AggregationUndefined Aggregation = iota

	// AggregationAverage marks gauge-like channels (state of charge,
	// active power) reduced by mean within a period.
	AggregationAverage

	// AggregationCumulative marks monotonically growing counters
	// (energy totals) reduced by their last value within a period.
	AggregationCumulative
)

// String returns the aggregation name for logging.
func (a Aggregation) String() string {
	switch a {
	case AggregationAverage:
		return "average"
	case AggregationCumulative:
		return "cumulative"
	default:
		return "undefined"
	}
}

// StorageType is the numeric type a channel is stored as.
type StorageType int

const (
	// TypeInteger stores values as int64, truncating fractional input.
	TypeInteger StorageType = iota

	// TypeFloat stores values as float64.
	TypeFloat
)

// averageChannels and cumulativeChannels form the channel allow-list.
// They are populated once at init and never mutated afterwards. A channel
// id must appear in at most one of the two maps.
var (
	averageChannels    map[string]StorageType
	cumulativeChannels map[string]StorageType
)

func init() {
	averageChannels = buildRegistry(
		entries{
			"_sum/EssSoc":                     TypeInteger,
			"_sum/EssActivePower":             TypeInteger,
			"_sum/EssActivePowerL1":           TypeInteger,
			"_sum/EssActivePowerL2":           TypeInteger,
			"_sum/EssActivePowerL3":           TypeInteger,
			"_sum/GridActivePower":            TypeInteger,
			"_sum/GridActivePowerL1":          TypeInteger,
			"_sum/GridActivePowerL2":          TypeInteger,
			"_sum/GridActivePowerL3":          TypeInteger,
			"_sum/ProductionActivePower":      TypeInteger,
			"_sum/ProductionAcActivePower":    TypeInteger,
			"_sum/ProductionAcActivePowerL1":  TypeInteger,
			"_sum/ProductionAcActivePowerL2":  TypeInteger,
			"_sum/ProductionAcActivePowerL3":  TypeInteger,
			"_sum/ProductionDcActualPower":    TypeInteger,
			"_sum/ConsumptionActivePower":     TypeInteger,
			"_sum/ConsumptionActivePowerL1":   TypeInteger,
			"_sum/ConsumptionActivePowerL2":   TypeInteger,
			"_sum/ConsumptionActivePowerL3":   TypeInteger,
			"ctrlIoHeatPump0/RegularStateTime":        TypeInteger,
			"ctrlIoHeatPump0/RecommendationStateTime": TypeInteger,
			"ctrlIoHeatPump0/ForceOnStateTime":        TypeInteger,
			"ctrlIoHeatPump0/LockStateTime":           TypeInteger,
			"ess0/Soc":         TypeInteger,
			"ess0/ActivePower": TypeInteger,
		},
		ExpandSubChannels("io", 0, 5, "Relay", 1, 9, TypeInteger),
	)

	cumulativeChannels = buildRegistry(
		entries{
			"_sum/EssDcChargeEnergy":       TypeInteger,
			"_sum/EssDcDischargeEnergy":    TypeInteger,
			"_sum/GridSellActiveEnergy":    TypeInteger,
			"_sum/ProductionActiveEnergy":  TypeInteger,
			"_sum/ConsumptionActiveEnergy": TypeInteger,
			"_sum/GridBuyActiveEnergy":     TypeInteger,
			"_sum/EssActiveChargeEnergy":   TypeInteger,
			"_sum/EssActiveDischargeEnergy": TypeInteger,
			"ctrlEssTimeOfUseTariffDischarge0/DelayedTime": TypeInteger,
			"ctrlGridOptimizedCharge0/AvoidLowChargingTime": TypeInteger,
			"ctrlGridOptimizedCharge0/NoLimitationTime":     TypeInteger,
			"ctrlGridOptimizedCharge0/SellToGridLimitTime":  TypeInteger,
			"ctrlGridOptimizedCharge0/DelayChargeTime":      TypeInteger,
		},
		ExpandChannels("evcs", 0, 3, "ActiveConsumptionEnergy", TypeInteger),
		ExpandChannels("meter", 0, 3, "ActiveProductionEnergy", TypeInteger),
		ExpandChannels("io", 0, 9, "ActiveProductionEnergy", TypeInteger),
		ExpandChannels("pvInverter", 0, 5, "ActiveProductionEnergy", TypeInteger),
		ExpandChannels("charger", 0, 5, "ActualEnergy", TypeInteger),
	)
}

type entries map[string]StorageType

// buildRegistry merges a literal entry table with expanded channel ranges
// into one read-only registry.
func buildRegistry(base entries, expanded ...entries) map[string]StorageType {
	registry := make(map[string]StorageType, len(base))
	for channel, typ := range base {
		registry[channel] = typ
	}
	for _, group := range expanded {
		for channel, typ := range group {
			registry[channel] = typ
		}
	}
	return registry
}

// ExpandChannels generates the channel ids "<component><n>/<channel>" for
// every n in [from, to), all mapped to one storage type.
//
// Example: ExpandChannels("meter", 0, 3, "ActiveProductionEnergy", TypeInteger)
// yields meter0/ActiveProductionEnergy .. meter2/ActiveProductionEnergy.
func ExpandChannels(component string, from, to int, channel string, typ StorageType) map[string]StorageType {
	out := make(map[string]StorageType, to-from)
	for n := from; n < to; n++ {
		out[fmt.Sprintf("%s%d/%s", component, n, channel)] = typ
	}
	return out
}

// ExpandSubChannels generates the cross-product
// "<component><n>/<channel><m>" for n in [from, to) and m in
// [fromChannel, toChannel), all mapped to one storage type.
//
// Example: ExpandSubChannels("io", 0, 5, "Relay", 1, 9, TypeInteger)
// yields io0/Relay1 .. io4/Relay8.
func ExpandSubChannels(component string, from, to int, channel string, fromChannel, toChannel int, typ StorageType) map[string]StorageType {
	out := make(map[string]StorageType, (to-from)*(toChannel-fromChannel))
	for n := from; n < to; n++ {
		for m := fromChannel; m < toChannel; m++ {
			out[fmt.Sprintf("%s%d/%s%d", component, n, channel, m)] = typ
		}
	}
	return out
}

// Classify returns the aggregation kind of a channel. Channels absent from
// both registries are AggregationUndefined and are never persisted.
func Classify(channel string) Aggregation {
	if _, ok := averageChannels[channel]; ok {
		return AggregationAverage
	}
	if _, ok := cumulativeChannels[channel]; ok {
		return AggregationCumulative
	}
	return AggregationUndefined
}

// storageTypeOf looks up the storage type of a channel in either registry.
func storageTypeOf(channel string) (StorageType, bool) {
	if typ, ok := averageChannels[channel]; ok {
		return typ, true
	}
	if typ, ok := cumulativeChannels[channel]; ok {
		return typ, true
	}
	return 0, false
}

// TypedValue coerces a raw value to the channel's registered storage type.
//
// Only numeric scalar inputs are accepted. Unknown channels, nil values and
// non-numeric values are rejected with ok=false; callers treat rejection as
// "skip silently".
//
// The coercion is a deliberate, irreversible downcast: a TypeInteger channel
// always stores truncated values, even if the source reports fractional
// energy.
func TypedValue(channel string, raw any) (any, bool) {
	if raw == nil {
		return nil, false
	}
	typ, ok := storageTypeOf(channel)
	if !ok {
		return nil, false
	}

	var f float64
	var i int64
	var isInt bool
	switch v := raw.(type) {
	case int:
		i, isInt = int64(v), true
	case int8:
		i, isInt = int64(v), true
	case int16:
		i, isInt = int64(v), true
	case int32:
		i, isInt = int64(v), true
	case int64:
		i, isInt = v, true
	case uint:
		i, isInt = int64(v), true
	case uint8:
		i, isInt = int64(v), true
	case uint16:
		i, isInt = int64(v), true
	case uint32:
		i, isInt = int64(v), true
	case uint64:
		i, isInt = int64(v), true
	case float32:
		f = float64(v)
	case float64:
		f = v
	default:
		return nil, false
	}

	switch typ {
	case TypeInteger:
		if isInt {
			return i, true
		}
		return int64(f), true
	case TypeFloat:
		if isInt {
			return float64(i), true
		}
		return f, true
	}
	return nil, false
}

// AverageChannelCount reports the size of the average registry.
// Exposed for diagnostics and tests.
func AverageChannelCount() int {
	return len(averageChannels)
}

// CumulativeChannelCount reports the size of the cumulative registry.
// Exposed for diagnostics and tests.
func CumulativeChannelCount() int {
	return len(cumulativeChannels)
}

// All returns every allowed channel id and its aggregation kind.
// The returned map is a copy; mutating it does not affect the registry.
func All() map[string]Aggregation {
	out := make(map[string]Aggregation, len(averageChannels)+len(cumulativeChannels))
	for channel := range averageChannels {
		out[channel] = AggregationAverage
	}
	for channel := range cumulativeChannels {
		out[channel] = AggregationCumulative
	}
	return out
}
