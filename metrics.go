package genflow

// Metrics carries usage information reported by the remote service. The map's keys
// are metric names; the token counts recorded by the dialects are ints.
//
// A Result accumulates the metrics of every round of a call, so a call that ran
// three tool rounds reports the tokens of all four requests.
type Metrics map[string]any

const (
	// UsageMetricInputTokens is the number of prompt tokens consumed.
	UsageMetricInputTokens = "input_tokens"

	// UsageMetricGenerationTokens is the number of tokens generated.
	UsageMetricGenerationTokens = "gen_tokens"

	// UsageMetricRequests is the number of logical requests sent, excluding transport retries.
	UsageMetricRequests = "requests"
)

// InputTokens returns the number of prompt tokens from the metrics, and whether
// the metric was present.
func InputTokens(m Metrics) (int, bool) {
	return GetMetric[int](m, UsageMetricInputTokens)
}

// OutputTokens returns the number of generated tokens from the metrics, and whether
// the metric was present.
func OutputTokens(m Metrics) (int, bool) {
	return GetMetric[int](m, UsageMetricGenerationTokens)
}

// GetMetric retrieves a metric value of type T. It returns the zero value and false
// when the key is absent or holds a value of a different type.
//
//	if n, ok := GetMetric[int](res.Usage, UsageMetricRequests); ok {
//	    fmt.Printf("sent %d requests\n", n)
//	}
func GetMetric[T any](m Metrics, key string) (T, bool) {
	var zero T
	v, ok := m[key]
	if !ok {
		return zero, false
	}
	metric, ok := v.(T)
	if !ok {
		return zero, false
	}
	return metric, true
}

// add sums integer metrics of other into m.
func (m Metrics) add(other Metrics) {
	for k, v := range other {
		n, ok := v.(int)
		if !ok {
			m[k] = v
			continue
		}
		cur, _ := m[k].(int)
		m[k] = cur + n
	}
}
