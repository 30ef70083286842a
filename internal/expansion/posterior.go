package expansion

import "math"

// LogToPosterior turns the log-domain scores of results into a probability
// distribution over the result set, in place. A NaN score counts as -Inf and
// gets probability 0; +Inf scores share all of the mass.
//
// The maximum score is subtracted before exponentiation so that large log
// scores neither overflow nor underflow; the constant cancels in the ratio.
func LogToPosterior(results []Result) {
	if len(results) == 0 {
		return
	}
	k := math.Inf(-1)
	for i := range results {
		if math.IsNaN(results[i].Score) {
			results[i].Score = math.Inf(-1)
		}
		k = max(k, results[i].Score)
	}
	switch {
	case math.IsInf(k, -1):
		uniform := 1 / float64(len(results))
		for i := range results {
			results[i].Score = uniform
		}
		return
	case math.IsInf(k, 1):
		var top float64
		for _, r := range results {
			if r.Score == k {
				top++
			}
		}
		for i := range results {
			if results[i].Score == k {
				results[i].Score = 1 / top
			} else {
				results[i].Score = 0
			}
		}
		return
	}
	var sum float64
	for i := range results {
		results[i].Score = math.Exp(results[i].Score - k)
		sum += results[i].Score
	}
	for i := range results {
		results[i].Score /= sum
	}
}
