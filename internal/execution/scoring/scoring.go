// Package scoring converts per-test-case results into a 0..100 score.
package scoring

import "gradex/internal/execution/model"

// Score computes the weighted percentage of passed test cases. Weights
// come from the request's test cases; when every weight is zero the score
// degrades to the plain passed/total ratio so an all-pass run still earns
// 100.
func Score(cases []model.TestCase, results []model.TestCaseResult) float64 {
	if len(results) == 0 {
		return 0
	}

	weights := make(map[string]float64, len(cases))
	var totalWeight float64
	for _, tc := range cases {
		weights[tc.ID] = tc.Weight
		totalWeight += tc.Weight
	}

	if totalWeight <= 0 {
		passed := 0
		for _, res := range results {
			if res.Passed {
				passed++
			}
		}
		return clamp(float64(passed) / float64(len(results)) * 100)
	}

	var earned float64
	for _, res := range results {
		if res.Passed {
			earned += weights[res.TestCaseID]
		}
	}
	return clamp(earned / totalWeight * 100)
}

// CountPassed returns the number of passing results.
func CountPassed(results []model.TestCaseResult) int {
	passed := 0
	for _, res := range results {
		if res.Passed {
			passed++
		}
	}
	return passed
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
