package router_test

import (
	"testing"

	"github.com/openintentos/openintent/internal/router"
)

func TestClassifyComplexity(t *testing.T) {
	cases := []struct {
		text string
		want router.Tier
	}{
		{"hello there", router.TierLight},
		{"what is the capital of Peru", router.TierLight},
		{"你好，今天天气怎么样", router.TierLight},
		{"thanks a lot", router.TierLight},
		{"summarize this meeting transcript", router.TierMedium},
		{"translate the changelog to French", router.TierMedium},
		{"implement a rate limiter in the gateway", router.TierHeavy},
		{"please Refactor the session store", router.TierHeavy},
		{"帮我重构这个模块", router.TierHeavy},
		// heavy keywords win even when a light keyword is also present
		{"hi there, can you debug this stack trace", router.TierHeavy},
	}
	for _, tc := range cases {
		if got := router.ClassifyComplexity(tc.text); got != tc.want {
			t.Errorf("ClassifyComplexity(%q) = %s, want %s", tc.text, got, tc.want)
		}
	}
}
