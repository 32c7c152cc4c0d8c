package cleaner

import "github.com/use-agent/sitecrawl/config"

func filterConfig(strategy, thresholdType string) config.FilterConfig {
	return config.FilterConfig{
		Strategy:      strategy,
		Threshold:     0.45,
		ThresholdType: thresholdType,
		Quantile:      0.5,
		MinWords:      10,
		ExcludedTags:  []string{"nav", "footer"},
		LinkStyle:     "inline",
	}
}
