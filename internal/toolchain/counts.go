package toolchain

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mpataki/foundry/internal/models"
)

var (
	pytestCount    = regexp.MustCompile(`(\d+) (passed|failed|errors?|skipped|xfailed|xpassed)\b`)
	pytestDuration = regexp.MustCompile(` in [\d.]+s\b`)
	surefireTotals = regexp.MustCompile(`Tests run: (\d+), Failures: (\d+), Errors: (\d+), Skipped: (\d+)`)
)

// CountTests reads test counts from a pytest or surefire log.
func CountTests(log string, lang models.Language) models.TestCounts {
	var c models.TestCounts
	switch lang {
	case models.LanguagePython:
		line := pytestSummaryLine(log)
		var skipped int
		for _, m := range pytestCount.FindAllStringSubmatch(line, -1) {
			n, _ := strconv.Atoi(m[1])
			switch {
			case m[2] == "passed" || m[2] == "xpassed":
				c.Passed += n
			case m[2] == "failed" || strings.HasPrefix(m[2], "error"):
				c.Failed += n
			default:
				skipped += n
			}
		}
		c.Discovered = c.Passed + c.Failed + skipped

	case models.LanguageJava, models.LanguageKotlin:
		// The last totals line is the aggregate over all test classes.
		all := surefireTotals.FindAllStringSubmatch(log, -1)
		if len(all) == 0 {
			return c
		}
		m := all[len(all)-1]
		run, _ := strconv.Atoi(m[1])
		failures, _ := strconv.Atoi(m[2])
		errs, _ := strconv.Atoi(m[3])
		skipped, _ := strconv.Atoi(m[4])
		c.Discovered = run
		c.Failed = failures + errs
		c.Passed = run - c.Failed - skipped
	}
	return c
}

// pytestSummaryLine returns the final "N passed, M failed in Xs" line.
func pytestSummaryLine(log string) string {
	lines := strings.Split(log, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if pytestDuration.MatchString(lines[i]) && pytestCount.MatchString(lines[i]) {
			return lines[i]
		}
	}
	return ""
}
