package forecast

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSeason normalizes the various season spellings that show up in
// feed data and CLI input into the canonical YYYY/YYYY form.
// Accepted inputs: "2025/2026", "2025-2026", "2025/26", "2025-26".
func ParseSeason(season string) (string, error) {
	ss := strings.TrimSpace(season)
	if ss == "" {
		return "", fmt.Errorf("must pass a season")
	}
	// Full form, delimiter may be a hyphen
	if len(ss) == 9 && (ss[4] == '-' || ss[4] == '/') {
		first, err := strconv.Atoi(ss[:4])
		if err != nil {
			return "", fmt.Errorf("invalid season format: %s", ss)
		}
		second, err := strconv.Atoi(ss[5:])
		if err != nil {
			return "", fmt.Errorf("invalid season format: %s", ss)
		}
		if second != first+1 {
			return "", fmt.Errorf("season years must be consecutive: %s", ss)
		}
		return fmt.Sprintf("%s/%s", ss[:4], ss[5:]), nil
	}
	// Short form of the type 2025/26
	if len(ss) == 7 && (ss[4] == '-' || ss[4] == '/') {
		first, err := strconv.Atoi(ss[:4])
		if err != nil {
			return "", fmt.Errorf("invalid season format: %s", ss)
		}
		return ParseSeason(fmt.Sprintf("%d/%d", first, first+1))
	}
	return "", fmt.Errorf("invalid season format: %s", ss)
}

// GetFirstYear returns the opening year of a season
func GetFirstYear(season string) (int, error) {
	s, err := ParseSeason(season)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s[:4])
}

// GetSecondYear returns the closing year of a season
func GetSecondYear(season string) (int, error) {
	s, err := ParseSeason(season)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(s[5:])
}

// IsSameSeason reports whether two season spellings refer to the same
// season once normalized.
func IsSameSeason(s1, s2 string) (bool, error) {
	season1, err := ParseSeason(s1)
	if err != nil {
		return false, err
	}
	season2, err := ParseSeason(s2)
	if err != nil {
		return false, err
	}
	return season1 == season2, nil
}
