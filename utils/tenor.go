package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseTenor splits tenor strings like "1W", "3M", "10Y" into count and unit.
func parseTenor(tenor string) (int, byte, error) {
	tenor = strings.TrimSpace(strings.ToUpper(tenor))
	if len(tenor) < 2 {
		return 0, 0, fmt.Errorf("invalid tenor %q", tenor)
	}
	unit := tenor[len(tenor)-1]
	n, err := strconv.Atoi(tenor[:len(tenor)-1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid tenor %q: %w", tenor, err)
	}
	switch unit {
	case 'D', 'W', 'M', 'Y':
		return n, unit, nil
	}
	return 0, 0, fmt.Errorf("invalid tenor unit in %q", tenor)
}

// TenorToYears converts tenor strings like "1W", "3M", "10Y" to year fractions.
func TenorToYears(tenor string) (float64, error) {
	n, unit, err := parseTenor(tenor)
	if err != nil {
		return 0, fmt.Errorf("TenorToYears: %w", err)
	}
	switch unit {
	case 'D':
		return float64(n) / 365.0, nil
	case 'W':
		return float64(n) * 7.0 / 365.0, nil
	case 'M':
		return float64(n) / 12.0, nil
	default:
		return float64(n), nil
	}
}

// AddTenor rolls start forward by the tenor, using EDATE semantics for
// months and years.
func AddTenor(start time.Time, tenor string) (time.Time, error) {
	n, unit, err := parseTenor(tenor)
	if err != nil {
		return time.Time{}, fmt.Errorf("AddTenor: %w", err)
	}
	switch unit {
	case 'D':
		return start.AddDate(0, 0, n), nil
	case 'W':
		return start.AddDate(0, 0, 7*n), nil
	case 'M':
		return AddMonth(start, n), nil
	default:
		return AddMonth(start, 12*n), nil
	}
}
