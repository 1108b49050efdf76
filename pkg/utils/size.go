package utils

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"diskfiller/pkg/types"
)

var (
	ErrNotPositive  = errors.New("size must be greater than zero")
	ErrNotWholeMiB  = errors.New("size must be a whole number of MiB")
	sizeExpression  = regexp.MustCompile(`^([\d.]+)\s*([A-Za-z]+)$`)
	supportedSuffix = "B, KB, MB, GB, TB, PB, KiB, MiB, GiB, TiB, PiB"

	binaryUnits = map[string]string{
		"KB": "KiB",
		"MB": "MiB",
		"GB": "GiB",
		"TB": "TiB",
		"PB": "PiB",
	}
)

// ParseDataSize parses human-friendly data sizes like "1GB", "1.5TB", "512MB", "100KB"
// and returns the size in bytes. A bare number is taken as bytes.
// Decimal units (KB, MB, ...) are 1000-based; binary units (KiB, MiB, ...)
// and the single-letter forms (K, M, G, ...) are 1024-based.
func ParseDataSize(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, fmt.Errorf("empty size string")
	}

	if val, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		return val, nil
	}

	matches := sizeExpression.FindStringSubmatch(sizeStr)
	if len(matches) != 3 {
		return 0, fmt.Errorf("invalid size format: %s (expected format like '1GB', '512MB', '1.5TB')", sizeStr)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value: %s", matches[1])
	}

	multiplier := getMultiplier(strings.ToUpper(matches[2]))
	if multiplier == 0 {
		return 0, fmt.Errorf("unknown unit: %s (supported: %s)", matches[2], supportedSuffix)
	}

	scaled := value * float64(multiplier)
	if scaled >= math.MaxInt64 {
		return 0, fmt.Errorf("size overflow: %s", sizeStr)
	}

	return int64(scaled), nil
}

// ParseMiB parses a fill size entered by the user. A bare integer is a
// number of MiB, as in the size fields of the fill form. Units go through
// ParseDataSize and must land on a MiB boundary; KB, MB, GB, TB and PB are
// read as their binary counterparts, matching how sizes are displayed.
func ParseMiB(sizeStr string) (int64, error) {
	sizeStr = strings.TrimSpace(sizeStr)

	if val, err := strconv.ParseInt(sizeStr, 10, 64); err == nil {
		if val <= 0 {
			return 0, fmt.Errorf("%q: %w", sizeStr, ErrNotPositive)
		}
		return val, nil
	}

	input := sizeStr
	if m := sizeExpression.FindStringSubmatch(sizeStr); m != nil {
		if unit, ok := binaryUnits[strings.ToUpper(m[2])]; ok {
			sizeStr = m[1] + unit
		}
	}

	bytes, err := ParseDataSize(sizeStr)
	if err != nil {
		return 0, err
	}
	if bytes <= 0 {
		return 0, fmt.Errorf("%q: %w", input, ErrNotPositive)
	}
	if bytes%types.MiB != 0 {
		return 0, fmt.Errorf("%q: %w", input, ErrNotWholeMiB)
	}

	return bytes / types.MiB, nil
}

// FormatDataSize formats bytes into human-readable format
func FormatDataSize(bytes int64) string {
	if bytes < 0 {
		return "invalid"
	}

	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	units := []string{"B", "KB", "MB", "GB", "TB", "PB"}
	exp := 0
	div := int64(unit)

	for n := bytes / unit; n >= unit && exp < len(units)-2; n /= unit {
		div *= unit
		exp++
	}
	exp++

	value := float64(bytes) / float64(div)

	if value == float64(int64(value)) {
		return fmt.Sprintf("%.0f %s", value, units[exp])
	} else if value*10 == float64(int64(value*10)) {
		return fmt.Sprintf("%.1f %s", value, units[exp])
	}
	return fmt.Sprintf("%.2f %s", value, units[exp])
}

// FormatMiB formats a MiB count the same way FormatDataSize does.
func FormatMiB(mib int64) string {
	return FormatDataSize(mib * types.MiB)
}

func getMultiplier(unit string) int64 {
	switch unit {
	case "B", "BYTE", "BYTES":
		return 1

	case "KB":
		return 1000
	case "MB":
		return 1000 * 1000
	case "GB":
		return 1000 * 1000 * 1000
	case "TB":
		return 1000 * 1000 * 1000 * 1000
	case "PB":
		return 1000 * 1000 * 1000 * 1000 * 1000

	case "KIB", "K":
		return 1024
	case "MIB", "M":
		return types.MiB
	case "GIB", "G":
		return 1024 * types.MiB
	case "TIB", "T":
		return 1024 * 1024 * types.MiB
	case "PIB", "P":
		return 1024 * 1024 * 1024 * types.MiB

	default:
		return 0
	}
}
