package ingest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var priceRegex = regexp.MustCompile(`\d[\d,]*(?:\.\d{1,2})?`)

// ParsePrice extracts a total price from text such as "£1,249.00",
// "from £899 total" or "1249". It refuses anything it cannot read as a
// positive number rather than guessing.
func ParsePrice(text string) (float64, error) {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return 0, fmt.Errorf("empty price")
	}

	lower := strings.ToLower(clean)
	if strings.Contains(lower, "call") || strings.Contains(lower, "poa") {
		return 0, fmt.Errorf("no price quoted: %q", text)
	}
	if strings.HasPrefix(strings.TrimLeft(clean, "£€$ "), "-") {
		return 0, fmt.Errorf("negative price: %q", text)
	}

	matches := priceRegex.FindAllString(clean, -1)
	if len(matches) != 1 {
		// Zero or several numbers: "was £900 now £800" is ambiguous here
		// and must be split by the provider parser.
		return 0, fmt.Errorf("cannot read a single price from %q", text)
	}

	val, err := strconv.ParseFloat(strings.ReplaceAll(matches[0], ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", text, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("non-positive price %q", text)
	}
	return val, nil
}

// parsePercent reads "20% off", "Save 15%" and similar.
func parsePercent(text string) float64 {
	idx := strings.Index(text, "%")
	if idx <= 0 {
		return 0
	}
	start := idx
	for start > 0 && (text[start-1] == '.' || (text[start-1] >= '0' && text[start-1] <= '9')) {
		start--
	}
	v, err := strconv.ParseFloat(text[start:idx], 64)
	if err != nil || v <= 0 || v > 100 {
		return 0
	}
	return v
}

// ParseNights reads a night count from "7 nights", "7" or "7-night".
func ParseNights(text string) (int, error) {
	digits := strings.TrimSpace(text)
	end := 0
	for end < len(digits) && digits[end] >= '0' && digits[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("no night count in %q", text)
	}
	n, err := strconv.Atoi(digits[:end])
	if err != nil || n < 1 || n > 60 {
		return 0, fmt.Errorf("implausible night count %q", text)
	}
	return n, nil
}
