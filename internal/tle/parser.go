package tle

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"
)

const lineLength = 69

// ParseError describes why a TLE line pair was rejected.
type ParseError struct {
	Line   int // 1 or 2; 0 when the pair as a whole is at fault
	Field  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("tle: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("tle: line %d %s: %s", e.Line, e.Field, e.Reason)
}

// Parse strictly validates a two-line element pair and extracts its orbital
// elements. Lines must be exactly 69 characters with correct line-number
// prefixes, valid mod-10 checksums, and matching catalog numbers. Any
// violation returns a *ParseError; nothing is coerced.
func Parse(line1, line2 string) (*OrbitalElements, error) {
	line1 = strings.TrimRight(line1, "\r\n")
	line2 = strings.TrimRight(line2, "\r\n")

	if len(line1) != lineLength {
		return nil, &ParseError{Line: 1, Field: "length", Reason: fmt.Sprintf("got %d characters, want %d", len(line1), lineLength)}
	}
	if len(line2) != lineLength {
		return nil, &ParseError{Line: 2, Field: "length", Reason: fmt.Sprintf("got %d characters, want %d", len(line2), lineLength)}
	}
	if !strings.HasPrefix(line1, "1 ") {
		return nil, &ParseError{Line: 1, Field: "prefix", Reason: "line does not start with \"1 \""}
	}
	if !strings.HasPrefix(line2, "2 ") {
		return nil, &ParseError{Line: 2, Field: "prefix", Reason: "line does not start with \"2 \""}
	}
	if got, want := checksum(line1), int(line1[68]-'0'); got != want {
		return nil, &ParseError{Line: 1, Field: "checksum", Reason: fmt.Sprintf("computed %d, line claims %d", got, want)}
	}
	if got, want := checksum(line2), int(line2[68]-'0'); got != want {
		return nil, &ParseError{Line: 2, Field: "checksum", Reason: fmt.Sprintf("computed %d, line claims %d", got, want)}
	}

	cat1, err := strconv.Atoi(strings.TrimSpace(line1[2:7]))
	if err != nil {
		return nil, &ParseError{Line: 1, Field: "catalog number", Reason: err.Error()}
	}
	cat2, err := strconv.Atoi(strings.TrimSpace(line2[2:7]))
	if err != nil {
		return nil, &ParseError{Line: 2, Field: "catalog number", Reason: err.Error()}
	}
	if cat1 != cat2 {
		return nil, &ParseError{Field: "catalog number", Reason: fmt.Sprintf("line 1 has %d, line 2 has %d", cat1, cat2)}
	}

	epoch, err := parseEpoch(strings.TrimSpace(line1[18:32]))
	if err != nil {
		return nil, &ParseError{Line: 1, Field: "epoch", Reason: err.Error()}
	}

	bstar, err := parsePointField(line1[53:61])
	if err != nil {
		return nil, &ParseError{Line: 1, Field: "bstar", Reason: err.Error()}
	}

	incl, err := parseAngle(line2[8:16])
	if err != nil {
		return nil, &ParseError{Line: 2, Field: "inclination", Reason: err.Error()}
	}
	raan, err := parseAngle(line2[17:25])
	if err != nil {
		return nil, &ParseError{Line: 2, Field: "raan", Reason: err.Error()}
	}
	ecc, err := strconv.ParseFloat("0."+strings.TrimSpace(line2[26:33]), 64)
	if err != nil {
		return nil, &ParseError{Line: 2, Field: "eccentricity", Reason: err.Error()}
	}
	if ecc < 0 || ecc >= 1 {
		return nil, &ParseError{Line: 2, Field: "eccentricity", Reason: fmt.Sprintf("%g outside [0,1)", ecc)}
	}
	argp, err := parseAngle(line2[34:42])
	if err != nil {
		return nil, &ParseError{Line: 2, Field: "argument of perigee", Reason: err.Error()}
	}
	ma, err := parseAngle(line2[43:51])
	if err != nil {
		return nil, &ParseError{Line: 2, Field: "mean anomaly", Reason: err.Error()}
	}
	revs, err := strconv.ParseFloat(strings.TrimSpace(line2[52:63]), 64)
	if err != nil {
		return nil, &ParseError{Line: 2, Field: "mean motion", Reason: err.Error()}
	}
	if revs <= 0 {
		return nil, &ParseError{Line: 2, Field: "mean motion", Reason: fmt.Sprintf("%g revolutions per day, want > 0", revs)}
	}

	return &OrbitalElements{
		CatalogNumber: cat1,
		Epoch:         epoch,
		Inclination:   incl,
		RAAN:          raan,
		Eccentricity:  ecc,
		ArgPerigee:    argp,
		MeanAnomaly:   ma,
		MeanMotion:    revs * 2 * math.Pi / 86400,
		RevsPerDay:    revs,
		BStar:         bstar,
		Line1:         line1,
		Line2:         line2,
	}, nil
}

// ParseCatalog reads bulk catalog text from r, in the 3-line named format or
// as bare line pairs, and returns the entries that parse. Bulk sources
// routinely contain junk, so malformed entries are skipped with a warning
// instead of failing the whole catalog.
func ParseCatalog(r io.Reader, logger *slog.Logger) ([]OrbitalElements, error) {
	scanner := bufio.NewScanner(r)
	var lines []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var entries []OrbitalElements
	name := ""
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.HasPrefix(line, "1 ") {
			// Anything that is not a line 1 is a candidate name line.
			name = strings.TrimSpace(line)
			continue
		}
		if i+1 >= len(lines) {
			logger.Warn("skipping dangling TLE line 1", "line_index", i, "name", name)
			break
		}
		el, err := Parse(line, lines[i+1])
		if err != nil {
			logger.Warn("skipping malformed TLE entry", "line_index", i, "name", name, "error", err)
			name = ""
			continue
		}
		el.Name = name
		entries = append(entries, *el)
		name = ""
		i++
	}

	return entries, nil
}

// checksum computes the mod-10 TLE line checksum over the first 68
// characters: digits add their value, each minus sign adds 1.
func checksum(line string) int {
	sum := 0
	for _, c := range line[:68] {
		switch {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return sum % 10
}

// parseAngle converts a degrees field to radians.
func parseAngle(s string) (float64, error) {
	deg, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	return deg * math.Pi / 180, nil
}

// parsePointField converts TLE assumed-decimal-point notation such as
// " 42173-4" or "-11606-4" into its value (here 0.42173e-4, -0.11606e-4).
func parsePointField(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty field")
	}
	sign := 1.0
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	exp := 0
	if i := strings.LastIndexAny(s, "+-"); i > 0 {
		e, err := strconv.Atoi(s[i:])
		if err != nil {
			return 0, fmt.Errorf("bad exponent %q", s[i:])
		}
		exp = e
		s = s[:i]
	}
	mant, err := strconv.ParseFloat("0."+s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad mantissa %q", s)
	}
	return sign * mant * math.Pow(10, float64(exp)), nil
}

// parseEpoch converts a TLE epoch in YYDDD.DDDDDDDD form to UTC time.
// Years 57-99 are in the 1900s, 00-56 in the 2000s.
func parseEpoch(s string) (time.Time, error) {
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("epoch string too short: %q", s)
	}

	year, err := strconv.Atoi(s[:2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch year %q: %w", s[:2], err)
	}
	if year >= 57 {
		year += 1900
	} else {
		year += 2000
	}

	dayOfYear, err := strconv.ParseFloat(s[2:], 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid epoch day %q: %w", s[2:], err)
	}
	if dayOfYear < 1 || dayOfYear >= 367 {
		return time.Time{}, fmt.Errorf("epoch day %g out of range", dayOfYear)
	}

	// Day numbers are 1-based: day 1.0 is Jan 1 00:00 UTC.
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((dayOfYear - 1) * float64(24*time.Hour))), nil
}
