package track

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var lrcLine = regexp.MustCompile(`^\[(\d{2}):(\d{2})\.(\d{2,3})\](.*)`)

// LyricLine is a single timed line of synced (LRC) lyrics.
type LyricLine struct {
	Time time.Duration
	Text string
}

// ParseLRC parses LRC-formatted lyrics into timed lines.
// Lines without a [mm:ss.xx] tag are skipped.
func ParseLRC(lrc string) []LyricLine {
	if lrc == "" {
		return nil
	}

	var lines []LyricLine
	for _, raw := range strings.Split(lrc, "\n") {
		m := lrcLine.FindStringSubmatch(strings.TrimRight(raw, "\r"))
		if m == nil {
			continue
		}
		minutes, _ := strconv.Atoi(m[1])
		seconds, _ := strconv.Atoi(m[2])
		// "12" is centiseconds, "123" is milliseconds
		frac := m[3]
		for len(frac) < 3 {
			frac += "0"
		}
		millis, _ := strconv.Atoi(frac)

		lines = append(lines, LyricLine{
			Time: time.Duration(minutes)*time.Minute +
				time.Duration(seconds)*time.Second +
				time.Duration(millis)*time.Millisecond,
			Text: strings.TrimSpace(m[4]),
		})
	}
	return lines
}

// ActiveLine returns the index of the line being sung at position, or -1.
func ActiveLine(lines []LyricLine, position time.Duration) int {
	for i, l := range lines {
		if position < l.Time {
			continue
		}
		if i+1 == len(lines) || position < lines[i+1].Time {
			return i
		}
	}
	return -1
}
