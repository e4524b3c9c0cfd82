package ranges

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const separator = ","

// Interval is an inclusive span of discussion IDs that has been fully
// processed. Start and End are both part of the interval.
type Interval struct {
	Start int
	End   int
}

func (iv Interval) String() string {
	return fmt.Sprintf("(%d, %d)", iv.Start, iv.End)
}

// Tracker records which discussion ID spans have already been processed, so
// a batch over a large range can be rerun without redoing finished work. The
// file holds one interval per line as "start,end". A single writer is
// assumed; there is no cross-process locking.
type Tracker struct {
	path      string
	intervals []Interval
}

// NewTracker creates a tracker persisting to the given file path.
func NewTracker(path string) *Tracker {
	return &Tracker{path: path}
}

// AddRange records the half-open ID span [start, end) as processed. The span
// is stored inclusively as [start, end-1] and merged with any stored interval
// it overlaps or is adjacent to. Calling it again with the same or an
// overlapping span leaves the stored set unchanged beyond the first call.
func (t *Tracker) AddRange(start, end int) error {
	if start >= end {
		return fmt.Errorf("invalid range [%d, %d)", start, end)
	}

	if err := t.Load(); err != nil {
		return err
	}

	t.insert(Interval{Start: start, End: end - 1})

	return t.Save()
}

// insert merges the interval into the sorted interval list. Intervals that
// overlap or are directly adjacent collapse into one; intervals separated by
// an unprocessed ID stay apart.
func (t *Tracker) insert(iv Interval) {
	index := 0
	for index < len(t.intervals) && t.intervals[index].End < iv.Start-1 {
		index++
	}

	newStart := iv.Start
	newEnd := iv.End
	for index < len(t.intervals) && t.intervals[index].Start <= iv.End+1 {
		if t.intervals[index].Start < newStart {
			newStart = t.intervals[index].Start
		}
		if t.intervals[index].End > newEnd {
			newEnd = t.intervals[index].End
		}
		t.intervals = append(t.intervals[:index], t.intervals[index+1:]...)
	}

	t.intervals = append(t.intervals, Interval{})
	copy(t.intervals[index+1:], t.intervals[index:])
	t.intervals[index] = Interval{Start: newStart, End: newEnd}
}

// Contains reports whether the single ID is inside a tracked interval.
func (t *Tracker) Contains(id int) bool {
	for _, iv := range t.intervals {
		if id >= iv.Start && id <= iv.End {
			return true
		}
	}
	return false
}

// NextGap returns the first half-open span [start, start+size) at or after
// from that does not overlap any tracked interval. Used by watch mode to pick
// the next block to discover.
func (t *Tracker) NextGap(from, size int) (int, int) {
	start := from
	for _, iv := range t.intervals {
		if iv.End < start {
			continue
		}
		if iv.Start >= start+size {
			break
		}
		start = iv.End + 1
	}
	return start, start + size
}

// Intervals returns a copy of the tracked intervals, sorted by start.
func (t *Tracker) Intervals() []Interval {
	out := make([]Interval, len(t.intervals))
	copy(out, t.intervals)
	return out
}

// Load reads the interval file. A missing file yields an empty set. Malformed
// lines are logged and skipped rather than aborting the run.
func (t *Tracker) Load() error {
	t.intervals = nil

	data, err := os.ReadFile(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read ranges file %s: %w", t.path, err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		iv, err := parseLine(line)
		if err != nil {
			logrus.Errorf("Skipping malformed range line %q: %v", line, err)
			continue
		}

		t.intervals = append(t.intervals, iv)
	}

	return nil
}

func parseLine(line string) (Interval, error) {
	parts := strings.SplitN(line, separator, 2)
	if len(parts) != 2 {
		return Interval{}, fmt.Errorf("missing separator")
	}

	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Interval{}, fmt.Errorf("bad start: %w", err)
	}

	end, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Interval{}, fmt.Errorf("bad end: %w", err)
	}

	if start > end {
		return Interval{}, fmt.Errorf("start %d after end %d", start, end)
	}

	return Interval{Start: start, End: end}, nil
}

// Save writes the interval set back to the file, one interval per line,
// sorted by start.
func (t *Tracker) Save() error {
	var sb strings.Builder
	for _, iv := range t.intervals {
		sb.WriteString(strconv.Itoa(iv.Start))
		sb.WriteString(separator)
		sb.WriteString(strconv.Itoa(iv.End))
		sb.WriteString("\n")
	}

	if err := os.WriteFile(t.path, []byte(sb.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write ranges file %s: %w", t.path, err)
	}

	return nil
}
