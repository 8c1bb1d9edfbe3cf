package httpapi

import (
	"fmt"
	"time"

	"github.com/memscreen/memscreend/internal/model"
)

type sessionAnalysis struct {
	Categories []string `json:"categories"`
	Patterns   []string `json:"patterns"`
	EventCount int      `json:"event_count"`
	Keystrokes int      `json:"keystrokes"`
	Clicks     int      `json:"clicks"`
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
}

// analyzeSession buckets a session's raw events into coarse categories and
// flags a handful of simple usage patterns, for /process/sessions/{id}/analysis
// (spec §6). There is no model call here; this is a cheap summary over
// locally-observed input, not content understanding.
func analyzeSession(sess model.InputSession, events []model.InputEvent) sessionAnalysis {
	var keyEvents, mouseEvents, scrollEvents int
	for _, e := range events {
		switch e.Kind {
		case model.InputKeyPress, model.InputKeyRelease:
			keyEvents++
		case model.InputMouseDown, model.InputMouseUp, model.InputMouseMove:
			mouseEvents++
		case model.InputMouseScroll:
			scrollEvents++
		}
	}

	var categories []string
	switch {
	case keyEvents > mouseEvents && keyEvents > scrollEvents:
		categories = append(categories, "typing")
	case mouseEvents > 0:
		categories = append(categories, "pointing")
	}
	if scrollEvents > 0 {
		categories = append(categories, "scrolling")
	}
	if len(categories) == 0 {
		categories = append(categories, "idle")
	}

	var patterns []string
	if sess.ClickCount > 50 {
		patterns = append(patterns, "high click volume")
	}
	if sess.KeystrokeCount > 200 {
		patterns = append(patterns, "heavy typing")
	}
	duration := sess.EndTime.Sub(sess.StartTime)
	if duration > 0 && sess.EventCount > 0 {
		rate := float64(sess.EventCount) / duration.Seconds()
		if rate > 5 {
			patterns = append(patterns, "rapid activity")
		} else if rate < 0.1 {
			patterns = append(patterns, "mostly idle")
		}
	}
	if len(patterns) == 0 {
		patterns = append(patterns, fmt.Sprintf("%d events over %s", sess.EventCount, duration.Round(time.Second)))
	}

	return sessionAnalysis{
		Categories: categories,
		Patterns:   patterns,
		EventCount: sess.EventCount,
		Keystrokes: sess.KeystrokeCount,
		Clicks:     sess.ClickCount,
		StartTime:  sess.StartTime.Format("2006-01-02T15:04:05Z07:00"),
		EndTime:    sess.EndTime.Format("2006-01-02T15:04:05Z07:00"),
	}
}
