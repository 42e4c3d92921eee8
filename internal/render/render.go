// Package render turns request values into the HTML document that gets
// screenshotted.
package render

import (
	"errors"
	"fmt"
	"html"
	"os"
	"strconv"
	"strings"
	"time"
)

// Template placeholders. Every occurrence is replaced.
const (
	PlaceholderTitle    = "(TITLE_TEXT)"
	PlaceholderDate     = "(DATE)"
	PlaceholderPlatform = "(PLATFORM)"
	PlaceholderTag      = "(TAG)"
)

// DateLayout is the en-US medium date, short time form, e.g. "Jan 1, 2021, 12:00 AM".
const DateLayout = "Jan 2, 2006, 3:04 PM"

// ErrInvalidDate is returned by ParseDate for values that are not ISO 8601.
var ErrInvalidDate = errors.New("invalid date format")

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseDate accepts the ISO 8601 forms a browser's Date.parse does. Values
// without an offset are read as UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// FormatDate renders t in loc in the DateLayout form.
func FormatDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)
	// Format pads years to four digits; en-US prints the plain number.
	return t.Format("Jan 2, ") + strconv.Itoa(t.Year()) + t.Format(", 3:04 PM")
}

// Values are substituted into the template. A nil Date leaves (DATE) empty.
type Values struct {
	Title    string
	Date     *time.Time
	Platform string
	Tag      string
}

// Renderer reads the template from disk on every call.
type Renderer struct {
	TemplatePath string
	Location     *time.Location
	EscapeValues bool
}

// NewRenderer resolves timeZone and returns a Renderer for path.
func NewRenderer(path, timeZone string, escape bool) (*Renderer, error) {
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", timeZone, err)
	}
	return &Renderer{TemplatePath: path, Location: loc, EscapeValues: escape}, nil
}

// Render loads the template and substitutes v into it.
func (r *Renderer) Render(v Values) (string, error) {
	raw, err := os.ReadFile(r.TemplatePath)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	return r.Substitute(string(raw), v), nil
}

// Substitute replaces placeholders in doc. Values are inserted verbatim
// unless EscapeValues is set.
func (r *Renderer) Substitute(doc string, v Values) string {
	esc := func(s string) string { return s }
	if r.EscapeValues {
		esc = html.EscapeString
	}
	date := ""
	if v.Date != nil {
		date = FormatDate(*v.Date, r.Location)
	}
	return strings.NewReplacer(
		PlaceholderTitle, esc(v.Title),
		PlaceholderDate, esc(date),
		PlaceholderPlatform, esc(v.Platform),
		PlaceholderTag, esc(v.Tag),
	).Replace(doc)
}
