// Package chatlog parses WhatsApp chat-export text into ordered message
// records and enumerates export files on disk.
package chatlog

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/models"
)

// MediaOmitted is the placeholder WhatsApp substitutes for media in a
// text-only export. It marks a message as having media with no resolvable
// reference at parse time.
const MediaOmitted = "<Media omitted>"

// MsgDeleted is the placeholder left behind when a sender deletes a message.
const MsgDeleted = "This message was deleted"

// DateOrder selects how the ambiguous leading date stamp is read.
type DateOrder string

// Recognized date orderings.
const (
	DayFirst   DateOrder = "dd/mm/yy"
	MonthFirst DateOrder = "mm/dd/yy"
)

var (
	// A message line: "01/02/20, 10:00 - Alice: hi". The author segment
	// cannot contain a colon; anything after the first ": " is body.
	msgLineRe = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}), (\d{1,2}:\d{2}(?: ?[apAP][mM])?) - ([^:]+): (.*)$`)
	// An action line: same stamp but no author colon, e.g.
	// "01/02/20, 10:02 - Alice added Bob". Recorded as a System message.
	actionLineRe = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/\d{2,4}), (\d{1,2}:\d{2}(?: ?[apAP][mM])?) - ([^:]+)$`)
	// "IMG-1234.jpg (file attached)" ties a message to an exported media file.
	fileAttachedRe = regexp.MustCompile(`^(.*?) \(file attached\)`)
)

// Options configures parsing.
type Options struct {
	DateOrder DateOrder
}

// Parse converts one raw export-text stream into an ordered message slice.
//
// Lines that carry no parsable timestamp are continuation lines: they are
// appended (with their line breaks) to the previous message's body, never
// emitted as messages of their own. A file in which no line matches the
// grammar yields an empty slice and a nil error; the caller decides how
// loudly to report that.
func Parse(r io.Reader, opts Options) ([]models.Message, error) {
	if opts.DateOrder == "" {
		opts.DateOrder = DayFirst
	}

	var msgs []models.Message
	var cur *models.Message

	flush := func() {
		if cur != nil {
			msgs = append(msgs, *cur)
			cur = nil
		}
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")

		if m := msgLineRe.FindStringSubmatch(line); m != nil {
			ts, ok := parseStamp(m[1], m[2], opts.DateOrder)
			if ok {
				flush()
				cur = &models.Message{
					Date:   ts,
					Author: strings.TrimSpace(m[3]),
					Body:   m[4],
				}
				continue
			}
		}
		if m := actionLineRe.FindStringSubmatch(line); m != nil {
			ts, ok := parseStamp(m[1], m[2], opts.DateOrder)
			if ok {
				flush()
				msgs = append(msgs, models.Message{
					Date:   ts,
					Author: models.SystemAuthor,
					Body:   strings.TrimSpace(m[3]),
				})
				continue
			}
		}

		// Continuation of the previous message; leading junk with no
		// preceding message is dropped.
		if cur != nil {
			cur.Body += "\n" + line
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flush()

	for i := range msgs {
		finalize(&msgs[i])
	}
	return msgs, nil
}

// finalize trims the body and resolves media markers.
func finalize(m *models.Message) {
	m.Body = strings.TrimSpace(m.Body)
	if m.Body == MediaOmitted {
		m.HasMedia = true
		return
	}
	if att := fileAttachedRe.FindStringSubmatch(m.Body); att != nil {
		m.HasMedia = true
		m.MediaRef = att[1]
	}
}

// parseStamp builds a timestamp from the date and time fragments of a
// matched line. The date ordering is a configuration choice, not a guess:
// "01/02/20" is 1 Feb or 2 Jan depending on the originating locale.
func parseStamp(day, tm string, order DateOrder) (time.Time, bool) {
	dp := strings.Split(day, "/")
	if len(dp) != 3 {
		return time.Time{}, false
	}
	a, err1 := strconv.Atoi(dp[0])
	b, err2 := strconv.Atoi(dp[1])
	year, err3 := strconv.Atoi(dp[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if year < 100 {
		year += 2000
	}

	d, mo := a, b
	if order == MonthFirst {
		d, mo = b, a
	}
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}

	hour, minute, ok := parseClock(tm)
	if !ok {
		return time.Time{}, false
	}

	return time.Date(year, time.Month(mo), d, hour, minute, 0, 0, time.UTC), true
}

// parseClock reads "10:00", "1:05 pm" or "1:05pm".
func parseClock(tm string) (hour, minute int, ok bool) {
	tm = strings.TrimSpace(tm)
	lower := strings.ToLower(tm)

	var meridiem string
	for _, suffix := range []string{"am", "pm"} {
		if strings.HasSuffix(lower, suffix) {
			meridiem = suffix
			tm = strings.TrimSpace(tm[:len(tm)-len(suffix)])
			break
		}
	}

	hm := strings.Split(tm, ":")
	if len(hm) != 2 {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(hm[0])
	m, err2 := strconv.Atoi(hm[1])
	if err1 != nil || err2 != nil || h > 23 || m > 59 {
		return 0, 0, false
	}

	switch meridiem {
	case "pm":
		if h > 12 {
			return 0, 0, false
		}
		if h != 12 {
			h += 12
		}
	case "am":
		if h > 12 {
			return 0, 0, false
		}
		if h == 12 {
			h = 0
		}
	}
	return h, m, true
}
