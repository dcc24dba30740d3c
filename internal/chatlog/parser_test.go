package chatlog

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/models"
)

func TestParse_BasicExchange(t *testing.T) {
	input := "01/02/20, 10:00 - Alice: hello\n" +
		"01/02/20, 10:01 - Bob: hi\n" +
		"01/02/20, 10:02 - Alice added Bob\n"

	msgs, err := Parse(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("len(msgs) = %d, want 3", len(msgs))
	}

	if msgs[0].Author != "Alice" || msgs[0].Body != "hello" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	want := time.Date(2020, time.February, 1, 10, 0, 0, 0, time.UTC)
	if !msgs[0].Date.Equal(want) {
		t.Errorf("date = %v, want %v", msgs[0].Date, want)
	}
	if msgs[1].Author != "Bob" || msgs[1].Body != "hi" {
		t.Errorf("msgs[1] = %+v", msgs[1])
	}
	if !msgs[2].IsSystem() {
		t.Errorf("action line should be a system message, got author %q", msgs[2].Author)
	}
	if msgs[2].Body != "Alice added Bob" {
		t.Errorf("msgs[2].Body = %q", msgs[2].Body)
	}
}

func TestParse_ContinuationLines(t *testing.T) {
	input := "01/02/20, 10:00 - Alice: first line\n" +
		"second line\n" +
		"third line\n" +
		"01/02/20, 10:01 - Bob: ok\n"

	msgs, err := Parse(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if msgs[0].Body != "first line\nsecond line\nthird line" {
		t.Errorf("body = %q", msgs[0].Body)
	}
}

func TestParse_LeadingJunkDropped(t *testing.T) {
	input := "Messages to this chat are encrypted\n" +
		"01/02/20, 10:00 - Alice: hello\n"

	msgs, err := Parse(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	if msgs[0].Body != "hello" {
		t.Errorf("body = %q", msgs[0].Body)
	}
}

func TestParse_MediaOmitted(t *testing.T) {
	input := "01/02/20, 10:00 - Alice: " + MediaOmitted + "\n"

	msgs, err := Parse(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	if !msgs[0].HasMedia {
		t.Error("expected HasMedia")
	}
	if msgs[0].MediaRef != "" {
		t.Errorf("MediaRef = %q, want empty", msgs[0].MediaRef)
	}
}

func TestParse_FileAttached(t *testing.T) {
	input := "01/02/20, 10:00 - Alice: IMG-1234.jpg (file attached)\n"

	msgs, err := Parse(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("len(msgs) = %d, want 1", len(msgs))
	}
	if !msgs[0].HasMedia {
		t.Error("expected HasMedia")
	}
	if msgs[0].MediaRef != "IMG-1234.jpg" {
		t.Errorf("MediaRef = %q, want IMG-1234.jpg", msgs[0].MediaRef)
	}
}

func TestParse_TwelveHourClock(t *testing.T) {
	input := "01/02/20, 1:05 pm - Alice: afternoon\n" +
		"01/02/20, 12:30am - Bob: midnight\n"

	msgs, err := Parse(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len(msgs) = %d, want 2", len(msgs))
	}
	if got := msgs[0].Date.Hour(); got != 13 {
		t.Errorf("pm hour = %d, want 13", got)
	}
	if got := msgs[1].Date.Hour(); got != 0 {
		t.Errorf("12am hour = %d, want 0", got)
	}
}

func TestParse_MonthFirstOrdering(t *testing.T) {
	input := "01/02/20, 10:00 - Alice: hello\n"

	msgs, err := Parse(strings.NewReader(input), Options{DateOrder: MonthFirst})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2020, time.January, 2, 10, 0, 0, 0, time.UTC)
	if !msgs[0].Date.Equal(want) {
		t.Errorf("date = %v, want %v", msgs[0].Date, want)
	}
}

func TestParse_MalformedFileYieldsEmpty(t *testing.T) {
	input := "not a chat export\njust some text\n"

	msgs, err := Parse(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("malformed input should not error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("len(msgs) = %d, want 0", len(msgs))
	}
}

func TestParse_AuthorWithColonInBody(t *testing.T) {
	input := "01/02/20, 10:00 - Alice: note: remember this\n"

	msgs, err := Parse(strings.NewReader(input), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msgs[0].Author != "Alice" {
		t.Errorf("author = %q", msgs[0].Author)
	}
	if msgs[0].Body != "note: remember this" {
		t.Errorf("body = %q", msgs[0].Body)
	}
}

func TestParse_OrderPreserved(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("01/02/20, 10:00 - Alice: msg\n")
	}
	msgs, err := Parse(strings.NewReader(b.String()), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 50 {
		t.Fatalf("len(msgs) = %d, want 50", len(msgs))
	}
	for i, m := range msgs {
		if m.Author != "Alice" {
			t.Fatalf("msgs[%d].Author = %q", i, m.Author)
		}
	}
}

func TestDeriveName_StripsPrefixAndExtension(t *testing.T) {
	cases := map[string]string{
		"WhatsApp Chat with Group A.zip":   "Group A",
		"WhatsApp Chat with Group A.txt":   "Group A",
		"whatsapp chat with lowercase.txt": "lowercase",
		"Other Export.zip":                 "Other Export",
	}
	for in, want := range cases {
		if got := models.DeriveName(in); got != want {
			t.Errorf("DeriveName(%q) = %q, want %q", in, got, want)
		}
	}
}
