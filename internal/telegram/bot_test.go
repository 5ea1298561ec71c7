package telegram

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/afelu/guardian/internal/course"
	"github.com/afelu/guardian/internal/service"
	"github.com/afelu/guardian/internal/webfetch"
)

func testBot(t *testing.T) *Bot {
	t.Helper()
	catalog, err := course.Load()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Bot{
		log:     log,
		courses: service.NewCourseService(catalog, nil, nil, nil, log),
	}
}

func TestUserMessageMapping(t *testing.T) {
	b := testBot(t)
	friendly := []error{
		service.ErrCodeInvalid,
		service.ErrCodeUsed,
		service.ErrRateLimited,
		service.ErrNeedRedeem,
		service.ErrQuotaExhausted,
		service.ErrCourseNotFound,
		service.ErrLessonNotFound,
		service.ErrNotEnrolled,
		service.ErrPremiumCourse,
		service.ErrCourseIncomplete,
		webfetch.ErrInvalidURL,
		webfetch.ErrBlockedURL,
	}
	for _, err := range friendly {
		if b.userMessage(err) == "" {
			t.Errorf("sentinel %v has no user-facing message", err)
		}
		// Wrapped sentinels must still map.
		if b.userMessage(fmt.Errorf("handle command: %w", err)) == "" {
			t.Errorf("wrapped sentinel %v has no user-facing message", err)
		}
	}
}

func TestUserMessageHidesInternalErrors(t *testing.T) {
	b := testBot(t)
	internal := []error{
		errors.New("dial tcp: connection refused"),
		fmt.Errorf("consume quota: %w", errors.New("driver: bad connection")),
	}
	for _, err := range internal {
		if msg := b.userMessage(err); msg != "" {
			t.Errorf("internal error leaked to user: %q", msg)
		}
	}
}

func TestUserMessageListsCatalogCourses(t *testing.T) {
	b := testBot(t)
	msg := b.userMessage(service.ErrCourseNotFound)
	for _, id := range b.courses.Catalog().FreeIDs() {
		if !strings.Contains(msg, id) {
			t.Errorf("course-not-found reply %q missing course %q", msg, id)
		}
	}
}

func TestCommandTableIsClosed(t *testing.T) {
	table := commandTable()
	want := []string{
		"start", "help", "redeem", "gpt", "image", "fetch", "translate",
		"news", "summarize", "myquota", "courses", "bootcamp", "enroll",
		"lesson", "complete", "quiz", "score", "progress", "certificates",
		"verify",
	}
	if len(table) != len(want) {
		t.Fatalf("command table has %d entries, want %d", len(table), len(want))
	}
	for _, name := range want {
		spec, ok := table[name]
		if !ok {
			t.Errorf("command %q missing", name)
			continue
		}
		if spec.handler == nil {
			t.Errorf("command %q has no handler", name)
		}
		if spec.needsArg && spec.usage == "" {
			t.Errorf("command %q requires an argument but has no usage line", name)
		}
	}
	for _, name := range []string{"news", "quiz"} {
		if table[name].needsArg {
			t.Errorf("command %q must accept a bare invocation", name)
		}
	}
}

func TestParseScoreArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       string
		wantScore  int
		wantCourse string
		wantOK     bool
	}{
		{"documented form", "85 fundamentals", 85, "fundamentals", true},
		{"uppercased course", "70 Mastery", 70, "mastery", true},
		{"zero", "0 digital", 0, "digital", true},
		{"hundred", "100 business", 100, "business", true},
		{"reversed order", "fundamentals 85", 0, "", false},
		{"above range", "101 fundamentals", 0, "", false},
		{"negative", "-1 fundamentals", 0, "", false},
		{"missing course", "85", 0, "", false},
		{"empty", "", 0, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, courseID, ok := parseScoreArgs(tt.args)
			if ok != tt.wantOK {
				t.Fatalf("parseScoreArgs(%q) ok = %v, want %v", tt.args, ok, tt.wantOK)
			}
			if score != tt.wantScore || courseID != tt.wantCourse {
				t.Errorf("parseScoreArgs(%q) = (%d, %q), want (%d, %q)",
					tt.args, score, courseID, tt.wantScore, tt.wantCourse)
			}
		})
	}
}

func TestNewsTopicDefaults(t *testing.T) {
	if got := newsTopic(""); got != "latest news" {
		t.Errorf("bare /news topic = %q, want latest news", got)
	}
	if got := newsTopic("  coffee prices  "); got != "coffee prices" {
		t.Errorf("topic = %q, want coffee prices", got)
	}
}

func TestQuizTopic(t *testing.T) {
	b := testBot(t)

	general, err := b.quizTopic("")
	if err != nil || general == "" {
		t.Fatalf("bare /quiz: topic %q, err %v", general, err)
	}

	courseTopic, err := b.quizTopic("fundamentals")
	if err != nil {
		t.Fatalf("course quiz: %v", err)
	}
	if !strings.Contains(courseTopic, b.courses.Catalog().Get("fundamentals").Title) {
		t.Errorf("course quiz topic %q missing course title", courseTopic)
	}

	lessonTopic, err := b.quizTopic("1.1")
	if err != nil {
		t.Fatalf("lesson quiz: %v", err)
	}
	if !strings.Contains(lessonTopic, "A Simple Introduction") {
		t.Errorf("lesson quiz topic %q missing lesson title", lessonTopic)
	}

	if _, err := b.quizTopic("9.9"); !errors.Is(err, service.ErrLessonNotFound) {
		t.Errorf("unknown argument err = %v, want ErrLessonNotFound", err)
	}
}
