package util

import (
	"crypto/rand"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// RenderTemplate substitutes {var} placeholders in a message body.
func RenderTemplate(body string, vars map[string]string) string {
	out := body
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

func NewSubscriberID() string {
	// ULID is sortable (nice for dashboards and debugging)
	t := time.Now().UTC()
	return "sub_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NewTestMessageID() string {
	t := time.Now().UTC()
	return "test_" + ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
