package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name         string
		cb           *tele.Callback
		key, payload string
	}{
		{"nil", nil, "", ""},
		{"encoded", &tele.Callback{Data: "\fop|mts"}, "op", "mts"},
		{"no payload", &tele.Callback{Data: "\fpay"}, "pay", ""},
		{"payload with separator", &tele.Callback{Data: "\fpay|a|b"}, "pay", "a|b"},
		{"routed by unique", &tele.Callback{Unique: "op", Data: "beeline"}, "op", "beeline"},
		{"plain data", &tele.Callback{Data: "pay|submit"}, "pay", "submit"},
	}
	for _, tc := range cases {
		key, payload := ParseCallbackData(tc.cb)
		if key != tc.key || payload != tc.payload {
			t.Errorf("%s: got (%q, %q), want (%q, %q)", tc.name, key, payload, tc.key, tc.payload)
		}
	}
}
