package format

import "testing"

func TestEscapeMarkdown(t *testing.T) {
	cases := []struct {
		version int
		in      string
		want    string
	}{
		{MarkdownV2, "From 1 to 1000 RUB.", `From 1 to 1000 RUB\.`},
		{MarkdownV2, "7 (___) ___-__-__", `7 \(\_\_\_\) \_\_\_\-\_\_\-\_\_`},
		{MarkdownV2, "Payment completed successfully!", `Payment completed successfully\!`},
		{MarkdownV2, `a\b`, `a\\b`},
		{MarkdownV1, "*bold* _it_ [x]", `\*bold\* \_it\_ \[x]`},
		{MarkdownV2, "MTS", "MTS"},
	}
	for _, tc := range cases {
		got, err := EscapeMarkdown(tc.in, tc.version)
		if err != nil {
			t.Fatalf("EscapeMarkdown(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("EscapeMarkdown(%q, %d) = %q, want %q", tc.in, tc.version, got, tc.want)
		}
	}

	if _, err := EscapeMarkdown("x", 3); err == nil {
		t.Fatal("expected error for unknown version")
	}
	if got := V2("1.5"); got != `1\.5` {
		t.Fatalf("V2 = %q", got)
	}
}
