package ingest

import "testing"

func TestSanitizeValue(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		want        string
		neutralized bool
	}{
		{"plain", "hello", "hello", false},
		{"script block", "a<script>alert(1)</script>b", "ab", false},
		{"script with attrs", "<SCRIPT type=\"x\">evil()</SCRIPT >ok", "ok", false},
		{"tags stripped", "<b>bold</b> text", "bold text", false},
		{"ampersand escaped", "Tom & Jerry", "Tom &amp; Jerry", false},
		{"lt escaped", "1 < 2", "1 &lt; 2", false},
		{"equals formula", "=1+1", "'=1+1", true},
		{"plus formula", "+cmd", "'+cmd", true},
		{"at formula", "@SUM(A1)", "'@SUM(A1)", true},
		{"dash formula", "-2+3", "'-2+3", true},
		{"double dash", "--x", "'--x", true},
		{"negative number", "-42", "-42", false},
		{"negative decimal", "-4.25", "-4.25", false},
		{"quoted formula", `"=HYPERLINK(1)`, `'&#34;=HYPERLINK(1)`, true},
		{"formula hidden in tag", "<i>=1</i>", "'=1", true},
		{"email", "a@b.com", "a@b.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := SanitizeValue(tt.in)
			if got != tt.want {
				t.Errorf("SanitizeValue(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if n != tt.neutralized {
				t.Errorf("neutralized = %v, want %v", n, tt.neutralized)
			}
		})
	}
}
