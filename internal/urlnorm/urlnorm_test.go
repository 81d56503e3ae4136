package urlnorm

import "testing"

func TestCanonicalURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://dbrowser.io", "https://dbrowser.io"},
		{"https://dbrowser.io/", "https://dbrowser.io"},
		{"HTTPS://DBrowser.IO/", "https://dbrowser.io"},
		{"dweb://bob.com/posts/1.json", "dweb://bob.com/posts/1.json"},
		{"dweb://Bob.com/Posts/1.json/", "dweb://bob.com/Posts/1.json"},
		{"bob.com/posts/1.json", "dweb://bob.com/posts/1.json"},
		{"  dweb://alice  ", "dweb://alice"},
		{"https://x.io/a/?q=1", "https://x.io/a?q=1"},
		{"https://x.io/#top", "https://x.io#top"},
		{"https://x.io/a//", "https://x.io/a"},
		{"dweb://bob.com/posts///", "dweb://bob.com/posts"},
	}
	for _, tc := range cases {
		if got := CanonicalURL(tc.in); got != tc.want {
			t.Errorf("CanonicalURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalOrigin(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"dweb://alice/profile.json", "dweb://alice"},
		{"dweb://alice/", "dweb://alice"},
		{"DWEB://Alice", "dweb://alice"},
		{"alice", "dweb://alice"},
		{"https://example.com:8080/a/b?c", "https://example.com:8080"},
	}
	for _, tc := range cases {
		if got := CanonicalOrigin(tc.in); got != tc.want {
			t.Errorf("CanonicalOrigin(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIdempotent(t *testing.T) {
	inputs := []string{
		"https://dbrowser.io/",
		"dweb://bob.com/posts/1.json",
		"https://x.io//",
		"HTTP://A.B/c/?d#e",
		"plainhost",
		"",
	}
	for _, in := range inputs {
		u := CanonicalURL(in)
		if again := CanonicalURL(u); again != u {
			t.Errorf("CanonicalURL not idempotent for %q: %q then %q", in, u, again)
		}
		o := CanonicalOrigin(in)
		if again := CanonicalOrigin(o); again != o {
			t.Errorf("CanonicalOrigin not idempotent for %q: %q then %q", in, o, again)
		}
	}
}

func TestSchemesStayDistinct(t *testing.T) {
	if SameOrigin("https://dbrowser.io", "dweb://dbrowser.io") {
		t.Error("web and peer origins with the same host must differ")
	}
	if CanonicalURL("https://dbrowser.io") == CanonicalURL("dweb://dbrowser.io") {
		t.Error("web and peer URLs with the same host must differ")
	}
}

func TestJoinAndRecordPath(t *testing.T) {
	u := Join("dweb://alice/", "/posts/abc.json")
	if u != "dweb://alice/posts/abc.json" {
		t.Fatalf("Join = %q", u)
	}
	if p := RecordPath(u); p != "posts/abc.json" {
		t.Errorf("RecordPath = %q", p)
	}
	if p := RecordPath("dweb://alice"); p != "" {
		t.Errorf("RecordPath(origin) = %q, want empty", p)
	}
	if !IsPeer("alice") || IsPeer("https://alice") {
		t.Error("IsPeer misclassified a reference")
	}
}
