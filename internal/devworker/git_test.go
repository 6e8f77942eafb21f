package devworker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestShortHashDeterministic(t *testing.T) {
	a := ShortHash("add a healthcheck endpoint")
	b := ShortHash("add a healthcheck endpoint")
	if a != b {
		t.Fatalf("%q != %q", a, b)
	}
	if len(a) != 8 {
		t.Fatalf("got %q", a)
	}
	if a == ShortHash("remove the healthcheck endpoint") {
		t.Fatal("distinct intents hashed alike")
	}
}

func TestBranchName(t *testing.T) {
	name := BranchName("wire up metrics")
	if !strings.HasPrefix(name, "feat/dev-") || len(name) != len("feat/dev-")+8 {
		t.Fatalf("got %q", name)
	}
}

func TestCommitMessage(t *testing.T) {
	if got := CommitMessage("small fix"); got != "feat: small fix" {
		t.Fatalf("got %q", got)
	}
	long := strings.Repeat("x", 80)
	got := CommitMessage(long)
	if got != "feat: "+strings.Repeat("x", 60) {
		t.Fatalf("got %q", got)
	}
}

func TestPullRequestBody(t *testing.T) {
	body := PullRequestBody("changed two files", "wire up metrics", "dt_1")
	for _, want := range []string{"## Summary", "changed two files", "## Intent", "wire up metrics", "`dt_1`"} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in %q", want, body)
		}
	}

	long := strings.Repeat("值", 500) // 1500 bytes
	body = PullRequestBody(long, "intent", "dt_2")
	if !strings.Contains(body, "...") {
		t.Fatalf("long summary not truncated: %d bytes", len(body))
	}
	if !utf8.ValidString(body) {
		t.Fatal("truncation split a rune")
	}
}

func TestParseOriginURL(t *testing.T) {
	cases := []struct {
		origin  string
		want    RepoRef
		wantErr bool
	}{
		{origin: "git@github.com:acme/widgets.git", want: RepoRef{Owner: "acme", Name: "widgets"}},
		{origin: "https://github.com/acme/widgets", want: RepoRef{Owner: "acme", Name: "widgets"}},
		{origin: "https://github.com/acme/widgets.git\n", want: RepoRef{Owner: "acme", Name: "widgets"}},
		{origin: "https://github.com/acme/widgets/", want: RepoRef{Owner: "acme", Name: "widgets"}},
		{origin: "ftp://github.com/acme/widgets", wantErr: true},
		{origin: "git@github.com", wantErr: true},
		{origin: "https://github.com/acme", wantErr: true},
		{origin: "https://github.com/acme/widgets/extra", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseOriginURL(tc.origin)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseOriginURL(%q): want error, got %+v", tc.origin, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseOriginURL(%q): %v", tc.origin, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseOriginURL(%q) = %+v, want %+v", tc.origin, got, tc.want)
		}
	}
}

func TestTruncateUTF8(t *testing.T) {
	if got := TruncateUTF8("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
	// each rune is 3 bytes; a 10-byte cut lands mid-rune and backs up to 9
	got := TruncateUTF8(strings.Repeat("值", 5), 10)
	if got != strings.Repeat("值", 3)+"..." {
		t.Fatalf("got %q", got)
	}
	if !utf8.ValidString(got) {
		t.Fatal("cut inside a rune")
	}
}
