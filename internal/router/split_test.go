package router_test

import (
	"strings"
	"testing"

	"github.com/openintentos/openintent/internal/router"
)

func TestSplitTasksNoMarkers(t *testing.T) {
	got := router.SplitTasks("just check the weather in Berlin")
	if len(got) != 1 {
		t.Fatalf("got %+v", got)
	}
	if got[0].Index != 0 || got[0].Text != "just check the weather in Berlin" {
		t.Fatalf("got %+v", got)
	}
}

func TestSplitTasksEmpty(t *testing.T) {
	if got := router.SplitTasks("   \n  "); got != nil {
		t.Fatalf("got %+v", got)
	}
}

func TestSplitTasksNumbered(t *testing.T) {
	msg := "1. check the logs\nfor errors\n2) restart the service\n3、 report back"
	got := router.SplitTasks(msg)
	if len(got) != 3 {
		t.Fatalf("got %+v", got)
	}
	if !strings.Contains(got[0].Text, "for errors") {
		t.Fatalf("continuation line lost: %+v", got[0])
	}
	if !strings.HasPrefix(got[1].Text, "2)") || !strings.HasPrefix(got[2].Text, "3、") {
		t.Fatalf("got %+v", got)
	}
}

func TestSplitTasksCircledDigits(t *testing.T) {
	got := router.SplitTasks("① first thing\n② second thing")
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestSplitTasksBullets(t *testing.T) {
	got := router.SplitTasks("- tidy the readme\n* bump the version")
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestSplitTasksPreamblePrepends(t *testing.T) {
	msg := "please handle these today\n1. water the plants\n2. feed the cat"
	got := router.SplitTasks(msg)
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
	if !strings.HasPrefix(got[0].Text, "please handle these today\n") {
		t.Fatalf("preamble missing: %q", got[0].Text)
	}
	if strings.Contains(got[1].Text, "please handle") {
		t.Fatalf("preamble leaked into task 2: %q", got[1].Text)
	}
}

func TestSplitTasksEmojiHeadersTakePriority(t *testing.T) {
	msg := "🔧 Task one: fix the pipeline\n1. step a\n2. step b\n🚀 Task two: ship it\n- item"
	got := router.SplitTasks(msg)
	if len(got) != 2 {
		t.Fatalf("emoji mode ignored: %+v", got)
	}
	if !strings.Contains(got[0].Text, "step b") {
		t.Fatalf("numbered sub-items split out: %+v", got[0])
	}
	if !strings.Contains(got[1].Text, "ship it") || !strings.Contains(got[1].Text, "- item") {
		t.Fatalf("got %+v", got[1])
	}
}

func TestSplitTasksEmojiHeadersWithBodies(t *testing.T) {
	msg := "🎬 需求 1 — Clip\nadd subtitles\n\n🎯 需求 2 — Lead\nfind customers"
	got := router.SplitTasks(msg)
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
	if !strings.Contains(got[0].Text, "Clip") || !strings.Contains(got[0].Text, "add subtitles") {
		t.Fatalf("task 1 = %q", got[0].Text)
	}
	if !strings.Contains(got[1].Text, "Lead") || !strings.Contains(got[1].Text, "find customers") {
		t.Fatalf("task 2 = %q", got[1].Text)
	}
}

func TestSplitTasksEmojiNeedsLabel(t *testing.T) {
	// decorative emoji without a task label does not trigger emoji mode
	msg := "🎉 great news everyone\n1. do this\n2. do that"
	got := router.SplitTasks(msg)
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestSplitTasksChineseLabels(t *testing.T) {
	msg := "🔧 需求一：登录页面\n细节说明\n🔨 需求二：注册页面"
	got := router.SplitTasks(msg)
	if len(got) != 2 {
		t.Fatalf("got %+v", got)
	}
	if !strings.Contains(got[0].Text, "细节说明") {
		t.Fatalf("got %+v", got[0])
	}
}

func TestSplitTasksIndicesContiguous(t *testing.T) {
	got := router.SplitTasks("1. real task\n2. second\n3. another task")
	if len(got) != 3 {
		t.Fatalf("got %+v", got)
	}
	for i, st := range got {
		if st.Index != i {
			t.Fatalf("indices not contiguous: %+v", got)
		}
	}
}
