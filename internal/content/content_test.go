package content_test

import (
	"testing"

	"planline/internal/content"
)

func TestNormalizeAndLabel(t *testing.T) {
	if got := content.Normalize("blog post"); got != "BLOG_POST" {
		t.Fatalf("Normalize: got %q", got)
	}
	if got := content.Normalize("  Video "); got != "VIDEO" {
		t.Fatalf("Normalize trim: got %q", got)
	}
	if got := content.Label("BLOG_POST"); got != "Blog post" {
		t.Fatalf("Label: got %q", got)
	}
	if got := content.Label("VIDEO"); got != "Video" {
		t.Fatalf("Label single word: got %q", got)
	}
}

func TestTaskTitleAndDescription(t *testing.T) {
	if got := content.TaskTitle("BLOG_POST", 4); got != "Blog post #4" {
		t.Fatalf("TaskTitle: got %q", got)
	}
	if got := content.TaskDescription("BLOG_POST", "Acme"); got != "Create blog post for Acme" {
		t.Fatalf("TaskDescription: got %q", got)
	}
}

func TestRewrite(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Blog Post draft", "Video draft"},
		{"a blog post", "a video"},
		{"Blog post #3", "Video #3"},
		{"BLOG POST and blog post", "Video and video"},
		{"no match here", "no match here"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := content.Rewrite(tc.text, "BLOG_POST", "VIDEO"); got != tc.want {
			t.Errorf("Rewrite(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestRewriteMultiWordReplacement(t *testing.T) {
	if got := content.Rewrite("One video per week", "VIDEO", "SOCIAL_POST"); got != "One social post per week" {
		t.Fatalf("got %q", got)
	}
	if got := content.Rewrite("Video #1", "VIDEO", "SOCIAL_POST"); got != "Social post #1" {
		t.Fatalf("capitalized: got %q", got)
	}
}
