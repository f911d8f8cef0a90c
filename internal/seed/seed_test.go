package seed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/store"
)

func TestCleanText(t *testing.T) {
	cases := []struct {
		in, want string
		max      int
	}{
		{"plain text", "plain text", 100},
		{"a &amp; b", "a & b", 100},
		{"<p>hello <b>world</b></p>", "hello world", 100},
		{"  lots\n\nof\twhitespace  ", "lots of whitespace", 100},
		{"truncated here", "trunc", 5},
		{"", "", 100},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CleanText(tc.in, tc.max), "input %q", tc.in)
	}
}

func TestSafeNickname(t *testing.T) {
	cases := []struct{ in, want string }{
		{"pg", "pg"},
		{"Dang-Mod", "dang_mod"},
		{"user.name+42", "user_name_42"},
		{"", "anon"},
		{"!!", "anon"},
		{"_x_", "anon_x"},
		{strings.Repeat("verylongname", 5), strings.Repeat("verylongname", 5)[:32]},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, SafeNickname(tc.in, "anon"), "input %q", tc.in)
	}
}

// fakeAlgolia serves canned search and item responses.
func fakeAlgolia(t *testing.T, stories, comments []map[string]interface{}, items map[string]map[string]interface{}) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search_by_date", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "flock")
		hits := stories
		if r.URL.Query().Get("tags") == "comment" {
			hits = comments
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"hits": hits})
	})
	mux.HandleFunc("/items/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/items/")
		item, ok := items[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(item)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "flock.db"), time.UTC, 0)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestRunImportsStoriesAndComments(t *testing.T) {
	stories := []map[string]interface{}{
		{"objectID": "100", "title": "Show HN: tiny agent runtime", "story_text": "<p>Built over a weekend.</p>", "author": "builder"},
		{"objectID": "101", "title": "Postgres at scale", "author": "dba_person"},
	}
	comments := []map[string]interface{}{
		{"objectID": "200", "comment_text": "Neat, does it handle retries?", "author": "curious", "story_id": 100},
	}
	srv := fakeAlgolia(t, stories, comments, nil)

	st := newTestStore(t)
	g := New(st)
	g.SetBaseURL(srv.URL)

	stats, err := g.Run(context.Background(), Options{Stories: 2, Comments: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Users)
	assert.Equal(t, 2, stats.Posts)
	assert.Equal(t, 1, stats.Comments)
	assert.Zero(t, stats.Skipped)

	timeline, err := st.Timeline(10)
	require.NoError(t, err)
	require.Len(t, timeline, 3)

	// Hits arrive newest first and are imported in reverse, so the
	// newest story tops the timeline with the comment threaded on.
	var post store.TimelineItem
	for _, item := range timeline {
		if strings.HasPrefix(item.Body, "Show HN") {
			post = item
		}
	}
	require.NotZero(t, post.ID)
	assert.Equal(t, "hn_builder", post.Nickname)
	assert.Contains(t, post.Body, "Built over a weekend.")
	assert.Equal(t, 1, post.Replies)
}

func TestRunBackfillsMissingStory(t *testing.T) {
	comments := []map[string]interface{}{
		{"objectID": "300", "comment_text": "Agreed on the tradeoffs.", "author": "replier", "story_id": 42},
	}
	items := map[string]map[string]interface{}{
		"42": {"author": "original_poster", "title": "On tradeoffs", "text": "Every cache is a bet."},
	}
	srv := fakeAlgolia(t, nil, comments, items)

	st := newTestStore(t)
	g := New(st)
	g.SetBaseURL(srv.URL)

	stats, err := g.Run(context.Background(), Options{Stories: 0, Comments: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Posts, "parent story backfilled from the items endpoint")
	assert.Equal(t, 1, stats.Comments)
	assert.Equal(t, 2, stats.Users)
}

func TestRunSkipsOrphanedComment(t *testing.T) {
	comments := []map[string]interface{}{
		{"objectID": "400", "comment_text": "floating reply", "author": "lost", "story_id": 999},
	}
	srv := fakeAlgolia(t, nil, comments, nil)

	st := newTestStore(t)
	g := New(st)
	g.SetBaseURL(srv.URL)

	stats, err := g.Run(context.Background(), Options{Comments: 1})
	require.NoError(t, err)
	assert.Zero(t, stats.Comments)
	assert.Equal(t, 1, stats.Skipped)
}

func TestRunTopicFilter(t *testing.T) {
	stories := []map[string]interface{}{
		{"objectID": "500", "title": "Rust compiler internals", "author": "a"},
		{"objectID": "501", "title": "Sourdough starter tips", "author": "b"},
	}
	srv := fakeAlgolia(t, stories, nil, nil)

	st := newTestStore(t)
	g := New(st)
	g.SetBaseURL(srv.URL)

	stats, err := g.Run(context.Background(), Options{
		Stories: 2,
		Topic:   regexp.MustCompile(`(?i)compiler|database`),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Posts)
	assert.Equal(t, 1, stats.Skipped)
}

func TestRunReusesExistingUsers(t *testing.T) {
	stories := []map[string]interface{}{
		{"objectID": "600", "title": "First", "author": "repeat"},
		{"objectID": "601", "title": "Second", "author": "repeat"},
	}
	srv := fakeAlgolia(t, stories, nil, nil)

	st := newTestStore(t)
	g := New(st)
	g.SetBaseURL(srv.URL)

	stats, err := g.Run(context.Background(), Options{Stories: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Users)
	assert.Equal(t, 2, stats.Posts)
}
