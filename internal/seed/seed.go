// Package seed imports recent Hacker News stories and comments as
// human content, giving a fresh community organic material for the
// first ticks to react to. It reads the Algolia HN search API.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"flock/internal/logging"
	"flock/internal/store"
)

const (
	defaultBaseURL = "https://hn.algolia.com/api/v1"
	userAgent      = "flock/0.1"
	requestTimeout = 20 * time.Second

	titleMaxChars   = 220
	defaultMaxChars = 500
)

var (
	tagPattern        = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	nicknameStrip     = regexp.MustCompile(`[^a-zA-Z0-9_]+`)
	nicknameShape     = regexp.MustCompile(`^[a-zA-Z0-9_]{2,32}$`)
)

// Options bounds one import run.
type Options struct {
	Stories  int            // story hits to request
	Comments int            // comment hits to request
	MaxChars int            // body cap after cleaning; 0 means the default
	Throttle time.Duration  // pause between story inserts
	Topic    *regexp.Regexp // nil imports everything
}

// Stats summarizes an import run.
type Stats struct {
	Users    int `json:"users"`
	Posts    int `json:"posts"`
	Comments int `json:"comments"`
	Skipped  int `json:"skipped"`
}

// Ingester fetches HN items and writes them into the community store
// under synthetic hn_* users.
type Ingester struct {
	store   *store.Store
	client  *http.Client
	baseURL string

	userCache map[string]int64
	storyMap  map[string]int64
	itemCache map[string]*hnItem
}

func New(st *store.Store) *Ingester {
	return &Ingester{
		store:     st,
		client:    &http.Client{Timeout: requestTimeout},
		baseURL:   defaultBaseURL,
		userCache: map[string]int64{},
		storyMap:  map[string]int64{},
		itemCache: map[string]*hnItem{},
	}
}

// SetBaseURL points the ingester at another API root, for tests.
func (g *Ingester) SetBaseURL(base string) {
	g.baseURL = strings.TrimRight(base, "/")
}

type hnHit struct {
	ObjectID    string      `json:"objectID"`
	Title       string      `json:"title"`
	StoryText   string      `json:"story_text"`
	CommentText string      `json:"comment_text"`
	Author      string      `json:"author"`
	StoryID     json.Number `json:"story_id"`
}

type hnItem struct {
	Author string `json:"author"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}

// CleanText unescapes HTML entities, strips tags, collapses
// whitespace, and caps the result at maxChars runes.
func CleanText(text string, maxChars int) string {
	value := html.UnescapeString(text)
	value = tagPattern.ReplaceAllString(value, " ")
	value = strings.TrimSpace(whitespacePattern.ReplaceAllString(value, " "))
	runes := []rune(value)
	if len(runes) > maxChars {
		runes = runes[:maxChars]
	}
	return string(runes)
}

// SafeNickname sanitizes an external author name into the local
// nickname shape, falling back when nothing usable survives.
func SafeNickname(raw, fallback string) string {
	name := nicknameStrip.ReplaceAllString(strings.TrimSpace(raw), "_")
	name = strings.ToLower(strings.Trim(name, "_"))
	if name == "" {
		name = fallback
	}
	// Truncate before the shape check so long but otherwise valid
	// names survive as themselves instead of gaining the fallback
	// prefix.
	if len(name) > 32 {
		name = name[:32]
	}
	if !nicknameShape.MatchString(name) {
		name = fallback + "_" + name
		if len(name) > 32 {
			name = name[:32]
		}
	}
	return name
}

// Run imports stories first, then comments threaded onto them. Comment
// hits whose story was not in the story batch get the story backfilled
// through the items endpoint so threads stay intact.
func (g *Ingester) Run(ctx context.Context, opts Options) (Stats, error) {
	if opts.MaxChars <= 0 {
		opts.MaxChars = defaultMaxChars
	}

	var stats Stats

	storyHits, err := g.fetchHits(ctx, "story", opts.Stories)
	if err != nil {
		return stats, err
	}
	// Oldest first, so local ids follow publication order.
	reverse(storyHits)
	for _, hit := range storyHits {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		g.importStory(hit, opts, &stats)
		if opts.Throttle > 0 {
			time.Sleep(opts.Throttle)
		}
	}

	commentHits, err := g.fetchHits(ctx, "comment", opts.Comments)
	if err != nil {
		return stats, err
	}
	reverse(commentHits)
	for _, hit := range commentHits {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		g.importComment(ctx, hit, opts, &stats)
	}

	logging.Boot("hn import: %d users, %d posts, %d comments, %d skipped",
		stats.Users, stats.Posts, stats.Comments, stats.Skipped)
	return stats, nil
}

func (g *Ingester) importStory(hit hnHit, opts Options, stats *Stats) {
	title := strings.TrimSpace(hit.Title)
	text := strings.TrimSpace(hit.StoryText)
	if !matchesTopic(strings.TrimSpace(title+"\n"+text), opts.Topic) {
		stats.Skipped++
		return
	}

	userID, ok := g.ensureUser(hit.Author, stats)
	if !ok {
		stats.Skipped++
		return
	}

	body := storyBody(title, text, opts.MaxChars)
	id, err := g.insert(userID, 0, store.ContentPost, body, map[string]interface{}{
		"source": "hn", "hn_object_id": hit.ObjectID, "kind": "story",
	})
	if err != nil {
		stats.Skipped++
		return
	}
	stats.Posts++
	if hit.ObjectID != "" {
		g.storyMap[hit.ObjectID] = id
	}
}

func (g *Ingester) importComment(ctx context.Context, hit hnHit, opts Options, stats *Stats) {
	raw := strings.TrimSpace(hit.CommentText)
	if !matchesTopic(raw, opts.Topic) {
		stats.Skipped++
		return
	}

	userID, ok := g.ensureUser(hit.Author, stats)
	if !ok {
		stats.Skipped++
		return
	}

	storyID := hit.StoryID.String()
	parentID := g.storyMap[storyID]
	if parentID == 0 && storyID != "" && storyID != "0" {
		parentID = g.backfillStory(ctx, storyID, opts, stats)
	}
	if parentID == 0 {
		stats.Skipped++
		return
	}

	text := CleanText(raw, opts.MaxChars)
	if text == "" {
		stats.Skipped++
		return
	}
	_, err := g.insert(userID, parentID, store.ContentComment, text, map[string]interface{}{
		"source": "hn", "hn_object_id": hit.ObjectID, "kind": "comment", "hn_story_id": storyID,
	})
	if err != nil {
		stats.Skipped++
		return
	}
	stats.Comments++
}

// backfillStory fetches and inserts the parent story for an orphaned
// comment. Returns 0 when the story cannot be imported.
func (g *Ingester) backfillStory(ctx context.Context, storyID string, opts Options, stats *Stats) int64 {
	item, cached := g.itemCache[storyID]
	if !cached {
		item = g.fetchItem(ctx, storyID)
		g.itemCache[storyID] = item
	}
	if item == nil {
		return 0
	}

	title := strings.TrimSpace(item.Title)
	text := strings.TrimSpace(item.Text)
	if !matchesTopic(strings.TrimSpace(title+"\n"+text), opts.Topic) {
		return 0
	}
	userID, ok := g.ensureUser(item.Author, stats)
	if !ok {
		return 0
	}

	body := storyBody(title, text, opts.MaxChars)
	id, err := g.insert(userID, 0, store.ContentPost, body, map[string]interface{}{
		"source": "hn", "hn_object_id": storyID, "kind": "story",
	})
	if err != nil {
		return 0
	}
	stats.Posts++
	g.storyMap[storyID] = id
	return id
}

func storyBody(title, text string, maxChars int) string {
	cleanTitle := CleanText(title, titleMaxChars)
	cleanText := CleanText(text, maxChars)
	body := cleanTitle
	if body == "" {
		body = "HN story"
	}
	if cleanText != "" {
		body = CleanText(cleanTitle+"\n"+cleanText, maxChars)
	}
	return body
}

// ensureUser resolves or creates the synthetic local user for an HN
// author.
func (g *Ingester) ensureUser(author string, stats *Stats) (int64, bool) {
	if author == "" {
		author = "anon"
	}
	nickname := "hn_" + SafeNickname(author, "anon")
	if id, ok := g.userCache[nickname]; ok {
		return id, true
	}

	user, err := g.store.GetUserByNickname(nickname)
	if err == nil {
		g.userCache[nickname] = user.ID
		return user.ID, true
	}
	user, err = g.store.CreateUser(nickname)
	if err != nil {
		return 0, false
	}
	stats.Users++
	g.userCache[nickname] = user.ID
	return user.ID, true
}

func (g *Ingester) insert(userID, parentID int64, contentType, body string, metadata map[string]interface{}) (int64, error) {
	now := g.store.Now()
	return g.store.InsertImportedContent(userID, parentID, contentType, body,
		g.store.DayKey(now), now.Format(time.RFC3339), metadata)
}

func (g *Ingester) fetchHits(ctx context.Context, tag string, hitsPerPage int) ([]hnHit, error) {
	if hitsPerPage <= 0 {
		return nil, nil
	}
	query := url.Values{"tags": {tag}, "hitsPerPage": {strconv.Itoa(hitsPerPage)}}
	endpoint := g.baseURL + "/search_by_date?" + query.Encode()

	var payload struct {
		Hits []hnHit `json:"hits"`
	}
	if err := g.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, fmt.Errorf("fetch hn %s hits: %w", tag, err)
	}
	return payload.Hits, nil
}

// fetchItem is best-effort; a missing or malformed item just orphans
// the comment.
func (g *Ingester) fetchItem(ctx context.Context, itemID string) *hnItem {
	endpoint := g.baseURL + "/items/" + url.PathEscape(itemID)
	var item hnItem
	if err := g.getJSON(ctx, endpoint, &item); err != nil {
		return nil
	}
	return &item
}

func (g *Ingester) getJSON(ctx context.Context, endpoint string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func matchesTopic(text string, topic *regexp.Regexp) bool {
	return topic == nil || topic.MatchString(text)
}

func reverse(hits []hnHit) {
	for i, j := 0, len(hits)-1; i < j; i, j = i+1, j-1 {
		hits[i], hits[j] = hits[j], hits[i]
	}
}
