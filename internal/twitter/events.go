package twitter

import (
	"sort"
	"strings"

	"github.com/antonholmquist/jason"

	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

// mediaEntry keeps the ordering inputs alongside the URL while candidate
// images are collected.
type mediaEntry struct {
	position int
	id       string
	url      string
}

// ExtractMentions pulls the bot mentions out of one webhook delivery.
// Deliveries without tweet-create events (follows, DMs, permission
// revocations) yield no mentions and no error. Tweets authored by the
// bot itself are skipped so replies cannot loop back into ingestion.
func ExtractMentions(payload []byte, botHandle string) ([]MentionEvent, error) {
	root, err := jason.NewObjectFromBytes(payload)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryWebhook).
			Component("twitter").
			Context("operation", "parse_webhook_payload").
			Build()
	}

	events, err := root.GetObjectArray("tweet_create_events")
	if err != nil {
		return nil, nil
	}

	mentions := make([]MentionEvent, 0, len(events))
	for _, event := range events {
		mention, ok := parseMention(event, botHandle)
		if !ok {
			continue
		}
		mentions = append(mentions, mention)
	}

	logger.Debug("webhook delivery parsed",
		"tweet_events", len(events),
		"mentions", len(mentions))

	return mentions, nil
}

func parseMention(event *jason.Object, botHandle string) (MentionEvent, bool) {
	id, err := event.GetString("id_str")
	if err != nil || id == "" {
		logger.Debug("tweet event without id_str skipped")
		return MentionEvent{}, false
	}

	handle, _ := event.GetString("user", "screen_name")
	if strings.EqualFold(handle, botHandle) {
		return MentionEvent{}, false
	}
	if !mentionsBot(event, botHandle) {
		return MentionEvent{}, false
	}

	// Truncated tweets carry the full text and entities one level down.
	text, err := event.GetString("extended_tweet", "full_text")
	if err != nil {
		text, _ = event.GetString("text")
	}

	return MentionEvent{
		EventID:   id,
		TweetID:   id,
		Handle:    handle,
		Text:      text,
		ImageURLs: collectImages(event),
	}, true
}

// mentionsBot reports whether the tweet mentions the bot. Entity data is
// authoritative; the text scan covers deliveries without expanded
// entities.
func mentionsBot(event *jason.Object, botHandle string) bool {
	mentionPaths := [][]string{
		{"extended_tweet", "entities", "user_mentions"},
		{"entities", "user_mentions"},
	}
	for _, path := range mentionPaths {
		userMentions, err := event.GetObjectArray(path...)
		if err != nil {
			continue
		}
		for _, mention := range userMentions {
			if screenName, snErr := mention.GetString("screen_name"); snErr == nil && strings.EqualFold(screenName, botHandle) {
				return true
			}
		}
	}

	if text, err := event.GetString("text"); err == nil {
		return strings.Contains(strings.ToLower(text), "@"+strings.ToLower(botHandle))
	}
	return false
}

// collectImages returns the tweet's candidate photos in a fixed
// deterministic order: media array position, media id as the tie-break.
// Videos and animated GIFs are not candidates.
func collectImages(event *jason.Object) []string {
	mediaPaths := [][]string{
		{"extended_tweet", "extended_entities", "media"},
		{"extended_entities", "media"},
		{"entities", "media"},
	}
	var media []*jason.Object
	for _, path := range mediaPaths {
		if arr, err := event.GetObjectArray(path...); err == nil && len(arr) > 0 {
			media = arr
			break
		}
	}

	entries := make([]mediaEntry, 0, len(media))
	for i, m := range media {
		mediaType, _ := m.GetString("type")
		if mediaType != "photo" {
			continue
		}
		url, err := m.GetString("media_url_https")
		if err != nil || url == "" {
			url, _ = m.GetString("media_url")
		}
		if url == "" {
			continue
		}
		id, _ := m.GetString("id_str")
		entries = append(entries, mediaEntry{position: i, id: id, url: url})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].position != entries[j].position {
			return entries[i].position < entries[j].position
		}
		return entries[i].id < entries[j].id
	})

	urls := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry.url]; dup {
			continue
		}
		seen[entry.url] = struct{}{}
		urls = append(urls, entry.url)
	}
	return urls
}
