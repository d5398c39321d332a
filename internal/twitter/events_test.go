package twitter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/undetectableai/truthscan-twitter-bot/internal/errors"
)

const botHandle = "truthscan"

func TestExtractMentions_SinglePhoto(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"for_user_id": "999",
		"tweet_create_events": [{
			"id_str": "1500000000000000001",
			"text": "@truthscan is this real?",
			"user": {"id_str": "77", "screen_name": "skeptical_sam"},
			"entities": {
				"user_mentions": [{"screen_name": "truthscan"}],
				"media": [{
					"id_str": "9001",
					"type": "photo",
					"media_url_https": "https://pbs.twimg.com/media/a.jpg"
				}]
			}
		}]
	}`)

	mentions, err := ExtractMentions(payload, botHandle)
	require.NoError(t, err)
	require.Len(t, mentions, 1)

	mention := mentions[0]
	assert.Equal(t, "1500000000000000001", mention.EventID)
	assert.Equal(t, "1500000000000000001", mention.TweetID)
	assert.Equal(t, "skeptical_sam", mention.Handle)
	assert.Equal(t, "@truthscan is this real?", mention.Text)
	assert.Equal(t, []string{"https://pbs.twimg.com/media/a.jpg"}, mention.ImageURLs)
	assert.Equal(t, "https://pbs.twimg.com/media/a.jpg", mention.PrimaryImage())
}

func TestExtractMentions_PreservesMediaOrder(t *testing.T) {
	t.Parallel()

	// Media ids deliberately disagree with array order; array order wins.
	payload := []byte(`{
		"tweet_create_events": [{
			"id_str": "42",
			"text": "@truthscan check these",
			"user": {"screen_name": "sam"},
			"entities": {"user_mentions": [{"screen_name": "truthscan"}]},
			"extended_entities": {
				"media": [
					{"id_str": "2", "type": "photo", "media_url_https": "https://pbs.twimg.com/media/b.jpg"},
					{"id_str": "1", "type": "photo", "media_url_https": "https://pbs.twimg.com/media/a.jpg"},
					{"id_str": "3", "type": "photo", "media_url_https": "https://pbs.twimg.com/media/c.jpg"}
				]
			}
		}]
	}`)

	want := []string{
		"https://pbs.twimg.com/media/b.jpg",
		"https://pbs.twimg.com/media/a.jpg",
		"https://pbs.twimg.com/media/c.jpg",
	}

	for range 3 {
		mentions, err := ExtractMentions(payload, botHandle)
		require.NoError(t, err)
		require.Len(t, mentions, 1)
		assert.Equal(t, want, mentions[0].ImageURLs)
	}
}

func TestExtractMentions_PhotosOnly(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"tweet_create_events": [{
			"id_str": "42",
			"text": "@truthscan mixed media",
			"user": {"screen_name": "sam"},
			"entities": {"user_mentions": [{"screen_name": "truthscan"}]},
			"extended_entities": {
				"media": [
					{"id_str": "1", "type": "photo", "media_url_https": "https://pbs.twimg.com/media/a.jpg"},
					{"id_str": "2", "type": "video", "media_url_https": "https://pbs.twimg.com/media/v.mp4"},
					{"id_str": "3", "type": "animated_gif", "media_url_https": "https://pbs.twimg.com/media/g.mp4"},
					{"id_str": "4", "type": "photo", "media_url_https": "https://pbs.twimg.com/media/b.jpg"}
				]
			}
		}]
	}`)

	mentions, err := ExtractMentions(payload, botHandle)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, []string{
		"https://pbs.twimg.com/media/a.jpg",
		"https://pbs.twimg.com/media/b.jpg",
	}, mentions[0].ImageURLs)
}

func TestExtractMentions_SkipsOwnTweets(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"tweet_create_events": [{
			"id_str": "42",
			"text": "@someone here are your results",
			"user": {"screen_name": "TruthScan"},
			"entities": {"user_mentions": [{"screen_name": "truthscan"}]}
		}]
	}`)

	mentions, err := ExtractMentions(payload, botHandle)
	require.NoError(t, err)
	assert.Empty(t, mentions, "the bot's own replies must not re-enter the pipeline")
}

func TestExtractMentions_SkipsTweetsWithoutMention(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"tweet_create_events": [{
			"id_str": "42",
			"text": "just a regular tweet",
			"user": {"screen_name": "sam"},
			"entities": {"user_mentions": [{"screen_name": "someone_else"}]}
		}]
	}`)

	mentions, err := ExtractMentions(payload, botHandle)
	require.NoError(t, err)
	assert.Empty(t, mentions)
}

func TestExtractMentions_MatchesMentionInTextOnly(t *testing.T) {
	t.Parallel()

	// No entity data at all; the lowercased text scan must still match.
	payload := []byte(`{
		"tweet_create_events": [{
			"id_str": "42",
			"text": "hey @TruthScan what about this",
			"user": {"screen_name": "sam"}
		}]
	}`)

	mentions, err := ExtractMentions(payload, botHandle)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, "sam", mentions[0].Handle)
	assert.Empty(t, mentions[0].ImageURLs)
	assert.Equal(t, "", mentions[0].PrimaryImage())
}

func TestExtractMentions_ExtendedTweet(t *testing.T) {
	t.Parallel()

	// Truncated tweets hide the mention and the media one level down.
	payload := []byte(`{
		"tweet_create_events": [{
			"id_str": "42",
			"text": "this tweet was cut off and the mention is not visible he…",
			"user": {"screen_name": "sam"},
			"extended_tweet": {
				"full_text": "this tweet was cut off and the mention is not visible here @truthscan",
				"entities": {"user_mentions": [{"screen_name": "truthscan"}]},
				"extended_entities": {
					"media": [{
						"id_str": "9001",
						"type": "photo",
						"media_url_https": "https://pbs.twimg.com/media/full.jpg"
					}]
				}
			}
		}]
	}`)

	mentions, err := ExtractMentions(payload, botHandle)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, "this tweet was cut off and the mention is not visible here @truthscan", mentions[0].Text)
	assert.Equal(t, []string{"https://pbs.twimg.com/media/full.jpg"}, mentions[0].ImageURLs)
}

func TestExtractMentions_MediaURLFallback(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"tweet_create_events": [{
			"id_str": "42",
			"text": "@truthscan legacy media",
			"user": {"screen_name": "sam"},
			"entities": {
				"user_mentions": [{"screen_name": "truthscan"}],
				"media": [{
					"id_str": "9001",
					"type": "photo",
					"media_url": "http://pbs.twimg.com/media/legacy.jpg"
				}]
			}
		}]
	}`)

	mentions, err := ExtractMentions(payload, botHandle)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, []string{"http://pbs.twimg.com/media/legacy.jpg"}, mentions[0].ImageURLs)
}

func TestExtractMentions_DeduplicatesURLs(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"tweet_create_events": [{
			"id_str": "42",
			"text": "@truthscan twice the same",
			"user": {"screen_name": "sam"},
			"entities": {"user_mentions": [{"screen_name": "truthscan"}]},
			"extended_entities": {
				"media": [
					{"id_str": "1", "type": "photo", "media_url_https": "https://pbs.twimg.com/media/same.jpg"},
					{"id_str": "2", "type": "photo", "media_url_https": "https://pbs.twimg.com/media/same.jpg"}
				]
			}
		}]
	}`)

	mentions, err := ExtractMentions(payload, botHandle)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, []string{"https://pbs.twimg.com/media/same.jpg"}, mentions[0].ImageURLs)
}

func TestExtractMentions_SkipsEventWithoutID(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"tweet_create_events": [
			{
				"text": "@truthscan no id on this one",
				"user": {"screen_name": "sam"},
				"entities": {"user_mentions": [{"screen_name": "truthscan"}]}
			},
			{
				"id_str": "43",
				"text": "@truthscan this one is fine",
				"user": {"screen_name": "kim"},
				"entities": {"user_mentions": [{"screen_name": "truthscan"}]}
			}
		]
	}`)

	mentions, err := ExtractMentions(payload, botHandle)
	require.NoError(t, err)
	require.Len(t, mentions, 1)
	assert.Equal(t, "43", mentions[0].EventID)
}

func TestExtractMentions_MultipleEvents(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"tweet_create_events": [
			{
				"id_str": "1",
				"text": "@truthscan first",
				"user": {"screen_name": "sam"},
				"entities": {"user_mentions": [{"screen_name": "truthscan"}]}
			},
			{
				"id_str": "2",
				"text": "@truthscan second",
				"user": {"screen_name": "kim"},
				"entities": {"user_mentions": [{"screen_name": "truthscan"}]}
			}
		]
	}`)

	mentions, err := ExtractMentions(payload, botHandle)
	require.NoError(t, err)
	require.Len(t, mentions, 2)
	assert.Equal(t, "1", mentions[0].EventID)
	assert.Equal(t, "2", mentions[1].EventID)
}

func TestExtractMentions_NonTweetDelivery(t *testing.T) {
	t.Parallel()

	payload := []byte(`{
		"for_user_id": "999",
		"follow_events": [{"type": "follow", "source": {"screen_name": "sam"}}]
	}`)

	mentions, err := ExtractMentions(payload, botHandle)
	require.NoError(t, err)
	assert.Nil(t, mentions)
}

func TestExtractMentions_MalformedPayload(t *testing.T) {
	t.Parallel()

	_, err := ExtractMentions([]byte(`{"tweet_create_events": [`), botHandle)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryWebhook))
}
