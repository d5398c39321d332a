package ingest

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/k3a/html2text"

	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
)

// maxDescriptionRunes bounds stored descriptions so alt text and OG tags
// stay within what crawlers render.
const maxDescriptionRunes = 280

// describeFromText normalizes tweet or caller text into a plain-text
// image description. Webhook payloads carry HTML entities and anchor
// markup around media links; both are stripped before storage.
func describeFromText(text string) string {
	plain := strings.TrimSpace(html2text.HTML2Text(text))
	if utf8.RuneCountInString(plain) <= maxDescriptionRunes {
		return plain
	}
	runes := []rune(plain)
	return strings.TrimSpace(string(runes[:maxDescriptionRunes-3])) + "..."
}

// metaSentence composes the page meta description from the detection's
// current verdict state. Empty means no verdict exists yet; the page
// renderer supplies its own placeholder then.
func metaSentence(detection *datastore.Detection) string {
	subject := "this image"
	if detection.SourceHandle != "" {
		subject = "@" + detection.SourceHandle
	}

	if detection.OracleStatus == datastore.OracleStatusUnsupported {
		return fmt.Sprintf("AI image detection result for %s: the image could not be analyzed.", subject)
	}
	if detection.AIProbability == nil {
		return ""
	}
	pct := int(math.Round(*detection.AIProbability * 100))
	return fmt.Sprintf("AI image detection result for %s: %s with a %d%% AI probability.",
		subject, detection.FinalResult(), pct)
}

// enrich fills the description columns before the record is persisted.
func (o *Orchestrator) enrich(detection *datastore.Detection, rawDescription string) {
	detection.ImageDescription = describeFromText(rawDescription)
	detection.MetaDescription = metaSentence(detection)
}
