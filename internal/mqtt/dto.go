package mqtt

import (
	"time"

	"github.com/undetectableai/truthscan-twitter-bot/internal/datastore"
)

// DetectionEvent is the payload published for each completed
// classification. Field names are part of the published MQTT contract;
// downstream automations key on them.
type DetectionEvent struct {
	PageID        string    `json:"pageId"`
	PageURL       string    `json:"pageUrl"`
	SourceHandle  string    `json:"sourceHandle"`
	AIProbability *float64  `json:"aiProbability"`
	FinalResult   string    `json:"finalResult"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewDetectionEvent builds the publishable event for a detection and its
// page. pageURL is the externally visible results URL.
func NewDetectionEvent(detection *datastore.Detection, page *datastore.DetectionPage, pageURL string) *DetectionEvent {
	event := &DetectionEvent{
		PageURL:      pageURL,
		SourceHandle: detection.SourceHandle,
		FinalResult:  detection.FinalResult(),
		CreatedAt:    detection.CreatedAt,
	}
	if page != nil {
		event.PageID = page.PageID
	}
	if detection.AIProbability != nil {
		p := *detection.AIProbability
		event.AIProbability = &p
	}
	return event
}
