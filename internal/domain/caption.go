package domain

import "time"

// CaptionSet groups one caption per file for a dataset, along with the
// generation settings captured when the set was configured.
type CaptionSet struct {
	ID            string
	DatasetID     string
	Name          string
	Style         CaptionStyle
	MaxLength     int
	CustomPrompt  string
	TriggerPhrase string
}

// Caption is the text attached to a single file within a caption set.
type Caption struct {
	ID           string
	CaptionSetID string
	FileID       string
	Text         string
	Source       string
	VisionModel  string
	QualityScore float64
	QualityFlags []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Caption sources.
const (
	CaptionSourceManual    = "manual"
	CaptionSourceGenerated = "generated"
	CaptionSourceImported  = "imported"
)
