package models

// QualityBand is one of the five configured kbits/s bands the ranking
// engine buckets a source's implied bitrate into (§4.G).
type QualityBand struct {
	Name       string
	FromKbits  int
	ToKbits    int
}

// Midpoint returns the triangular scorer's peak.
func (q QualityBand) Midpoint() float64 {
	return float64(q.FromKbits+q.ToKbits) / 2
}

// InBand reports whether kbits falls within [FromKbits, ToKbits].
func (q QualityBand) InBand(kbits float64) bool {
	return kbits >= float64(q.FromKbits) && kbits <= float64(q.ToKbits)
}

// IndexerFlagScore is one entry of the configured flag→score list (§4.G).
type IndexerFlagScore struct {
	Flag  string  `json:"flag" yaml:"flag"`
	Score float64 `json:"score" yaml:"score"`
}

// CompleteAction is the torrent-completion transfer mode (§6 config keys).
type CompleteAction string

const (
	ActionCopy     CompleteAction = "copy"
	ActionHardlink CompleteAction = "hardlink"
	ActionMove     CompleteAction = "move"
)
