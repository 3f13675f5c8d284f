// Package types contains the wire types exchanged with the submission API.
package types

import (
	json "github.com/goccy/go-json"
)

// MoveRecord is one recorded move with the score observed after it.
// Timestamps are milliseconds since the Unix epoch.
type MoveRecord struct {
	Action     string `json:"action"`
	Timestamp  int64  `json:"timestamp"`
	ScoreAfter int64  `json:"score_after"`
}

// PieceRecord is one piece generation event.
type PieceRecord struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// InputRecord is one raw input used for pattern re-analysis.
type InputRecord struct {
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

// GameState is the reconstructed-from part of a submission.
type GameState struct {
	Score         int64         `json:"score"`
	Level         int           `json:"level"`
	Lines         int           `json:"lines"`
	Moves         []MoveRecord  `json:"moves"`
	Pieces        []PieceRecord `json:"pieces"`
	InputPatterns []InputRecord `json:"inputPatterns"`
}

// ReportedActivity is one client self-reported suspicious activity.
type ReportedActivity struct {
	Category  string                 `json:"category"`
	Severity  string                 `json:"severity"`
	Timestamp int64                  `json:"timestamp"`
	Evidence  map[string]interface{} `json:"evidence,omitempty"`
}

// Fingerprint is one periodic state digest carried as verification data.
type Fingerprint struct {
	Timestamp int64  `json:"timestamp"`
	Digest    string `json:"digest"`
}

// SubmissionPayload is the sealed session as submitted for verification.
type SubmissionPayload struct {
	SessionID          string             `json:"sessionId"`
	PlayerID           string             `json:"playerId"`
	GameState          GameState          `json:"gameState"`
	SuspiciousPatterns []ReportedActivity `json:"suspiciousPatterns"`
	VerificationData   []Fingerprint      `json:"verificationData"`
	FinalHash          string             `json:"finalHash"`
}

// VerdictResponse mirrors the server verdict returned to the caller.
type VerdictResponse struct {
	IsValid         bool     `json:"isValid"`
	FraudScore      float64  `json:"fraudScore"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// EncodeSubmission serializes a submission payload.
func EncodeSubmission(p *SubmissionPayload) ([]byte, error) {
	return json.Marshal(p)
}

// DecodeSubmission parses a submission payload. Decoding is lenient on
// missing fields; structural validation happens in the verification engine
// so that partial evidence still contributes.
func DecodeSubmission(data []byte) (*SubmissionPayload, error) {
	var p SubmissionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// EncodeVerdict serializes a verdict response.
func EncodeVerdict(v *VerdictResponse) ([]byte, error) {
	return json.Marshal(v)
}
