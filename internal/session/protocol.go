package session

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/shelfscan/internal/ingesterr"
	"github.com/lehigh-university-libraries/shelfscan/internal/pipeline"
)

// MessageType names a session message.
type MessageType string

const (
	TypeReady            MessageType = "ready"
	TypeSnapshot         MessageType = "snapshot"
	TypeStatus           MessageType = "status"
	TypeResult           MessageType = "result"
	TypeError            MessageType = "error"
	TypePing             MessageType = "ping"
	TypePong             MessageType = "pong"
	TypePresignRequest   MessageType = "presign_request"
	TypePresignResponse  MessageType = "presign_response"
	TypeIngestComplete   MessageType = "ingest_complete"
	TypeReanalyzeRequest MessageType = "reanalyze_request"
)

// Message is the envelope for every frame in both directions.
type Message struct {
	Type          MessageType     `json:"type"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

type ReadyPayload struct {
	ConnectionID string    `json:"connectionId"`
	Timestamp    time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// IngestPayload is the body of ingest_complete and reanalyze_request.
type IngestPayload struct {
	Identifier       string         `json:"identifier"`
	BlobKey          string         `json:"blobKey"`
	ContentType      string         `json:"contentType,omitempty"`
	CameraIndex      int            `json:"cameraIndex,omitempty"`
	CapturedAtMillis int64          `json:"capturedAtMillis,omitempty"`
	Filename         string         `json:"filename,omitempty"`
	Extra            map[string]any `json:"extra,omitempty"`
}

// Request validates p and converts it to a pipeline request. Re-analysis
// defaults the camera to 1 and the content type to defaultContentType.
func (p IngestPayload) Request(reanalyze bool, defaultContentType string) (pipeline.Request, error) {
	const op = "session.ingest"

	p.Identifier = strings.TrimSpace(p.Identifier)
	p.BlobKey = strings.TrimSpace(p.BlobKey)
	if p.Identifier == "" {
		return pipeline.Request{}, ingesterr.Validation(op, "identifier is required")
	}
	if p.BlobKey == "" {
		return pipeline.Request{}, ingesterr.Validation(op, "blobKey is required")
	}

	if reanalyze {
		if p.CameraIndex == 0 {
			p.CameraIndex = 1
		}
		if p.ContentType == "" {
			p.ContentType = defaultContentType
		}
	} else if p.ContentType == "" {
		return pipeline.Request{}, ingesterr.Validation(op, "contentType is required")
	}
	if p.CameraIndex < 1 {
		return pipeline.Request{}, ingesterr.Validation(op, "cameraIndex must be 1 or greater, got %d", p.CameraIndex)
	}
	if p.CapturedAtMillis < 0 {
		return pipeline.Request{}, ingesterr.Validation(op, "capturedAtMillis must not be negative")
	}

	var capturedAt time.Time
	if p.CapturedAtMillis > 0 {
		capturedAt = time.UnixMilli(p.CapturedAtMillis).UTC()
	}

	return pipeline.Request{
		Identifier:  p.Identifier,
		BlobKey:     p.BlobKey,
		ContentType: p.ContentType,
		Camera:      p.CameraIndex,
		CapturedAt:  capturedAt,
		Filename:    p.Filename,
		Extra:       p.Extra,
	}, nil
}

func encode(t MessageType, correlationID string, payload any) (Message, error) {
	msg := Message{Type: t, CorrelationID: correlationID}
	if payload == nil {
		return msg, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return msg, err
	}
	msg.Payload = raw
	return msg, nil
}
