// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package internal_telephony

// ============================================================================
// Wire frames
// ============================================================================

// Frame is the JSON envelope shared by every PBX message. The event field
// discriminates which payload pointer is populated.
type Frame struct {
	Event          string        `json:"event"`
	SequenceNumber int64         `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	StreamID       string        `json:"streamId,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	DTMF           *DTMFPayload  `json:"dtmf,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
}

// StartPayload arrives once per call and binds the stream to PBX identifiers.
// Some PBX variants send streamId instead of streamSid; ResolveStreamSid
// picks whichever is present.
type StartPayload struct {
	StreamSid        string                 `json:"streamSid,omitempty"`
	StreamID         string                 `json:"streamId,omitempty"`
	AccountSid       string                 `json:"accountSid,omitempty"`
	CallSid          string                 `json:"callSid,omitempty"`
	From             string                 `json:"from,omitempty"`
	To               string                 `json:"to,omitempty"`
	MediaFormat      *MediaFormat           `json:"mediaFormat,omitempty"`
	ExtraData        string                 `json:"extraData,omitempty"`
	CZData           string                 `json:"czdata,omitempty"`
	CustomParameters map[string]interface{} `json:"customParameters,omitempty"`
}

type MediaFormat struct {
	Encoding   string `json:"encoding,omitempty"`
	SampleRate uint32 `json:"sampleRate,omitempty"`
	Channels   uint16 `json:"channels,omitempty"`
}

type MediaPayload struct {
	Payload     string  `json:"payload"`
	ChunkDurnMs float64 `json:"chunk_durn_ms,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type DTMFPayload struct {
	Digit string `json:"digit"`
}

type MarkPayload struct {
	Name string `json:"name"`
}

type StopPayload struct {
	AccountSid string `json:"accountSid,omitempty"`
	CallSid    string `json:"callSid,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// ResolveStreamSid returns the stream correlation key of the frame, checking
// the start payload first and the envelope second.
func (f *Frame) ResolveStreamSid() string {
	if f.Start != nil {
		if f.Start.StreamSid != "" {
			return f.Start.StreamSid
		}
		if f.Start.StreamID != "" {
			return f.Start.StreamID
		}
	}
	if f.StreamSid != "" {
		return f.StreamSid
	}
	return f.StreamID
}

// ============================================================================
// Adapter events
// ============================================================================

// Events delivered to the session loop. Audio is decoded and normalized to
// the telephony wire format before it appears here.

type ConnectedEvent struct{}

type StartEvent struct {
	StreamSid string
	Start     StartPayload
}

type AnswerEvent struct{}

type AudioEvent struct {
	PCM []byte
}

type DTMFEvent struct {
	Digit string
}

type MarkEvent struct {
	Name string
}

type ClearEvent struct{}

type StopEvent struct {
	Payload *StopPayload
}

type TransferEvent struct{}

type HangupEvent struct{}

// ClosedEvent is the last event a read loop delivers. Err is nil on a clean
// peer close.
type ClosedEvent struct {
	Err error
}
