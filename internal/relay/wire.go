package relay

import (
	"encoding/json"
	"errors"
	"fmt"

	"privcal/internal/domain"
)

// Frame labels.
const (
	LabelEvent  = "EVENT"
	LabelReq    = "REQ"
	LabelClose  = "CLOSE"
	LabelAuth   = "AUTH"
	LabelEOSE   = "EOSE"
	LabelClosed = "CLOSED"
	LabelOK     = "OK"
	LabelNotice = "NOTICE"
)

// Machine-readable prefixes relays put in OK and CLOSED messages.
const (
	PrefixAuthRequired = "auth-required:"
	PrefixRestricted   = "restricted:"
	PrefixInvalid      = "invalid:"
	PrefixDuplicate    = "duplicate:"
	PrefixError        = "error:"
)

// ErrBadFrame is returned for messages that are not valid NIP-01 frames.
var ErrBadFrame = errors.New("relay: bad frame")

// Frame is one NIP-01 message in either direction. Which fields are set
// depends on Label:
//
//	EVENT   client: Event          relay: SubID, Event
//	REQ     SubID, Filters
//	CLOSE   SubID
//	AUTH    client: Event          relay: Message (the challenge)
//	EOSE    SubID
//	CLOSED  SubID, Message
//	OK      EventID, Accepted, Message
//	NOTICE  Message
type Frame struct {
	Label    string
	SubID    string
	Event    domain.Event
	Filters  []domain.Filter
	EventID  string
	Accepted bool
	Message  string
}

// MarshalJSON encodes the frame as a JSON array.
func (f Frame) MarshalJSON() ([]byte, error) {
	var arr []any
	switch f.Label {
	case LabelEvent:
		if f.SubID != "" {
			arr = []any{f.Label, f.SubID, f.Event}
		} else {
			arr = []any{f.Label, f.Event}
		}
	case LabelReq:
		arr = []any{f.Label, f.SubID}
		for _, flt := range f.Filters {
			arr = append(arr, flt)
		}
	case LabelClose, LabelEOSE:
		arr = []any{f.Label, f.SubID}
	case LabelAuth:
		if f.Event.ID != "" {
			arr = []any{f.Label, f.Event}
		} else {
			arr = []any{f.Label, f.Message}
		}
	case LabelClosed:
		arr = []any{f.Label, f.SubID, f.Message}
	case LabelOK:
		arr = []any{f.Label, f.EventID, f.Accepted, f.Message}
	case LabelNotice:
		arr = []any{f.Label, f.Message}
	default:
		return nil, fmt.Errorf("%w: label %q", ErrBadFrame, f.Label)
	}
	return json.Marshal(arr)
}

// ParseFrame decodes a frame sent by either side.
func ParseFrame(data []byte) (Frame, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if len(raw) < 2 {
		return Frame{}, fmt.Errorf("%w: %d elements", ErrBadFrame, len(raw))
	}
	var f Frame
	if err := json.Unmarshal(raw[0], &f.Label); err != nil {
		return Frame{}, fmt.Errorf("%w: label: %v", ErrBadFrame, err)
	}

	var err error
	switch f.Label {
	case LabelEvent:
		if len(raw) == 2 {
			err = json.Unmarshal(raw[1], &f.Event)
		} else if err = json.Unmarshal(raw[1], &f.SubID); err == nil {
			err = json.Unmarshal(raw[2], &f.Event)
		}
	case LabelReq:
		if err = json.Unmarshal(raw[1], &f.SubID); err != nil {
			break
		}
		for _, r := range raw[2:] {
			var flt domain.Filter
			if err = json.Unmarshal(r, &flt); err != nil {
				break
			}
			f.Filters = append(f.Filters, flt)
		}
	case LabelClose, LabelEOSE:
		err = json.Unmarshal(raw[1], &f.SubID)
	case LabelAuth:
		if len(raw[1]) > 0 && raw[1][0] == '{' {
			err = json.Unmarshal(raw[1], &f.Event)
		} else {
			err = json.Unmarshal(raw[1], &f.Message)
		}
	case LabelClosed:
		if err = json.Unmarshal(raw[1], &f.SubID); err == nil && len(raw) > 2 {
			err = json.Unmarshal(raw[2], &f.Message)
		}
	case LabelOK:
		if len(raw) < 3 {
			return Frame{}, fmt.Errorf("%w: short OK", ErrBadFrame)
		}
		if err = json.Unmarshal(raw[1], &f.EventID); err == nil {
			err = json.Unmarshal(raw[2], &f.Accepted)
		}
		if err == nil && len(raw) > 3 {
			err = json.Unmarshal(raw[3], &f.Message)
		}
	case LabelNotice:
		err = json.Unmarshal(raw[1], &f.Message)
	default:
		return Frame{}, fmt.Errorf("%w: label %q", ErrBadFrame, f.Label)
	}
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %s: %v", ErrBadFrame, f.Label, err)
	}
	return f, nil
}
