// Package telegram provides raw flight-notification telegram types.
package telegram

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Status is the processing state of a raw telegram.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusProcessed Status = "PROCESSED"
	StatusFailed    Status = "FAILED"
)

// FlexInt64 handles JSON fields that can be either string or number.
type FlexInt64 int64

func (f *FlexInt64) UnmarshalJSON(data []byte) error {
	var i int64
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexInt64(i)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			*f = 0
			return nil // Unparseable IDs are treated as unassigned.
		}
		*f = FlexInt64(i)
		return nil
	}

	*f = 0
	return nil
}

// Telegram is one ingested row: the reporting center and the SHR, DEP and ARR
// message texts. Only Status changes after creation.
type Telegram struct {
	ID       FlexInt64 `json:"id"`
	Center   string    `json:"center"`
	SHRText  string    `json:"shr_text"`
	DEPText  string    `json:"dep_text,omitempty"`
	ARRText  string    `json:"arr_text,omitempty"`
	Status   Status    `json:"status"`
	FileName string    `json:"file_name,omitempty"`
}

// New creates a pending telegram from trimmed cell values.
func New(center, shr, dep, arr, fileName string) *Telegram {
	return &Telegram{
		Center:   strings.TrimSpace(center),
		SHRText:  strings.TrimSpace(shr),
		DEPText:  strings.TrimSpace(dep),
		ARRText:  strings.TrimSpace(arr),
		Status:   StatusPending,
		FileName: fileName,
	}
}

// Envelope is the bus message format where the telegram is nested inside a
// "telegram" field with source metadata at the top level.
type Envelope struct {
	Source   string    `json:"source,omitempty"`
	Received string    `json:"received,omitempty"`
	Telegram *Telegram `json:"telegram,omitempty"`
}

// ToTelegram unwraps the envelope, filling the file name from the source when empty.
func (e *Envelope) ToTelegram() *Telegram {
	if e.Telegram == nil {
		return nil
	}
	t := *e.Telegram
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.FileName == "" {
		t.FileName = e.Source
	}
	return &t
}

// Decode accepts either an Envelope or a flat Telegram. It returns nil when
// the payload carries no SHR text.
func Decode(b []byte) (*Telegram, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	if t := env.ToTelegram(); t != nil && strings.TrimSpace(t.SHRText) != "" {
		return t, nil
	}

	var t Telegram
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, err
	}
	if strings.TrimSpace(t.SHRText) == "" {
		return nil, nil
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	return &t, nil
}
