// Package intent turns a free-form utterance into a typed Intent using an
// ordered, deterministic rule chain.
package intent

import (
	"encoding/json"
)

// Type names the category an utterance was classified into.
type Type string

const (
	TypeMusic         Type = "music"
	TypeShopping      Type = "shopping"
	TypeSearch        Type = "search"
	TypeTravel        Type = "travel"
	TypeGmail         Type = "gmail"
	TypeWhatsApp      Type = "whatsapp"
	TypePhone         Type = "phone"
	TypeMediaControl  Type = "media_control"
	TypeSearchReplace Type = "search_replace"
	TypeConversation  Type = "conversation"
)

// MediaAction is the abstract playback command sent to media controllers.
type MediaAction string

const (
	MediaPause      MediaAction = "pause"
	MediaStop       MediaAction = "stop"
	MediaResume     MediaAction = "resume"
	MediaNext       MediaAction = "next"
	MediaPrevious   MediaAction = "previous"
	MediaVolumeUp   MediaAction = "volume_up"
	MediaVolumeDown MediaAction = "volume_down"
	MediaMute       MediaAction = "mute"
)

const (
	PlatformAmazon     = "amazon"
	PlatformFlipkart   = "flipkart"
	PlatformGoogle     = "google"
	PlatformMakeMyTrip = "makemytrip"

	FlightIndigo  = "indigo"
	FlightGeneral = "general"

	ActionOpen    = "open"
	ActionCompose = "compose"
	ActionMessage = "message"
)

// Payload is implemented by every category-specific variant. The unexported
// method closes the set.
type Payload interface {
	Kind() Type
	payload()
}

type Music struct {
	Query      string `json:"query"`
	SongName   string `json:"songName"`
	ArtistName string `json:"artistName,omitempty"`
	DirectPlay bool   `json:"directPlay"`
	AutoMute   bool   `json:"autoMute"`
}

type Shopping struct {
	Query    string `json:"query"`
	Platform string `json:"platform"`
}

type Search struct {
	Query    string `json:"query"`
	Platform string `json:"platform"`
}

type Travel struct {
	From       string `json:"from,omitempty"`
	To         string `json:"to,omitempty"`
	Time       string `json:"time,omitempty"`
	FlightType string `json:"flightType"`
	Platform   string `json:"platform"`
}

type Gmail struct {
	Action    string `json:"action"`
	Recipient string `json:"recipient,omitempty"`
	Subject   string `json:"subject,omitempty"`
}

type WhatsApp struct {
	Action    string `json:"action"`
	Recipient string `json:"recipient,omitempty"`
	Message   string `json:"message,omitempty"`
}

type Phone struct {
	Target      string `json:"target"`
	IsNumber    bool   `json:"isNumber"`
	Number      string `json:"number,omitempty"`
	ContactName string `json:"contactName,omitempty"`
}

type MediaControl struct {
	Action MediaAction `json:"action"`
}

type SearchReplace struct {
	Query string `json:"query"`
}

func (Music) Kind() Type         { return TypeMusic }
func (Shopping) Kind() Type      { return TypeShopping }
func (Search) Kind() Type        { return TypeSearch }
func (Travel) Kind() Type        { return TypeTravel }
func (Gmail) Kind() Type         { return TypeGmail }
func (WhatsApp) Kind() Type      { return TypeWhatsApp }
func (Phone) Kind() Type         { return TypePhone }
func (MediaControl) Kind() Type  { return TypeMediaControl }
func (SearchReplace) Kind() Type { return TypeSearchReplace }

func (Music) payload()         {}
func (Shopping) payload()      {}
func (Search) payload()        {}
func (Travel) payload()        {}
func (Gmail) payload()         {}
func (WhatsApp) payload()      {}
func (Phone) payload()         {}
func (MediaControl) payload()  {}
func (SearchReplace) payload() {}

// Intent is an immutable classified utterance. Type and Payload always agree;
// a conversation intent has a nil Payload.
type Intent struct {
	Type         Type
	OriginalText string
	Payload      Payload
}

// New builds an Intent whose Type is derived from the payload.
func New(text string, p Payload) Intent {
	if p == nil {
		return Conversation(text)
	}
	return Intent{Type: p.Kind(), OriginalText: text, Payload: p}
}

func Conversation(text string) Intent {
	return Intent{Type: TypeConversation, OriginalText: text}
}

// Query returns the search phrase for query-bearing intents, "" otherwise.
func (i Intent) Query() string {
	switch p := i.Payload.(type) {
	case Music:
		return p.Query
	case Shopping:
		return p.Query
	case Search:
		return p.Query
	case SearchReplace:
		return p.Query
	}
	return ""
}

// Subject returns Query, falling back to the original text.
func (i Intent) Subject() string {
	if q := i.Query(); q != "" {
		return q
	}
	return i.OriginalText
}

// MarshalJSON flattens the payload next to type and originalText.
func (i Intent) MarshalJSON() ([]byte, error) {
	out := map[string]interface{}{}
	if i.Payload != nil {
		raw, err := json.Marshal(i.Payload)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
	}
	out["type"] = i.Type
	out["originalText"] = i.OriginalText
	return json.Marshal(out)
}
