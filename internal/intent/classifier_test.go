package intent

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyMusic(t *testing.T) {
	in := Classify("play Despacito song")
	require.Equal(t, TypeMusic, in.Type)

	m, ok := in.Payload.(Music)
	require.True(t, ok)
	assert.Contains(t, strings.ToLower(m.Query), "despacito")
	assert.True(t, m.DirectPlay)
	assert.True(t, m.AutoMute)
	assert.Equal(t, "play Despacito song", in.OriginalText)
}

func TestClassifyMusicArtist(t *testing.T) {
	in := Classify("play Shape of You by Ed Sheeran")
	m := in.Payload.(Music)

	assert.Equal(t, "Shape of You", m.SongName)
	assert.Equal(t, "Ed Sheeran", m.ArtistName)
	assert.Equal(t, "Shape of You Ed Sheeran", m.Query)
}

func TestClassifyShopping(t *testing.T) {
	tests := []struct {
		text     string
		platform string
		query    string
	}{
		{"search iPhone on amazon", PlatformAmazon, "iphone"},
		{"search laptop on flipkart", PlatformFlipkart, "laptop"},
		{"buy running shoes", PlatformAmazon, "running shoes"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			in := Classify(tt.text)
			require.Equal(t, TypeShopping, in.Type)
			s := in.Payload.(Shopping)
			assert.Equal(t, tt.platform, s.Platform)
			assert.True(t, strings.EqualFold(tt.query, s.Query), "query %q", s.Query)
		})
	}
}

func TestClassifyGoogleSearch(t *testing.T) {
	in := Classify("search weather in Paris on google")
	require.Equal(t, TypeSearch, in.Type)
	s := in.Payload.(Search)
	assert.Equal(t, PlatformGoogle, s.Platform)
	assert.Equal(t, "weather in Paris", s.Query)
}

func TestClassifySearchReplace(t *testing.T) {
	in := Classify("search Perfect instead")
	require.Equal(t, TypeSearchReplace, in.Type)
	assert.True(t, strings.EqualFold("perfect", in.Query()))

	fallback := Classify("search instead")
	require.Equal(t, TypeSearchReplace, fallback.Type)
	assert.Equal(t, "new search", fallback.Query())
}

func TestClassifyMediaControlPriority(t *testing.T) {
	tests := map[string]MediaAction{
		"stop the music":     MediaStop,
		"pause the song":     MediaPause,
		"next song please":   MediaNext,
		"turn the volume up": MediaVolumeUp,
		"make it louder":     MediaVolumeUp,
		"mute":               MediaMute,
		"resume":             MediaResume,
		"skip this one":      MediaNext,
		"previous song":      MediaPrevious,
		"a bit quieter":      MediaVolumeDown,
	}
	for text, want := range tests {
		t.Run(text, func(t *testing.T) {
			in := Classify(text)
			require.Equal(t, TypeMediaControl, in.Type, "music keywords must not shadow control phrases")
			assert.Equal(t, want, in.Payload.(MediaControl).Action)
		})
	}
}

func TestResolveMediaActionDefaultsToPause(t *testing.T) {
	assert.Equal(t, MediaPause, ResolveMediaAction("do something with the player"))
}

func TestClassifyPhone(t *testing.T) {
	in := Classify("call 555-123-4567")
	require.Equal(t, TypePhone, in.Type)
	p := in.Payload.(Phone)
	assert.True(t, p.IsNumber)
	assert.Equal(t, "5551234567", p.Number)

	in = Classify("call mom")
	p = in.Payload.(Phone)
	assert.False(t, p.IsNumber)
	assert.Equal(t, "mom", p.ContactName)
	assert.Empty(t, p.Number)
}

func TestClassifyWhatsApp(t *testing.T) {
	in := Classify("send a message to John saying hello there")
	require.Equal(t, TypeWhatsApp, in.Type)
	w := in.Payload.(WhatsApp)
	assert.Equal(t, ActionMessage, w.Action)
	assert.Equal(t, "John", w.Recipient)
	assert.Equal(t, "hello there", w.Message)

	open := Classify("open whatsapp")
	require.Equal(t, TypeWhatsApp, open.Type)
	assert.Equal(t, ActionOpen, open.Payload.(WhatsApp).Action)
}

func TestClassifyGmail(t *testing.T) {
	in := Classify("compose an email to bob@example.com about lunch plans")
	require.Equal(t, TypeGmail, in.Type)
	g := in.Payload.(Gmail)
	assert.Equal(t, ActionCompose, g.Action)
	assert.Equal(t, "bob@example.com", g.Recipient)
	assert.Equal(t, "lunch plans", g.Subject)

	open := Classify("open my gmail")
	require.Equal(t, TypeGmail, open.Type)
	assert.Equal(t, ActionOpen, open.Payload.(Gmail).Action)
}

func TestClassifyTravel(t *testing.T) {
	in := Classify("book flights from Delhi to Mumbai at 5 pm")
	require.Equal(t, TypeTravel, in.Type)
	tr := in.Payload.(Travel)
	assert.Equal(t, "Delhi", tr.From)
	assert.Equal(t, "Mumbai", tr.To)
	assert.Equal(t, "5 pm", tr.Time)
	assert.Equal(t, FlightGeneral, tr.FlightType)

	indigo := Classify("show me indigo flights")
	require.Equal(t, TypeTravel, indigo.Type)
	tr = indigo.Payload.(Travel)
	assert.Equal(t, FlightIndigo, tr.FlightType)
	assert.Empty(t, tr.From)
	assert.Empty(t, tr.To)

	oneWay := Classify("book a flight to Goa").Payload.(Travel)
	assert.Equal(t, "Goa", oneWay.To)
	assert.Empty(t, oneWay.From)

	origin := Classify("book flights from Pune").Payload.(Travel)
	assert.Equal(t, "Pune", origin.From)
	assert.Empty(t, origin.To)
}

func TestClassifyConversation(t *testing.T) {
	in := Classify("hello, how are you")
	assert.Equal(t, TypeConversation, in.Type)
	assert.Nil(t, in.Payload)
}

func TestClassifyIsTotalAndDeterministic(t *testing.T) {
	inputs := []string{
		"", "   ", "???", "search", "play", "call", "call me maybe",
		"book", strings.Repeat("a", 4096), "search  on amazon", "ß∂ƒ play ✓",
	}
	known := []Type{
		TypeMusic, TypeShopping, TypeSearch, TypeTravel, TypeGmail, TypeWhatsApp,
		TypePhone, TypeMediaControl, TypeSearchReplace, TypeConversation,
	}
	for _, text := range inputs {
		first := Classify(text)
		assert.Contains(t, known, first.Type)
		assert.Equal(t, first, Classify(text))
		if first.Payload != nil {
			assert.Equal(t, first.Type, first.Payload.Kind())
		}
	}
}

func TestChainOrder(t *testing.T) {
	order := Chain()
	require.Len(t, order, 12)
	assert.Equal(t, TypeSearchReplace, order[0])
	assert.Equal(t, TypeMediaControl, order[1])
	assert.Equal(t, TypeMusic, order[2])
	assert.Equal(t, TypeConversation, order[len(order)-1])
}

func TestIntentMarshalJSON(t *testing.T) {
	raw, err := json.Marshal(Classify("call 555-123-4567"))
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "phone", out["type"])
	assert.Equal(t, "call 555-123-4567", out["originalText"])
	assert.Equal(t, "5551234567", out["number"])
	assert.Equal(t, true, out["isNumber"])
}
