package intent

import (
	"regexp"
	"strings"
)

// rule is one link of the classification chain. match returns false to let
// the next rule try.
type rule struct {
	name  Type
	match func(text, lower string) (Payload, bool)
}

// chain is evaluated top to bottom; the first rule that matches wins.
var chain = []rule{
	{TypeSearchReplace, matchSearchReplace},
	{TypeMediaControl, matchMediaControl},
	{TypeMusic, matchMusic},
	{TypeShopping, matchPlatformShopping(PlatformAmazon, explicitAmazonPattern, amazonPattern)},
	{TypeShopping, matchPlatformShopping(PlatformFlipkart, explicitFlipkartPattern, flipkartPattern)},
	{TypeSearch, matchGoogle},
	{TypeShopping, matchGenericShopping},
	{TypePhone, matchPhone},
	{TypeWhatsApp, matchWhatsApp},
	{TypeGmail, matchGmail},
	{TypeTravel, matchTravel},
}

// Classify never fails: text that no rule claims becomes a conversation.
func Classify(text string) Intent {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, r := range chain {
		if p, ok := r.match(text, lower); ok {
			return New(text, p)
		}
	}
	return Conversation(text)
}

func containsAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// submatch returns capture group n of the first match, trimmed.
func submatch(re *regexp.Regexp, text string, n int) (string, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil || n >= len(m) {
		return "", false
	}
	return strings.TrimSpace(m[n]), true
}

func cleanup(re *regexp.Regexp, text, fallback string) string {
	clean := strings.TrimSpace(re.ReplaceAllString(text, ""))
	if clean == "" {
		return fallback
	}
	return clean
}

// extract tries each pattern in order and falls back to the cleanup extractor.
func extract(text string, cleaner *regexp.Regexp, fallback string, patterns ...*regexp.Regexp) string {
	for _, re := range patterns {
		if q, ok := submatch(re, text, 1); ok && q != "" {
			return q
		}
	}
	return cleanup(cleaner, text, fallback)
}

func matchSearchReplace(text, lower string) (Payload, bool) {
	if !strings.Contains(lower, "search") || !strings.Contains(lower, "instead") {
		return nil, false
	}
	query, ok := submatch(searchReplacePattern, text, 1)
	if !ok || query == "" {
		query = fallbackReplaceQuery
	}
	return SearchReplace{Query: query}, true
}

func matchMediaControl(_, lower string) (Payload, bool) {
	if !containsAny(lower, mediaControls) {
		return nil, false
	}
	return MediaControl{Action: ResolveMediaAction(lower)}, true
}

// ResolveMediaAction maps a control phrase to an action, defaulting to pause.
func ResolveMediaAction(text string) MediaAction {
	lower := strings.ToLower(text)
	for _, r := range mediaActionRules {
		if containsAny(lower, r.phrases) {
			return r.action
		}
	}
	return MediaPause
}

func matchMusic(text, lower string) (Payload, bool) {
	if !containsAny(lower, musicKeywords) {
		return nil, false
	}

	var song, artist string
	if m := artistSongPattern.FindStringSubmatch(text); m != nil {
		song = strings.TrimSpace(m[1])
		artist = strings.TrimSpace(m[2])
	} else if s, ok := submatch(songRequestPattern, text, 1); ok {
		song = s
	} else if s, ok := submatch(musicPattern, text, 1); ok {
		song = s
	} else {
		song = cleanup(musicCleanup, text, fallbackMusicQuery)
	}

	query := song
	if artist != "" {
		query = song + " " + artist
	}
	return Music{
		Query:      query,
		SongName:   song,
		ArtistName: artist,
		DirectPlay: true,
		AutoMute:   true,
	}, true
}

func matchPlatformShopping(platform string, explicit, loose *regexp.Regexp) func(string, string) (Payload, bool) {
	return func(text, lower string) (Payload, bool) {
		if !strings.Contains(lower, platform) {
			return nil, false
		}
		return Shopping{
			Query:    extract(text, shoppingCleanup, fallbackShoppingQuery, explicit, loose),
			Platform: platform,
		}, true
	}
}

func matchGoogle(text, lower string) (Payload, bool) {
	mentionsSearch := strings.Contains(lower, "search") &&
		!strings.Contains(lower, PlatformAmazon) &&
		!strings.Contains(lower, PlatformFlipkart)
	if !strings.Contains(lower, PlatformGoogle) && !mentionsSearch {
		return nil, false
	}
	return Search{
		Query:    extract(text, searchCleanup, fallbackSearchQuery, explicitGooglePattern, googlePattern),
		Platform: PlatformGoogle,
	}, true
}

func matchGenericShopping(text, lower string) (Payload, bool) {
	if !containsAny(lower, shoppingKeywords) {
		return nil, false
	}
	return Shopping{
		Query:    extract(text, shoppingCleanup, fallbackShoppingQuery, amazonPattern),
		Platform: PlatformAmazon,
	}, true
}

func matchPhone(text, lower string) (Payload, bool) {
	if !containsAny(lower, phoneKeywords) {
		return nil, false
	}
	target, ok := submatch(phonePattern, text, 1)
	if !ok {
		return nil, false
	}

	digits := nonDigits.ReplaceAllString(target, "")
	if len(digits) >= minPhoneDigits {
		return Phone{Target: target, IsNumber: true, Number: digits}, true
	}
	return Phone{Target: target, ContactName: target}, true
}

func matchWhatsApp(text, lower string) (Payload, bool) {
	if !containsAny(lower, whatsappKeywords) {
		return nil, false
	}
	if m := whatsappMessagePattern.FindStringSubmatch(text); m != nil {
		return WhatsApp{
			Action:    ActionMessage,
			Recipient: strings.TrimSpace(m[1]),
			Message:   strings.TrimSpace(m[2]),
		}, true
	}
	return WhatsApp{Action: ActionOpen}, true
}

func matchGmail(text, lower string) (Payload, bool) {
	if !containsAny(lower, gmailKeywords) {
		return nil, false
	}
	if m := composePattern.FindStringSubmatch(text); m != nil {
		recipient := strings.TrimSpace(m[1])
		if email := emailPattern.FindString(recipient); email != "" {
			recipient = email
		}
		return Gmail{
			Action:    ActionCompose,
			Recipient: recipient,
			Subject:   strings.TrimSpace(m[2]),
		}, true
	}
	return Gmail{Action: ActionOpen}, true
}

func matchTravel(text, lower string) (Payload, bool) {
	if !containsAny(lower, travelKeywords) {
		return nil, false
	}

	t := Travel{FlightType: FlightGeneral, Platform: PlatformMakeMyTrip}
	if strings.Contains(lower, FlightIndigo) {
		t.FlightType = FlightIndigo
	}
	if m := flightPattern.FindStringSubmatch(text); m != nil {
		t.From = firstNonEmpty(m[1], m[4])
		t.To = firstNonEmpty(m[2], m[3])
		t.Time = strings.TrimSpace(m[5])
	}
	return t, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// Chain reports the rule order used by Classify, for diagnostics.
func Chain() []Type {
	out := make([]Type, 0, len(chain)+1)
	for _, r := range chain {
		out = append(out, r.name)
	}
	return append(out, TypeConversation)
}
