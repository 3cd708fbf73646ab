// Package destination builds the external URLs automations open. Every
// function here is pure.
package destination

import (
	"net/url"
	"strings"

	"github.com/harunnryd/koe/internal/intent"
)

const (
	WhatsAppWebURL = "https://web.whatsapp.com/"
	GmailBaseURL   = "https://mail.google.com/mail/u/0/"
	FlightsURL     = "https://www.makemytrip.com/flights/"

	flightSearchURL  = "https://www.makemytrip.com/flight/search"
	defaultEmailBody = "Hello,\n\nI am writing to you via voice command.\n\nBest regards"
)

// encode escapes a query component the way browsers' encodeURIComponent
// does: spaces become %20 rather than "+".
func encode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func AmazonURL(query string) string {
	return "https://www.amazon.com/s?k=" + encode(query) + "&ref=nb_sb_noss"
}

func FlipkartURL(query string) string {
	return "https://www.flipkart.com/search?q=" + encode(query) + "&sort=relevance"
}

func GoogleURL(query string) string {
	return "https://www.google.com/search?q=" + encode(query) + "&sourceid=chrome&ie=UTF-8"
}

// ShoppingURL picks the store for platform; anything but flipkart is Amazon.
func ShoppingURL(query, platform string) string {
	if platform == intent.PlatformFlipkart {
		return FlipkartURL(query)
	}
	return AmazonURL(query)
}

// TravelURL adds from, to and airline parameters only for fields that are
// present. With none present it returns the flights listing page.
func TravelURL(t intent.Travel) string {
	var params []string
	if t.From != "" {
		params = append(params, "from="+encode(t.From))
	}
	if t.To != "" {
		params = append(params, "to="+encode(t.To))
	}
	if t.FlightType == intent.FlightIndigo {
		params = append(params, "airline=indigo")
	}
	if len(params) == 0 {
		return FlightsURL
	}
	return flightSearchURL + "?" + strings.Join(params, "&")
}

// GmailURL returns a prefilled compose link when a recipient is known, the
// bare compose view without one, and the inbox for any other action.
func GmailURL(g intent.Gmail) string {
	if g.Action != intent.ActionCompose {
		return GmailBaseURL + "#inbox"
	}
	if g.Recipient == "" {
		return GmailBaseURL + "#compose"
	}

	params := url.Values{}
	params.Set("to", g.Recipient)
	if g.Subject != "" {
		params.Set("subject", g.Subject)
	}
	params.Set("body", defaultEmailBody)
	return GmailBaseURL + "?" + params.Encode() + "#compose"
}

func WhatsAppURL(intent.WhatsApp) string {
	return WhatsAppWebURL
}

// PhoneURL returns a tel: link for numeric targets. Contact names have no
// dialable destination.
func PhoneURL(p intent.Phone) (string, bool) {
	if !p.IsNumber || p.Number == "" {
		return "", false
	}
	return "tel:" + p.Number, true
}

// Label is the human name of a destination, used in messages.
func Label(platform string) string {
	switch platform {
	case intent.PlatformAmazon:
		return "Amazon"
	case intent.PlatformFlipkart:
		return "Flipkart"
	case intent.PlatformGoogle:
		return "Google"
	case intent.PlatformMakeMyTrip:
		return "MakeMyTrip"
	case PlatformYouTube:
		return "YouTube"
	case PlatformYouTubeMusic:
		return "YouTube Music"
	case PlatformSpotify:
		return "Spotify"
	case PlatformSoundCloud:
		return "SoundCloud"
	case "gmail":
		return "Gmail"
	case "whatsapp":
		return "WhatsApp Web"
	}
	if platform == "" {
		return "the destination"
	}
	return strings.ToUpper(platform[:1]) + platform[1:]
}
