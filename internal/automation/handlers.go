package automation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/koe/internal/destination"
	"github.com/harunnryd/koe/internal/eventbus"
	"github.com/harunnryd/koe/internal/intent"
	"github.com/harunnryd/koe/internal/opener"
	"github.com/harunnryd/koe/internal/window"
)

const (
	ActionMusicPlaying    = "music_playing"
	ActionShoppingOpened  = "shopping_opened"
	ActionSearchOpened    = "search_opened"
	ActionTravelOpened    = "travel_opened"
	ActionGmailOpened     = "gmail_opened"
	ActionWhatsAppMessage = "whatsapp_message"
	ActionWhatsAppOpened  = "whatsapp_opened"
	ActionPhoneCall       = "phone_call"
	ActionPhoneGuidance   = "phone_guidance"
	ActionMediaControlled = "media_controlled"
	ActionSearchReplaced  = "search_replaced"
	ActionNewSearchOpened = "new_search_opened"
)

const (
	musicWindowName    = "player"
	gmailWindowName    = "gmail_window"
	whatsAppWindowName = "whatsapp_web"
	travelWindowName   = "makemytrip_flights"
	phoneWindowName    = "phone_dialer"
	popupRemedy        = "Please check if popups are blocked."
)

func (d *Dispatcher) music(ctx context.Context, in intent.Intent) (*Result, error) {
	p, ok := in.Payload.(intent.Music)
	if !ok {
		return nil, mismatch(in)
	}

	target := destination.Music(p.Query, d.musicPlatform)
	label := destination.Label(target.Platform)

	h, err := d.open(ctx, musicTarget(target), target.Platform+"_"+musicWindowName,
		fmt.Sprintf("Unable to open %s player. %s", label, popupRemedy))
	if err != nil {
		return nil, err
	}
	id := d.track(h, intent.TypeMusic, p.Query, target.Platform)

	d.publish(eventbus.MusicStarted, map[string]interface{}{
		"windowId":   id,
		"query":      p.Query,
		"songName":   p.SongName,
		"artistName": p.ArtistName,
		"platform":   target.Platform,
		"autoMute":   p.AutoMute,
	})

	song := fmt.Sprintf("%q", p.Query)
	if p.ArtistName != "" {
		song = fmt.Sprintf("%q by %s", p.SongName, p.ArtistName)
	}

	var msg string
	searchType := "search"
	switch {
	case target.Direct:
		searchType = "direct"
		msg = fmt.Sprintf("🎵 Playing %s directly on %s! Music starting automatically with enhanced playback.", song, label)
	case target.NeedsAutoClick:
		searchType = "autoclick"
		msg = fmt.Sprintf("🎶 Smart search for %s on %s. Auto-clicking the first result!", song, label)
	default:
		msg = fmt.Sprintf("🎧 Found %s on %s. Click the first result for instant playback.", song, label)
	}
	if p.AutoMute {
		msg += " 🎤 Microphone automatically muted during playback."
	}

	return &Result{
		Success:  true,
		Message:  msg,
		Action:   ActionMusicPlaying,
		WindowID: id,
		Window:   h,
		Metadata: map[string]interface{}{
			"searchType": searchType,
			"autoClick":  target.NeedsAutoClick,
			"url":        target.URL,
			"platform":   target.Platform,
			"songName":   p.SongName,
			"artistName": p.ArtistName,
			"autoMute":   p.AutoMute,
			"timestamp":  d.timestamp(),
		},
	}, nil
}

func (d *Dispatcher) shopping(ctx context.Context, in intent.Intent) (*Result, error) {
	p, ok := in.Payload.(intent.Shopping)
	if !ok {
		return nil, mismatch(in)
	}
	platform := p.Platform
	if platform == "" {
		platform = intent.PlatformAmazon
	}
	label := destination.Label(platform)
	url := destination.ShoppingURL(p.Query, platform)

	h, err := d.open(ctx, opener.Target{URL: url}, platform+"_shopping",
		fmt.Sprintf("Unable to open %s search. %s", label, popupRemedy))
	if err != nil {
		return nil, err
	}
	id := d.track(h, intent.TypeShopping, p.Query, platform)

	return &Result{
		Success:  true,
		Message:  fmt.Sprintf("🛒 Searching for %q on %s. Enhanced search with smart filters opened in new window.", p.Query, label),
		Action:   ActionShoppingOpened,
		WindowID: id,
		Window:   h,
		Metadata: map[string]interface{}{
			"platform":  platform,
			"searchUrl": url,
			"timestamp": d.timestamp(),
		},
	}, nil
}

func (d *Dispatcher) search(ctx context.Context, in intent.Intent) (*Result, error) {
	p, ok := in.Payload.(intent.Search)
	if !ok {
		return nil, mismatch(in)
	}
	platform := p.Platform
	if platform == "" {
		platform = intent.PlatformGoogle
	}
	label := destination.Label(platform)
	url := destination.GoogleURL(p.Query)

	h, err := d.open(ctx, opener.Target{URL: url}, platform+"_search",
		fmt.Sprintf("Unable to open %s search. %s", label, popupRemedy))
	if err != nil {
		return nil, err
	}
	id := d.track(h, intent.TypeSearch, p.Query, platform)

	return &Result{
		Success:  true,
		Message:  fmt.Sprintf("Searching for %q on %s. Results will open in a new window.", p.Query, label),
		Action:   ActionSearchOpened,
		WindowID: id,
		Window:   h,
		Metadata: map[string]interface{}{
			"platform":  platform,
			"searchUrl": url,
			"timestamp": d.timestamp(),
		},
	}, nil
}

func (d *Dispatcher) travel(ctx context.Context, in intent.Intent) (*Result, error) {
	p, ok := in.Payload.(intent.Travel)
	if !ok {
		return nil, mismatch(in)
	}
	url := destination.TravelURL(p)

	h, err := d.open(ctx, opener.Target{URL: url}, travelWindowName,
		"Unable to open MakeMyTrip. "+popupRemedy)
	if err != nil {
		return nil, err
	}
	id := d.track(h, intent.TypeTravel, travelQuery(p), intent.PlatformMakeMyTrip)

	return &Result{
		Success:  true,
		Message:  travelMessage(p),
		Action:   ActionTravelOpened,
		WindowID: id,
		Window:   h,
		Metadata: map[string]interface{}{
			"from":       p.From,
			"to":         p.To,
			"time":       p.Time,
			"flightType": p.FlightType,
			"searchUrl":  url,
			"timestamp":  d.timestamp(),
		},
	}, nil
}

func travelMessage(p intent.Travel) string {
	msg := "Opening MakeMyTrip for flight search."
	switch {
	case p.FlightType == intent.FlightIndigo:
		msg = "Searching for Indigo flights on MakeMyTrip."
	case p.From != "" && p.To != "":
		msg = fmt.Sprintf("Searching for flights from %s to %s on MakeMyTrip.", p.From, p.To)
	case p.To != "":
		msg = fmt.Sprintf("Searching for flights to %s on MakeMyTrip.", p.To)
	}
	if p.Time != "" {
		msg += fmt.Sprintf(" Looking for flights around %s.", p.Time)
	}
	return msg + " The search will open in a new window while our conversation continues here."
}

func travelQuery(p intent.Travel) string {
	switch {
	case p.From != "" && p.To != "":
		return p.From + " to " + p.To
	case p.To != "":
		return "to " + p.To
	case p.From != "":
		return "from " + p.From
	}
	return "flights"
}

func (d *Dispatcher) gmail(ctx context.Context, in intent.Intent) (*Result, error) {
	p, ok := in.Payload.(intent.Gmail)
	if !ok {
		return nil, mismatch(in)
	}
	url := destination.GmailURL(p)

	h, err := d.open(ctx, opener.Target{URL: url}, gmailWindowName,
		"Unable to open Gmail. Please check if popups are blocked or sign in to your Google account.")
	if err != nil {
		return nil, err
	}
	query := p.Recipient
	if query == "" {
		query = "inbox"
	}
	id := d.track(h, intent.TypeGmail, query, "gmail")

	var msg string
	switch {
	case p.Action == intent.ActionCompose && p.Recipient != "":
		msg = fmt.Sprintf("📧 Opening Gmail to compose an email to %s.", p.Recipient)
		if p.Subject != "" {
			msg += fmt.Sprintf(" Subject: %q.", p.Subject)
		}
		msg += " The compose window will open automatically!"
	case p.Action == intent.ActionCompose:
		msg = "📧 Opening Gmail compose window. Please specify the recipient email address."
	default:
		msg = "📧 Opening your Gmail inbox. All emails are now accessible in the new window."
	}

	return &Result{
		Success:  true,
		Message:  msg,
		Action:   ActionGmailOpened,
		WindowID: id,
		Window:   h,
		Metadata: map[string]interface{}{
			"gmailAction": p.Action,
			"recipient":   p.Recipient,
			"subject":     p.Subject,
			"url":         url,
			"timestamp":   d.timestamp(),
		},
	}, nil
}

func (d *Dispatcher) whatsapp(ctx context.Context, in intent.Intent) (*Result, error) {
	p, ok := in.Payload.(intent.WhatsApp)
	if !ok {
		return nil, mismatch(in)
	}
	url := destination.WhatsAppURL(p)

	h, err := d.open(ctx, opener.Target{URL: url}, whatsAppWindowName,
		"Unable to open WhatsApp Web. "+popupRemedy)
	if err != nil {
		return nil, err
	}
	query := p.Recipient
	if query == "" {
		query = whatsAppWindowName
	}
	id := d.track(h, intent.TypeWhatsApp, query, "whatsapp")

	msg := "💬 Opening WhatsApp Web. You can now access all your chats and conversations!"
	action := ActionWhatsAppOpened
	if p.Action == intent.ActionMessage && p.Recipient != "" {
		action = ActionWhatsAppMessage
		msg = fmt.Sprintf("💬 Opening WhatsApp to send message to %s.", p.Recipient)
		if p.Message != "" {
			msg += fmt.Sprintf(" Message: %q", p.Message)
		} else {
			msg += " Please dictate your message when WhatsApp opens."
		}
	}

	return &Result{
		Success:  true,
		Message:  msg,
		Action:   action,
		WindowID: id,
		Window:   h,
		Metadata: map[string]interface{}{
			"whatsappAction": p.Action,
			"recipient":      p.Recipient,
			"message":        p.Message,
			"timestamp":      d.timestamp(),
		},
	}, nil
}

// phone hands a number to the system dialer through a tel: link. The tab
// that carried the link is closed again since the call leaves the browser.
// Contact names have no dialable destination and only get guidance.
func (d *Dispatcher) phone(ctx context.Context, in intent.Intent) (*Result, error) {
	p, ok := in.Payload.(intent.Phone)
	if !ok {
		return nil, mismatch(in)
	}

	url, dialable := destination.PhoneURL(p)
	if !dialable {
		name := p.ContactName
		if name == "" {
			name = p.Target
		}
		return &Result{
			Success: true,
			Message: fmt.Sprintf("📞 Ready to help you call %s! Look them up in your phone's contacts, or say \"call\" followed by their number.", name),
			Action:  ActionPhoneGuidance,
			Metadata: map[string]interface{}{
				"contactName": name,
				"callType":    "guidance",
				"timestamp":   d.timestamp(),
			},
		}, nil
	}

	// A dialer that refuses is not fatal: the user can still dial by hand.
	h, err := d.open(ctx, opener.Target{URL: url}, phoneWindowName, "Unable to start a call.")
	if err != nil {
		slog.Debug("Dialer hand-off failed", "number", p.Number, "error", err)
	} else if cerr := d.opener.Close(ctx, h); cerr != nil {
		slog.Debug("Close dialer tab failed", "error", cerr)
	}

	return &Result{
		Success: true,
		Message: fmt.Sprintf("📞 Attempting to call %s. Check your device for calling options or dial manually if needed.", p.Number),
		Action:  ActionPhoneCall,
		Metadata: map[string]interface{}{
			"number":    p.Number,
			"callType":  "direct",
			"telUrl":    url,
			"timestamp": d.timestamp(),
		},
	}, nil
}

var mediaMessages = map[intent.MediaAction]string{
	intent.MediaPause:      "Pausing current media playback.",
	intent.MediaStop:       "Stopping current media playback.",
	intent.MediaResume:     "Resuming media playback.",
	intent.MediaNext:       "Skipping to next track/video.",
	intent.MediaPrevious:   "Going to previous track/video.",
	intent.MediaVolumeUp:   "Increasing volume.",
	intent.MediaVolumeDown: "Decreasing volume.",
	intent.MediaMute:       "Toggling audio mute.",
}

// mediaControl focuses the most recently active tracked window, if still
// live, and sends the action to it. The controller gives no reliable
// success signal, so its errors are logged and the command is still
// reported as sent.
func (d *Dispatcher) mediaControl(ctx context.Context, in intent.Intent) (*Result, error) {
	p, ok := in.Payload.(intent.MediaControl)
	if !ok {
		return nil, mismatch(in)
	}

	var (
		active window.Entry
		found  bool
	)
	if d.windows != nil {
		active, found = d.windows.Active(ctx)
	}
	if found {
		if err := d.windows.Focus(ctx, active.ID); err != nil {
			slog.Debug("Media target not focused", "window", active.ID, "error", err)
		}
	}

	if err := d.media.Control(ctx, active.Handle, p.Action); err != nil {
		slog.Debug("Media control not applied", "action", p.Action, "error", err)
	}

	msg, ok := mediaMessages[p.Action]
	if !ok {
		msg = "Media control executed."
	}
	if found && active.Query != "" {
		msg += fmt.Sprintf(" (controlling %s: %q)", active.Type, active.Query)
	}

	return &Result{
		Success:  true,
		Message:  msg,
		Action:   ActionMediaControlled,
		WindowID: active.ID,
		Window:   active.Handle,
		Metadata: map[string]interface{}{
			"controlAction": string(p.Action),
			"hasTarget":     found,
			"timestamp":     d.timestamp(),
		},
	}, nil
}

// searchReplace points the active music, shopping or search window at a new
// query. Without one, or when navigation fails, it opens a fresh music
// search instead.
func (d *Dispatcher) searchReplace(ctx context.Context, in intent.Intent) (*Result, error) {
	p, ok := in.Payload.(intent.SearchReplace)
	if !ok {
		return nil, mismatch(in)
	}

	if res, ok := d.replaceActive(ctx, p.Query); ok {
		return res, nil
	}

	target := destination.Music(p.Query, d.musicPlatform)
	label := destination.Label(target.Platform)
	h, err := d.open(ctx, musicTarget(target), target.Platform+"_"+musicWindowName,
		"Unable to open new search. "+popupRemedy)
	if err != nil {
		return nil, err
	}
	id := d.track(h, intent.TypeMusic, p.Query, target.Platform)

	return &Result{
		Success:  true,
		Message:  fmt.Sprintf("Searching for %q on %s in a new window.", p.Query, label),
		Action:   ActionNewSearchOpened,
		WindowID: id,
		Window:   h,
		Metadata: map[string]interface{}{
			"newQuery":  p.Query,
			"url":       target.URL,
			"timestamp": d.timestamp(),
		},
	}, nil
}

func (d *Dispatcher) replaceActive(ctx context.Context, query string) (*Result, bool) {
	if d.windows == nil {
		return nil, false
	}
	e, ok := d.windows.Active(ctx)
	if !ok || e.Handle == nil {
		return nil, false
	}

	var url, platform, msg string
	switch intent.Type(e.Type) {
	case intent.TypeMusic:
		platform = e.Platform
		if platform == "" {
			platform = d.musicPlatform
		}
		url = destination.Music(query, platform).URL
		msg = fmt.Sprintf("Searching for %q instead. Updating the current %s window.", query, destination.Label(platform))
	case intent.TypeShopping:
		platform = e.Platform
		if platform == "" {
			platform = intent.PlatformAmazon
		}
		url = destination.ShoppingURL(query, platform)
		msg = fmt.Sprintf("Searching for %q instead on %s. Updating the current shopping window.", query, destination.Label(platform))
	case intent.TypeSearch:
		platform = intent.PlatformGoogle
		url = destination.GoogleURL(query)
		msg = fmt.Sprintf("Searching for %q instead on Google. Updating the current search window.", query)
	default:
		return nil, false
	}

	if err := d.opener.Navigate(ctx, e.Handle, url); err != nil {
		slog.Warn("Retarget window failed, opening a new one", "window_id", e.ID, "error", err)
		return nil, false
	}
	d.windows.Retarget(e.ID, query, platform)

	return &Result{
		Success:  true,
		Message:  msg,
		Action:   ActionSearchReplaced,
		WindowID: e.ID,
		Window:   e.Handle,
		Metadata: map[string]interface{}{
			"windowType": e.Type,
			"newQuery":   query,
			"url":        url,
			"timestamp":  d.timestamp(),
		},
	}, true
}

func musicTarget(t destination.MusicTarget) opener.Target {
	return opener.Target{
		URL:                     t.URL,
		NeedsAutoClick:          t.NeedsAutoClick,
		NeedsAggressiveAutoplay: t.NeedsAggressiveAutoplay,
		Query:                   t.Query,
	}
}
