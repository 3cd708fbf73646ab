package intent

import "regexp"

// Keyword sets are matched as case-insensitive substrings of the utterance.
var (
	musicKeywords    = []string{"play", "music", "song", "album", "artist", "spotify", "youtube music", "yt"}
	shoppingKeywords = []string{"buy", "search", "amazon", "flipkart", "shop", "purchase", "order", "find"}
	travelKeywords   = []string{"flight", "flights", "book", "travel", "makemytrip", "indigo", "air india", "spicejet"}
	gmailKeywords    = []string{"gmail", "email", "mail", "compose", "send", "write"}
	whatsappKeywords = []string{"whatsapp", "whats app", "what's app", "message", "text", "chat"}
	phoneKeywords    = []string{"call", "dial", "phone"}

	mediaControls = []string{
		"pause", "stop", "resume", "play again", "continue", "next", "previous", "skip",
		"volume up", "volume down", "mute", "louder", "quieter",
		"pause music", "stop music", "stop the music", "pause the song", "stop the song",
		"next song", "previous song", "skip song",
	}
)

// mediaActionRules resolve a control phrase to an action. Compound phrases
// come first so "stop the music" is never read as a generic keyword.
var mediaActionRules = []struct {
	phrases []string
	action  MediaAction
}{
	{[]string{"stop the music", "stop the song", "stop music"}, MediaStop},
	{[]string{"pause the music", "pause the song", "pause music"}, MediaPause},
	{[]string{"next song", "skip song"}, MediaNext},
	{[]string{"previous song"}, MediaPrevious},
	{[]string{"pause"}, MediaPause},
	{[]string{"stop"}, MediaStop},
	{[]string{"resume", "continue", "play again"}, MediaResume},
	{[]string{"next", "skip"}, MediaNext},
	{[]string{"previous", "back"}, MediaPrevious},
	{[]string{"volume up", "louder"}, MediaVolumeUp},
	{[]string{"volume down", "quieter"}, MediaVolumeDown},
	{[]string{"mute"}, MediaMute},
}

// Extraction patterns. Lazy captures keep trailing command words such as
// "song" or "on amazon" out of the query.
var (
	searchReplacePattern = regexp.MustCompile(`(?i)search\s+(.*?)\s+instead`)

	artistSongPattern  = regexp.MustCompile(`(?i)(?:play|listen to|put on)\s+(.+?)\s+by\s+(.+?)(?:\s+(?:song|music|track|album|on youtube|on yt))?$`)
	songRequestPattern = regexp.MustCompile(`(?i)(?:play|listen to|put on|start|begin)\s+(?:the\s+song\s+|a\s+song\s+)?(.+?)(?:\s+(?:song|music|track|album|by|on youtube|on yt|please))?$`)
	musicPattern       = regexp.MustCompile(`(?i)(?:play|listen to|put on)\s+(.*?)(?:\s+(?:song|music|track|album|by|on youtube|on yt))?$`)

	explicitAmazonPattern   = regexp.MustCompile(`(?i)(?:search|find|look for|buy)\s+(.*?)\s+(?:on|in)\s+amazon`)
	amazonPattern           = regexp.MustCompile(`(?i)(?:search|buy|find|look for|shop for)\s+(.*?)(?:\s+(?:on|in)\s+amazon)?$`)
	explicitFlipkartPattern = regexp.MustCompile(`(?i)(?:search|find|look for|buy)\s+(.*?)\s+(?:on|in)\s+flipkart`)
	flipkartPattern         = regexp.MustCompile(`(?i)(?:search|buy|find|look for|shop for)\s+(.*?)(?:\s+(?:on|in)\s+flipkart)?$`)
	explicitGooglePattern   = regexp.MustCompile(`(?i)(?:search|find|look for|google)\s+(.*?)\s+(?:on|in)\s+google`)
	googlePattern           = regexp.MustCompile(`(?i)(?:search|google|find|look for)\s+(.*?)(?:\s+(?:on|in)\s+google)?$`)

	// Groups: 1 from / 2 to (from X to Y), 3 to (to Y), 4 from (from X), 5 time.
	flightPattern = regexp.MustCompile(`(?i)(?:show|find|book|search)\s+(?:an?\s+)?(?:flights?|indigo flights?)\s*(?:from\s+(.*?)\s+to\s+(.*?)|to\s+(.*?)|from\s+(.*?))?(?:\s+(?:at|from|around)\s+(\d{1,2}(?::\d{2})?\s*(?:am|pm)|\d{1,2}\s*-\s*\d{1,2}\s*(?:am|pm)))?\s*$`)

	composePattern = regexp.MustCompile(`(?i)(?:write|compose|send)\s+(?:a\s+|an\s+)?(?:email|mail)\s+to\s+(.*?)(?:\s+(?:about|regarding|with subject)\s+(.*?))?$`)
	emailPattern   = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

	whatsappMessagePattern = regexp.MustCompile(`(?i)(?:write|send|text|message)\s+(?:a\s+)?(?:message|text|chat)\s+to\s+(.*?)(?:\s+saying\s+(.*?))?$`)

	phonePattern = regexp.MustCompile(`(?i)(?:call|dial|phone)\s+(?:to\s+)?(.+)`)
	nonDigits    = regexp.MustCompile(`\D`)

	musicCleanup    = regexp.MustCompile(`(?i)(?:play|listen to|put on|music|song|track|album|by|on youtube|on yt)\s*`)
	shoppingCleanup = regexp.MustCompile(`(?i)(?:search|buy|find|look for|shop for|on amazon|in amazon|on flipkart|in flipkart)\s*`)
	searchCleanup   = regexp.MustCompile(`(?i)(?:search|google|find|look for|on google|in google)\s*`)
)

const (
	fallbackReplaceQuery  = "new search"
	fallbackMusicQuery    = "music"
	fallbackShoppingQuery = "products"
	fallbackSearchQuery   = "search"

	// minPhoneDigits is the shortest digit run treated as a dialable number.
	minPhoneDigits = 7
)
