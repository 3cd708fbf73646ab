package automation

import "github.com/harunnryd/koe/internal/intent"

// Picker returns an index in [0, n). A nil Picker always picks the first.
type Picker func(n int) int

var responsePrefixes = map[intent.Type][]string{
	intent.TypeMusic:         {"🎵 ", "Great choice! ", "🎶 ", "🎧 "},
	intent.TypeShopping:      {"🛒 ", "Perfect! ", "🔍 ", "🛍️ "},
	intent.TypeSearch:        {"🔍 ", "Found it! ", "🌐 ", "📝 "},
	intent.TypeTravel:        {"✈️ ", "Excellent! ", "🧳 ", "🌍 "},
	intent.TypeMediaControl:  {"🎛️ ", "Done! ", "✅ ", "🎮 "},
	intent.TypeSearchReplace: {"🔄 ", "Updated! ", "🆕 ", "✨ "},
	intent.TypeGmail:         {"📧 ", "Perfect! ", "✅ ", "📬 "},
	intent.TypeWhatsApp:      {"💬 ", "Great! ", "✅ ", "📱 "},
	intent.TypePhone:         {"📞 ", "Calling! ", "✅ ", "📲 "},
}

// ResponseText is the user-facing line for a successful result: a short
// prefix for the intent type followed by the result message. It is empty
// for nil or failed results.
func ResponseText(t intent.Type, res *Result, pick Picker) string {
	if res == nil || !res.Success {
		return ""
	}
	prefixes, ok := responsePrefixes[t]
	if !ok {
		return "✅ " + res.Message
	}
	i := 0
	if pick != nil {
		i = pick(len(prefixes))
		if i < 0 || i >= len(prefixes) {
			i = 0
		}
	}
	return prefixes[i] + res.Message
}
