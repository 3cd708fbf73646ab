package destination

import (
	"fmt"
	"strings"
)

// Music platforms accepted by MusicURL.
const (
	PlatformYouTube      = "youtube"
	PlatformYouTubeMusic = "youtube_music"
	PlatformSpotify      = "spotify"
	PlatformSoundCloud   = "soundcloud"
)

// MusicTarget describes where a music request should land. A search page
// sets NeedsAutoClick so the opener clicks the first result.
type MusicTarget struct {
	URL                     string `json:"url"`
	Direct                  bool   `json:"direct"`
	NeedsAutoClick          bool   `json:"needsAutoClick"`
	NeedsAggressiveAutoplay bool   `json:"needsAggressiveAutoplay"`
	Query                   string `json:"query"`
	Platform                string `json:"platform"`
}

// popularSongs maps a normalized track phrase to a YouTube video id.
var popularSongs = []struct {
	phrase  string
	videoID string
}{
	{"despacito", "kJQP7kiw5Fk"},
	{"shape of you", "JGwWNGJdvx8"},
	{"perfect", "tgPXVfcF3sY"},
	{"blinding lights", "4NRXx6U8ABQ"},
	{"watermelon sugar", "H7bqZIpC3Pg"},
	{"levitating", "TUVcZfQe-Kw"},
	{"drivers license", "ZmDBbnmKpqQ"},
	{"stay", "qjVBag8nPy0"},
	{"good 4 u", "gNi_6U5Pm_o"},
	{"supreme", "AX1zRInC_TA"},
	{"that girl", "oGORM1_ziSY"},
	{"fell for you", "SiKfBBoF51w"},
	{"aath asle", "0FnZO-U5oHo"},
	{"together", "7iy8iB8tu5c"},
	{"heat waves", "mRD0-GxqHVo"},
	{"as it was", "H5v3kku4y6Q"},
	{"bad habit", "orJSJGHjBLI"},
	{"anti hero", "b1kbLWvqugk"},
	{"flowers", "G7KNmW9a75Y"},
	{"unholy", "Uq9gPaIzbe8"},
	{"sunflower", "ApXoWvfEYVU"},
	{"somebody that i used to know", "8UVNT4wvIGY"},
	{"rolling in the deep", "rYEDA3JcQqw"},
	{"bohemian rhapsody", "fJ9rUzIMcZQ"},
	{"imagine", "YkgkThdzX-8"},
	{"hotel california", "09839DpTctU"},
	{"sweet child o mine", "1w7OgIMMRc4"},
	{"smells like teen spirit", "hTWKbfoikeg"},
	{"billie jean", "Zi_XLOBDo_Y"},
	{"thriller", "sOnqjkJTMaA"},
	{"dancing queen", "xFrGuyw1V8s"},
	{"dont stop believin", "1k8craCGpgs"},
	{"sweet caroline", "1vhFnTjia_I"},
	{"wonderwall", "bx1Bh8ZvH84"},
	{"hey jude", "A_MjCqQoLLA"},
	{"let it be", "QDYfEBY9NM4"},
}

// LookupVideo finds a known video id for query. A hit is either the stored
// phrase inside the query or the query inside the stored phrase, ignoring case.
// An empty query never matches.
func LookupVideo(query string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return "", false
	}
	for _, s := range popularSongs {
		if strings.Contains(q, s.phrase) || strings.Contains(s.phrase, q) {
			return s.videoID, true
		}
	}
	return "", false
}

// DirectVideoURL is a YouTube watch URL with autoplay parameters.
func DirectVideoURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s&autoplay=1&mute=0&start=0&enablejsapi=1", videoID)
}

// YouTubeSearchURL filters results to videos only.
func YouTubeSearchURL(query string) string {
	return "https://www.youtube.com/results?search_query=" + encode(query) + "&sp=EgIQAQ%253D%253D"
}

// Platforms lists the supported automation.music_platform values.
var Platforms = []string{PlatformYouTube, PlatformYouTubeMusic, PlatformSpotify, PlatformSoundCloud}

func KnownPlatform(platform string) bool {
	for _, p := range Platforms {
		if p == platform {
			return true
		}
	}
	return false
}

// MusicURL builds a plain search page on the given platform.
func MusicURL(query, platform string) string {
	switch platform {
	case PlatformSpotify:
		return "https://open.spotify.com/search/" + encode(query)
	case PlatformSoundCloud:
		return "https://soundcloud.com/search?q=" + encode(query)
	case PlatformYouTubeMusic:
		return "https://music.youtube.com/search?q=" + encode(query)
	default:
		return YouTubeSearchURL(query)
	}
}

// Music resolves a play request. YouTube requests try the popular-songs
// table first and otherwise land on a search page that needs an autoclick.
// Other platforms only have search pages.
func Music(query, platform string) MusicTarget {
	if platform == "" {
		platform = PlatformYouTube
	}
	if platform != PlatformYouTube {
		return MusicTarget{URL: MusicURL(query, platform), Query: query, Platform: platform}
	}
	if id, ok := LookupVideo(query); ok {
		return MusicTarget{URL: DirectVideoURL(id), Direct: true, Query: query, Platform: platform}
	}
	return MusicTarget{
		URL:                     YouTubeSearchURL(query),
		NeedsAutoClick:          true,
		NeedsAggressiveAutoplay: true,
		Query:                   query,
		Platform:                platform,
	}
}
