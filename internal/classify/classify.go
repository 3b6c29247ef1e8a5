// Package classify maps a URL to a link category.
package classify

import (
	"regexp"
	"strings"

	"github.com/MrSnakeDoc/linkpocket/internal/model"
)

const musicDomain = "music.youtube.com"

// videoIDPattern captures the ID following one of the known video URL shapes.
// The leading greedy group makes the last shape occurrence win.
var videoIDPattern = regexp.MustCompile(`^.*(youtu.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)

const videoIDLength = 11

type rule struct {
	category model.Category
	keywords []string
}

// rules are evaluated in order after the music-domain and video checks.
var rules = []rule{
	{model.CategoryNews, []string{
		"news", "ytn", "jtbc", "kbs", "sbs", "mbc", "chosun", "joongang", "donga",
		"hani", "khan", "kmib", "yonhap", "maekyung", "hankyung", "segye", "munhwa",
		"cnn", "bbc", "reuters", "pressian", "nocut", "imnews",
	}},
	{model.CategoryMusic, []string{"music", "melon", "spotify"}},
	{model.CategorySNS, []string{"instagram", "facebook", "twitter", "tiktok", "x.com"}},
	{model.CategoryShopping, []string{
		"coupang", "gmarket", "aliexpress", "11st", "auction", "ssg", "smartstore",
		"kurly", "musinsa",
	}},
	{model.CategoryCommunity, []string{
		"cafe", "dcinside", "fmkorea", "ruliweb", "clien", "damoang", "theqoo",
		"instiz", "reddit", "ppomppu", "slrclub", "bobaedream", "mlbpark",
		"todayhumor", "dogdrip", "humoruniv", "etoland", "coolenjoy", "quasarzone",
		"okky", "inven", "82cook", "gasengi", "meeco", "mule", "coinpan", "nate",
	}},
}

// Category classifies a URL. First match wins; unmatched URLs are web.
func Category(rawURL string) model.Category {
	lower := strings.ToLower(rawURL)

	if strings.Contains(lower, musicDomain) {
		return model.CategoryMusic
	}
	if _, ok := VideoID(rawURL); ok {
		return model.CategoryYouTube
	}
	for _, r := range rules {
		if containsAny(lower, r.keywords) {
			return r.category
		}
	}
	return model.CategoryWeb
}

// VideoID extracts an 11-character video ID from a video URL.
func VideoID(rawURL string) (string, bool) {
	m := videoIDPattern.FindStringSubmatch(rawURL)
	if m == nil || len(m[2]) != videoIDLength {
		return "", false
	}
	return m[2], true
}

// LinkType derives the record type from a URL.
func LinkType(rawURL string) model.LinkType {
	if _, ok := VideoID(rawURL); ok {
		return model.TypeYouTube
	}
	return model.TypeWeb
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
