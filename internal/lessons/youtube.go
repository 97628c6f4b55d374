package lessons

import "regexp"

var youTubeID = regexp.MustCompile(`(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?|shorts|live)/|.*[?&]v=)|youtu\.be/)([^"&?/\s]{11})`)

// YouTubeID extracts the 11-character video id from watch, embed, short and
// youtu.be URLs. It returns "" for anything else.
func YouTubeID(videoURL string) string {
	m := youTubeID.FindStringSubmatch(videoURL)
	if m == nil {
		return ""
	}
	return m[1]
}
