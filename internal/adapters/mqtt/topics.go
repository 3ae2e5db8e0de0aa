package mqtt

import "strings"

// ActivityTopic is where the display text of a session is published.
func ActivityTopic(prefix, sessionID string) string {
	return prefix + "/sessions/" + sessionID + "/activity"
}

// FramesTopic is where frames of a session are consumed from.
func FramesTopic(prefix, sessionID string) string {
	return prefix + "/sessions/" + sessionID + "/frames"
}

// FramesFilter matches the frame topics of every session.
func FramesFilter(prefix string) string {
	return FramesTopic(prefix, "+")
}

// SessionFromTopic extracts the session id from a frames topic.
func SessionFromTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/sessions/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/frames")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
