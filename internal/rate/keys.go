package rate

func issueUserKey(userID string) string {
	return "ti:" + userID
}

func issueIPKey(ip string) string {
	return "tip:" + ip
}

func refreshKey(sessionID string) string {
	return "tr:" + sessionID
}
