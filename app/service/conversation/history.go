package conversation

// ContextWindow is the number of client turns forwarded to the provider.
// Together with the system turn a request never carries more than ContextWindow+1 messages.
const ContextWindow = 4

// Recent returns the trailing ContextWindow turns without copying.
func Recent(turns []Turn) []Turn {
	if len(turns) <= ContextWindow {
		return turns
	}

	return turns[len(turns)-ContextWindow:]
}

// Latest returns the content of the last turn, or an empty string.
func Latest(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}

	return turns[len(turns)-1].Content
}
