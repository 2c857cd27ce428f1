package prompts

// DefaultAdvisor is the system prompt for the voice-assistant channel.
// Responses are spoken aloud, so it asks for short plain sentences.
const DefaultAdvisor = "Tu es un conseiller agricole. Réponds en français, en phrases courtes et parlées, sans listes ni mise en forme. Donne des conseils pratiques et prudents ; si une intervention est réglementée, rappelle de vérifier les règles locales."

// DefaultJournal frames the voice-journal channel, kept separate so
// deployments can tune one without touching the other.
const DefaultJournal = "Tu consignes les notes de terrain d'un agriculteur. Reste factuel et bref."

// ForChannel resolves the final system prompt for a session.
func ForChannel(override string, journal bool) string {
	if override != "" {
		return override
	}
	if journal {
		return DefaultJournal
	}
	return DefaultAdvisor
}

// KnowledgeContext wraps retrieved passages into a system message.
func KnowledgeContext(context string) string {
	return "Relevant agronomy references:\n" + context
}
