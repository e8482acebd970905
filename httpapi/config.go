package httpapi

// Config defines HTTP API settings.
type Config struct {
	Addr string
	// BasePath mounts the API under a prefix, e.g. "/notesync".
	BasePath string
	// AllowedOrigins lists CORS origins. "*" allows any origin.
	AllowedOrigins []string
	// HistorySize bounds the replayable document event history.
	HistorySize int
}
