package mongodb

const (
	SettingsCollection = "dashboard_settings"

	// settingsDocumentID is the _id of the single settings document.
	settingsDocumentID = "dashboard"
)
