package models

// Push platforms recognised by the provider.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// Notification type categories used to filter pushes by user preference.
const (
	NotificationTypeChat   = "chat"
	NotificationTypeSystem = "system"
)

// PushToken is one registered device token of a user.
type PushToken struct {
	ID       int    `db:"id" json:"id"`
	UserID   int    `db:"user_id" json:"userId"`
	Token    string `db:"token" json:"token"`
	Platform string `db:"platform" json:"platform"`
}

// NotificationSettings holds a user's per-category push preferences. Both the
// delivery switch and the sound switch are kept per category.
type NotificationSettings struct {
	UserID       int      `db:"user_id" json:"userId"`
	EnabledTypes []string `json:"enabledTypes"`
	SoundTypes   []string `json:"soundTypes"`
}

// Enabled reports whether the given notification category is switched on.
func (s NotificationSettings) Enabled(category string) bool {
	return contains(s.EnabledTypes, category)
}

// SoundFor reports whether pushes of the category should carry a sound.
func (s NotificationSettings) SoundFor(category string) bool {
	return contains(s.SoundTypes, category)
}

func contains(types []string, category string) bool {
	for _, t := range types {
		if t == category {
			return true
		}
	}
	return false
}

// PushBatch is one provider-size-limited chunk of tokens sharing a payload.
// CommonUUID matches the uuid of the corresponding socket event so clients
// can drop the duplicate.
type PushBatch struct {
	Platform    string   `json:"platform"`
	Tokens      []string `json:"tokens"`
	Title       string   `json:"title"`
	Message     string   `json:"message"`
	Sound       string   `json:"sound,omitempty"`
	Type        string   `json:"type"`
	ChatID      int      `json:"chatId,omitempty"`
	MessageUUID string   `json:"messageUuid,omitempty"`
	CommonUUID  string   `json:"commonUuid"`
}
