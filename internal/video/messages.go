package video

import "propvid/internal/domain"

type messageSet struct {
	prefix  string
	auth    string
	timeout string
	network string
	generic string
}

var userMessages = map[string]messageSet{
	"en": {
		prefix:  "Failed to create video. ",
		auth:    "Please sign in and try again.",
		timeout: "The request timed out. Please try again.",
		network: "Please check your internet connection.",
		generic: "Please try again later.",
	},
	"he": {
		prefix:  "יצירת הסרטון נכשלה. ",
		auth:    "יש להתחבר ולנסות שוב.",
		timeout: "תם הזמן המוקצב לבקשה. נסו שוב.",
		network: "בדקו את חיבור האינטרנט שלכם.",
		generic: "נסו שוב מאוחר יותר.",
	},
}

// UserMessage maps a pipeline failure to the single human-readable message
// shown to the submitting user, classified by error kind. Kind extraction
// sees through retry exhaustion wrapping.
func UserMessage(err error) string {
	return LocalizedUserMessage(err, "en")
}

// LocalizedUserMessage is UserMessage in the given locale; unknown locales
// fall back to English.
func LocalizedUserMessage(err error, locale string) string {
	set, ok := userMessages[locale]
	if !ok {
		set = userMessages["en"]
	}
	switch domain.KindOf(err) {
	case domain.KindAuthentication:
		return set.prefix + set.auth
	case domain.KindTimeout:
		return set.prefix + set.timeout
	case domain.KindNetwork:
		return set.prefix + set.network
	default:
		return set.prefix + set.generic
	}
}
