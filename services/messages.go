package services

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys double as the English text.
const (
	msgLevelUp             = "Level up! You reached level %d"
	msgBadgeUnlocked       = "Badge unlocked: %s"
	msgAchievementUnlocked = "Achievement unlocked: %s (+%d XP, +%d coins)"
	msgStreak              = "%d day streak! +%d XP, +%d coins"
	msgDailyBonus          = "Daily login bonus: +%d XP, +%d coins"
	msgTournamentPrize     = "Tournament finished at rank %d: +%d coins, +%d gems"
)

// Languages offered in the user preferences. Only Hindi has translations so
// far; the others print English.
var supportedLanguages = map[string]language.Tag{
	"en": language.English,
	"hi": language.Hindi,
	"te": language.Telugu,
	"ta": language.Tamil,
	"bn": language.Bengali,
}

var hindiMessages = map[string]string{
	msgLevelUp:             "बधाई हो! आप स्तर %d पर पहुँच गए",
	msgBadgeUnlocked:       "बैज अनलॉक हुआ: %s",
	msgAchievementUnlocked: "उपलब्धि अनलॉक हुई: %s (+%d XP, +%d सिक्के)",
	msgStreak:              "%d दिन की लगातार हाज़िरी! +%d XP, +%d सिक्के",
	msgDailyBonus:          "दैनिक लॉगिन बोनस: +%d XP, +%d सिक्के",
	msgTournamentPrize:     "प्रतियोगिता में स्थान %d: +%d सिक्के, +%d रत्न",
}

func init() {
	for key, msg := range hindiMessages {
		if err := message.SetString(language.Hindi, key, msg); err != nil {
			panic(fmt.Sprintf("hindi message %q: %v", key, err))
		}
	}
}

// SupportedLanguage normalizes lang (e.g. "hi-IN") to one of the offered
// base languages.
func SupportedLanguage(lang string) (string, bool) {
	tag, err := language.Parse(lang)
	if err != nil {
		return "", false
	}
	base, _ := tag.Base()
	if _, ok := supportedLanguages[base.String()]; !ok {
		return "", false
	}
	return base.String(), true
}

func localize(lang, key string, args ...any) string {
	tag := language.English
	if base, ok := SupportedLanguage(lang); ok {
		tag = supportedLanguages[base]
	}
	return message.NewPrinter(tag).Sprintf(key, args...)
}
