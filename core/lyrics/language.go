package lyrics

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// knownLanguages are the tags matched by English display name when the AI
// reports a language name ("Japanese") instead of a code ("ja").
var knownLanguages = []language.Tag{
	language.Vietnamese,
	language.English,
	language.Japanese,
	language.Korean,
	language.Chinese,
	language.SimplifiedChinese,
	language.TraditionalChinese,
	language.MustParse("yue"),
	language.Thai,
	language.French,
	language.Spanish,
	language.German,
	language.Italian,
	language.Portuguese,
	language.Russian,
	language.Indonesian,
	language.Hindi,
}

// NormalizeLanguage turns the detected_language value into a BCP-47 tag.
// It returns "und" when the value cannot be interpreted.
func NormalizeLanguage(detected string) string {
	detected = strings.TrimSpace(detected)
	if detected == "" {
		return language.Und.String()
	}
	if tag, err := language.Parse(detected); err == nil {
		return tag.String()
	}

	// "Japanese (日本語)" -> "Japanese"
	name := detected
	if i := strings.IndexAny(name, "(/,"); i > 0 {
		name = strings.TrimSpace(name[:i])
	}
	namer := display.English.Tags()
	for _, tag := range knownLanguages {
		if strings.EqualFold(namer.Name(tag), name) {
			return tag.String()
		}
	}
	return language.Und.String()
}
