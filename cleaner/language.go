package cleaner

import (
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
)

// minLanguageSample is the shortest text worth running detection on.
const minLanguageSample = 40

// minLanguageConfidence is the detector confidence below which no language is reported.
const minLanguageConfidence = 0.5

// DetectLanguage returns the ISO 639-3 code of text, or "" when the text is
// too short or detection is unreliable.
func DetectLanguage(text string) string {
	if utf8.RuneCountInString(text) < minLanguageSample {
		return ""
	}
	info := whatlanggo.Detect(text)
	if info.Confidence < minLanguageConfidence {
		return ""
	}
	return info.Lang.Iso6393()
}
