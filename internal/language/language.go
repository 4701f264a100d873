// Package language implements the closed code -> (gl, hl, display name,
// reference label) table used to parameterize search-provider calls and the
// citation label appended to the answer prompt, per spec.md's Glossary.
//
// Ported from the Tapestry reference implementation's Language enum
// (src/types/language.py), which pairs each ISO code with a search-provider
// geo/host-language pair, a display name, and a localized word for "Source".
package language

import "strings"

// Entry is one row of the language table.
type Entry struct {
	Code       string
	GL         string // provider "geo location" parameter
	HL         string // provider "host language" parameter
	Name       string // display name
	SourceTag  string // localized label used for citations, e.g. "Source"/"출처"
}

var table = map[string]Entry{
	"en": {"en", "us", "en", "English", "Source"},
	"ko": {"ko", "kr", "ko", "Korean", "출처"},
	"zh": {"zh", "cn", "zh-cn", "Chinese", "Source"},
	"ja": {"ja", "jp", "ja", "Japanese", "Source"},
	"de": {"de", "de", "de", "German", "Source"},
	"fr": {"fr", "fr", "fr", "French", "Source"},
	"es": {"es", "es", "es", "Spanish", "Source"},
	"it": {"it", "it", "it", "Italian", "Source"},
	"nl": {"nl", "nl", "nl", "Dutch", "Source"},
	"pt": {"pt", "pt", "pt", "Portuguese", "Source"},
	"ru": {"ru", "ru", "ru", "Russian", "Source"},
	"pl": {"pl", "pl", "pl", "Polish", "Source"},
	"sv": {"sv", "se", "sv", "Swedish", "Source"},
	"no": {"no", "no", "no", "Norwegian", "Source"},
	"da": {"da", "dk", "da", "Danish", "Source"},
	"fi": {"fi", "fi", "fi", "Finnish", "Source"},
	"ar": {"ar", "ar", "ar", "Arabic", "Source"},
	"hi": {"hi", "in", "hi", "Hindi", "Source"},
	"id": {"id", "id", "id", "Indonesian", "Source"},
	"tr": {"tr", "tr", "tr", "Turkish", "Source"},
	"th": {"th", "th", "th", "Thai", "Source"},
	"vi": {"vi", "vn", "vi", "Vietnamese", "Source"},
}

// defaultEntry is returned for unknown codes, matching the Python
// implementation's default-to-English behavior.
var defaultEntry = table["en"]

// Resolve returns the table row for code, defaulting to English when the
// code is unknown or empty.
func Resolve(code string) Entry {
	c := strings.ToLower(strings.TrimSpace(code))
	if e, ok := table[c]; ok {
		return e
	}
	return defaultEntry
}
