package language

import (
	"strings"

	xlang "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Default is used when a job names no language.
const Default = "en"

// ISO 639-2/B codes and English names that the tag parser does not accept.
var aliases = map[string]string{
	"fre":        "fr",
	"ger":        "de",
	"chi":        "zh",
	"dut":        "nl",
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"russian":    "ru",
	"arabic":     "ar",
	"hindi":      "hi",
	"dutch":      "nl",
	"polish":     "pl",
	"swedish":    "sv",
	"danish":     "da",
	"norwegian":  "no",
	"finnish":    "fi",
}

func parse(code string) (xlang.Base, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return xlang.Base{}, false
	}
	if mapped, ok := aliases[code]; ok {
		code = mapped
	}
	tag, err := xlang.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return xlang.Base{}, false
	}
	base, conf := tag.Base()
	if conf == xlang.No {
		return xlang.Base{}, false
	}
	return base, true
}

// ToISO2 maps a code, tag or English name to its ISO 639-1 form. Unknown
// two-letter input passes through; anything else unknown yields "".
func ToISO2(code string) string {
	if base, ok := parse(code); ok {
		return base.String()
	}
	code = strings.ToLower(strings.TrimSpace(code))
	if len(code) == 2 {
		return code
	}
	return ""
}

// Normalize is ToISO2 with Default substituted for empty or unknown input.
func Normalize(code string) string {
	if iso := ToISO2(code); iso != "" {
		return iso
	}
	return Default
}

// ToISO3 maps a code to ISO 639-2, or "und" when unknown.
func ToISO3(code string) string {
	if base, ok := parse(code); ok {
		return base.ISO3()
	}
	return "und"
}

// DisplayName returns the English name of a language code.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	base, ok := parse(code)
	if !ok {
		return strings.ToUpper(strings.TrimSpace(code))
	}
	if name := display.English.Languages().Name(base); name != "" {
		return name
	}
	return base.String()
}
