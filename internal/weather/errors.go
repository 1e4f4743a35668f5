package weather

import (
	"fmt"

	"golang.org/x/text/language"
)

// Kind classifies facade failures.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindLocationNotFound
	KindWeatherUnavailable
	KindOffline
	KindInvalidCoordinates
)

func (k Kind) String() string {
	switch k {
	case KindLocationNotFound:
		return "location_not_found"
	case KindWeatherUnavailable:
		return "weather_unavailable"
	case KindOffline:
		return "offline"
	case KindInvalidCoordinates:
		return "invalid_coordinates"
	default:
		return "unknown"
	}
}

// Error is returned by every Service operation. Message is ready to display
// in the caller's language; Err carries the provider errors for logging.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrLocationNotFound   = &Error{Kind: KindLocationNotFound, Message: "location not found"}
	ErrWeatherUnavailable = &Error{Kind: KindWeatherUnavailable, Message: "weather unavailable"}
	ErrOffline            = &Error{Kind: KindOffline, Message: "offline"}
	ErrInvalidCoordinates = &Error{Kind: KindInvalidCoordinates, Message: "invalid coordinates"}
)

// ParseError reports a provider payload that could not be decoded or violated
// the snapshot invariants.
type ParseError struct {
	Provider string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s response: %v", e.Provider, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Message keys.
const (
	MsgNetworkError     = "network_error"
	MsgLocationNotFound = "location_not_found"
	MsgAPILimit         = "api_limit"
	MsgUnknownError     = "unknown_error"
)

var messages = map[string]map[string]string{
	MsgNetworkError: {
		"en": "Network connection issue. Please check your connection and try again.",
		"fa": "مشکل اتصال به شبکه. لطفاً اتصال خود را بررسی کرده و دوباره امتحان کنید.",
		"ku": "کێشەی پەیوەندی تۆڕ. تکایە پەیوەندیەکەت بپشکنە و دووبارە هەوڵ بدەوە.",
	},
	MsgLocationNotFound: {
		"en": "Location not found. Please try a different location.",
		"fa": "مکان پیدا نشد. لطفاً مکان دیگری را امتحان کنید.",
		"ku": "شوێن نەدۆزرایەوە. تکایە شوێنێکی جیاواز تاقی بکەوە.",
	},
	MsgAPILimit: {
		"en": "Weather service is busy. Please try again in a moment.",
		"fa": "سرویس آب و هوا مشغول است. لطفاً چند لحظه دیگر دوباره امتحان کنید.",
		"ku": "خزمەتگوزاری کەشوهەوا سەرقاڵە. تکایە دوای چەند چرکەیەک دووبارە هەوڵ بدەوە.",
	},
	MsgUnknownError: {
		"en": "An unexpected error occurred. Please try again.",
		"fa": "خطای غیرمنتظره‌ای رخ داد. لطفاً دوباره امتحان کنید.",
		"ku": "هەڵەیەکی چاوەڕواننەکراو ڕوویدا. تکایە دووبارە هەوڵ بدەوە.",
	},
}

// Supported message languages, English first as the fallback.
var supportedLanguages = []language.Tag{
	language.English,
	language.Persian,
	language.Make("ku"),
}

var languageMatcher = language.NewMatcher(supportedLanguages)

// MatchLanguage maps a BCP 47 tag or Accept-Language header value onto a
// supported language code ("en", "fa" or "ku"), defaulting to English.
func MatchLanguage(accept ...string) string {
	_, index := language.MatchStrings(languageMatcher, accept...)
	base, _ := supportedLanguages[index].Base()
	return base.String()
}

// Message returns the localized text for key, falling back to English.
func Message(key, lang string) string {
	texts, ok := messages[key]
	if !ok {
		texts = messages[MsgUnknownError]
	}
	if text, ok := texts[lang]; ok {
		return text
	}
	return texts["en"]
}

func newError(kind Kind, msgKey, lang string, err error) *Error {
	return &Error{Kind: kind, Message: Message(msgKey, lang), Err: err}
}
