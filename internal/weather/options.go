package weather

// Option adjusts a single Service call.
type Option func(*callOptions)

type callOptions struct {
	lang        string
	units       string
	bypassCache bool
}

// WithLanguage sets the language for provider results and error messages.
// Accepts a BCP 47 tag or an Accept-Language header value.
func WithLanguage(lang string) Option {
	return func(o *callOptions) {
		if lang != "" {
			o.lang = MatchLanguage(lang)
		}
	}
}

// WithUnits selects UnitsMetric or UnitsImperial for forecasts. Unknown values are ignored.
func WithUnits(units string) Option {
	return func(o *callOptions) {
		if units == UnitsMetric || units == UnitsImperial {
			o.units = units
		}
	}
}

// BypassCache skips the cache lookup. Results are still written through.
func BypassCache() Option {
	return func(o *callOptions) {
		o.bypassCache = true
	}
}

func (s *Service) resolveOptions(opts []Option) callOptions {
	o := callOptions{
		lang:  s.defaultLanguage,
		units: s.defaultUnits,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
