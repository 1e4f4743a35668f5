package weather

// CodeOvercast is the fallback for codes that cannot be mapped.
const CodeOvercast = 3

var wmoCodes = map[int]struct{}{
	0: {}, 1: {}, 2: {}, 3: {},
	45: {}, 48: {},
	51: {}, 53: {}, 55: {}, 56: {}, 57: {},
	61: {}, 63: {}, 65: {}, 66: {}, 67: {},
	71: {}, 73: {}, 75: {}, 77: {},
	80: {}, 81: {}, 82: {}, 85: {}, 86: {},
	95: {}, 96: {}, 99: {},
}

// IsWMO reports whether code is in the supported WMO set.
func IsWMO(code int) bool {
	_, ok := wmoCodes[code]
	return ok
}

// NormalizeWMO passes WMO codes through and maps anything else to overcast.
func NormalizeWMO(code int) int {
	if IsWMO(code) {
		return code
	}
	return CodeOvercast
}

// FromOpenWeatherMap translates an OpenWeatherMap condition id to a WMO code.
func FromOpenWeatherMap(id int) int {
	switch {
	// Thunderstorm. OpenWeatherMap reports no hail, so 96 and 99 only ever
	// come from Open-Meteo.
	case id >= 200 && id <= 232:
		return 95

	// Drizzle
	case id == 300 || id == 310:
		return 51
	case id == 301 || id == 311 || id == 313 || id == 321:
		return 53
	case id == 302 || id == 312 || id == 314:
		return 55

	// Rain
	case id == 500:
		return 61
	case id == 501:
		return 63
	case id >= 502 && id <= 504:
		return 65
	case id == 511:
		return 66
	case id == 520:
		return 80
	case id == 521:
		return 81
	case id == 522 || id == 531:
		return 82

	// Snow, sleet
	case id == 600:
		return 71
	case id == 601:
		return 73
	case id == 602:
		return 75
	case id == 611 || id == 612 || id == 615:
		return 66
	case id == 613 || id == 616:
		return 67
	case id == 620 || id == 621:
		return 85
	case id == 622:
		return 86

	// Mist, smoke, haze, dust, fog, sand, ash, squalls, tornado
	case id >= 700 && id <= 799:
		return 45

	// Clear and clouds
	case id == 800:
		return 0
	case id == 801:
		return 1
	case id == 802 || id == 803:
		return 2
	case id == 804:
		return 3
	}

	return CodeOvercast
}
