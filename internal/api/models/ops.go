package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus is the operator view of providers, cache and region.
type SystemStatus struct {
	Status      HealthStatus     `json:"status"`
	Time        Timestamp        `json:"time"`
	Region      RegionStatus     `json:"region"`
	Providers   []ProviderStatus `json:"providers"`
	Cache       CacheStatus      `json:"cache"`
	ActiveFlags []string         `json:"activeFlags"`
}

// RegionStatus reports the provider ordering decision.
type RegionStatus struct {
	PrimaryReachable bool       `json:"primaryReachable"`
	CheckedAt        *Timestamp `json:"checkedAt,omitempty"`
}

// ProviderStatus represents the status of an upstream provider.
type ProviderStatus struct {
	Provider            string       `json:"provider"`
	Status              HealthStatus `json:"status"`
	CircuitState        string       `json:"circuitState"`
	Requests            uint32       `json:"requests"`
	ConsecutiveFailures uint32       `json:"consecutiveFailures"`
	LastSuccessAt       *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *Timestamp   `json:"lastFailureAt,omitempty"`
	Message             *string      `json:"message,omitempty"`
}

// CacheStatus summarizes the cache store.
type CacheStatus struct {
	Mirror       string            `json:"mirror"`
	Hits         int64             `json:"hits"`
	Misses       int64             `json:"misses"`
	MirrorErrors int64             `json:"mirrorErrors"`
	Evictions    int64             `json:"evictions"`
	Reclaimed    int64             `json:"reclaimed"`
	Namespaces   []NamespaceStatus `json:"namespaces"`
}

// NamespaceStatus counts entries in one cache namespace.
type NamespaceStatus struct {
	Namespace    string `json:"namespace"`
	Entries      int    `json:"entries"`
	FreshEntries int    `json:"freshEntries"`
}

// CacheInvalidation is the result of clearing cache entries.
type CacheInvalidation struct {
	Prefix  string `json:"prefix"`
	Removed int    `json:"removed"`
}
