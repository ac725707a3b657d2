package internal

import "time"

var OneSecond = 1 * time.Second
var FiveSeconds = 5 * time.Second
var TenSeconds = 10 * time.Second
var ThirtySeconds = 30 * time.Second

// AnalysisCacheExpiration is how long a generated analysis is served from cache
var AnalysisCacheExpiration = 2 * time.Hour

// TimeSeriesCacheExpiration is how long a computed time series is reused
var TimeSeriesCacheExpiration = 30 * time.Minute
